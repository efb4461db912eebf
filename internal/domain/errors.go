package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound               = errors.New("recurso no encontrado")
	ErrInvalidInput           = errors.New("entrada inválida")
	ErrDuplicate              = errors.New("recurso duplicado")
	ErrConflict               = errors.New("conflicto con el estado actual")
	ErrIdentificacionInvalida = errors.New("identificación del comprador inválida")
	ErrTotalesNoCuadran       = errors.New("los totales de la factura no cuadran con los de la orden")
	ErrFacturaNoReprocesable  = errors.New("la factura no está en un estado reprocesable")
)

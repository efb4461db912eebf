// Package sri implementa los cálculos del comprobante electrónico SRI (Ecuador):
// clave de acceso (49 dígitos) y su dígito verificador módulo 11.
package sri

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Catálogo de valores usados en la clave de acceso.
const (
	TipoComprobanteFactura = "01"
	AmbienteProduccion     = "1"
	AmbientePruebas        = "2"
	TipoEmisionNormal      = "1"
)

// ClaveAccesoParams contiene los campos de la clave de acceso en el orden
// exigido por el SRI (ficha técnica de comprobantes electrónicos).
type ClaveAccesoParams struct {
	FechaEmision    time.Time
	TipoComprobante string // "01" factura
	RUCEmisor       string // 13 dígitos
	Ambiente        string // "1" producción, "2" pruebas
	Serie           string // establecimiento + punto de emisión, 6 dígitos
	Secuencial      string // 9 dígitos
	CodigoNumerico  string // 8 dígitos, fijo por comprobante
	TipoEmision     string // "1" normal
}

// GenerarClaveAcceso concatena los 48 dígitos de la clave y añade el dígito
// verificador módulo 11. La clave es determinista: el mismo comprobante produce
// siempre la misma clave, por lo que reenviar el documento al SRI es seguro.
func GenerarClaveAcceso(p ClaveAccesoParams) (string, error) {
	if p.FechaEmision.IsZero() {
		return "", fmt.Errorf("sri: fecha de emisión es obligatoria")
	}
	if err := validarDigitos("RUC emisor", p.RUCEmisor, 13); err != nil {
		return "", err
	}
	if err := validarDigitos("tipo de comprobante", p.TipoComprobante, 2); err != nil {
		return "", err
	}
	if p.Ambiente != AmbienteProduccion && p.Ambiente != AmbientePruebas {
		return "", fmt.Errorf("sri: ambiente %q desconocido (usar '1' o '2')", p.Ambiente)
	}
	if err := validarDigitos("serie", p.Serie, 6); err != nil {
		return "", err
	}
	if err := validarDigitos("secuencial", p.Secuencial, 9); err != nil {
		return "", err
	}
	if err := validarDigitos("código numérico", p.CodigoNumerico, 8); err != nil {
		return "", err
	}
	tipoEmision := p.TipoEmision
	if tipoEmision == "" {
		tipoEmision = TipoEmisionNormal
	}
	if err := validarDigitos("tipo de emisión", tipoEmision, 1); err != nil {
		return "", err
	}

	base := p.FechaEmision.Format("02012006") +
		p.TipoComprobante +
		p.RUCEmisor +
		p.Ambiente +
		p.Serie +
		p.Secuencial +
		p.CodigoNumerico +
		tipoEmision

	dv, err := DigitoVerificadorModulo11(base)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", base, dv), nil
}

// DigitoVerificadorModulo11 calcula el verificador de la clave de acceso:
// pesos 2..7 cíclicos desde el dígito de la derecha, dv = 11 - (suma % 11);
// 11 se mapea a 0 y 10 a 1.
func DigitoVerificadorModulo11(digitos string) (int, error) {
	if digitos == "" {
		return 0, fmt.Errorf("sri: cadena vacía para el dígito verificador")
	}
	peso := 2
	var suma int
	for i := len(digitos) - 1; i >= 0; i-- {
		c := digitos[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("sri: carácter no numérico %q en la clave", c)
		}
		suma += int(c-'0') * peso
		peso++
		if peso > 7 {
			peso = 2
		}
	}
	dv := 11 - (suma % 11)
	switch dv {
	case 11:
		return 0, nil
	case 10:
		return 1, nil
	default:
		return dv, nil
	}
}

// CodigoNumericoDesdeOrden deriva el código numérico de 8 dígitos a partir del
// ID de la orden. Al ser determinista, la clave de acceso de una misma orden no
// cambia entre reintentos y el SRI deduplica por clave en vez de duplicar el
// comprobante.
func CodigoNumericoDesdeOrden(orderID string) string {
	h := sha256.Sum256([]byte(orderID))
	n := binary.BigEndian.Uint32(h[:4]) % 100_000_000
	return fmt.Sprintf("%08d", n)
}

func validarDigitos(campo, valor string, largo int) error {
	if len(valor) != largo {
		return fmt.Errorf("sri: %s debe tener %d dígitos, tiene %d", campo, largo, len(valor))
	}
	for i := 0; i < len(valor); i++ {
		if valor[i] < '0' || valor[i] > '9' {
			return fmt.Errorf("sri: %s debe ser numérico", campo)
		}
	}
	return nil
}

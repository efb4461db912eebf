// Package identificacion clasifica la identificación del comprador según los
// tipos del catálogo del SRI (Ecuador): RUC, cédula y pasaporte/ID extranjero.
package identificacion

import (
	"strings"
	"unicode"

	"github.com/tu-usuario/facturacion-sri/internal/domain"
)

// Códigos de tipo de identificación (catálogo SRI, tabla 6).
const (
	TipoRUC       = "04" // RUC: 13 dígitos terminados en 001
	TipoCedula    = "05" // Cédula: 10 dígitos con dígito verificador módulo 10
	TipoPasaporte = "06" // Pasaporte o identificación del exterior
)

// Clasificacion es el resultado de clasificar una identificación cruda.
type Clasificacion struct {
	TipoCode string
	Valor    string // valor normalizado (sin separadores)
}

// coeficientes módulo 10 para los 9 primeros dígitos de la cédula.
var cedulaCoeficientes = [9]int{2, 1, 2, 1, 2, 1, 2, 1, 2}

// Clasificar determina el tipo de identificación a partir del string crudo del
// formulario de facturación. Es una función pura, sin I/O.
//
// Reglas (sobre el valor sin separadores):
//   - 13 dígitos terminados en "001"  -> RUC (04)
//   - 10 dígitos con verificador ok   -> Cédula (05)
//   - al menos un dígito, largo 5..20 -> Pasaporte / ID exterior (06)
//   - en cualquier otro caso falla con ErrIdentificacionInvalida
func Clasificar(raw string) (Clasificacion, error) {
	normalizado := normalizar(raw)
	if normalizado == "" {
		return Clasificacion{}, domain.ErrIdentificacionInvalida
	}

	if esNumerico(normalizado) {
		if len(normalizado) == 13 && strings.HasSuffix(normalizado, "001") {
			return Clasificacion{TipoCode: TipoRUC, Valor: normalizado}, nil
		}
		if len(normalizado) == 10 && VerificadorCedulaValido(normalizado) {
			return Clasificacion{TipoCode: TipoCedula, Valor: normalizado}, nil
		}
	}

	if tieneDigito(normalizado) && len(normalizado) >= 5 && len(normalizado) <= 20 {
		return Clasificacion{TipoCode: TipoPasaporte, Valor: normalizado}, nil
	}
	return Clasificacion{}, domain.ErrIdentificacionInvalida
}

// VerificadorCedulaValido valida el dígito verificador de una cédula ecuatoriana
// (módulo 10: coeficientes 2,1,2,... sobre los 9 primeros dígitos, productos
// mayores a 9 restan 9, verificador = (10 - suma%10) % 10).
func VerificadorCedulaValido(cedula string) bool {
	if len(cedula) != 10 || !esNumerico(cedula) {
		return false
	}
	var suma int
	for i := 0; i < 9; i++ {
		producto := int(cedula[i]-'0') * cedulaCoeficientes[i]
		if producto > 9 {
			producto -= 9
		}
		suma += producto
	}
	esperado := (10 - suma%10) % 10
	return int(cedula[9]-'0') == esperado
}

// normalizar recorta espacios y elimina separadores comunes (puntos, guiones, espacios internos).
func normalizar(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '.' || r == '-' || r == ' ':
			continue
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func esNumerico(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func tieneDigito(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

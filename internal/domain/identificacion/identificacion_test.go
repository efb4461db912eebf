package identificacion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/identificacion"
)

// Cédulas con dígito verificador correcto según módulo 10
// (los 9 primeros dígitos determinan el décimo).
const (
	cedulaValida1 = "1712345675"
	cedulaValida2 = "0101010106"
)

func TestClasificar_RUC(t *testing.T) {
	c, err := identificacion.Clasificar("1791234567001")
	require.NoError(t, err)
	assert.Equal(t, identificacion.TipoRUC, c.TipoCode)
	assert.Equal(t, "1791234567001", c.Valor)
}

func TestClasificar_RUCConSeparadores(t *testing.T) {
	c, err := identificacion.Clasificar(" 1791234567-001 ")
	require.NoError(t, err)
	assert.Equal(t, identificacion.TipoRUC, c.TipoCode)
	assert.Equal(t, "1791234567001", c.Valor)
}

func TestClasificar_Cedula(t *testing.T) {
	c, err := identificacion.Clasificar(cedulaValida1)
	require.NoError(t, err)
	assert.Equal(t, identificacion.TipoCedula, c.TipoCode)
	assert.Equal(t, cedulaValida1, c.Valor)
}

// 10 dígitos con verificador incorrecto no es cédula, pero sí cumple la regla
// de pasaporte (al menos un dígito, largo 5..20).
func TestClasificar_CedulaVerificadorMalo_CaeAPasaporte(t *testing.T) {
	c, err := identificacion.Clasificar("1712345670")
	require.NoError(t, err)
	assert.Equal(t, identificacion.TipoPasaporte, c.TipoCode)
}

func TestClasificar_Pasaporte(t *testing.T) {
	c, err := identificacion.Clasificar("ab-123456")
	require.NoError(t, err)
	assert.Equal(t, identificacion.TipoPasaporte, c.TipoCode)
	assert.Equal(t, "AB123456", c.Valor, "el valor se normaliza en mayúsculas y sin separadores")
}

func TestClasificar_SinDigitos_Falla(t *testing.T) {
	_, err := identificacion.Clasificar("abc")
	assert.ErrorIs(t, err, domain.ErrIdentificacionInvalida)
}

func TestClasificar_MuyCorta_Falla(t *testing.T) {
	_, err := identificacion.Clasificar("1234")
	assert.ErrorIs(t, err, domain.ErrIdentificacionInvalida)
}

func TestClasificar_MuyLarga_Falla(t *testing.T) {
	_, err := identificacion.Clasificar("123456789012345678901")
	assert.ErrorIs(t, err, domain.ErrIdentificacionInvalida)
}

func TestClasificar_Vacia_Falla(t *testing.T) {
	_, err := identificacion.Clasificar("   ")
	assert.ErrorIs(t, err, domain.ErrIdentificacionInvalida)
}

func TestVerificadorCedulaValido(t *testing.T) {
	assert.True(t, identificacion.VerificadorCedulaValido(cedulaValida1))
	assert.True(t, identificacion.VerificadorCedulaValido(cedulaValida2))
	assert.False(t, identificacion.VerificadorCedulaValido("1712345670"))
	assert.False(t, identificacion.VerificadorCedulaValido("171234567"), "largo distinto de 10")
	assert.False(t, identificacion.VerificadorCedulaValido("17123456aa"))
}

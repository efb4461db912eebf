// Package sri implementa la integración con los web services de comprobantes
// electrónicos del SRI (Ecuador): construcción del XML de la factura, firma
// XAdES-BES y envío a recepción/autorización.
package sri

import (
	"context"

	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// AppEnvDev no envía al SRI: el orquestador usa el cliente simulado.
	AppEnvDev = "dev"
	// AppEnvTest envía al ambiente de certificación/pruebas del SRI.
	AppEnvTest = "test"
	// AppEnvProd envía al ambiente de producción del SRI.
	AppEnvProd = "prod"
)

// ── Resultado de envío ─────────────────────────────────────────────────────────

// Outcome clasifica la respuesta del SRI en las tres salidas que le importan
// al orquestador. Los estados más finos del SRI (RECIBIDA, DEVUELTA,
// EN PROCESO, NO AUTORIZADO...) se conservan en RawResponse como detalle.
type Outcome string

const (
	// OutcomeAuthorized el comprobante fue autorizado (éxito terminal).
	OutcomeAuthorized Outcome = "AUTHORIZED"
	// OutcomeRejected el SRI examinó el documento y lo rechazó por contenido.
	// Reenviar el mismo contenido no va a funcionar.
	OutcomeRejected Outcome = "REJECTED"
	// OutcomeTransient fallo de red, timeout, 5xx o comprobante aún en
	// procesamiento. Reintentable.
	OutcomeTransient Outcome = "TRANSIENT"
)

// SubmitResult resultado tipado de un intento de envío o consulta.
type SubmitResult struct {
	Outcome             Outcome
	ClaveAcceso         string
	NumeroAutorizacion  string // no vacío solo con OutcomeAuthorized
	Mensaje             string // motivo de rechazo o causa del fallo transitorio
	RawResponse         string // respuesta cruda del SRI (auditoría)
}

// Submitter es el puerto de salida hacia el SRI. La implementación real usa
// SOAP; para tests y modo dev se inyectan implementaciones alternativas.
// El cliente solo clasifica: nunca decide reintentos (eso es del orquestador).
type Submitter interface {
	// Submit serializa y firma el comprobante, lo entrega a recepción y, si es
	// recibido, consulta la autorización por clave de acceso.
	Submit(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) (*SubmitResult, error)

	// ConsultarAutorizacion consulta el estado de un comprobante ya enviado.
	// Se usa antes de reenviar para no duplicar la presentación tras una caída.
	ConsultarAutorizacion(ctx context.Context, claveAcceso string) (*SubmitResult, error)
}

// Emisor datos del contribuyente emisor para el XML del comprobante.
type Emisor struct {
	RUC                  string
	RazonSocial          string
	NombreComercial      string
	DirMatriz            string
	DirEstablecimiento   string
	Estab                string // 3 dígitos
	PtoEmi               string // 3 dígitos
	ObligadoContabilidad bool
}

package billing

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
	infrasri "github.com/tu-usuario/facturacion-sri/internal/infrastructure/sri"
	"github.com/tu-usuario/facturacion-sri/pkg/logger"
)

// OrchestratorConfig parámetros del ciclo de envío.
type OrchestratorConfig struct {
	// MaxReintentos número de fallos transitorios consecutivos antes de
	// declarar DEFINITIVELY_FAILED. Por defecto 5.
	MaxReintentos int
	// SubmitTimeout acota cada intento de envío (ProcessAsync). Por defecto 30 s.
	SubmitTimeout time.Duration
	// StuckTimeout edad a partir de la cual una factura en SUBMITTING se
	// considera colgada (el proceso murió a mitad de envío). Por defecto 5 min.
	StuckTimeout time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MaxReintentos <= 0 {
		c.MaxReintentos = 5
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = 5 * time.Minute
	}
	return c
}

// SubmissionOrchestrator maneja el ciclo de vida de envío de la factura:
//
//	DRAFT → SUBMITTING → AUTHORIZED | REJECTED | TRANSIENT_FAILURE
//	TRANSIENT_FAILURE → SUBMITTING (reintento) → ... → DEFINITIVELY_FAILED
//
// Cada transición se persiste antes de continuar: si el proceso muere en
// cualquier punto, el estado en DB refleja lo último que realmente pasó y el
// scheduler puede retomar. Una factura colgada en SUBMITTING se recupera
// consultando la autorización por clave de acceso antes de reenviar, porque
// no se sabe si el envío anterior llegó al SRI.
type SubmissionOrchestrator struct {
	invoiceRepo repository.InvoiceRepository
	submitter   infrasri.Submitter
	cfg         OrchestratorConfig
	log         *logger.Logger
}

// NewSubmissionOrchestrator construye el orquestador.
func NewSubmissionOrchestrator(invoiceRepo repository.InvoiceRepository, submitter infrasri.Submitter, cfg OrchestratorConfig, log *logger.Logger) *SubmissionOrchestrator {
	return &SubmissionOrchestrator{
		invoiceRepo: invoiceRepo,
		submitter:   submitter,
		cfg:         cfg.withDefaults(),
		log:         log,
	}
}

// ProcessAsync dispara el envío en una goroutine independiente con su propio
// context, desacoplado del ciclo HTTP que ensambló la factura.
func (o *SubmissionOrchestrator) ProcessAsync(invoiceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SubmitTimeout)
		defer cancel()
		if err := o.Process(ctx, invoiceID); err != nil {
			o.log.Error().Err(err).Str("invoice_id", invoiceID).Msg("procesamiento de envío falló")
		}
	}()
}

// Process ejecuta un intento de envío para la factura. Es seguro llamarlo de
// más: estados terminales y envíos en curso se saltan sin efecto.
func (o *SubmissionOrchestrator) Process(ctx context.Context, invoiceID string) error {
	inv, err := o.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return domain.ErrNotFound
	}

	if inv.IsTerminal() {
		o.log.Debug().Str("invoice_id", invoiceID).Str("status", inv.Status).Msg("factura en estado terminal, sin acción")
		return nil
	}

	if inv.Status == entity.StatusSubmitting {
		// Un envío reciente sigue en curso en otra goroutine/instancia.
		if time.Since(inv.UpdatedAt) < o.cfg.StuckTimeout {
			o.log.Debug().Str("invoice_id", invoiceID).Msg("envío en curso, sin acción")
			return nil
		}
		o.log.Warn().Str("invoice_id", invoiceID).Time("updated_at", inv.UpdatedAt).Msg("factura colgada en SUBMITTING, recuperando")
	}

	// Si la factura ya se presentó alguna vez, primero preguntar por la clave:
	// el intento anterior pudo haber llegado aunque no viéramos la respuesta.
	if inv.ClaveAcceso != "" && inv.Status != entity.StatusDraft {
		res, cErr := o.submitter.ConsultarAutorizacion(ctx, inv.ClaveAcceso)
		if cErr == nil && res != nil && res.Outcome != infrasri.OutcomeTransient {
			return o.applyResult(ctx, inv, res)
		}
		// transitorio o error: el comprobante no consta, continuar con el envío
	}

	items, err := o.invoiceRepo.GetItemsByInvoiceID(ctx, inv.ID)
	if err != nil {
		return err
	}

	// Marcar SUBMITTING antes de tocar la red: si morimos a mitad de llamada,
	// la recuperación sabe que hubo un intento con resultado desconocido.
	inv.Status = entity.StatusSubmitting
	inv.UpdatedAt = time.Now()
	if err := o.invoiceRepo.Update(ctx, inv); err != nil {
		return err
	}

	res, err := o.submitter.Submit(ctx, inv, items)
	if err != nil {
		// Fallo local (XML, firma, certificado). No viajó nada al SRI; se trata
		// como transitorio para que quede visible y el operador pueda corregir
		// la causa (ej. certificado vencido) y reintentar.
		res = &infrasri.SubmitResult{
			Outcome:     infrasri.OutcomeTransient,
			ClaveAcceso: inv.ClaveAcceso,
			Mensaje:     err.Error(),
		}
	}
	return o.applyResult(ctx, inv, res)
}

// applyResult persiste la transición que corresponde al resultado del intento.
func (o *SubmissionOrchestrator) applyResult(ctx context.Context, inv *entity.Invoice, res *infrasri.SubmitResult) error {
	now := time.Now()
	inv.UpdatedAt = now
	if res.RawResponse != "" {
		inv.RawAuthorityResponse = res.RawResponse
	}

	switch res.Outcome {
	case infrasri.OutcomeAuthorized:
		inv.Status = entity.StatusAuthorized
		inv.AuthorizationNumber = res.NumeroAutorizacion
		inv.ErrorMessage = ""
		o.log.Info().Str("invoice_id", inv.ID).Str("numero_autorizacion", res.NumeroAutorizacion).Msg("factura autorizada")

	case infrasri.OutcomeRejected:
		// Rechazo por contenido: reenviar lo mismo no sirve, no se reintenta.
		inv.Status = entity.StatusRejected
		inv.ErrorMessage = res.Mensaje
		o.log.Warn().Str("invoice_id", inv.ID).Str("motivo", res.Mensaje).Msg("factura rechazada")

	case infrasri.OutcomeTransient:
		inv.RetryCount++
		inv.LastRetryAt = &now
		inv.ErrorMessage = res.Mensaje
		if inv.RetryCount >= o.cfg.MaxReintentos {
			inv.Status = entity.StatusFailed
			o.log.Error().Str("invoice_id", inv.ID).Int("retry_count", inv.RetryCount).Msg("reintentos agotados, factura marcada como fallo definitivo")
		} else {
			inv.Status = entity.StatusTransientFailure
			o.log.Warn().Str("invoice_id", inv.ID).Int("retry_count", inv.RetryCount).Str("causa", res.Mensaje).Msg("fallo transitorio, se reintentará")
		}
	}

	return o.invoiceRepo.Update(ctx, inv)
}

// Reprocess reencola manualmente una factura en DEFINITIVELY_FAILED: resetea
// el contador de reintentos y ejecuta un intento inmediato. Facturas REJECTED
// no son reprocesables (el contenido fue examinado y rechazado).
func (o *SubmissionOrchestrator) Reprocess(ctx context.Context, invoiceID string) error {
	inv, err := o.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return domain.ErrNotFound
	}
	if inv.Status != entity.StatusFailed {
		return domain.ErrFacturaNoReprocesable
	}

	inv.Status = entity.StatusTransientFailure
	inv.RetryCount = 0
	inv.ErrorMessage = ""
	inv.UpdatedAt = time.Now()
	if err := o.invoiceRepo.Update(ctx, inv); err != nil {
		return err
	}
	o.log.Info().Str("invoice_id", invoiceID).Msg("factura reencolada manualmente")
	return o.Process(ctx, invoiceID)
}

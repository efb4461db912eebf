package billing

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
	"github.com/tu-usuario/facturacion-sri/pkg/logger"
)

// SchedulerConfig parámetros del barrido de reintentos.
type SchedulerConfig struct {
	// Interval cadencia del barrido. Por defecto 30 s.
	Interval time.Duration
	// BackoffBase espera tras el primer fallo; se duplica en cada reintento.
	// Por defecto 1 min.
	BackoffBase time.Duration
	// BackoffMax techo de la espera exponencial. Por defecto 30 min.
	BackoffMax time.Duration
	// BatchSize máximo de facturas por barrido. Por defecto 50.
	BatchSize int
	// MaxReintentos debe coincidir con el del orquestador. Por defecto 5.
	MaxReintentos int
	// StuckTimeout edad para considerar colgado un SUBMITTING. Por defecto 5 min.
	StuckTimeout time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Minute
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxReintentos <= 0 {
		c.MaxReintentos = 5
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = 5 * time.Minute
	}
	return c
}

// RetryScheduler barre periódicamente las facturas en TRANSIENT_FAILURE cuya
// ventana de backoff ya venció y las colgadas en SUBMITTING, y las reencola en
// el orquestador. Con esto ninguna factura depende de que el proceso que la
// ensambló siga vivo.
type RetryScheduler struct {
	invoiceRepo  repository.InvoiceRepository
	orchestrator *SubmissionOrchestrator
	cfg          SchedulerConfig
	log          *logger.Logger
}

// NewRetryScheduler construye el scheduler.
func NewRetryScheduler(invoiceRepo repository.InvoiceRepository, orchestrator *SubmissionOrchestrator, cfg SchedulerConfig, log *logger.Logger) *RetryScheduler {
	return &RetryScheduler{
		invoiceRepo:  invoiceRepo,
		orchestrator: orchestrator,
		cfg:          cfg.withDefaults(),
		log:          log,
	}
}

// Run ejecuta el ciclo de barrido hasta que el context se cancele.
// Pensado para correr en su propia goroutine desde main.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Msg("scheduler de reintentos iniciado")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler de reintentos detenido")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep ejecuta un barrido: recoge candidatas y las procesa secuencialmente.
// Secuencial a propósito: el cuello de botella es el WS del SRI y un barrido
// lento solo retrasa reintentos, nunca pierde facturas.
func (s *RetryScheduler) Sweep(ctx context.Context) {
	now := time.Now()

	retryables, err := s.invoiceRepo.ListRetryable(ctx, s.cfg.MaxReintentos, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("listar facturas reintentables falló")
	} else {
		for _, inv := range retryables {
			if !s.backoffVencido(inv, now) {
				continue
			}
			if err := s.orchestrator.Process(ctx, inv.ID); err != nil {
				s.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("reintento falló")
			}
		}
	}

	cutoff := now.Add(-s.cfg.StuckTimeout)
	stuck, err := s.invoiceRepo.ListStuckSubmitting(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("listar facturas colgadas falló")
		return
	}
	for _, inv := range stuck {
		s.log.Warn().Str("invoice_id", inv.ID).Msg("recuperando factura colgada en SUBMITTING")
		if err := s.orchestrator.Process(ctx, inv.ID); err != nil {
			s.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("recuperación falló")
		}
	}
}

// backoffVencido indica si ya pasó la espera exponencial del próximo intento:
// base * 2^(retry_count-1), acotada por BackoffMax.
func (s *RetryScheduler) backoffVencido(inv *entity.Invoice, now time.Time) bool {
	if inv.LastRetryAt == nil {
		return true
	}
	espera := s.cfg.BackoffBase
	for i := 1; i < inv.RetryCount && espera < s.cfg.BackoffMax; i++ {
		espera *= 2
	}
	if espera > s.cfg.BackoffMax {
		espera = s.cfg.BackoffMax
	}
	return now.Sub(*inv.LastRetryAt) >= espera
}

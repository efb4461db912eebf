package billing_test

import (
	"context"
	"sync"
	"time"

	"github.com/tu-usuario/facturacion-sri/internal/application/billing"
	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
	infrasri "github.com/tu-usuario/facturacion-sri/internal/infrastructure/sri"
	"github.com/tu-usuario/facturacion-sri/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes en memoria (reemplazan PostgreSQL en los tests de aplicación)
// ──────────────────────────────────────────────────────────────────────────────

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	byID     map[string]*entity.Invoice
	byOrder  map[string]string // order_id -> invoice_id
	byNumber map[string]string // number -> invoice_id
	items    map[string][]*entity.InvoiceItem
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		byID:     make(map[string]*entity.Invoice),
		byOrder:  make(map[string]string),
		byNumber: make(map[string]string),
		items:    make(map[string][]*entity.InvoiceItem),
	}
}

func (r *fakeInvoiceRepo) clone(inv *entity.Invoice) *entity.Invoice {
	cp := *inv
	if inv.LastRetryAt != nil {
		t := *inv.LastRetryAt
		cp.LastRetryAt = &t
	}
	return &cp
}

func (r *fakeInvoiceRepo) Create(_ context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byOrder[inv.OrderID]; dup {
		return domain.ErrDuplicate
	}
	if _, dup := r.byNumber[inv.Number]; dup {
		return domain.ErrDuplicate
	}
	r.byID[inv.ID] = r.clone(inv)
	r.byOrder[inv.OrderID] = inv.ID
	r.byNumber[inv.Number] = inv.ID
	return nil
}

func (r *fakeInvoiceRepo) CreateItem(_ context.Context, item *entity.InvoiceItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.InvoiceID] = append(r.items[item.InvoiceID], &cp)
	return nil
}

func (r *fakeInvoiceRepo) Update(_ context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inv.ID]; !ok {
		return domain.ErrNotFound
	}
	r.byID[inv.ID] = r.clone(inv)
	return nil
}

func (r *fakeInvoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return r.clone(inv), nil
}

func (r *fakeInvoiceRepo) GetByOrderID(_ context.Context, orderID string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, nil
	}
	return r.clone(r.byID[id]), nil
}

func (r *fakeInvoiceRepo) GetItemsByInvoiceID(_ context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.InvoiceItem, 0, len(r.items[invoiceID]))
	for _, it := range r.items[invoiceID] {
		cp := *it
		items = append(items, &cp)
	}
	return items, nil
}

func (r *fakeInvoiceRepo) ListByStatus(_ context.Context, status string, limit int) ([]*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.byID {
		if inv.Status == status && len(out) < limit {
			out = append(out, r.clone(inv))
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) ListRetryable(_ context.Context, maxRetries, limit int) ([]*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.byID {
		if inv.Status == entity.StatusTransientFailure && inv.RetryCount < maxRetries && len(out) < limit {
			out = append(out, r.clone(inv))
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) ListStuckSubmitting(_ context.Context, cutoff time.Time, limit int) ([]*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.byID {
		if inv.Status == entity.StatusSubmitting && inv.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, r.clone(inv))
		}
	}
	return out, nil
}

var _ repository.InvoiceRepository = (*fakeInvoiceRepo)(nil)

type fakeSequenceRepo struct {
	mu   sync.Mutex
	last int64
}

func (r *fakeSequenceRepo) Next(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	return r.last, nil
}

// fakeTxRunner ejecuta el callback sin transacción real, con los mismos repos.
type fakeTxRunner struct {
	invoiceRepo repository.InvoiceRepository
	seqRepo     repository.SequenceRepository
}

func (r *fakeTxRunner) RunBilling(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	seqRepo repository.SequenceRepository,
) error) error {
	return fn(r.invoiceRepo, r.seqRepo)
}

var _ billing.BillingTxRunner = (*fakeTxRunner)(nil)

// ──────────────────────────────────────────────────────────────────────────────
// Submitter programable
// ──────────────────────────────────────────────────────────────────────────────

// fakeSubmitter devuelve resultados en secuencia; repite el último cuando se
// agotan. Consultar también cuenta llamadas por separado.
type fakeSubmitter struct {
	mu              sync.Mutex
	submitResults   []*infrasri.SubmitResult
	consultaResults []*infrasri.SubmitResult
	submitCalls     int
	consultaCalls   int
}

func (s *fakeSubmitter) Submit(_ context.Context, inv *entity.Invoice, _ []*entity.InvoiceItem) (*infrasri.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls++
	return s.nextLocked(s.submitResults, s.submitCalls, inv.ClaveAcceso), nil
}

func (s *fakeSubmitter) ConsultarAutorizacion(_ context.Context, claveAcceso string) (*infrasri.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consultaCalls++
	return s.nextLocked(s.consultaResults, s.consultaCalls, claveAcceso), nil
}

func (s *fakeSubmitter) nextLocked(results []*infrasri.SubmitResult, call int, clave string) *infrasri.SubmitResult {
	if len(results) == 0 {
		return &infrasri.SubmitResult{Outcome: infrasri.OutcomeTransient, ClaveAcceso: clave, Mensaje: "sin resultado programado"}
	}
	idx := call - 1
	if idx >= len(results) {
		idx = len(results) - 1
	}
	res := *results[idx]
	if res.ClaveAcceso == "" {
		res.ClaveAcceso = clave
	}
	return &res
}

var _ infrasri.Submitter = (*fakeSubmitter)(nil)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "dev", Level: "error"})
}

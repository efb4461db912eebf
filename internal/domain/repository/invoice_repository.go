package repository

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
)

// InvoiceRepository define el acceso a facturas y sus líneas.
// Las consultas Get* devuelven (nil, nil) cuando no existe el registro.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice) error
	CreateItem(ctx context.Context, item *entity.InvoiceItem) error

	// Update persiste estado, campos de autorización y contadores de reintento.
	// Toda transición del ciclo de vida pasa por aquí antes de retornar al caller.
	Update(ctx context.Context, inv *entity.Invoice) error

	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetByOrderID(ctx context.Context, orderID string) (*entity.Invoice, error)
	GetItemsByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error)

	ListByStatus(ctx context.Context, status string, limit int) ([]*entity.Invoice, error)

	// ListRetryable devuelve facturas en TRANSIENT_FAILURE con retry_count < maxRetries.
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*entity.Invoice, error)

	// ListStuckSubmitting devuelve facturas en SUBMITTING cuya última transición
	// es anterior a cutoff (envíos huérfanos por caída del proceso).
	ListStuckSubmitting(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Invoice, error)
}

// SequenceRepository asigna el siguiente secuencial de factura. Debe invocarse
// dentro de la misma transacción que inserta la factura para que no haya
// huecos ni duplicados bajo concurrencia.
type SequenceRepository interface {
	Next(ctx context.Context) (int64, error)
}

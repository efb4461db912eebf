package billing

import (
	"context"

	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
)

// BillingTxRunner ejecuta una función dentro de una transacción que incluye el
// repositorio de facturas y el secuenciador. El secuencial se asigna y la
// factura se inserta en la misma transacción: si algo falla no se consume
// ningún número (sin huecos).
type BillingTxRunner interface {
	RunBilling(ctx context.Context, fn func(
		invoiceRepo repository.InvoiceRepository,
		seqRepo repository.SequenceRepository,
	) error) error
}

// EmisorConfig datos del emisor necesarios para numerar y generar la clave de acceso.
type EmisorConfig struct {
	RUC      string // RUC del emisor, 13 dígitos
	Estab    string // código de establecimiento, 3 dígitos (ej: "001")
	PtoEmi   string // punto de emisión, 3 dígitos (ej: "001")
	Ambiente string // "1" producción, "2" pruebas
	Currency string // por defecto "USD"
}

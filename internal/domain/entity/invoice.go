package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de envío al SRI (Ecuador).
const (
	StatusDraft            = "DRAFT"               // Guardada con secuencial reservado, sin envío
	StatusSubmitting       = "SUBMITTING"          // Intento de envío en curso
	StatusAuthorized       = "AUTHORIZED"          // Autorizada por el SRI (terminal)
	StatusRejected         = "REJECTED"            // Rechazada por contenido (terminal, no se reintenta)
	StatusTransientFailure = "TRANSIENT_FAILURE"   // Fallo de red/timeout/procesamiento, reintentable
	StatusFailed           = "DEFINITIVELY_FAILED" // Reintentos agotados, requiere intervención manual
)

// Origen de la factura.
const (
	SourceCheckout = "checkout"
	SourceManual   = "manual"
)

// Invoice es la cabecera de una factura electrónica. Los datos del comprador se
// copian al emitir y son inmutables: la factura es una foto legal de ese momento.
type Invoice struct {
	ID      string
	OrderID string // única: a lo sumo una factura por orden
	BuyerID string

	Number   string // secuencial SRI, 9 dígitos con ceros a la izquierda
	IssuedAt time.Time

	Subtotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
	Currency   string

	Status string

	BuyerIdentification string
	IdentificationType  string // 04=RUC, 05=Cédula, 06=Pasaporte
	BuyerName           string
	BuyerEmail          string
	BuyerPhone          string
	BuyerAddress        string
	BuyerCity           string
	BuyerState          string
	BuyerCountry        string

	ClaveAcceso          string // clave de acceso determinista (49 dígitos)
	AuthorizationNumber  string
	RawAuthorityResponse string // respuesta cruda del SRI, opaca
	ErrorMessage         string

	RetryCount  int
	LastRetryAt *time.Time

	Source string // "checkout" | "manual"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal indica si la factura ya no admite más transiciones automáticas.
func (i *Invoice) IsTerminal() bool {
	switch i.Status {
	case StatusAuthorized, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// InvoiceItem es una línea de la factura. ProductCode es el código externo
// estable del producto (no el ID interno) para que la factura siga siendo
// válida aunque el catálogo cambie.
type InvoiceItem struct {
	ID          string
	InvoiceID   string
	ProductID   string
	ProductCode string
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Subtotal    decimal.Decimal // cantidad × precio unitario − descuento
	TaxRate     decimal.Decimal // fracción, ej: 0.15
	TaxAmount   decimal.Decimal // subtotal × tasa, redondeo half-up a 2 decimales
	Total       decimal.Decimal // subtotal + impuesto
}

package dto

import "github.com/shopspring/decimal"

// OrderCompletedRequest es la señal de orden completada que dispara la
// facturación. Puede llegar más de una vez por la misma orden (entrega
// at-least-once): el pipeline es idempotente por order_id.
type OrderCompletedRequest struct {
	OrderID    string          `json:"order_id"`
	BuyerID    string          `json:"buyer_id"`
	Items      []OrderLine     `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxTotal   decimal.Decimal `json:"tax_total"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Currency   string          `json:"currency"`
	Profile    BillingProfile  `json:"billing_profile"`
}

// OrderLine es una línea de la orden ya valorizada por el checkout.
type OrderLine struct {
	ProductID   string          `json:"product_id"`
	ProductCode string          `json:"product_code"` // código externo estable (SKU)
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"` // fracción, ej: 0.15
}

// BillingProfile son los datos de facturación capturados en el checkout.
type BillingProfile struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Identification string `json:"identification"` // cruda, se clasifica al ensamblar
	City           string `json:"city"`
	State          string `json:"state"`
	Country        string `json:"country"`
}

// InvoiceResponse representación completa de una factura.
type InvoiceResponse struct {
	ID                  string                `json:"id"`
	OrderID             string                `json:"order_id"`
	BuyerID             string                `json:"buyer_id"`
	Number              string                `json:"number"`
	IssuedAt            string                `json:"issued_at"`
	Subtotal            decimal.Decimal       `json:"subtotal"`
	TaxTotal            decimal.Decimal       `json:"tax_total"`
	GrandTotal          decimal.Decimal       `json:"grand_total"`
	Currency            string                `json:"currency"`
	Status              string                `json:"status"`
	IdentificationType  string                `json:"identification_type"`
	BuyerIdentification string                `json:"buyer_identification"`
	BuyerName           string                `json:"buyer_name"`
	ClaveAcceso         string                `json:"clave_acceso,omitempty"`
	AuthorizationNumber string                `json:"authorization_number,omitempty"`
	ErrorMessage        string                `json:"error_message,omitempty"`
	RetryCount          int                   `json:"retry_count"`
	Source              string                `json:"source"`
	Items               []InvoiceItemResponse `json:"items"`
}

// InvoiceItemResponse línea de factura.
type InvoiceItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
}

// InvoiceStatusResponse consulta ligera de estado (para polling del storefront).
type InvoiceStatusResponse struct {
	ID                  string `json:"id"`
	OrderID             string `json:"order_id"`
	Status              string `json:"status"`
	ClaveAcceso         string `json:"clave_acceso,omitempty"`
	AuthorizationNumber string `json:"authorization_number,omitempty"`
	ErrorMessage        string `json:"error_message,omitempty"`
	RetryCount          int    `json:"retry_count"`
}

// ErrorResponse respuesta de error estándar de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

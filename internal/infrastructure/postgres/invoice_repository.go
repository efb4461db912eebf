package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

const invoiceColumns = `id, order_id, buyer_id, number, issued_at,
	subtotal, tax_total, grand_total, currency, status,
	buyer_identification, identification_type, buyer_name, buyer_email,
	buyer_phone, buyer_address, buyer_city, buyer_state, buyer_country,
	clave_acceso, authorization_number, raw_authority_response, error_message,
	retry_count, last_retry_at, source, created_at, updated_at`

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Create persiste la cabecera de la factura. Una violación del constraint
// único sobre order_id o number se traduce a domain.ErrDuplicate para que el
// caso de uso resuelva la carrera de idempotencia.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.OrderID, inv.BuyerID, inv.Number, inv.IssuedAt,
		inv.Subtotal, inv.TaxTotal, inv.GrandTotal, inv.Currency, inv.Status,
		inv.BuyerIdentification, inv.IdentificationType, inv.BuyerName, nullIfEmpty(inv.BuyerEmail),
		nullIfEmpty(inv.BuyerPhone), nullIfEmpty(inv.BuyerAddress), nullIfEmpty(inv.BuyerCity),
		nullIfEmpty(inv.BuyerState), nullIfEmpty(inv.BuyerCountry),
		nullIfEmpty(inv.ClaveAcceso), nullIfEmpty(inv.AuthorizationNumber),
		nullIfEmpty(inv.RawAuthorityResponse), nullIfEmpty(inv.ErrorMessage),
		inv.RetryCount, inv.LastRetryAt, inv.Source, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateItem persiste una línea de la factura.
func (r *InvoiceRepo) CreateItem(ctx context.Context, item *entity.InvoiceItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoice_items (id, invoice_id, product_id, product_code, product_name,
			quantity, unit_price, discount, subtotal, tax_rate, tax_amount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		item.ID, item.InvoiceID, item.ProductID, item.ProductCode, item.ProductName,
		item.Quantity, item.UnitPrice, item.Discount, item.Subtotal,
		item.TaxRate, item.TaxAmount, item.Total,
	)
	if err != nil {
		return fmt.Errorf("insert invoice item: %w", err)
	}
	return nil
}

// Update persiste estado, campos de autorización y contadores de reintento.
func (r *InvoiceRepo) Update(ctx context.Context, inv *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET status                 = $2,
		    clave_acceso           = COALESCE($3, clave_acceso),
		    authorization_number   = COALESCE($4, authorization_number),
		    raw_authority_response = COALESCE($5, raw_authority_response),
		    error_message          = $6,
		    retry_count            = $7,
		    last_retry_at          = $8,
		    updated_at             = $9
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		inv.ID,
		inv.Status,
		nullIfEmpty(inv.ClaveAcceso),
		nullIfEmpty(inv.AuthorizationNumber),
		nullIfEmpty(inv.RawAuthorityResponse),
		nullIfEmpty(inv.ErrorMessage),
		inv.RetryCount,
		inv.LastRetryAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// GetByID obtiene una factura por ID. Devuelve (nil, nil) si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByOrderID obtiene la factura de una orden. Devuelve (nil, nil) si no existe.
func (r *InvoiceRepo) GetByOrderID(ctx context.Context, orderID string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE order_id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, orderID))
}

// GetItemsByInvoiceID devuelve las líneas de la factura en orden de inserción.
func (r *InvoiceRepo) GetItemsByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, product_id, product_code, product_name,
		       quantity, unit_price, discount, subtotal, tax_rate, tax_amount, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice items: %w", err)
	}
	defer rows.Close()

	var items []*entity.InvoiceItem
	for rows.Next() {
		var it entity.InvoiceItem
		if err := rows.Scan(
			&it.ID, &it.InvoiceID, &it.ProductID, &it.ProductCode, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.Discount, &it.Subtotal,
			&it.TaxRate, &it.TaxAmount, &it.Total,
		); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// ListByStatus devuelve facturas en un estado dado, más antiguas primero.
func (r *InvoiceRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`
	return r.scanMany(ctx, query, status, limit)
}

// ListRetryable devuelve facturas en TRANSIENT_FAILURE con reintentos disponibles.
func (r *InvoiceRepo) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = $1 AND retry_count < $2
		ORDER BY last_retry_at ASC NULLS FIRST LIMIT $3`
	return r.scanMany(ctx, query, entity.StatusTransientFailure, maxRetries, limit)
}

// ListStuckSubmitting devuelve facturas colgadas en SUBMITTING desde antes de cutoff.
func (r *InvoiceRepo) ListStuckSubmitting(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC LIMIT $3`
	return r.scanMany(ctx, query, entity.StatusSubmitting, cutoff, limit)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *InvoiceRepo) scanOne(row pgx.Row) (*entity.Invoice, error) {
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepo) scanMany(ctx context.Context, query string, args ...any) ([]*entity.Invoice, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invs []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var buyerEmail, buyerPhone, buyerAddress, buyerCity, buyerState, buyerCountry *string
	var claveAcceso, authNumber, rawResponse, errorMessage *string
	err := row.Scan(
		&inv.ID, &inv.OrderID, &inv.BuyerID, &inv.Number, &inv.IssuedAt,
		&inv.Subtotal, &inv.TaxTotal, &inv.GrandTotal, &inv.Currency, &inv.Status,
		&inv.BuyerIdentification, &inv.IdentificationType, &inv.BuyerName, &buyerEmail,
		&buyerPhone, &buyerAddress, &buyerCity, &buyerState, &buyerCountry,
		&claveAcceso, &authNumber, &rawResponse, &errorMessage,
		&inv.RetryCount, &inv.LastRetryAt, &inv.Source, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.BuyerEmail = derefStr(buyerEmail)
	inv.BuyerPhone = derefStr(buyerPhone)
	inv.BuyerAddress = derefStr(buyerAddress)
	inv.BuyerCity = derefStr(buyerCity)
	inv.BuyerState = derefStr(buyerState)
	inv.BuyerCountry = derefStr(buyerCountry)
	inv.ClaveAcceso = derefStr(claveAcceso)
	inv.AuthorizationNumber = derefStr(authNumber)
	inv.RawAuthorityResponse = derefStr(rawResponse)
	inv.ErrorMessage = derefStr(errorMessage)
	return &inv, nil
}

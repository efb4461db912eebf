package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-sri/internal/application/dto"
	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/domain/identificacion"
	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
	domainsri "github.com/tu-usuario/facturacion-sri/internal/domain/sri"
)

// toleranciaCentavo: diferencia máxima admitida entre los totales recalculados
// y los totales que trae la orden (protege el documento legal de bugs de
// pricing aguas arriba).
var toleranciaCentavo = decimal.NewFromFloat(0.01)

// AssembleInvoiceUseCase ensambla la factura a partir de la orden completada:
// clasifica la identificación, congela los datos del comprador, recalcula y
// cuadra los totales, asigna el secuencial y persiste todo en una transacción.
type AssembleInvoiceUseCase struct {
	txRunner    BillingTxRunner
	invoiceRepo repository.InvoiceRepository
	emisor      EmisorConfig
}

// NewAssembleInvoiceUseCase construye el caso de uso.
func NewAssembleInvoiceUseCase(txRunner BillingTxRunner, invoiceRepo repository.InvoiceRepository, emisor EmisorConfig) *AssembleInvoiceUseCase {
	return &AssembleInvoiceUseCase{
		txRunner:    txRunner,
		invoiceRepo: invoiceRepo,
		emisor:      emisor,
	}
}

// Assemble es idempotente por order_id: si la orden ya tiene factura devuelve
// la existente sin reensamblar ni consumir secuencial. La señal de orden
// completada llega at-least-once, así que la barrera real es el constraint
// único sobre order_id, no la deduplicación del emisor del evento.
func (uc *AssembleInvoiceUseCase) Assemble(ctx context.Context, in dto.OrderCompletedRequest, source string) (*entity.Invoice, error) {
	if in.OrderID == "" || in.BuyerID == "" || len(in.Items) == 0 {
		return nil, domain.ErrInvalidInput
	}
	for _, item := range in.Items {
		if item.ProductCode == "" || !item.Quantity.GreaterThan(decimal.Zero) || item.UnitPrice.LessThan(decimal.Zero) {
			return nil, domain.ErrInvalidInput
		}
	}

	// Idempotencia, camino rápido: reintento del mismo evento
	if existente, err := uc.invoiceRepo.GetByOrderID(ctx, in.OrderID); err != nil {
		return nil, err
	} else if existente != nil {
		return existente, nil
	}

	// Clasificación de la identificación: sin tipo válido no se puede emitir.
	// Falla antes de reservar número (no se consume secuencial).
	clasif, err := identificacion.Clasificar(in.Profile.Identification)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items, subtotal, taxTotal, grandTotal := uc.construirItems(in.Items)

	// Cuadre contra los totales de la orden (±1 centavo por redondeo de moneda)
	if subtotal.Sub(in.Subtotal).Abs().GreaterThan(toleranciaCentavo) ||
		taxTotal.Sub(in.TaxTotal).Abs().GreaterThan(toleranciaCentavo) ||
		grandTotal.Sub(in.GrandTotal).Abs().GreaterThan(toleranciaCentavo) {
		return nil, domain.ErrTotalesNoCuadran
	}

	currency := in.Currency
	if currency == "" {
		currency = uc.emisor.Currency
	}

	inv := &entity.Invoice{
		ID:                  uuid.New().String(),
		OrderID:             in.OrderID,
		BuyerID:             in.BuyerID,
		IssuedAt:            now,
		Subtotal:            subtotal,
		TaxTotal:            taxTotal,
		GrandTotal:          grandTotal,
		Currency:            currency,
		Status:              entity.StatusDraft,
		BuyerIdentification: clasif.Valor,
		IdentificationType:  clasif.TipoCode,
		BuyerName:           in.Profile.Name,
		BuyerEmail:          in.Profile.Email,
		BuyerPhone:          in.Profile.Phone,
		BuyerAddress:        in.Profile.Address,
		BuyerCity:           in.Profile.City,
		BuyerState:          in.Profile.State,
		BuyerCountry:        in.Profile.Country,
		Source:              source,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = uc.txRunner.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, seqRepo repository.SequenceRepository) error {
		seq, err := seqRepo.Next(ctx)
		if err != nil {
			return err
		}
		inv.Number = fmt.Sprintf("%09d", seq)

		clave, err := domainsri.GenerarClaveAcceso(domainsri.ClaveAccesoParams{
			FechaEmision:    now,
			TipoComprobante: domainsri.TipoComprobanteFactura,
			RUCEmisor:       uc.emisor.RUC,
			Ambiente:        uc.emisor.Ambiente,
			Serie:           uc.emisor.Estab + uc.emisor.PtoEmi,
			Secuencial:      inv.Number,
			CodigoNumerico:  domainsri.CodigoNumericoDesdeOrden(in.OrderID),
			TipoEmision:     domainsri.TipoEmisionNormal,
		})
		if err != nil {
			return fmt.Errorf("generar clave de acceso: %w", err)
		}
		inv.ClaveAcceso = clave

		if err := invoiceRepo.Create(ctx, inv); err != nil {
			return err
		}
		for _, item := range items {
			item.InvoiceID = inv.ID
			if err := invoiceRepo.CreateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Carrera entre dos señales simultáneas de la misma orden: perdió el
		// insert por el constraint único. Devolver la factura ganadora.
		if errors.Is(err, domain.ErrDuplicate) {
			existente, getErr := uc.invoiceRepo.GetByOrderID(ctx, in.OrderID)
			if getErr == nil && existente != nil {
				return existente, nil
			}
		}
		return nil, err
	}
	return inv, nil
}

// construirItems arma las líneas y acumula totales. Redondeo half-up a 2
// decimales por línea; los totales de la factura son la suma de las líneas ya
// redondeadas, de modo que cabecera y detalle siempre cuadran entre sí.
func (uc *AssembleInvoiceUseCase) construirItems(lines []dto.OrderLine) (items []*entity.InvoiceItem, subtotal, taxTotal, grandTotal decimal.Decimal) {
	for _, line := range lines {
		lineSubtotal := line.Quantity.Mul(line.UnitPrice).Sub(line.Discount).Round(2)
		lineTax := lineSubtotal.Mul(line.TaxRate).Round(2)
		lineTotal := lineSubtotal.Add(lineTax)

		items = append(items, &entity.InvoiceItem{
			ID:          uuid.New().String(),
			ProductID:   line.ProductID,
			ProductCode: line.ProductCode,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
			Subtotal:    lineSubtotal,
			TaxRate:     line.TaxRate,
			TaxAmount:   lineTax,
			Total:       lineTotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
		taxTotal = taxTotal.Add(lineTax)
		grandTotal = grandTotal.Add(lineTotal)
	}
	return items, subtotal, taxTotal, grandTotal
}

// GetInvoice devuelve la factura con sus líneas.
func (uc *AssembleInvoiceUseCase) GetInvoice(ctx context.Context, id string) (*entity.Invoice, []*entity.InvoiceItem, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if inv == nil {
		return nil, nil, domain.ErrNotFound
	}
	items, err := uc.invoiceRepo.GetItemsByInvoiceID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return inv, items, nil
}

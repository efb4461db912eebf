package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturacion-sri/internal/application/billing"
	"github.com/tu-usuario/facturacion-sri/internal/application/dto"
	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
)

// BillingHandler maneja las peticiones HTTP del pipeline de facturación.
type BillingHandler struct {
	assembleUC   *billing.AssembleInvoiceUseCase
	orchestrator *billing.SubmissionOrchestrator
	invoiceRepo  repository.InvoiceRepository
}

// NewBillingHandler construye el handler.
func NewBillingHandler(assembleUC *billing.AssembleInvoiceUseCase, orchestrator *billing.SubmissionOrchestrator, invoiceRepo repository.InvoiceRepository) *BillingHandler {
	return &BillingHandler{
		assembleUC:   assembleUC,
		orchestrator: orchestrator,
		invoiceRepo:  invoiceRepo,
	}
}

// OrderCompleted recibe la señal de orden completada, ensambla la factura y
// dispara el envío al SRI en segundo plano. Idempotente: la misma orden
// repetida devuelve la misma factura.
// POST /api/v1/facturacion/ordenes
func (h *BillingHandler) OrderCompleted(c *fiber.Ctx) error {
	var in dto.OrderCompletedRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	inv, err := h.assembleUC.Assemble(c.Context(), in, entity.SourceCheckout)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos de la orden inválidos"})
		case errors.Is(err, domain.ErrIdentificacionInvalida):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "IDENTIFICACION_INVALIDA", Message: "la identificación del comprador no es RUC, cédula ni pasaporte válido"})
		case errors.Is(err, domain.ErrTotalesNoCuadran):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "TOTALES_NO_CUADRAN", Message: "los totales de la orden no cuadran con las líneas"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	// Solo facturas nuevas (o no terminales) entran al ciclo de envío.
	if !inv.IsTerminal() {
		h.orchestrator.ProcessAsync(inv.ID)
	}
	return c.Status(fiber.StatusAccepted).JSON(toStatusResponse(inv))
}

// GetInvoice devuelve la factura completa con sus líneas.
// GET /api/v1/facturas/:id
func (h *BillingHandler) GetInvoice(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, items, err := h.assembleUC.GetInvoice(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(toInvoiceResponse(inv, items))
}

// GetStatus devuelve el estado de envío de la factura (para polling).
// GET /api/v1/facturas/:id/estado
func (h *BillingHandler) GetStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, err := h.invoiceRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if inv == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
	}
	return c.JSON(toStatusResponse(inv))
}

// ListByStatus lista facturas por estado (panel de operación).
// GET /api/v1/facturas?estado=DEFINITIVELY_FAILED
func (h *BillingHandler) ListByStatus(c *fiber.Ctx) error {
	estado := c.Query("estado")
	if estado == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "query param estado requerido"})
	}
	limit := c.QueryInt("limit", 50)
	invs, err := h.invoiceRepo.ListByStatus(c.Context(), estado, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.InvoiceStatusResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toStatusResponse(inv))
	}
	return c.JSON(out)
}

// Resubmit reencola manualmente una factura en fallo definitivo.
// POST /api/v1/facturas/:id/reenviar
func (h *BillingHandler) Resubmit(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	if err := h.orchestrator.Reprocess(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
		case errors.Is(err, domain.ErrFacturaNoReprocesable):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NO_REPROCESABLE", Message: "solo facturas en fallo definitivo se pueden reenviar"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	inv, err := h.invoiceRepo.GetByID(c.Context(), id)
	if err != nil || inv == nil {
		return c.SendStatus(fiber.StatusAccepted)
	}
	return c.Status(fiber.StatusAccepted).JSON(toStatusResponse(inv))
}

// ── mapeo entidad → DTO ───────────────────────────────────────────────────────

func toStatusResponse(inv *entity.Invoice) dto.InvoiceStatusResponse {
	return dto.InvoiceStatusResponse{
		ID:                  inv.ID,
		OrderID:             inv.OrderID,
		Status:              inv.Status,
		ClaveAcceso:         inv.ClaveAcceso,
		AuthorizationNumber: inv.AuthorizationNumber,
		ErrorMessage:        inv.ErrorMessage,
		RetryCount:          inv.RetryCount,
	}
}

func toInvoiceResponse(inv *entity.Invoice, items []*entity.InvoiceItem) dto.InvoiceResponse {
	out := dto.InvoiceResponse{
		ID:                  inv.ID,
		OrderID:             inv.OrderID,
		BuyerID:             inv.BuyerID,
		Number:              inv.Number,
		IssuedAt:            inv.IssuedAt.Format("2006-01-02T15:04:05Z07:00"),
		Subtotal:            inv.Subtotal,
		TaxTotal:            inv.TaxTotal,
		GrandTotal:          inv.GrandTotal,
		Currency:            inv.Currency,
		Status:              inv.Status,
		IdentificationType:  inv.IdentificationType,
		BuyerIdentification: inv.BuyerIdentification,
		BuyerName:           inv.BuyerName,
		ClaveAcceso:         inv.ClaveAcceso,
		AuthorizationNumber: inv.AuthorizationNumber,
		ErrorMessage:        inv.ErrorMessage,
		RetryCount:          inv.RetryCount,
		Source:              inv.Source,
	}
	for _, it := range items {
		out.Items = append(out.Items, dto.InvoiceItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductCode: it.ProductCode,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Subtotal:    it.Subtotal,
			TaxRate:     it.TaxRate,
			TaxAmount:   it.TaxAmount,
			Total:       it.Total,
		})
	}
	return out
}

package billing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-sri/internal/application/billing"
	"github.com/tu-usuario/facturacion-sri/internal/application/dto"
	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
)

// cédula con dígito verificador módulo-10 correcto
const cedulaValida = "1712345675"

func newAssembleFixture() (*billing.AssembleInvoiceUseCase, *fakeInvoiceRepo) {
	repo := newFakeInvoiceRepo()
	tx := &fakeTxRunner{invoiceRepo: repo, seqRepo: &fakeSequenceRepo{}}
	uc := billing.NewAssembleInvoiceUseCase(tx, repo, billing.EmisorConfig{
		RUC:      "1790012345001",
		Estab:    "001",
		PtoEmi:   "002",
		Ambiente: "2",
		Currency: "USD",
	})
	return uc, repo
}

// ordenDosLineas reproduce el escenario de cierre de orden típico:
// 2 × 299.99 con IVA 15% + 1 × 149.99 con IVA 15%.
func ordenDosLineas(orderID string) dto.OrderCompletedRequest {
	return dto.OrderCompletedRequest{
		OrderID: orderID,
		BuyerID: "buyer-1",
		Items: []dto.OrderLine{
			{
				ProductID: "p1", ProductCode: "SKU-001", ProductName: "Laptop",
				Quantity:  decimal.NewFromInt(2),
				UnitPrice: decimal.RequireFromString("299.99"),
				TaxRate:   decimal.RequireFromString("0.15"),
			},
			{
				ProductID: "p2", ProductCode: "SKU-002", ProductName: "Monitor",
				Quantity:  decimal.NewFromInt(1),
				UnitPrice: decimal.RequireFromString("149.99"),
				TaxRate:   decimal.RequireFromString("0.15"),
			},
		},
		Subtotal:   decimal.RequireFromString("749.97"),
		TaxTotal:   decimal.RequireFromString("112.50"),
		GrandTotal: decimal.RequireFromString("862.47"),
		Currency:   "USD",
		Profile: dto.BillingProfile{
			Name:           "Juan Pérez",
			Email:          "juan@example.com",
			Identification: cedulaValida,
			Address:        "Av. Amazonas N34-451",
		},
	}
}

func TestAssemble_CreaFacturaConTotalesPorLinea(t *testing.T) {
	uc, repo := newAssembleFixture()

	inv, err := uc.Assemble(context.Background(), ordenDosLineas("order-1"), entity.SourceCheckout)
	require.NoError(t, err)
	require.NotNil(t, inv)

	// Totales: suma de líneas redondeadas (599.98 + 149.99, IVA 90.00 + 22.50)
	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("749.97")), "subtotal: %s", inv.Subtotal)
	assert.True(t, inv.TaxTotal.Equal(decimal.RequireFromString("112.50")), "tax: %s", inv.TaxTotal)
	assert.True(t, inv.GrandTotal.Equal(decimal.RequireFromString("862.47")), "total: %s", inv.GrandTotal)

	assert.Equal(t, entity.StatusDraft, inv.Status)
	assert.Equal(t, "05", inv.IdentificationType, "cédula válida debe clasificar como 05")
	assert.Equal(t, cedulaValida, inv.BuyerIdentification)
	assert.Equal(t, "000000001", inv.Number, "secuencial con ceros a la izquierda, ancho 9")
	assert.Len(t, inv.ClaveAcceso, 49)

	items, err := repo.GetItemsByInvoiceID(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Subtotal.Equal(decimal.RequireFromString("599.98")))
	assert.True(t, items[0].TaxAmount.Equal(decimal.RequireFromString("90.00")))
	assert.True(t, items[1].Subtotal.Equal(decimal.RequireFromString("149.99")))
	assert.True(t, items[1].TaxAmount.Equal(decimal.RequireFromString("22.50")))
}

func TestAssemble_IdempotentePorOrden(t *testing.T) {
	uc, _ := newAssembleFixture()
	ctx := context.Background()

	primera, err := uc.Assemble(ctx, ordenDosLineas("order-dup"), entity.SourceCheckout)
	require.NoError(t, err)

	// La misma señal llega de nuevo (entrega at-least-once)
	segunda, err := uc.Assemble(ctx, ordenDosLineas("order-dup"), entity.SourceCheckout)
	require.NoError(t, err)

	assert.Equal(t, primera.ID, segunda.ID, "misma orden debe devolver la misma factura")
	assert.Equal(t, primera.Number, segunda.Number, "no debe consumirse otro secuencial")
}

func TestAssemble_SecuencialesConsecutivosSinHuecos(t *testing.T) {
	uc, _ := newAssembleFixture()
	ctx := context.Background()

	// Una orden inválida en medio no debe consumir secuencial
	ordenes := []string{"o-1", "o-2"}
	for _, id := range ordenes {
		_, err := uc.Assemble(ctx, ordenDosLineas(id), entity.SourceCheckout)
		require.NoError(t, err)
	}

	mala := ordenDosLineas("o-mala")
	mala.Profile.Identification = "ABC"
	_, err := uc.Assemble(ctx, mala, entity.SourceCheckout)
	require.Error(t, err)

	inv, err := uc.Assemble(ctx, ordenDosLineas("o-3"), entity.SourceCheckout)
	require.NoError(t, err)
	assert.Equal(t, "000000003", inv.Number, "la orden fallida no debe dejar hueco")
}

func TestAssemble_TotalesNoCuadran(t *testing.T) {
	uc, _ := newAssembleFixture()

	in := ordenDosLineas("order-desc")
	in.GrandTotal = decimal.RequireFromString("900.00") // > 1 centavo de diferencia

	_, err := uc.Assemble(context.Background(), in, entity.SourceCheckout)
	assert.ErrorIs(t, err, domain.ErrTotalesNoCuadran)
}

func TestAssemble_ToleraUnCentavoDeRedondeo(t *testing.T) {
	uc, _ := newAssembleFixture()

	in := ordenDosLineas("order-centavo")
	in.GrandTotal = decimal.RequireFromString("862.48") // +0.01

	inv, err := uc.Assemble(context.Background(), in, entity.SourceCheckout)
	require.NoError(t, err)
	// El documento legal lleva los totales recalculados, no los de la orden
	assert.True(t, inv.GrandTotal.Equal(decimal.RequireFromString("862.47")))
}

func TestAssemble_IdentificacionInvalida(t *testing.T) {
	uc, repo := newAssembleFixture()

	in := ordenDosLineas("order-badid")
	in.Profile.Identification = "XY" // muy corta, sin dígitos suficientes

	_, err := uc.Assemble(context.Background(), in, entity.SourceCheckout)
	assert.ErrorIs(t, err, domain.ErrIdentificacionInvalida)

	existente, _ := repo.GetByOrderID(context.Background(), "order-badid")
	assert.Nil(t, existente, "no debe persistirse factura con identificación inválida")
}

func TestAssemble_RUCClasificaComo04(t *testing.T) {
	uc, _ := newAssembleFixture()

	in := ordenDosLineas("order-ruc")
	in.Profile.Identification = "1790012345001"

	inv, err := uc.Assemble(context.Background(), in, entity.SourceCheckout)
	require.NoError(t, err)
	assert.Equal(t, "04", inv.IdentificationType)
}

func TestAssemble_EntradaInvalida(t *testing.T) {
	uc, _ := newAssembleFixture()
	ctx := context.Background()

	casos := map[string]func(*dto.OrderCompletedRequest){
		"sin order_id":      func(in *dto.OrderCompletedRequest) { in.OrderID = "" },
		"sin buyer_id":      func(in *dto.OrderCompletedRequest) { in.BuyerID = "" },
		"sin items":         func(in *dto.OrderCompletedRequest) { in.Items = nil },
		"cantidad cero":     func(in *dto.OrderCompletedRequest) { in.Items[0].Quantity = decimal.Zero },
		"precio negativo":   func(in *dto.OrderCompletedRequest) { in.Items[0].UnitPrice = decimal.NewFromInt(-1) },
		"sin product_code":  func(in *dto.OrderCompletedRequest) { in.Items[0].ProductCode = "" },
	}
	for name, mutate := range casos {
		t.Run(name, func(t *testing.T) {
			in := ordenDosLineas("order-" + name)
			mutate(&in)
			_, err := uc.Assemble(ctx, in, entity.SourceCheckout)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestAssemble_DescuentoPorLinea(t *testing.T) {
	uc, _ := newAssembleFixture()

	in := dto.OrderCompletedRequest{
		OrderID: "order-desc-linea",
		BuyerID: "buyer-1",
		Items: []dto.OrderLine{{
			ProductID: "p1", ProductCode: "SKU-001", ProductName: "Laptop",
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: decimal.RequireFromString("100.00"),
			Discount:  decimal.RequireFromString("10.00"),
			TaxRate:   decimal.RequireFromString("0.15"),
		}},
		Subtotal:   decimal.RequireFromString("90.00"),
		TaxTotal:   decimal.RequireFromString("13.50"),
		GrandTotal: decimal.RequireFromString("103.50"),
		Profile:    dto.BillingProfile{Name: "Ana", Identification: cedulaValida},
	}

	inv, err := uc.Assemble(context.Background(), in, entity.SourceCheckout)
	require.NoError(t, err)
	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("90.00")))
	assert.True(t, inv.TaxTotal.Equal(decimal.RequireFromString("13.50")))
	assert.True(t, inv.GrandTotal.Equal(decimal.RequireFromString("103.50")))
}

package sri

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
)

// Catálogo de impuestos del comprobante (ficha técnica SRI).
const (
	CodigoImpuestoIVA = "2"

	// ComprobanteElementID es el atributo id del nodo raíz; la firma XAdES lo
	// referencia con URI="#comprobante".
	ComprobanteElementID = "comprobante"

	versionFactura = "1.1.0"
)

// ComprobanteBuildContext datos necesarios para construir el XML de la factura.
type ComprobanteBuildContext struct {
	Invoice  *entity.Invoice
	Items    []*entity.InvoiceItem
	Emisor   Emisor
	Ambiente string // "1" producción, "2" pruebas
}

// XMLBuilderService construye el XML <factura> v1.1.0 (sin firma).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el []byte del comprobante según el esquema factura v1.1.0.
func (s *XMLBuilderService) Build(ctx *ComprobanteBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Invoice == nil || len(ctx.Items) == 0 {
		return nil, fmt.Errorf("sri: faltan invoice o items en el contexto")
	}
	inv := ctx.Invoice

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "factura"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "id"}, Value: ComprobanteElementID},
			{Name: xml.Name{Local: "version"}, Value: versionFactura},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	s.writeInfoTributaria(enc, ctx)
	s.writeInfoFactura(enc, ctx)
	s.writeDetalles(enc, ctx)
	s.writeInfoAdicional(enc, inv)

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *XMLBuilderService) writeInfoTributaria(enc *xml.Encoder, ctx *ComprobanteBuildContext) {
	open(enc, "infoTributaria")
	writeEl(enc, "ambiente", ctx.Ambiente)
	writeEl(enc, "tipoEmision", "1")
	writeEl(enc, "razonSocial", ctx.Emisor.RazonSocial)
	if ctx.Emisor.NombreComercial != "" {
		writeEl(enc, "nombreComercial", ctx.Emisor.NombreComercial)
	}
	writeEl(enc, "ruc", ctx.Emisor.RUC)
	writeEl(enc, "claveAcceso", ctx.Invoice.ClaveAcceso)
	writeEl(enc, "codDoc", "01")
	writeEl(enc, "estab", ctx.Emisor.Estab)
	writeEl(enc, "ptoEmi", ctx.Emisor.PtoEmi)
	writeEl(enc, "secuencial", ctx.Invoice.Number)
	writeEl(enc, "dirMatriz", ctx.Emisor.DirMatriz)
	closeEl(enc, "infoTributaria")
}

func (s *XMLBuilderService) writeInfoFactura(enc *xml.Encoder, ctx *ComprobanteBuildContext) {
	inv := ctx.Invoice
	open(enc, "infoFactura")
	writeEl(enc, "fechaEmision", inv.IssuedAt.Format("02/01/2006"))
	if ctx.Emisor.DirEstablecimiento != "" {
		writeEl(enc, "dirEstablecimiento", ctx.Emisor.DirEstablecimiento)
	}
	if ctx.Emisor.ObligadoContabilidad {
		writeEl(enc, "obligadoContabilidad", "SI")
	} else {
		writeEl(enc, "obligadoContabilidad", "NO")
	}
	writeEl(enc, "tipoIdentificacionComprador", inv.IdentificationType)
	writeEl(enc, "razonSocialComprador", inv.BuyerName)
	writeEl(enc, "identificacionComprador", inv.BuyerIdentification)
	if inv.BuyerAddress != "" {
		writeEl(enc, "direccionComprador", inv.BuyerAddress)
	}
	writeEl(enc, "totalSinImpuestos", formatDecimal(inv.Subtotal))

	var totalDescuento decimal.Decimal
	for _, item := range ctx.Items {
		totalDescuento = totalDescuento.Add(item.Discount)
	}
	writeEl(enc, "totalDescuento", formatDecimal(totalDescuento))

	// totalConImpuestos agrupado por tarifa
	open(enc, "totalConImpuestos")
	for _, g := range agruparPorTarifa(ctx.Items) {
		open(enc, "totalImpuesto")
		writeEl(enc, "codigo", CodigoImpuestoIVA)
		writeEl(enc, "codigoPorcentaje", codigoPorcentajeIVA(g.tarifa))
		writeEl(enc, "baseImponible", formatDecimal(g.base))
		writeEl(enc, "valor", formatDecimal(g.valor))
		closeEl(enc, "totalImpuesto")
	}
	closeEl(enc, "totalConImpuestos")

	writeEl(enc, "propina", "0.00")
	writeEl(enc, "importeTotal", formatDecimal(inv.GrandTotal))
	writeEl(enc, "moneda", "DOLAR")
	closeEl(enc, "infoFactura")
}

func (s *XMLBuilderService) writeDetalles(enc *xml.Encoder, ctx *ComprobanteBuildContext) {
	open(enc, "detalles")
	for _, item := range ctx.Items {
		open(enc, "detalle")
		writeEl(enc, "codigoPrincipal", item.ProductCode)
		writeEl(enc, "descripcion", item.ProductName)
		writeEl(enc, "cantidad", formatDecimal(item.Quantity))
		writeEl(enc, "precioUnitario", formatDecimal(item.UnitPrice))
		writeEl(enc, "descuento", formatDecimal(item.Discount))
		writeEl(enc, "precioTotalSinImpuesto", formatDecimal(item.Subtotal))
		open(enc, "impuestos")
		open(enc, "impuesto")
		writeEl(enc, "codigo", CodigoImpuestoIVA)
		writeEl(enc, "codigoPorcentaje", codigoPorcentajeIVA(item.TaxRate))
		writeEl(enc, "tarifa", item.TaxRate.Mul(decimal.NewFromInt(100)).Round(2).StringFixed(2))
		writeEl(enc, "baseImponible", formatDecimal(item.Subtotal))
		writeEl(enc, "valor", formatDecimal(item.TaxAmount))
		closeEl(enc, "impuesto")
		closeEl(enc, "impuestos")
		closeEl(enc, "detalle")
	}
	closeEl(enc, "detalles")
}

func (s *XMLBuilderService) writeInfoAdicional(enc *xml.Encoder, inv *entity.Invoice) {
	if inv.BuyerEmail == "" && inv.BuyerPhone == "" {
		return
	}
	open(enc, "infoAdicional")
	if inv.BuyerEmail != "" {
		writeCampoAdicional(enc, "email", inv.BuyerEmail)
	}
	if inv.BuyerPhone != "" {
		writeCampoAdicional(enc, "telefono", inv.BuyerPhone)
	}
	closeEl(enc, "infoAdicional")
}

// ── grupos de impuesto ─────────────────────────────────────────────────────────

type grupoImpuesto struct {
	tarifa decimal.Decimal
	base   decimal.Decimal
	valor  decimal.Decimal
}

// agruparPorTarifa acumula base imponible y valor por tarifa de IVA,
// preservando el orden de aparición de las líneas.
func agruparPorTarifa(items []*entity.InvoiceItem) []*grupoImpuesto {
	var grupos []*grupoImpuesto
	indice := make(map[string]*grupoImpuesto)
	for _, item := range items {
		key := item.TaxRate.String()
		g, ok := indice[key]
		if !ok {
			g = &grupoImpuesto{tarifa: item.TaxRate}
			indice[key] = g
			grupos = append(grupos, g)
		}
		g.base = g.base.Add(item.Subtotal)
		g.valor = g.valor.Add(item.TaxAmount)
	}
	return grupos
}

// codigoPorcentajeIVA mapea la tarifa (fracción) al código de porcentaje del
// catálogo SRI. Tarifas fuera de catálogo se reportan con el código genérico "8".
func codigoPorcentajeIVA(tarifa decimal.Decimal) string {
	pct := tarifa.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	switch pct {
	case 0:
		return "0"
	case 12:
		return "2"
	case 14:
		return "3"
	case 15:
		return "4"
	case 5:
		return "5"
	case 13:
		return "10"
	default:
		return "8"
	}
}

// ── helpers de escritura ───────────────────────────────────────────────────────

func open(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func closeEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeEl(enc *xml.Encoder, local, value string) {
	open(enc, local)
	_ = enc.EncodeToken(xml.CharData(value))
	closeEl(enc, local)
}

func writeCampoAdicional(enc *xml.Encoder, nombre, value string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "campoAdicional"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "nombre"}, Value: nombre}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	closeEl(enc, "campoAdicional")
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

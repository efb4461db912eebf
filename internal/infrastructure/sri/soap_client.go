package sri

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	"github.com/tu-usuario/facturacion-sri/internal/infrastructure/sri/signer"
)

// ── Endpoints de los web services del SRI ─────────────────────────────────────

const (
	recepcionURLTest    = "https://celcer.sri.gob.ec/comprobantes-electronicos-ws/RecepcionComprobantesOffline"
	autorizacionURLTest = "https://celcer.sri.gob.ec/comprobantes-electronicos-ws/AutorizacionComprobantesOffline"
	recepcionURLProd    = "https://cel.sri.gob.ec/comprobantes-electronicos-ws/RecepcionComprobantesOffline"
	autorizacionURLProd = "https://cel.sri.gob.ec/comprobantes-electronicos-ws/AutorizacionComprobantesOffline"

	nsSoapEnv      = "http://schemas.xmlsoap.org/soap/envelope/"
	nsRecepcion    = "http://ec.gob.sri.ws.recepcion"
	nsAutorizacion = "http://ec.gob.sri.ws.autorizacion"

	// Estados que devuelve el SRI
	estadoRecibida     = "RECIBIDA"
	estadoDevuelta     = "DEVUELTA"
	estadoAutorizado   = "AUTORIZADO"
	estadoNoAutorizado = "NO AUTORIZADO"
	estadoEnProceso    = "EN PROCESO"

	// Identificador de mensaje "CLAVE ACCESO REGISTRADA": el comprobante ya fue
	// presentado antes (reenvío tras una caída). No es un rechazo.
	msgClaveRegistrada = "43"
)

// SOAPConfig configuración del cliente SOAP.
type SOAPConfig struct {
	AppEnv          string        // dev | test | prod
	Ambiente        string        // "1" producción, "2" pruebas
	Timeout         time.Duration // timeout por llamada (acota cada intento)
	RecepcionURL    string        // override para tests; vacío usa el endpoint del AppEnv
	AutorizacionURL string        // override para tests
}

// SOAPSRIClient implementa Submitter contra los WS SOAP del SRI.
// Usa net/http de la stdlib para el transporte; el XML del comprobante lo
// construye XMLBuilderService y lo firma DigitalSignatureService.
type SOAPSRIClient struct {
	httpClient      *http.Client
	xmlBuilder      *XMLBuilderService
	firmador        signer.Signer
	cert            tls.Certificate
	emisor          Emisor
	ambiente        string
	recepcionURL    string
	autorizacionURL string
}

// NewSOAPSRIClient construye el cliente. El timeout por defecto es 20 s:
// los WS del SRI pueden tardar varios segundos pero cada intento debe estar
// acotado para que el orquestador clasifique el vencimiento como transitorio.
func NewSOAPSRIClient(cfg SOAPConfig, emisor Emisor, firmador signer.Signer, cert tls.Certificate) *SOAPSRIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	recepcion, autorizacion := cfg.RecepcionURL, cfg.AutorizacionURL
	if recepcion == "" {
		recepcion = recepcionURLTest
		if cfg.AppEnv == AppEnvProd {
			recepcion = recepcionURLProd
		}
	}
	if autorizacion == "" {
		autorizacion = autorizacionURLTest
		if cfg.AppEnv == AppEnvProd {
			autorizacion = autorizacionURLProd
		}
	}
	return &SOAPSRIClient{
		httpClient:      &http.Client{Timeout: timeout},
		xmlBuilder:      NewXMLBuilderService(),
		firmador:        firmador,
		cert:            cert,
		emisor:          emisor,
		ambiente:        cfg.Ambiente,
		recepcionURL:    recepcion,
		autorizacionURL: autorizacion,
	}
}

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type respuestaRecepcionEnvelope struct {
	Body struct {
		Respuesta struct {
			Estado       string `xml:"RespuestaRecepcionComprobante>estado"`
			Comprobantes []struct {
				ClaveAcceso string `xml:"claveAcceso"`
				Mensajes    []struct {
					Identificador string `xml:"identificador"`
					Mensaje       string `xml:"mensaje"`
					InfoAdicional string `xml:"informacionAdicional"`
					Tipo          string `xml:"tipo"`
				} `xml:"mensajes>mensaje"`
			} `xml:"RespuestaRecepcionComprobante>comprobantes>comprobante"`
		} `xml:"validarComprobanteResponse"`
		Fault *soapFault `xml:"Fault"`
	} `xml:"Body"`
}

type respuestaAutorizacionEnvelope struct {
	Body struct {
		Respuesta struct {
			ClaveConsultada string `xml:"RespuestaAutorizacionComprobante>claveAccesoConsultada"`
			Autorizaciones  []struct {
				Estado             string `xml:"estado"`
				NumeroAutorizacion string `xml:"numeroAutorizacion"`
				FechaAutorizacion  string `xml:"fechaAutorizacion"`
				Mensajes           []struct {
					Identificador string `xml:"identificador"`
					Mensaje       string `xml:"mensaje"`
					InfoAdicional string `xml:"informacionAdicional"`
				} `xml:"mensajes>mensaje"`
			} `xml:"RespuestaAutorizacionComprobante>autorizaciones>autorizacion"`
		} `xml:"autorizacionComprobanteResponse"`
		Fault *soapFault `xml:"Fault"`
	} `xml:"Body"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Submit ────────────────────────────────────────────────────────────────────

// Submit construye, firma y entrega el comprobante a recepción. Si el SRI lo
// recibe, consulta inmediatamente la autorización por clave de acceso.
// Errores de transporte, 5xx y respuestas no parseables se clasifican como
// transitorios: el documento pudo o no haber llegado, y reenviar es seguro
// porque la clave de acceso es determinística por orden.
func (c *SOAPSRIClient) Submit(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) (*SubmitResult, error) {
	comprobante, err := c.xmlBuilder.Build(&ComprobanteBuildContext{
		Invoice:  inv,
		Items:    items,
		Emisor:   c.emisor,
		Ambiente: c.ambiente,
	})
	if err != nil {
		return nil, fmt.Errorf("sri: construir comprobante: %w", err)
	}
	firmado, err := c.firmador.Sign(comprobante, c.cert)
	if err != nil {
		return nil, fmt.Errorf("sri: firmar comprobante: %w", err)
	}

	payload := c.buildValidarComprobante(firmado)
	raw, httpErr := c.post(ctx, c.recepcionURL, payload)
	if httpErr != nil {
		return transientResult(inv.ClaveAcceso, httpErr.Error(), ""), nil
	}

	var resp respuestaRecepcionEnvelope
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return transientResult(inv.ClaveAcceso, "respuesta de recepción no parseable", string(raw)), nil
	}
	if resp.Body.Fault != nil {
		msg := fmt.Sprintf("SOAP Fault [%s]: %s", resp.Body.Fault.FaultCode, resp.Body.Fault.FaultString)
		return transientResult(inv.ClaveAcceso, msg, string(raw)), nil
	}

	switch resp.Body.Respuesta.Estado {
	case estadoRecibida:
		return c.ConsultarAutorizacion(ctx, inv.ClaveAcceso)
	case estadoDevuelta:
		mensajes := recolectarMensajesRecepcion(&resp)
		// "CLAVE ACCESO REGISTRADA": ya la tenían de un envío anterior.
		// Se resuelve consultando la autorización, no es un rechazo.
		if strings.Contains(mensajes, "["+msgClaveRegistrada+"]") {
			return c.ConsultarAutorizacion(ctx, inv.ClaveAcceso)
		}
		return &SubmitResult{
			Outcome:     OutcomeRejected,
			ClaveAcceso: inv.ClaveAcceso,
			Mensaje:     mensajes,
			RawResponse: string(raw),
		}, nil
	default:
		return transientResult(inv.ClaveAcceso,
			fmt.Sprintf("estado de recepción desconocido %q", resp.Body.Respuesta.Estado), string(raw)), nil
	}
}

// ConsultarAutorizacion consulta el estado de autorización por clave de acceso.
func (c *SOAPSRIClient) ConsultarAutorizacion(ctx context.Context, claveAcceso string) (*SubmitResult, error) {
	payload := c.buildAutorizacionComprobante(claveAcceso)
	raw, httpErr := c.post(ctx, c.autorizacionURL, payload)
	if httpErr != nil {
		return transientResult(claveAcceso, httpErr.Error(), ""), nil
	}

	var resp respuestaAutorizacionEnvelope
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return transientResult(claveAcceso, "respuesta de autorización no parseable", string(raw)), nil
	}
	if resp.Body.Fault != nil {
		msg := fmt.Sprintf("SOAP Fault [%s]: %s", resp.Body.Fault.FaultCode, resp.Body.Fault.FaultString)
		return transientResult(claveAcceso, msg, string(raw)), nil
	}

	auts := resp.Body.Respuesta.Autorizaciones
	if len(auts) == 0 {
		// El SRI aún no registra el comprobante: seguir intentando.
		return transientResult(claveAcceso, "comprobante sin autorizaciones registradas", string(raw)), nil
	}
	aut := auts[0]

	switch aut.Estado {
	case estadoAutorizado:
		return &SubmitResult{
			Outcome:            OutcomeAuthorized,
			ClaveAcceso:        claveAcceso,
			NumeroAutorizacion: aut.NumeroAutorizacion,
			RawResponse:        string(raw),
		}, nil
	case estadoNoAutorizado:
		var sb strings.Builder
		for _, m := range aut.Mensajes {
			if sb.Len() > 0 {
				sb.WriteString("; ")
			}
			fmt.Fprintf(&sb, "[%s] %s", m.Identificador, m.Mensaje)
			if m.InfoAdicional != "" {
				sb.WriteString(": " + m.InfoAdicional)
			}
		}
		return &SubmitResult{
			Outcome:     OutcomeRejected,
			ClaveAcceso: claveAcceso,
			Mensaje:     sb.String(),
			RawResponse: string(raw),
		}, nil
	case estadoEnProceso:
		return transientResult(claveAcceso, "comprobante en proceso de autorización", string(raw)), nil
	default:
		return transientResult(claveAcceso,
			fmt.Sprintf("estado de autorización desconocido %q", aut.Estado), string(raw)), nil
	}
}

// ── Construcción de requests ─────────────────────────────────────────────────

func (c *SOAPSRIClient) buildValidarComprobante(comprobanteFirmado []byte) []byte {
	b64 := base64.StdEncoding.EncodeToString(comprobanteFirmado)
	var sb strings.Builder
	sb.WriteString(`<soapenv:Envelope xmlns:soapenv="` + nsSoapEnv + `" xmlns:ec="` + nsRecepcion + `">`)
	sb.WriteString(`<soapenv:Header/><soapenv:Body>`)
	sb.WriteString(`<ec:validarComprobante><xml>` + b64 + `</xml></ec:validarComprobante>`)
	sb.WriteString(`</soapenv:Body></soapenv:Envelope>`)
	return []byte(sb.String())
}

func (c *SOAPSRIClient) buildAutorizacionComprobante(claveAcceso string) []byte {
	var sb strings.Builder
	sb.WriteString(`<soapenv:Envelope xmlns:soapenv="` + nsSoapEnv + `" xmlns:ec="` + nsAutorizacion + `">`)
	sb.WriteString(`<soapenv:Header/><soapenv:Body>`)
	sb.WriteString(`<ec:autorizacionComprobante><claveAccesoComprobante>` + claveAcceso + `</claveAccesoComprobante></ec:autorizacionComprobante>`)
	sb.WriteString(`</soapenv:Body></soapenv:Envelope>`)
	return []byte(sb.String())
}

// post ejecuta la llamada SOAP. Devuelve error de transporte para cualquier
// fallo de red, timeout o status no-2xx: el caller lo clasifica transitorio.
func (c *SOAPSRIClient) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("soap: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("soap: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("soap: leer respuesta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("soap: status HTTP %d", resp.StatusCode)
	}
	return raw, nil
}

func recolectarMensajesRecepcion(resp *respuestaRecepcionEnvelope) string {
	var sb strings.Builder
	for _, comp := range resp.Body.Respuesta.Comprobantes {
		for _, m := range comp.Mensajes {
			if sb.Len() > 0 {
				sb.WriteString("; ")
			}
			fmt.Fprintf(&sb, "[%s] %s", m.Identificador, m.Mensaje)
			if m.InfoAdicional != "" {
				sb.WriteString(": " + m.InfoAdicional)
			}
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("comprobante devuelto sin mensajes")
	}
	return sb.String()
}

func transientResult(claveAcceso, mensaje, raw string) *SubmitResult {
	return &SubmitResult{
		Outcome:     OutcomeTransient,
		ClaveAcceso: claveAcceso,
		Mensaje:     mensaje,
		RawResponse: raw,
	}
}

var _ Submitter = (*SOAPSRIClient)(nil)

package sri

import (
	"context"
	"fmt"
	"time"

	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
)

// SimulatedSubmitter autoriza todo localmente sin tocar los WS del SRI.
// Se usa en modo dev para poder ejercitar el pipeline completo (ensamblado,
// numeración, transiciones de estado) sin certificado ni conectividad.
type SimulatedSubmitter struct{}

// NewSimulatedSubmitter crea el cliente simulado.
func NewSimulatedSubmitter() *SimulatedSubmitter {
	return &SimulatedSubmitter{}
}

// Submit devuelve siempre autorizado con un número sintético.
func (s *SimulatedSubmitter) Submit(_ context.Context, inv *entity.Invoice, _ []*entity.InvoiceItem) (*SubmitResult, error) {
	return &SubmitResult{
		Outcome:            OutcomeAuthorized,
		ClaveAcceso:        inv.ClaveAcceso,
		NumeroAutorizacion: fmt.Sprintf("SIM-%s-%d", inv.Number, time.Now().Unix()),
		RawResponse:        `{"simulated":true}`,
	}, nil
}

// ConsultarAutorizacion devuelve autorizado para cualquier clave.
func (s *SimulatedSubmitter) ConsultarAutorizacion(_ context.Context, claveAcceso string) (*SubmitResult, error) {
	return &SubmitResult{
		Outcome:            OutcomeAuthorized,
		ClaveAcceso:        claveAcceso,
		NumeroAutorizacion: fmt.Sprintf("SIM-%d", time.Now().Unix()),
		RawResponse:        `{"simulated":true}`,
	}, nil
}

var _ Submitter = (*SimulatedSubmitter)(nil)

package billing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-sri/internal/application/billing"
	"github.com/tu-usuario/facturacion-sri/internal/domain"
	"github.com/tu-usuario/facturacion-sri/internal/domain/entity"
	infrasri "github.com/tu-usuario/facturacion-sri/internal/infrastructure/sri"
)

func seedInvoice(t *testing.T, repo *fakeInvoiceRepo, status string) *entity.Invoice {
	t.Helper()
	now := time.Now()
	inv := &entity.Invoice{
		ID:          "inv-" + status,
		OrderID:     "order-" + status,
		BuyerID:     "buyer-1",
		Number:      "000000042",
		IssuedAt:    now,
		Status:      status,
		ClaveAcceso: "3108202501179001234500120010020000000421234567814",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(context.Background(), inv))
	if status != entity.StatusDraft {
		inv.Status = status
		require.NoError(t, repo.Update(context.Background(), inv))
	}
	return inv
}

func newOrchestrator(repo *fakeInvoiceRepo, sub *fakeSubmitter) *billing.SubmissionOrchestrator {
	return billing.NewSubmissionOrchestrator(repo, sub, billing.OrchestratorConfig{
		MaxReintentos: 5,
		StuckTimeout:  5 * time.Minute,
	}, testLogger())
}

func TestProcess_AutorizadaEnPrimerIntento(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)
	sub := &fakeSubmitter{submitResults: []*infrasri.SubmitResult{
		{Outcome: infrasri.OutcomeAuthorized, NumeroAutorizacion: "AUT-123", RawResponse: "<ok/>"},
	}}

	err := newOrchestrator(repo, sub).Process(context.Background(), inv.ID)
	require.NoError(t, err)

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusAuthorized, got.Status)
	assert.Equal(t, "AUT-123", got.AuthorizationNumber)
	assert.Equal(t, "<ok/>", got.RawAuthorityResponse)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, 1, sub.submitCalls)
}

func TestProcess_RechazadaNoSeReintenta(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)
	sub := &fakeSubmitter{submitResults: []*infrasri.SubmitResult{
		{Outcome: infrasri.OutcomeRejected, Mensaje: "[45] ERROR SECUENCIAL"},
	}}
	orch := newOrchestrator(repo, sub)

	require.NoError(t, orch.Process(context.Background(), inv.ID))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusRejected, got.Status)
	assert.Equal(t, "[45] ERROR SECUENCIAL", got.ErrorMessage)
	assert.Equal(t, 0, got.RetryCount, "el rechazo no consume reintentos")

	// Procesar de nuevo una terminal es un no-op
	require.NoError(t, orch.Process(context.Background(), inv.ID))
	assert.Equal(t, 1, sub.submitCalls, "no debe reenviarse una factura rechazada")
}

func TestProcess_FalloTransitorioIncrementaContador(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)
	sub := &fakeSubmitter{submitResults: []*infrasri.SubmitResult{
		{Outcome: infrasri.OutcomeTransient, Mensaje: "timeout"},
	}}

	require.NoError(t, newOrchestrator(repo, sub).Process(context.Background(), inv.ID))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusTransientFailure, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.NotNil(t, got.LastRetryAt)
	assert.Equal(t, "timeout", got.ErrorMessage)
}

func TestProcess_CincoTimeoutsConsecutivosTerminanEnFalloDefinitivo(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)
	sub := &fakeSubmitter{
		submitResults:   []*infrasri.SubmitResult{{Outcome: infrasri.OutcomeTransient, Mensaje: "timeout"}},
		consultaResults: []*infrasri.SubmitResult{{Outcome: infrasri.OutcomeTransient, Mensaje: "no consta"}},
	}
	orch := newOrchestrator(repo, sub)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		// El scheduler ignoraría el backoff aquí; Process no lo chequea
		require.NoError(t, orch.Process(ctx, inv.ID))
	}

	got, _ := repo.GetByID(ctx, inv.ID)
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.Equal(t, 5, got.RetryCount)

	// Terminal: un sexto Process no debe tocar nada
	before := sub.submitCalls
	require.NoError(t, orch.Process(ctx, inv.ID))
	assert.Equal(t, before, sub.submitCalls)
}

func TestProcess_RecuperaColgadaEnSubmittingViaConsulta(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)

	// Simular proceso muerto: quedó en SUBMITTING hace 10 minutos
	inv.Status = entity.StatusSubmitting
	inv.UpdatedAt = time.Now().Add(-10 * time.Minute)
	require.NoError(t, repo.Update(context.Background(), inv))

	// El envío anterior sí llegó: la consulta devuelve autorizada
	sub := &fakeSubmitter{consultaResults: []*infrasri.SubmitResult{
		{Outcome: infrasri.OutcomeAuthorized, NumeroAutorizacion: "AUT-999"},
	}}

	require.NoError(t, newOrchestrator(repo, sub).Process(context.Background(), inv.ID))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusAuthorized, got.Status)
	assert.Equal(t, "AUT-999", got.AuthorizationNumber)
	assert.Equal(t, 0, sub.submitCalls, "si la consulta resuelve, no se reenvía")
}

func TestProcess_SubmittingRecienteNoSeToca(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)
	inv.Status = entity.StatusSubmitting
	inv.UpdatedAt = time.Now()
	require.NoError(t, repo.Update(context.Background(), inv))

	sub := &fakeSubmitter{}
	require.NoError(t, newOrchestrator(repo, sub).Process(context.Background(), inv.ID))

	assert.Equal(t, 0, sub.submitCalls)
	assert.Equal(t, 0, sub.consultaCalls)
	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusSubmitting, got.Status)
}

func TestProcess_FacturaInexistente(t *testing.T) {
	repo := newFakeInvoiceRepo()
	err := newOrchestrator(repo, &fakeSubmitter{}).Process(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReprocess_ResetaContadorYReintenta(t *testing.T) {
	repo := newFakeInvoiceRepo()
	inv := seedInvoice(t, repo, entity.StatusDraft)
	inv.Status = entity.StatusFailed
	inv.RetryCount = 5
	inv.ErrorMessage = "timeout"
	require.NoError(t, repo.Update(context.Background(), inv))

	sub := &fakeSubmitter{
		submitResults:   []*infrasri.SubmitResult{{Outcome: infrasri.OutcomeAuthorized, NumeroAutorizacion: "AUT-7"}},
		consultaResults: []*infrasri.SubmitResult{{Outcome: infrasri.OutcomeTransient, Mensaje: "no consta"}},
	}

	require.NoError(t, newOrchestrator(repo, sub).Reprocess(context.Background(), inv.ID))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusAuthorized, got.Status)
	assert.Equal(t, "AUT-7", got.AuthorizationNumber)
}

func TestReprocess_SoloDesdeFalloDefinitivo(t *testing.T) {
	repo := newFakeInvoiceRepo()
	orch := newOrchestrator(repo, &fakeSubmitter{})
	ctx := context.Background()

	for i, status := range []string{entity.StatusDraft, entity.StatusAuthorized, entity.StatusRejected, entity.StatusTransientFailure} {
		inv := &entity.Invoice{
			ID:      fmt.Sprintf("inv-rp-%d", i),
			OrderID: fmt.Sprintf("order-rp-%d", i),
			Number:  fmt.Sprintf("%09d", i+100),
			Status:  status,
		}
		require.NoError(t, repo.Create(ctx, inv))

		err := orch.Reprocess(ctx, inv.ID)
		assert.ErrorIs(t, err, domain.ErrFacturaNoReprocesable, "estado %s", status)
	}
}

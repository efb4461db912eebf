package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tu-usuario/facturacion-sri/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// secuenciaFacturas nombre lógico de la serie de facturas en invoice_sequences.
const secuenciaFacturas = "facturas"

// SequenceRepo asigna secuenciales desde la tabla invoice_sequences.
// El UPDATE toma un lock de fila hasta el commit, así que dos transacciones
// concurrentes nunca obtienen el mismo número, y un rollback devuelve el
// número sin crear huecos. Debe usarse con un Querier transaccional.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Pasar la tx de la factura.
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next incrementa y devuelve el siguiente secuencial de la serie.
// Si la serie aún no existe la inicializa en 1.
func (r *SequenceRepo) Next(ctx context.Context) (int64, error) {
	var next int64
	err := r.q.QueryRow(ctx, `
		UPDATE invoice_sequences
		SET last_value = last_value + 1, updated_at = NOW()
		WHERE name = $1
		RETURNING last_value`, secuenciaFacturas,
	).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("next sequence: %w", err)
	}

	// Primera factura del sistema: sembrar la serie. Si otra transacción la
	// sembró primero, el ON CONFLICT no devuelve fila y se reintenta el UPDATE.
	err = r.q.QueryRow(ctx, `
		INSERT INTO invoice_sequences (name, last_value, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (name) DO NOTHING
		RETURNING last_value`, secuenciaFacturas,
	).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("seed sequence: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		UPDATE invoice_sequences
		SET last_value = last_value + 1, updated_at = NOW()
		WHERE name = $1
		RETURNING last_value`, secuenciaFacturas,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return next, nil
}

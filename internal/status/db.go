package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbStatusPersistence keeps every run in the reconciliation_runs table.
type dbStatusPersistence struct {
	pool *pgxpool.Pool
}

// NewDBStatusPersistence stores runs in Postgres.
func NewDBStatusPersistence(pool *pgxpool.Pool) Persistence {
	return &dbStatusPersistence{pool: pool}
}

// SaveStatus implements Persistence.
func (d *dbStatusPersistence) SaveStatus(ctx context.Context, status *RunStatus) error {
	report, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status for run %s: %w", status.RunID, err)
	}

	var errorMsg *string
	if status.Message != "" {
		errorMsg = &status.Message
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO reconciliation_runs (id, trigger, phase, started_at, finished_at, error_msg, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    phase = EXCLUDED.phase,
		    finished_at = EXCLUDED.finished_at,
		    error_msg = EXCLUDED.error_msg,
		    report = EXCLUDED.report`,
		status.RunID, string(status.Trigger), string(status.Phase),
		status.StartedAt, status.FinishedAt, errorMsg, report)
	if err != nil {
		return fmt.Errorf("failed to save status for run %s: %w", status.RunID, err)
	}
	return nil
}

// LoadLatest implements Persistence.
func (d *dbStatusPersistence) LoadLatest(ctx context.Context) (*RunStatus, error) {
	var report []byte
	err := d.pool.QueryRow(ctx,
		`SELECT report FROM reconciliation_runs ORDER BY started_at DESC LIMIT 1`).Scan(&report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}

	var status RunStatus
	if err := json.Unmarshal(report, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
	}
	return &status, nil
}

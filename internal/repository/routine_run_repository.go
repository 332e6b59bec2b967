package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/routine-api/internal/models"
)

// RoutineRunRepository keeps the audit trail of generation runs.
type RoutineRunRepository struct {
	db *sqlx.DB
}

// NewRoutineRunRepository constructs a run repository.
func NewRoutineRunRepository(db *sqlx.DB) *RoutineRunRepository {
	return &RoutineRunRepository{db: db}
}

func (r *RoutineRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create records a run. Missing identifiers and diagnostics are filled in.
func (r *RoutineRunRepository) Create(ctx context.Context, exec sqlx.ExtContext, run *models.RoutineRun) error {
	if run == nil {
		return fmt.Errorf("routine run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RoutineRunStatusCompleted
	}
	if len(run.Diagnostics) == 0 {
		run.Diagnostics = types.JSONText(`[]`)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO routine_runs (id, strategy, seed, fell_back, status, total_sessions, scheduled, dropped, slots_filled, diagnostics, created_at)
VALUES (:id, :strategy, :seed, :fell_back, :status, :total_sessions, :scheduled, :dropped, :slots_filled, :diagnostics, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("insert routine run: %w", err)
	}
	return nil
}

// Latest returns the most recent run or sql.ErrNoRows when none exist.
func (r *RoutineRunRepository) Latest(ctx context.Context) (*models.RoutineRun, error) {
	const query = `SELECT id, strategy, seed, fell_back, status, total_sessions, scheduled, dropped, slots_filled, diagnostics, created_at
FROM routine_runs ORDER BY created_at DESC LIMIT 1`
	var run models.RoutineRun
	if err := r.db.GetContext(ctx, &run, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest routine run: %w", err)
	}
	return &run, nil
}

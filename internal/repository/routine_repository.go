package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/routine-api/internal/models"
)

// routineLockKey identifies the advisory lock serialising routine rewrites.
const routineLockKey int64 = 0x726f7574696e65

const routineInsertBatch = 500

// RoutineRepository persists the weekly routine.
type RoutineRepository struct {
	db *sqlx.DB
}

// NewRoutineRepository constructs a routine repository.
func NewRoutineRepository(db *sqlx.DB) *RoutineRepository {
	return &RoutineRepository{db: db}
}

func (r *RoutineRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Lock takes a transaction-scoped advisory lock so concurrent regenerations
// commit one after another.
func (r *RoutineRepository) Lock(ctx context.Context, exec sqlx.ExtContext) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, routineLockKey); err != nil {
		return fmt.Errorf("lock routine: %w", err)
	}
	return nil
}

// DeleteAll clears the stored routine and reports how many rows were removed.
func (r *RoutineRepository) DeleteAll(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM routines`)
	if err != nil {
		return 0, fmt.Errorf("delete routine: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("routine rows affected: %w", err)
	}
	return affected, nil
}

// BulkCreate inserts routine entries in batches.
func (r *RoutineRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, entries []models.RoutineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
	}

	const query = `INSERT INTO routines (id, run_id, day, time_slot_id, course_id, created_at)
VALUES (:id, :run_id, :day, :time_slot_id, :course_id, :created_at)`
	for start := 0; start < len(entries); start += routineInsertBatch {
		end := start + routineInsertBatch
		if end > len(entries) {
			end = len(entries)
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entries[start:end]); err != nil {
			return fmt.Errorf("insert routine entries: %w", err)
		}
	}
	return nil
}

// List returns the joined routine ordered by position in days, then slot
// start time. Days missing from days sort last.
func (r *RoutineRepository) List(ctx context.Context, filter models.RoutineFilter, days []string) ([]models.RoutineView, error) {
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("c.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Day != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(r.day) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.Day))
	}

	query := `SELECT r.id, r.day, r.time_slot_id, ts.label AS slot_label,
to_char(ts.start_time, 'HH24:MI') AS start_time, to_char(ts.end_time, 'HH24:MI') AS end_time,
c.id AS course_id, c.code AS course_code, c.name AS course_name, c.course_type,
c.teacher_id, t.name AS teacher_name, COALESCE(c.room_number, '') AS room_number,
c.department_id, d.name AS department_name, c.semester_id, s.name AS semester_name
FROM routines r
JOIN time_slots ts ON ts.id = r.time_slot_id
JOIN courses c ON c.id = r.course_id
JOIN departments d ON d.id = c.department_id
JOIN semesters s ON s.id = c.semester_id
LEFT JOIN teachers t ON t.id = c.teacher_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY array_position($%d::text[], r.day) ASC NULLS LAST, r.day ASC, ts.start_time ASC, d.name ASC, s.name ASC", len(args)+1)
	args = append(args, pq.Array(days))

	var views []models.RoutineView
	if err := r.db.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, fmt.Errorf("list routine: %w", err)
	}
	return views, nil
}

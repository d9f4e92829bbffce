package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimetableRunRepository persists the versioned history of generation runs.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository constructs the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

func (r *TimetableRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a run assigning the next version for the school.
func (r *TimetableRunRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	if run == nil {
		return fmt.Errorf("timetable run payload is nil")
	}
	if run.SchoolID == "" {
		return fmt.Errorf("school_id is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.TimetableRunStatusComplete
	}
	if len(run.Meta) == 0 {
		run.Meta = types.JSONText(`{}`)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_runs WHERE school_id = $1`
	if err := sqlx.GetContext(ctx, target, &run.Version, nextVersionQuery, run.SchoolID); err != nil {
		return fmt.Errorf("compute next timetable run version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetable_runs (id, school_id, version, status, seed, attempts, placed_count, unplaced_count, score, meta, created_at)
VALUES (:id, :school_id, :version, :status, :seed, :attempts, :placed_count, :unplaced_count, :score, :meta, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, run); err != nil {
		return fmt.Errorf("insert timetable run: %w", err)
	}
	return nil
}

// ListBySchool returns the most recent runs first.
func (r *TimetableRunRepository) ListBySchool(ctx context.Context, schoolID string, limit int) ([]models.TimetableRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, school_id, version, status, seed, attempts, placed_count, unplaced_count, score, meta, created_at
FROM timetable_runs WHERE school_id = $1 ORDER BY version DESC LIMIT $2`
	var runs []models.TimetableRun
	if err := r.db.SelectContext(ctx, &runs, query, schoolID, limit); err != nil {
		return nil, fmt.Errorf("list timetable runs: %w", err)
	}
	return runs, nil
}

// Latest returns the newest run of a school.
func (r *TimetableRunRepository) Latest(ctx context.Context, schoolID string) (*models.TimetableRun, error) {
	const query = `SELECT id, school_id, version, status, seed, attempts, placed_count, unplaced_count, score, meta, created_at
FROM timetable_runs WHERE school_id = $1 ORDER BY version DESC LIMIT 1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, schoolID); err != nil {
		return nil, err
	}
	return &run, nil
}

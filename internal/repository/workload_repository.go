package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// WorkloadRepository reads curriculum requirements.
type WorkloadRepository struct {
	db *sqlx.DB
}

// NewWorkloadRepository constructs a workload repository.
func NewWorkloadRepository(db *sqlx.DB) *WorkloadRepository {
	return &WorkloadRepository{db: db}
}

// ListBySchool returns every workload in insertion order.
func (r *WorkloadRepository) ListBySchool(ctx context.Context, schoolID string) ([]models.Workload, error) {
	const query = `SELECT id, school_id, class_id, subject_id, teacher_id, lessons_per_week, created_at FROM workloads WHERE school_id = $1 ORDER BY created_at ASC, id ASC`
	var workloads []models.Workload
	if err := r.db.SelectContext(ctx, &workloads, query, schoolID); err != nil {
		return nil, fmt.Errorf("list workloads: %w", err)
	}
	return workloads, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// SchoolRepository reads schools and takes the row lock that serialises timetable writes.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a school repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByID loads a school by id.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, working_days, created_at, updated_at FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// LockForUpdate holds the school row until the surrounding transaction ends.
func (r *SchoolRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `SELECT id FROM schools WHERE id = $1 FOR UPDATE`
	var locked string
	if err := sqlx.GetContext(ctx, exec, &locked, query, id); err != nil {
		return fmt.Errorf("lock school %s: %w", id, err)
	}
	return nil
}

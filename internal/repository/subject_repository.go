package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// SubjectRepository reads subjects and their elective groups.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListBySchool returns the subjects of a school.
func (r *SubjectRepository) ListBySchool(ctx context.Context, schoolID string) ([]models.Subject, error) {
	const query = `SELECT id, school_id, name, has_double_lesson, elective_group_id, created_at, updated_at FROM subjects WHERE school_id = $1 ORDER BY name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, schoolID); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListElectiveGroups returns the elective groups of a school.
func (r *SubjectRepository) ListElectiveGroups(ctx context.Context, schoolID string) ([]models.ElectiveGroup, error) {
	const query = `SELECT id, school_id, name, created_at FROM elective_groups WHERE school_id = $1 ORDER BY name ASC`
	var groups []models.ElectiveGroup
	if err := r.db.SelectContext(ctx, &groups, query, schoolID); err != nil {
		return nil, fmt.Errorf("list elective groups: %w", err)
	}
	return groups, nil
}

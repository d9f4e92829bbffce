package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimeSlotRepository reads the ordered periods of a school day.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs a timeslot repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// ListBySchool returns timeslots in day order, breaks included.
func (r *TimeSlotRepository) ListBySchool(ctx context.Context, schoolID string) ([]models.TimeSlot, error) {
	const query = `SELECT id, school_id, name, start_time, end_time, is_break, position FROM timeslots WHERE school_id = $1 ORDER BY position ASC, start_time ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, schoolID); err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	return slots, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const scheduleBatchSize = 200

const scheduleDetailSelect = `SELECT s.id, s.school_id, s.class_id, s.day_of_week, s.timeslot_id, s.subject_id, s.elective_group_id, s.placement_id,
s.lesson_display_name, s.teacher_display_name, s.is_double, s.is_elective, s.is_horizontal_elective, s.created_at, s.updated_at,
COALESCE(array_agg(st.teacher_id ORDER BY st.teacher_id) FILTER (WHERE st.teacher_id IS NOT NULL), '{}') AS teacher_ids,
ts.position AS timeslot_position
FROM schedules s
JOIN timeslots ts ON ts.id = s.timeslot_id
LEFT JOIN schedule_teachers st ON st.schedule_id = s.id`

const scheduleDetailGroup = ` GROUP BY s.id, ts.position ORDER BY s.day_of_week ASC, ts.position ASC, s.class_id ASC`

// ScheduleRepository persists generated timetable rows and their teacher links.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// DeleteBySchool removes the whole timetable of a school and returns the number of rows deleted.
func (r *ScheduleRepository) DeleteBySchool(ctx context.Context, exec sqlx.ExtContext, schoolID string) (int64, error) {
	target := r.exec(exec)
	const linksQuery = `DELETE FROM schedule_teachers WHERE schedule_id IN (SELECT id FROM schedules WHERE school_id = $1)`
	if _, err := target.ExecContext(ctx, linksQuery, schoolID); err != nil {
		return 0, fmt.Errorf("delete schedule teachers: %w", err)
	}
	const query = `DELETE FROM schedules WHERE school_id = $1`
	result, err := target.ExecContext(ctx, query, schoolID)
	if err != nil {
		return 0, fmt.Errorf("delete schedules: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("schedules rows affected: %w", err)
	}
	return affected, nil
}

// InsertBatch stores schedule rows and teacher links in chunks.
func (r *ScheduleRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.Schedule, links []models.ScheduleTeacher) error {
	if len(rows) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
		rows[i].UpdatedAt = now
	}

	const query = `
INSERT INTO schedules (id, school_id, class_id, day_of_week, timeslot_id, subject_id, elective_group_id, placement_id,
	lesson_display_name, teacher_display_name, is_double, is_elective, is_horizontal_elective, created_at, updated_at)
VALUES (:id, :school_id, :class_id, :day_of_week, :timeslot_id, :subject_id, :elective_group_id, :placement_id,
	:lesson_display_name, :teacher_display_name, :is_double, :is_elective, :is_horizontal_elective, :created_at, :updated_at)`
	for start := 0; start < len(rows); start += scheduleBatchSize {
		end := min(start+scheduleBatchSize, len(rows))
		if _, err := sqlx.NamedExecContext(ctx, target, query, rows[start:end]); err != nil {
			return fmt.Errorf("insert schedules: %w", err)
		}
	}

	const linkQuery = `INSERT INTO schedule_teachers (schedule_id, teacher_id) VALUES (:schedule_id, :teacher_id)`
	for start := 0; start < len(links); start += scheduleBatchSize {
		end := min(start+scheduleBatchSize, len(links))
		if _, err := sqlx.NamedExecContext(ctx, target, linkQuery, links[start:end]); err != nil {
			return fmt.Errorf("insert schedule teachers: %w", err)
		}
	}
	return nil
}

// ListBySchool returns every row of the school timetable using exec when provided.
func (r *ScheduleRepository) ListBySchool(ctx context.Context, exec sqlx.ExtContext, schoolID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.school_id = $1` + scheduleDetailGroup
	var rows []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("list schedules by school: %w", err)
	}
	return rows, nil
}

// ListByClass returns the timetable rows of one class.
func (r *ScheduleRepository) ListByClass(ctx context.Context, schoolID, classID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.school_id = $1 AND s.class_id = $2` + scheduleDetailGroup
	var rows []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &rows, query, schoolID, classID); err != nil {
		return nil, fmt.Errorf("list schedules by class: %w", err)
	}
	return rows, nil
}

// ListByTeacher returns every row the teacher is linked to.
func (r *ScheduleRepository) ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.school_id = $1 AND s.id IN (SELECT schedule_id FROM schedule_teachers WHERE teacher_id = $2)` + scheduleDetailGroup
	var rows []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &rows, query, schoolID, teacherID); err != nil {
		return nil, fmt.Errorf("list schedules by teacher: %w", err)
	}
	return rows, nil
}

// UpdatePosition moves one row to a new class, day and timeslot.
func (r *ScheduleRepository) UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id, classID, day, timeSlotID string) error {
	const query = `UPDATE schedules SET class_id = $1, day_of_week = $2, timeslot_id = $3, updated_at = $4 WHERE id = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, classID, day, timeSlotID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update schedule position: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule position rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update schedule position %s: no rows affected", id)
	}
	return nil
}

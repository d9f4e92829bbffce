package models

import (
	"time"

	"github.com/lib/pq"
)

// Schedule is one persisted timetable row: a class, a day and a timeslot.
type Schedule struct {
	ID                   string    `db:"id" json:"id"`
	SchoolID             string    `db:"school_id" json:"school_id"`
	ClassID              string    `db:"class_id" json:"class_id"`
	DayOfWeek            string    `db:"day_of_week" json:"day_of_week"`
	TimeSlotID           string    `db:"timeslot_id" json:"timeslot_id"`
	SubjectID            *string   `db:"subject_id" json:"subject_id,omitempty"`
	ElectiveGroupID      *string   `db:"elective_group_id" json:"elective_group_id,omitempty"`
	PlacementID          string    `db:"placement_id" json:"placement_id"`
	LessonDisplayName    string    `db:"lesson_display_name" json:"lesson_display_name"`
	TeacherDisplayName   string    `db:"teacher_display_name" json:"teacher_display_name"`
	IsDouble             bool      `db:"is_double" json:"is_double"`
	IsElective           bool      `db:"is_elective" json:"is_elective"`
	IsHorizontalElective bool      `db:"is_horizontal_elective" json:"is_horizontal_elective"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleTeacher links a schedule row to every teacher it occupies.
type ScheduleTeacher struct {
	ScheduleID string `db:"schedule_id" json:"schedule_id"`
	TeacherID  string `db:"teacher_id" json:"teacher_id"`
}

// ScheduleDetail is a schedule row with its linked teachers and timeslot position.
type ScheduleDetail struct {
	Schedule
	TeacherIDs       pq.StringArray `db:"teacher_ids" json:"teacher_ids"`
	TimeSlotPosition int            `db:"timeslot_position" json:"timeslot_position"`
}

// ScheduleConflict describes an occupied resource at a slot.
type ScheduleConflict struct {
	Dimension  string `json:"dimension"`
	ResourceID string `json:"resource_id"`
	DayOfWeek  string `json:"day_of_week"`
	TimeSlotID string `json:"timeslot_id"`
}

// ScheduleConflictError is returned when a move collides with existing rows.
type ScheduleConflictError struct {
	Type    string             `json:"type"`
	Message string             `json:"message"`
	Errors  []ScheduleConflict `json:"errors,omitempty"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

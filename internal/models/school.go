package models

import (
	"strings"
	"time"
)

// School owns every timetable input and the generated schedule.
type School struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	WorkingDays string    `db:"working_days" json:"working_days"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// WorkingDayList splits the comma separated working_days column.
func (s School) WorkingDayList() []string {
	if strings.TrimSpace(s.WorkingDays) == "" {
		return nil
	}
	parts := strings.Split(s.WorkingDays, ",")
	days := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			days = append(days, trimmed)
		}
	}
	return days
}

// Class is the unit that receives lessons.
type Class struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Teacher delivers lessons.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ElectiveGroup buckets subjects taught in parallel.
type ElectiveGroup struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Subject is a curriculum item.
type Subject struct {
	ID              string    `db:"id" json:"id"`
	SchoolID        string    `db:"school_id" json:"school_id"`
	Name            string    `db:"name" json:"name"`
	HasDoubleLesson bool      `db:"has_double_lesson" json:"has_double_lesson"`
	ElectiveGroupID *string   `db:"elective_group_id" json:"elective_group_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Workload states that a teacher teaches a subject to a class N times a week.
type Workload struct {
	ID             string    `db:"id" json:"id"`
	SchoolID       string    `db:"school_id" json:"school_id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	LessonsPerWeek int       `db:"lessons_per_week" json:"lessons_per_week"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TimeSlot is an ordered period of the day.
type TimeSlot struct {
	ID        string `db:"id" json:"id"`
	SchoolID  string `db:"school_id" json:"school_id"`
	Name      string `db:"name" json:"name"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
	IsBreak   bool   `db:"is_break" json:"is_break"`
	Position  int    `db:"position" json:"position"`
}

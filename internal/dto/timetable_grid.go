package dto

import "time"

// LessonCell is one lesson record inside a timetable cell.
type LessonCell struct {
	ScheduleID           string   `json:"scheduleId"`
	PlacementID          string   `json:"placementId"`
	ClassID              string   `json:"classId"`
	SubjectID            string   `json:"subjectId,omitempty"`
	ElectiveGroupID      string   `json:"electiveGroupId,omitempty"`
	DisplayName          string   `json:"displayName"`
	TeacherDisplayName   string   `json:"teacherDisplayName"`
	TeacherIDs           []string `json:"teacherIds"`
	IsDouble             bool     `json:"isDouble"`
	IsElective           bool     `json:"isElective"`
	IsHorizontalElective bool     `json:"isHorizontalElective"`
}

// PeriodHeader describes one ordered timeslot row of the grid.
type PeriodHeader struct {
	TimeSlotID string `json:"timeslotId"`
	Name       string `json:"name"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	IsBreak    bool   `json:"isBreak"`
}

// TimetableRow holds one timeslot across every working day. Cells[d] lists the lessons on day d.
type TimetableRow struct {
	Period PeriodHeader   `json:"period"`
	Cells  [][]LessonCell `json:"cells"`
}

// TimetableGrid is the reconstructed week of a class or a teacher.
type TimetableGrid struct {
	SchoolID  string         `json:"schoolId"`
	OwnerType string         `json:"ownerType"`
	OwnerID   string         `json:"ownerId"`
	Days      []string       `json:"days"`
	Rows      []TimetableRow `json:"rows"`
}

// Grid owner types.
const (
	GridOwnerClass   = "class"
	GridOwnerTeacher = "teacher"
)

// ExportLink is a signed, expiring download URL for a rendered timetable.
type ExportLink struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}

package scheduler

import (
	"errors"
	"strings"
)

// Engine level errors. The service layer translates them into typed API errors.
var (
	ErrInvalidRequirement        = errors.New("invalid requirement")
	ErrDuplicateRequirement      = errors.New("duplicate requirement")
	ErrInconsistentElectiveGroup = errors.New("inconsistent elective group")
	ErrNoPeriods                 = errors.New("no schedulable periods")
)

// DefaultWorkingDays is used when a school did not configure its working week.
var DefaultWorkingDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// Requirement is a curriculum workload: a subject taught by a teacher to a class N times a week.
type Requirement struct {
	ID                string
	ClassID           string
	ClassName         string
	SubjectID         string
	SubjectName       string
	TeacherID         string
	TeacherName       string
	LessonsPerWeek    int
	HasDoubleLesson   bool
	ElectiveGroupID   string
	ElectiveGroupName string
}

func (r Requirement) key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ClassID + "|" + r.SubjectID + "|" + r.TeacherID
}

// TimeSlot is an ordered period of the school day.
type TimeSlot struct {
	ID        string
	Name      string
	StartTime string
	EndTime   string
	IsBreak   bool
}

// Input carries everything a generation run needs.
type Input struct {
	Requirements []Requirement
	TimeSlots    []TimeSlot
	WorkingDays  []string
}

// UnitKind tags the shape of a placement unit.
type UnitKind int

const (
	UnitSingle UnitKind = iota
	UnitDouble
	UnitElectiveSingle
	UnitElectiveDouble
)

func (k UnitKind) String() string {
	switch k {
	case UnitDouble:
		return "double"
	case UnitElectiveSingle:
		return "electiveSingle"
	case UnitElectiveDouble:
		return "electiveDouble"
	default:
		return "single"
	}
}

// IsElective reports whether the unit schedules a whole elective group.
func (k UnitKind) IsElective() bool {
	return k == UnitElectiveSingle || k == UnitElectiveDouble
}

// PlacementUnit is one atomic, schedulable block derived from requirements.
type PlacementUnit struct {
	Kind         UnitKind
	Key          string
	Requirements []Requirement
	Duration     int
	ClassIDs     []string
	TeacherIDs   []string
	Horizontal   bool
	Priority     int
	WeeklyCount  int
	DisplayName  string
}

func (u PlacementUnit) subjectNames() []string {
	names := make([]string, 0, len(u.Requirements))
	for _, req := range u.Requirements {
		names = append(names, req.SubjectName)
	}
	return names
}

// Placement records where a unit landed.
type Placement struct {
	Unit   PlacementUnit
	Day    int
	Period int
	Score  int
}

// LessonContent is one subject/teacher pairing shown inside a timetable cell.
type LessonContent struct {
	RequirementID string
	SubjectID     string
	SubjectName   string
	TeacherID     string
	TeacherName   string
}

// Entry is one class/day/period row of the generated timetable.
type Entry struct {
	PlacementIndex       int
	ClassID              string
	Day                  int
	Period               int
	TimeSlotID           string
	SubjectID            string
	ElectiveGroupID      string
	DisplayName          string
	TeacherDisplayName   string
	TeacherIDs           []string
	Lessons              []LessonContent
	IsDouble             bool
	IsElective           bool
	IsHorizontalElective bool
}

// UnplacedItem aggregates what could not be placed for one requirement or elective group.
type UnplacedItem struct {
	Key          string   `json:"key"`
	ClassIDs     []string `json:"classIds"`
	ClassLabel   string   `json:"class"`
	SubjectLabel string   `json:"subject"`
	Unplaced     int      `json:"unplaced"`
	Total        int      `json:"total"`
}

// Result is the outcome of a generation run.
type Result struct {
	Seed        int64
	Attempt     int
	WorkingDays []string
	TimeSlots   []TimeSlot
	Placements  []Placement
	Entries     []Entry
	Unplaced    []PlacementUnit
	Summary     []UnplacedItem
	UnitsTotal  int
	Score       int
}

// PlacedPeriods counts the periods placed per unit; an elective block counts once for its group.
func (r *Result) PlacedPeriods() int {
	total := 0
	for _, p := range r.Placements {
		total += p.Unit.Duration
	}
	return total
}

// UnplacedPeriods counts the lesson periods left out of the timetable.
func (r *Result) UnplacedPeriods() int {
	total := 0
	for _, item := range r.Summary {
		total += item.Unplaced
	}
	return total
}

// Complete reports whether every unit was placed.
func (r *Result) Complete() bool {
	return len(r.Unplaced) == 0
}

// NormalizeWorkingDays trims and de-duplicates day names, falling back to DefaultWorkingDays.
func NormalizeWorkingDays(days []string) []string {
	seen := make(map[string]bool, len(days))
	result := make([]string, 0, len(days))
	for _, day := range days {
		day = strings.TrimSpace(day)
		if day == "" {
			continue
		}
		key := strings.ToLower(day)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, strings.ToUpper(day[:1])+strings.ToLower(day[1:]))
	}
	if len(result) == 0 {
		return append([]string(nil), DefaultWorkingDays...)
	}
	return result
}

package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// GenerateTimetableRequest regenerates the whole timetable of a school.
type GenerateTimetableRequest struct {
	Seed     *int64 `json:"seed"`
	Attempts int    `json:"attempts" validate:"omitempty,min=1,max=100"`
	Async    bool   `json:"async"`
}

// UnplacedRequirement reports the lessons of one workload or elective group that found no slot.
type UnplacedRequirement struct {
	Key      string   `json:"key"`
	ClassIDs []string `json:"classIds"`
	Class    string   `json:"class"`
	Subject  string   `json:"subject"`
	Unplaced int      `json:"unplaced"`
	Total    int      `json:"total"`
}

// GenerateTimetableResponse summarises a persisted generation run.
type GenerateTimetableResponse struct {
	RunID           string                    `json:"runId"`
	SchoolID        string                    `json:"schoolId"`
	Version         int                       `json:"version"`
	Status          models.TimetableRunStatus `json:"status"`
	Seed            int64                     `json:"seed"`
	Attempts        int                       `json:"attempts"`
	WinningAttempt  int                       `json:"winningAttempt"`
	PlacedPeriods   int                       `json:"placedPeriods"`
	UnplacedPeriods int                       `json:"unplacedPeriods"`
	Entries         int                       `json:"entries"`
	Score           int                       `json:"score"`
	Unplaced        []UnplacedRequirement     `json:"unplaced"`
	DurationMs      int64                     `json:"durationMs"`
}

// TimetableJobState tracks an asynchronous generation request.
type TimetableJobState string

const (
	TimetableJobQueued  TimetableJobState = "QUEUED"
	TimetableJobRunning TimetableJobState = "RUNNING"
	TimetableJobDone    TimetableJobState = "DONE"
	TimetableJobFailed  TimetableJobState = "FAILED"
)

// TimetableJobStatus is returned for async generation requests.
type TimetableJobStatus struct {
	JobID     string                     `json:"jobId"`
	SchoolID  string                     `json:"schoolId"`
	State     TimetableJobState          `json:"state"`
	Attempt   int                        `json:"attempt"`
	Error     string                     `json:"error,omitempty"`
	Result    *GenerateTimetableResponse `json:"result,omitempty"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

// TimetableRunQuery pages through generation history.
type TimetableRunQuery struct {
	Limit int `form:"limit" json:"limit" validate:"omitempty,min=1,max=100"`
}

// MoveLessonRequest relocates an already placed lesson.
type MoveLessonRequest struct {
	LessonID         string `json:"lessonId" validate:"required"`
	TargetClassID    string `json:"targetClassId" validate:"required"`
	TargetDay        string `json:"targetDay" validate:"required"`
	TargetTimeslotID string `json:"targetTimeslotId" validate:"required"`
}

// MoveLessonResponse reports the outcome of a manual move.
type MoveLessonResponse struct {
	Success   bool                      `json:"success"`
	Reason    string                    `json:"reason,omitempty"`
	MovedIDs  []string                  `json:"movedIds,omitempty"`
	Conflicts []models.ScheduleConflict `json:"conflicts,omitempty"`
}

// Move failure reasons.
const (
	MoveReasonSlotOccupied  = "slot occupied"
	MoveReasonMissingFields = "missing required fields"
	MoveReasonInvalidTarget = "invalid target"
)

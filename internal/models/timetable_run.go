package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableRunStatus reports how complete a generation run was.
type TimetableRunStatus string

const (
	TimetableRunStatusComplete TimetableRunStatus = "COMPLETE"
	TimetableRunStatusPartial  TimetableRunStatus = "PARTIAL"
)

// TimetableRun is the versioned history record of one regeneration.
type TimetableRun struct {
	ID            string             `db:"id" json:"id"`
	SchoolID      string             `db:"school_id" json:"school_id"`
	Version       int                `db:"version" json:"version"`
	Status        TimetableRunStatus `db:"status" json:"status"`
	Seed          int64              `db:"seed" json:"seed"`
	Attempts      int                `db:"attempts" json:"attempts"`
	PlacedCount   int                `db:"placed_count" json:"placed_count"`
	UnplacedCount int                `db:"unplaced_count" json:"unplaced_count"`
	Score         int                `db:"score" json:"score"`
	Meta          types.JSONText     `db:"meta" json:"meta"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

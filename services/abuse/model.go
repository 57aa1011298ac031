package abuse

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusBlocked = "blocked"
	StatusFlagged = "flagged"
)

// Action is one append-only audit record for a suspicious activity.
type Action struct {
	ID              string                         `gorm:"column:id;primaryKey"`
	WorkerID        string                         `gorm:"column:worker_id;index"`
	ActivityID      string                         `gorm:"column:activity_id"`
	AbuseTypes      datatypes.JSONType[[]string]   `gorm:"column:abuse_types"`
	ConfidenceScore float64                        `gorm:"column:confidence_score"`
	Details         datatypes.JSONType[[]string]   `gorm:"column:details"`
	Status          string                         `gorm:"column:status;index"`
	Reviewed        bool                           `gorm:"column:reviewed"`
	CreatedAt       time.Time                      `gorm:"column:created_at"`
}

func (Action) TableName() string {
	return "abuse_actions"
}

// Detection is the outcome of running every check against one activity.
type Detection struct {
	IsSuspicious    bool
	ConfidenceScore float64
	AbuseTypes      []string
	Details         []string
	Recommendations []string
}

// Totals are the running blocked/flagged counts kept for reporting.
type Totals struct {
	Blocked int64 `json:"blocked"`
	Flagged int64 `json:"flagged"`
}

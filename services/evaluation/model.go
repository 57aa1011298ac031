package evaluation

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Scores are the four weighted dimensions plus their mean, all in [0,1].
type Scores struct {
	Consistency float64 `json:"consistency"`
	Reliability float64 `json:"reliability"`
	Efficiency  float64 `json:"efficiency"`
	Honesty     float64 `json:"honesty"`
	Overall     float64 `json:"overall"`
}

type Recommendation struct {
	Priority  string `json:"priority"`
	Dimension string `json:"dimension"`
	Message   string `json:"message"`
}

// Statistics snapshot the profile numbers the evaluation was computed from.
type Statistics struct {
	TotalActivities int64   `json:"total_activities"`
	ActiveDays      int     `json:"active_days"`
	ItemsPerHour    float64 `json:"items_per_hour"`
	AbuseIncidents  int     `json:"abuse_incidents"`
	TotalEarnings   float64 `json:"total_earnings"`
}

// Evaluation is one scored snapshot of a worker. At most 30 are kept per
// worker; the row with Current=true is the live pointer.
type Evaluation struct {
	ID              string                               `gorm:"column:id;primaryKey"`
	WorkerID        string                               `gorm:"column:worker_id;index"`
	EvaluationDate  time.Time                            `gorm:"column:evaluation_date"`
	Scores          datatypes.JSONType[Scores]           `gorm:"column:scores"`
	StarRating      int                                  `gorm:"column:star_rating"`
	Trend           string                               `gorm:"column:trend"`
	Recommendations datatypes.JSONType[[]Recommendation] `gorm:"column:recommendations"`
	Statistics      datatypes.JSONType[Statistics]       `gorm:"column:statistics"`
	Badges          datatypes.JSONType[[]string]         `gorm:"column:badges"`
	Current         bool                                 `gorm:"column:current;index"`
	Error           string                               `gorm:"column:error"`
	CreatedAt       time.Time                            `gorm:"column:created_at"`
}

func (Evaluation) TableName() string {
	return "worker_evaluations"
}

// ScorePoint mirrors {date, overall} into the series the next evaluation's
// trend calculation reads.
type ScorePoint struct {
	ID       string    `gorm:"column:id;primaryKey"`
	WorkerID string    `gorm:"column:worker_id;index"`
	Date     time.Time `gorm:"column:date"`
	Overall  float64   `gorm:"column:overall"`
}

func (ScorePoint) TableName() string {
	return "worker_score_points"
}

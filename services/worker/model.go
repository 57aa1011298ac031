package worker

import (
	"time"

	"gorm.io/datatypes"
)

// DayStats accumulates one calendar day of a worker's output.
type DayStats struct {
	Activities int64   `json:"activities"`
	Items      int64   `json:"items"`
	Earnings   float64 `json:"earnings"`
}

// Profile is the rolling per-worker accumulation consumed by scoring.
// It only grows: counters are bumped on every applied activity and rows are
// never deleted.
type Profile struct {
	ID              string                                  `gorm:"column:id;primaryKey"`
	FixoID          string                                  `gorm:"column:fixo_id"`
	TotalActivities int64                                   `gorm:"column:total_activities"`
	FirstActivity   time.Time                               `gorm:"column:first_activity"`
	LastActivity    time.Time                               `gorm:"column:last_activity"`
	ActivityTypes   datatypes.JSONType[map[string]int64]    `gorm:"column:activity_types"`
	ItemsProcessed  datatypes.JSONType[map[string]int64]    `gorm:"column:items_processed"`
	DailyStats      datatypes.JSONType[map[string]DayStats] `gorm:"column:daily_stats"`
	CreatedAt       time.Time                               `gorm:"column:created_at"`
	UpdatedAt       time.Time                               `gorm:"column:updated_at"`
}

func (Profile) TableName() string {
	return "worker_profiles"
}

const dayKeyLayout = "2006-01-02"

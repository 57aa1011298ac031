package activity

import (
	"time"
)

// Activity is one classified farm-economy event. Immutable once persisted;
// category and type drive the earnings and scoring paths downstream.
type Activity struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	EntryID      int64     `gorm:"column:entry_id;index" json:"entry_id"`
	Timestamp    time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	Author       string    `gorm:"column:author;index" json:"author"`
	FixoID       string    `gorm:"column:fixo_id" json:"fixo_id,omitempty"`
	Category     string    `gorm:"column:category" json:"category"`
	Type         string    `gorm:"column:type" json:"type"`
	Item         string    `gorm:"column:item" json:"item,omitempty"`
	Quantity     int64     `gorm:"column:quantity" json:"quantity,omitempty"`
	Amount       float64   `gorm:"column:amount" json:"amount,omitempty"`
	BalanceAfter float64   `gorm:"column:balance_after" json:"balance_after,omitempty"`
	Confidence   string    `gorm:"column:confidence" json:"confidence"`
	DisplayText  string    `gorm:"column:display_text" json:"display_text"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Activity) TableName() string {
	return "activities"
}

// DashboardStats is the aggregate snapshot broadcast on dashboard refreshes.
type DashboardStats struct {
	TotalActivities int64            `json:"total_activities"`
	TotalDeposited  float64          `json:"total_deposited"`
	TotalWithdrawn  float64          `json:"total_withdrawn"`
	ByCategory      map[string]int64 `json:"by_category"`
	ActiveWorkers   int64            `json:"active_workers"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

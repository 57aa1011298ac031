package ingest

import (
	"time"

	"gorm.io/datatypes"

	"farmledger/services/parser"
)

// WebhookEntry is one buffered upstream message. Ids are assigned by the
// producer and strictly increasing; rows are never mutated.
type WebhookEntry struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement:false"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	ReceivedAt time.Time      `gorm:"column:received_at"`
}

func (WebhookEntry) TableName() string {
	return "webhook_entries"
}

// ProcessingCursor is the single durable marker of the highest entry id
// fully applied. It advances in the same transaction that applies the
// entry's activities, one row per process.
type ProcessingCursor struct {
	ID              int       `gorm:"column:id;primaryKey"`
	LastProcessedID int64     `gorm:"column:last_processed_id"`
	LastUpdated     time.Time `gorm:"column:last_updated"`
}

func (ProcessingCursor) TableName() string {
	return "processing_cursors"
}

const cursorRowID = 1

// entryPayload is the discriminated wire shape: legacy embeds or a batch of
// plain messages whose content may concatenate several logical messages.
type entryPayload struct {
	Embeds   []parser.Embed `json:"embeds"`
	Messages []batchMessage `json:"messages"`
}

type batchMessage struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

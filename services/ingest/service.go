package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"farmledger/pkg/config"
	"farmledger/pkg/db/option"
	"farmledger/pkg/errutil"
	"farmledger/pkg/repository"
	"farmledger/pkg/watch"
	"farmledger/services/abuse"
	"farmledger/services/activity"
	"farmledger/services/parser"
	"farmledger/services/worker"
)

const (
	// TopicSource triggers a catch-up pass over the buffered source log.
	TopicSource = "ingest.source"
	// TopicActivities and TopicDashboard carry the outbound read-model
	// refreshes published after every successful apply.
	TopicActivities = "activities.changed"
	TopicDashboard  = "dashboard.changed"

	recentSnapshotSize = 50
)

var (
	entriesProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_entries_processed_total"})
	entriesFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_entries_failed_total"})
	messagesDropped  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_submessages_dropped_total"})
)

func init() {
	prometheus.MustRegister(entriesProcessed, entriesFailed, messagesDropped)
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	parser *parser.Parser
	cfg    *config.Config

	entries repository.Repository[WebhookEntry]
	cursors repository.Repository[ProcessingCursor]

	activities *activity.Service
	workers    *worker.Service
	abuse      *abuse.Service
	observer   watch.Observer

	running atomic.Bool
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Parser     *parser.Parser
	Cfg        *config.Config
	Activities *activity.Service
	Workers    *worker.Service
	Abuse      *abuse.Service
	Observer   watch.Observer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		node:       p.Node,
		parser:     p.Parser,
		cfg:        p.Cfg,
		entries:    repository.ProvideStore[WebhookEntry](p.DB),
		cursors:    repository.ProvideStore[ProcessingCursor](p.DB),
		activities: p.Activities,
		workers:    p.Workers,
		abuse:      p.Abuse,
		observer:   p.Observer,
	}
}

// Append buffers one upstream entry and triggers a pass. The id comes from
// the producer and must be higher than anything already buffered; replays of
// an already-buffered id are rejected so they cannot duplicate activities.
func (s *Service) Append(ctx context.Context, id int64, payload []byte) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if id <= 0 {
		return errutil.BadRequest("entry id must be positive", nil)
	}

	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return err
	}
	if id <= cursor.LastProcessedID {
		return errutil.Conflict(fmt.Sprintf("entry %d already processed (cursor at %d)", id, cursor.LastProcessedID), nil)
	}

	existing, err := s.entries.FindOne(ctx, &WebhookEntry{ID: id})
	if err != nil {
		return err
	}
	if existing != nil {
		return errutil.Conflict(fmt.Sprintf("entry %d already buffered", id), nil)
	}

	if err := s.entries.Create(ctx, &WebhookEntry{
		ID:         id,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: time.Now(),
	}); err != nil {
		return err
	}

	if err := s.observer.Notify(ctx, TopicSource, nil); err != nil {
		zap.L().Warn("failed to notify source topic", zap.Error(err))
	}

	return nil
}

// Run executes one catch-up pass: replay every unapplied entry in ascending
// id order, committing each entry's activities and the cursor advance in one
// transaction. A reentrancy guard keeps at most one pass in flight; the first
// per-entry failure stops the pass so the failed entry is retried on the next
// trigger.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	defer s.running.Store(false)

	span := trace.SpanFromContext(ctx)
	defer span.End()

	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return err
	}

	pending, err := s.entries.Find(ctx, &WebhookEntry{},
		option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: option.GT,
			Value:    cursor.LastProcessedID,
		}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		return err
	}

	for _, entry := range pending {
		applied, err := s.applyEntry(ctx, entry)
		if err != nil {
			entriesFailed.Inc()
			zap.L().Error("entry failed, stopping pass",
				zap.Int64("entry_id", entry.ID),
				zap.Int64("cursor", cursor.LastProcessedID),
				zap.Error(err),
			)
			return err
		}
		cursor.LastProcessedID = entry.ID

		// detection runs after commit so the audit log survives even when
		// it flags an activity just written
		for _, act := range applied {
			s.abuse.Inspect(ctx, s.db, act)
		}

		entriesProcessed.Inc()
		s.broadcast(ctx)
	}

	return nil
}

func (s *Service) loadCursor(ctx context.Context) (*ProcessingCursor, error) {
	cursor, err := s.cursors.FindOne(ctx, &ProcessingCursor{ID: cursorRowID})
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		cursor = &ProcessingCursor{ID: cursorRowID, LastUpdated: time.Now()}
		if err := s.cursors.Create(ctx, cursor); err != nil {
			return nil, err
		}
	}
	return cursor, nil
}

// applyEntry classifies and applies every logical message inside one entry,
// then advances the cursor, all in a single transaction: a crash or failure
// mid-entry rolls the whole entry back instead of leaving some of its
// activities committed for the retry to duplicate. Batch entries count as
// processed when at least one sub-message parses; the others are dropped
// with a warning so head-of-line blocking on junk sub-messages cannot stall
// the ledger. Returns the applied activities for post-commit inspection.
func (s *Service) applyEntry(ctx context.Context, entry *WebhookEntry) ([]*activity.Activity, error) {
	var payload entryPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	var applied []*activity.Activity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied = applied[:0]

		if len(payload.Messages) > 0 {
			for _, msg := range payload.Messages {
				for _, sub := range parser.SplitMessages(msg.Content, s.cfg.Ingest.SourceTag) {
					act, err := s.applyMessage(ctx, tx, entry, parser.Message{Author: msg.Author, Content: sub}, false)
					if err != nil {
						return err
					}
					if act != nil {
						applied = append(applied, act)
					} else {
						messagesDropped.Inc()
						zap.L().Warn("dropping unparsed sub-message",
							zap.Int64("entry_id", entry.ID),
							zap.String("text", sub),
						)
					}
				}
			}
			if len(applied) == 0 {
				return fmt.Errorf("no sub-message parsed in batch entry %d", entry.ID)
			}
		} else {
			// legacy embed entry: the fallback result is still applied so
			// the pipeline always yields an activity
			act, err := s.applyMessage(ctx, tx, entry, parser.Message{Embeds: payload.Embeds}, true)
			if err != nil {
				return err
			}
			applied = append(applied, act)
		}

		return tx.Model(&ProcessingCursor{}).
			Where("id = ?", cursorRowID).
			Updates(map[string]any{
				"last_processed_id": entry.ID,
				"last_updated":      time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Service) applyMessage(ctx context.Context, tx *gorm.DB, entry *WebhookEntry, msg parser.Message, allowFallback bool) (*activity.Activity, error) {
	text := s.parser.Normalize(msg)
	result := s.parser.Classify(text, msg.Embeds)
	if !result.Success && !allowFallback {
		return nil, nil
	}

	author := s.parser.ExtractAuthor(msg)

	timestamp := entry.ReceivedAt
	if ts, ok := parser.ExtractTimestamp(text); ok {
		timestamp = ts
	}

	act := &activity.Activity{
		ID:           s.node.Generate().String(),
		EntryID:      entry.ID,
		Timestamp:    timestamp,
		Author:       author,
		FixoID:       fixoFromMessage(msg, text),
		Category:     string(result.Category),
		Type:         result.Type,
		Item:         result.Item,
		Quantity:     result.Quantity,
		Amount:       result.Amount,
		BalanceAfter: result.BalanceAfter,
		Confidence:   string(result.Confidence),
		DisplayText:  result.DisplayText,
		CreatedAt:    time.Now(),
	}

	if err := s.activities.Store().WithTrx(tx).Create(ctx, act); err != nil {
		return nil, err
	}
	if err := s.workers.Apply(ctx, tx, act); err != nil {
		return nil, err
	}

	return act, nil
}

func fixoFromMessage(msg parser.Message, text string) string {
	for _, embed := range msg.Embeds {
		for _, field := range embed.Fields {
			if id := parser.ExtractFixoID(field.Value); id != "" {
				return id
			}
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if id := parser.ExtractFixoID(line); id != "" {
			return id
		}
	}
	return ""
}

// broadcast publishes the two read-model refreshes for live subscribers.
func (s *Service) broadcast(ctx context.Context) {
	if recent, err := s.activities.Recent(ctx, recentSnapshotSize); err == nil {
		if payload, err := json.Marshal(recent); err == nil {
			if err := s.observer.Notify(ctx, TopicActivities, payload); err != nil {
				zap.L().Warn("failed to publish recent activities", zap.Error(err))
			}
		}
	}

	if stats, err := s.activities.Dashboard(ctx); err == nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.observer.Notify(ctx, TopicDashboard, payload); err != nil {
				zap.L().Warn("failed to publish dashboard stats", zap.Error(err))
			}
		}
	}
}

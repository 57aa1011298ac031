package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"farmledger/pkg/config"
	"farmledger/pkg/watch"
	"farmledger/services/abuse"
	"farmledger/services/activity"
	"farmledger/services/parser"
	"farmledger/services/testutil"
	"farmledger/services/worker"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type observerStub struct {
	mu     sync.Mutex
	topics []string
}

func (o *observerStub) Subscribe(ctx context.Context, topic string) (<-chan watch.Event, error) {
	return make(chan watch.Event), nil
}

func (o *observerStub) Notify(ctx context.Context, topic string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.topics = append(o.topics, topic)
	return nil
}

func (o *observerStub) seen(topic string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T) (*Service, *observerStub, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&WebhookEntry{},
		&ProcessingCursor{},
		&activity.Activity{},
		&worker.Profile{},
		&abuse.Action{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Ingest.SourceTag = "CAPITÃO CALDEIRA"
	cfg.Ingest.BotNames = []string{"Captain Hook"}

	workers := worker.NewService(worker.ServiceParams{DB: db})
	activities := activity.NewService(activity.ServiceParams{DB: db})
	detector := abuse.NewService(abuse.ServiceParams{DB: db, Node: node, Cfg: cfg, Workers: workers})
	observer := &observerStub{}

	svc := NewService(ServiceParams{
		DB:         db,
		Node:       node,
		Parser:     parser.New(parser.Config{BotNames: cfg.Ingest.BotNames}),
		Cfg:        cfg,
		Activities: activities,
		Workers:    workers,
		Abuse:      detector,
		Observer:   observer,
	})
	return svc, observer, db
}

func cursorValue(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var cursor ProcessingCursor
	err := db.First(&cursor, "id = ?", cursorRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return cursor.LastProcessedID
}

func activityCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&activity.Activity{}).Count(&count).Error)
	return count
}

func TestAppendRejectsNonPositiveID(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Append(context.Background(), 0, []byte(`{}`))
	require.Error(t, err)
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	svc, observer, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, 1, []byte(`{"messages":[]}`)))
	require.Error(t, svc.Append(ctx, 1, []byte(`{"messages":[]}`)))
	require.True(t, observer.seen(TopicSource))
}

func TestRunAppliesBatchEntry(t *testing.T) {
	svc, observer, db := newTestService(t)
	ctx := context.Background()

	payload := `{"id":1,"messages":[{"author":"Captain Hook","content":"[3:42 PM] CAPITÃO CALDEIRA\nAuthor: John Doe | FIXO: 12345\nItem adicionado: trigo x50\n[3:45 PM] CAPITÃO CALDEIRA\nAuthor: John Doe\nValor depositado: $160,00"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.NoError(t, svc.Run(ctx))

	require.Equal(t, int64(2), activityCount(t, db))
	require.Equal(t, int64(1), cursorValue(t, db))

	profile, err := svc.workers.Get(ctx, "John Doe")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "12345", profile.FixoID)
	require.Equal(t, int64(2), profile.TotalActivities)
	require.Equal(t, int64(50), profile.ItemsProcessed.Data()["Wheat"])

	require.True(t, observer.seen(TopicActivities))
	require.True(t, observer.seen(TopicDashboard))
}

func TestRunDropsUnparsedSubMessages(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	payload := `{"id":1,"messages":[{"author":"Captain Hook","content":"[3:42 PM] CAPITÃO CALDEIRA\nItem adicionado: milho x10\n[3:43 PM] CAPITÃO CALDEIRA\nsomething unrecognizable"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.NoError(t, svc.Run(ctx))

	// the parsed sub-message lands, the junk one is dropped
	require.Equal(t, int64(1), activityCount(t, db))
	require.Equal(t, int64(1), cursorValue(t, db))
}

func TestRunFailsBatchWithoutParsedMessages(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	payload := `{"id":1,"messages":[{"author":"Captain Hook","content":"pure noise"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.Error(t, svc.Run(ctx))

	require.Equal(t, int64(0), activityCount(t, db))
	require.Equal(t, int64(0), cursorValue(t, db))
}

func TestRunAppliesLegacyEmbedWithFallback(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	payload := `{"id":1,"embeds":[{"title":"Sistema","description":"manutenção programada"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.NoError(t, svc.Run(ctx))

	require.Equal(t, int64(1), activityCount(t, db))

	var act activity.Activity
	require.NoError(t, db.First(&act).Error)
	require.Equal(t, parser.TypeUnknown, act.Type)
	require.Equal(t, "System", act.Author)
	require.Equal(t, int64(1), act.EntryID)
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, 1, []byte(`{"messages":[{"author":"x","content":"Item adicionado: trigo x5"}]}`)))
	require.NoError(t, svc.Append(ctx, 2, []byte(`not json`)))
	require.NoError(t, svc.Append(ctx, 3, []byte(`{"messages":[{"author":"x","content":"Item adicionado: trigo x7"}]}`)))

	require.Error(t, svc.Run(ctx))

	// entry 1 applied, entry 2 failed, entry 3 never attempted
	require.Equal(t, int64(1), activityCount(t, db))
	require.Equal(t, int64(1), cursorValue(t, db))
}

func TestRunIsIdempotent(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	payload := `{"messages":[{"author":"x","content":"Item adicionado: trigo x5"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.NoError(t, svc.Run(ctx))
	require.NoError(t, svc.Run(ctx))

	require.Equal(t, int64(1), activityCount(t, db))
	require.Equal(t, int64(1), cursorValue(t, db))
}

func TestAppendRejectsIDBehindCursor(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, 2, []byte(`{"messages":[{"author":"x","content":"Item adicionado: trigo x5"}]}`)))
	require.NoError(t, svc.Run(ctx))

	// the cursor is already past this id; it would never be replayed
	require.Error(t, svc.Append(ctx, 1, []byte(`{"messages":[]}`)))
}

func TestRunRollsBackPartiallyAppliedEntry(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	// reject corn inserts so the entry fails after its first sub-message
	require.NoError(t, db.Exec(`CREATE TRIGGER reject_corn BEFORE INSERT ON activities WHEN NEW.item = 'Corn' BEGIN SELECT RAISE(ABORT, 'rejected'); END`).Error)

	payload := `{"id":1,"messages":[{"author":"Captain Hook","content":"[3:42 PM] CAPITÃO CALDEIRA\nItem adicionado: trigo x5\n[3:43 PM] CAPITÃO CALDEIRA\nItem adicionado: milho x5"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.Error(t, svc.Run(ctx))

	// the first sub-message's activity and profile fold roll back with the
	// entry, so the retry cannot double-apply them
	require.Equal(t, int64(0), activityCount(t, db))
	require.Equal(t, int64(0), cursorValue(t, db))

	var profiles int64
	require.NoError(t, db.Model(&worker.Profile{}).Count(&profiles).Error)
	require.Equal(t, int64(0), profiles)

	require.NoError(t, db.Exec(`DROP TRIGGER reject_corn`).Error)
	require.NoError(t, svc.Run(ctx))

	require.Equal(t, int64(2), activityCount(t, db))
	require.Equal(t, int64(1), cursorValue(t, db))
}

func TestRunBlocksDepositBurst(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	// 12 recurring $160 deposits 15 seconds apart
	for i := 0; i < 12; i++ {
		payload := fmt.Sprintf(
			`{"messages":[{"author":"x","content":"Data: 25/12/2023 - 14:%02d:%02d\nAuthor: John Doe\nValor depositado: $160,00"}]}`,
			i/4, (i%4)*15,
		)
		require.NoError(t, svc.Append(ctx, int64(i+1), []byte(payload)))
	}
	require.NoError(t, svc.Run(ctx))

	require.Equal(t, int64(12), activityCount(t, db))
	require.Equal(t, int64(12), cursorValue(t, db))

	var blocked int64
	require.NoError(t, db.Model(&abuse.Action{}).
		Where("worker_id = ? AND status = ?", "John Doe", abuse.StatusBlocked).
		Count(&blocked).Error)
	require.NotZero(t, blocked)
}

func TestRunUsesEmbeddedTimestamp(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	payload := `{"messages":[{"author":"x","content":"Data: 25/12/2023 - 14:30:00\nItem adicionado: trigo x5"}]}`
	require.NoError(t, svc.Append(ctx, 1, []byte(payload)))
	require.NoError(t, svc.Run(ctx))

	var act activity.Activity
	require.NoError(t, db.First(&act).Error)
	require.Equal(t, 2023, act.Timestamp.UTC().Year())
	require.Equal(t, 25, act.Timestamp.UTC().Day())
}

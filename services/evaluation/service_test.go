package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"farmledger/pkg/config"
	"farmledger/services/abuse"
	"farmledger/services/activity"
	"farmledger/services/testutil"
	"farmledger/services/worker"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t,
		&activity.Activity{},
		&worker.Profile{},
		&abuse.Action{},
		&Evaluation{},
		&ScorePoint{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	workers := worker.NewService(worker.ServiceParams{DB: db})
	detector := abuse.NewService(abuse.ServiceParams{DB: db, Node: node, Cfg: &config.Config{}, Workers: workers})

	return NewService(ServiceParams{DB: db, Node: node, Workers: workers, Abuse: detector})
}

func seedProfile(t *testing.T, svc *Service, workerID string) {
	t.Helper()

	now := time.Now()
	daily := map[string]worker.DayStats{
		now.Format("2006-01-02"): {Activities: 10, Items: 100, Earnings: 160},
	}
	require.NoError(t, svc.db.Create(&worker.Profile{
		ID:              workerID,
		TotalActivities: 10,
		FirstActivity:   now.Add(-10 * time.Hour),
		LastActivity:    now,
		DailyStats:      datatypes.NewJSONType(daily),
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error)
}

func TestEvaluateUnknownWorker(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Evaluate(context.Background(), "nobody")
	require.Error(t, err)
}

func TestEvaluatePersistsCurrentPointer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedProfile(t, svc, "John")

	first, err := svc.Evaluate(ctx, "John")
	require.NoError(t, err)
	require.True(t, first.Current)
	require.NotZero(t, first.StarRating)

	second, err := svc.Evaluate(ctx, "John")
	require.NoError(t, err)
	require.True(t, second.Current)
	require.NotEqual(t, first.ID, second.ID)

	current, err := svc.Current(ctx, "John")
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, second.ID, current.ID)

	history, err := svc.History(ctx, "John")
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestEvaluateMirrorsScorePoint(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedProfile(t, svc, "John")

	eval, err := svc.Evaluate(ctx, "John")
	require.NoError(t, err)

	points, err := svc.points.Find(ctx, &ScorePoint{WorkerID: "John"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, eval.Scores.Data().Overall, points[0].Overall)
}

func TestCurrentWithoutEvaluation(t *testing.T) {
	svc := newTestService(t)

	current, err := svc.Current(context.Background(), "John")
	require.NoError(t, err)
	require.Nil(t, current)
}

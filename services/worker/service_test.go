package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"farmledger/services/activity"
	"farmledger/services/parser"
	"farmledger/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Profile{}, &activity.Activity{})
	return NewService(ServiceParams{DB: db})
}

func TestApplyCreatesProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		FixoID:    "12345",
		Type:      parser.TypeItemAdd,
		Item:      "Wheat",
		Quantity:  50,
		Timestamp: now,
	}
	require.NoError(t, svc.Apply(ctx, svc.db, act))

	profile, err := svc.Get(ctx, "John")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "12345", profile.FixoID)
	require.Equal(t, int64(1), profile.TotalActivities)
	require.WithinDuration(t, now, profile.FirstActivity, time.Second)
	require.WithinDuration(t, now, profile.LastActivity, time.Second)
	require.Equal(t, int64(1), profile.ActivityTypes.Data()[parser.TypeItemAdd])
	require.Equal(t, int64(50), profile.ItemsProcessed.Data()["Wheat"])

	day := profile.DailyStats.Data()["2024-03-01"]
	require.Equal(t, int64(1), day.Activities)
	require.Equal(t, int64(50), day.Items)
	require.Equal(t, 0.0, day.Earnings)
}

func TestApplyAccumulatesEarnings(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Apply(ctx, svc.db, &activity.Activity{
		ID: "a1", Author: "John", Type: parser.TypeDeposit, Amount: 160, Timestamp: now,
	}))
	require.NoError(t, svc.Apply(ctx, svc.db, &activity.Activity{
		ID: "a2", Author: "John", Type: parser.TypeAnimalSale, Quantity: 3, Amount: 250, Timestamp: now.Add(time.Hour),
	}))
	require.NoError(t, svc.Apply(ctx, svc.db, &activity.Activity{
		ID: "a3", Author: "John", Type: parser.TypeWithdrawal, Amount: 75, Timestamp: now.Add(2 * time.Hour),
	}))

	profile, err := svc.Get(ctx, "John")
	require.NoError(t, err)
	require.Equal(t, int64(3), profile.TotalActivities)

	// withdrawals never count toward earnings
	day := profile.DailyStats.Data()["2024-03-01"]
	require.Equal(t, int64(3), day.Activities)
	require.Equal(t, 410.0, day.Earnings)
}

func TestApplyExpandsActivitySpan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Apply(ctx, svc.db, &activity.Activity{
		ID: "a1", Author: "John", Type: parser.TypeItemAdd, Item: "Wheat", Quantity: 1, Timestamp: now,
	}))
	require.NoError(t, svc.Apply(ctx, svc.db, &activity.Activity{
		ID: "a2", Author: "John", Type: parser.TypeItemAdd, Item: "Wheat", Quantity: 1, Timestamp: now.AddDate(0, 0, -3),
	}))

	profile, err := svc.Get(ctx, "John")
	require.NoError(t, err)
	require.WithinDuration(t, now.AddDate(0, 0, -3), profile.FirstActivity, time.Second)
	require.WithinDuration(t, now, profile.LastActivity, time.Second)
	require.Len(t, profile.DailyStats.Data(), 2)
}

func TestGetUnknownWorker(t *testing.T) {
	svc := newTestService(t)

	profile, err := svc.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, profile)
}

func TestWorkersAndHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for i, author := range []string{"John", "Maria"} {
		act := &activity.Activity{
			ID:        string(rune('a' + i)),
			Author:    author,
			Type:      parser.TypeItemAdd,
			Item:      "Wheat",
			Quantity:  1,
			Timestamp: now,
		}
		require.NoError(t, svc.db.Create(act).Error)
		require.NoError(t, svc.Apply(ctx, svc.db, act))
	}

	ids, err := svc.Workers(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"John", "Maria"}, ids)

	history, err := svc.History(ctx, "John", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)

	history, err = svc.History(ctx, "John", now.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, history)
}

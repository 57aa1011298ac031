package abuse

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"farmledger/services/activity"
	"farmledger/services/parser"
	"farmledger/services/worker"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestDetectCleanActivity(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		Type:      parser.TypeItemAdd,
		Item:      "Wheat",
		Quantity:  50,
		Timestamp: now,
	}

	detection := d.Detect(act, nil, nil, now)
	require.False(t, detection.IsSuspicious)
	require.Equal(t, 1.0, detection.ConfidenceScore)
	require.Empty(t, detection.AbuseTypes)
}

func TestDetectSeveritiesCompound(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	// future timestamp (0.8) and a round 500 quantity (0.3) together
	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		Type:      parser.TypeItemAdd,
		Item:      "Wheat",
		Quantity:  500,
		Timestamp: now.Add(2 * time.Minute),
	}

	detection := d.Detect(act, nil, nil, now)
	require.True(t, detection.IsSuspicious)
	require.InDelta(t, (1-0.8)*(1-0.3), detection.ConfidenceScore, 1e-9)
	require.ElementsMatch(t, []string{checkImpossibleTiming, checkQuantityAnomaly}, detection.AbuseTypes)
}

func TestDetectRecurringDepositBurst(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	// 12 deposits of the recurring $160 spaced 15 seconds apart
	history := make([]*activity.Activity, 0, 11)
	for i := 0; i < 11; i++ {
		history = append(history, &activity.Activity{
			ID:        fmt.Sprintf("d%d", i),
			Author:    "John",
			Type:      parser.TypeDeposit,
			Amount:    160,
			Timestamp: now.Add(time.Duration(i-11) * 15 * time.Second),
		})
	}
	act := &activity.Activity{
		ID:        "d11",
		Author:    "John",
		Type:      parser.TypeDeposit,
		Amount:    160,
		Timestamp: now,
	}

	detection := d.Detect(act, history, nil, now)
	require.True(t, detection.IsSuspicious)

	// deposit-rate cap (0.4), duplicate in window (0.4), recurring gap (0.5)
	require.InDelta(t, 0.6*0.6*0.5, detection.ConfidenceScore, 1e-9)
	require.ElementsMatch(t,
		[]string{checkRateLimit, checkDuplicate, checkImpossibleTiming},
		detection.AbuseTypes,
	)
	require.Less(t, detection.ConfidenceScore, 0.3)
	require.Contains(t, detection.Recommendations, "block further submissions until reviewed")
}

func TestDetectNegativeQuantity(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		Type:      parser.TypeItemRemove,
		Item:      "Corn",
		Quantity:  -5,
		Timestamp: now,
	}

	detection := d.Detect(act, nil, nil, now)
	require.True(t, detection.IsSuspicious)
	require.Equal(t, 0.0, detection.ConfidenceScore)
}

func TestDetectHighValueAmount(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		Type:      parser.TypeDeposit,
		Amount:    15000,
		Timestamp: now,
	}

	detection := d.Detect(act, nil, nil, now)
	require.True(t, detection.IsSuspicious)
	require.InDelta(t, 0.5, detection.ConfidenceScore, 1e-9)
	require.Equal(t, []string{checkPriceAnomaly}, detection.AbuseTypes)
}

func TestDetectNonIntegerAmount(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		Type:      parser.TypeDeposit,
		Amount:    42.37,
		Timestamp: now,
	}

	detection := d.Detect(act, nil, nil, now)
	require.True(t, detection.IsSuspicious)
	require.Equal(t, []string{checkPriceAnomaly}, detection.AbuseTypes)

	// the known fractional payout is exempt
	act.Amount = 112.5
	detection = d.Detect(act, nil, nil, now)
	require.False(t, detection.IsSuspicious)
}

func TestDetectPatternAnomaly(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	daily := map[string]worker.DayStats{
		now.AddDate(0, 0, -8).Format("2006-01-02"): {Activities: 9},
		now.AddDate(0, 0, -7).Format("2006-01-02"): {Activities: 10},
		now.AddDate(0, 0, -6).Format("2006-01-02"): {Activities: 11},
		now.AddDate(0, 0, -5).Format("2006-01-02"): {Activities: 10},
		now.AddDate(0, 0, -4).Format("2006-01-02"): {Activities: 9},
		now.AddDate(0, 0, -3).Format("2006-01-02"): {Activities: 10},
		now.AddDate(0, 0, -2).Format("2006-01-02"): {Activities: 11},
		now.AddDate(0, 0, -1).Format("2006-01-02"): {Activities: 10},
		now.Format("2006-01-02"):                   {Activities: 99},
	}

	act := &activity.Activity{
		ID:        "a1",
		Author:    "John",
		Type:      parser.TypeItemAdd,
		Item:      "Wheat",
		Quantity:  1,
		Timestamp: now,
	}

	detection := d.Detect(act, nil, daily, now)
	require.True(t, detection.IsSuspicious)
	require.Equal(t, []string{checkPatternAnomaly}, detection.AbuseTypes)
}

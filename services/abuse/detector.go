package abuse

import (
	"fmt"
	"math"
	"time"

	"farmledger/services/activity"
	"farmledger/services/parser"
	"farmledger/services/worker"
)

const (
	checkRateLimit        = "rate_limit"
	checkDuplicate        = "duplicate"
	checkImpossibleTiming = "impossible_timing"
	checkQuantityAnomaly  = "quantity_anomaly"
	checkPriceAnomaly     = "price_manipulation"
	checkPatternAnomaly   = "pattern_anomaly"
)

// Thresholds configure the independent checks. Zero values are replaced by
// the defaults below so the detector stays a pure function of its inputs.
type Thresholds struct {
	MaxPerMinute       int
	MaxPerHour         int
	MaxDepositsPerHour int
	DuplicateWindow    time.Duration
	MinDepositGap      time.Duration
	RecurringAmount    float64
	MaxQuantity        int64
	HighValueAmount    float64
	SpecialAmount      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxPerMinute:       10,
		MaxPerHour:         100,
		MaxDepositsPerHour: 10,
		DuplicateWindow:    time.Minute,
		MinDepositGap:      time.Minute,
		RecurringAmount:    160,
		MaxQuantity:        1000,
		HighValueAmount:    10000,
		SpecialAmount:      112.5,
	}
}

type Detector struct {
	thresholds Thresholds
}

func NewDetector(thresholds Thresholds) *Detector {
	defaults := DefaultThresholds()
	if thresholds.MaxPerMinute == 0 {
		thresholds.MaxPerMinute = defaults.MaxPerMinute
	}
	if thresholds.MaxPerHour == 0 {
		thresholds.MaxPerHour = defaults.MaxPerHour
	}
	if thresholds.MaxDepositsPerHour == 0 {
		thresholds.MaxDepositsPerHour = defaults.MaxDepositsPerHour
	}
	if thresholds.DuplicateWindow == 0 {
		thresholds.DuplicateWindow = defaults.DuplicateWindow
	}
	if thresholds.MinDepositGap == 0 {
		thresholds.MinDepositGap = defaults.MinDepositGap
	}
	if thresholds.RecurringAmount == 0 {
		thresholds.RecurringAmount = defaults.RecurringAmount
	}
	if thresholds.MaxQuantity == 0 {
		thresholds.MaxQuantity = defaults.MaxQuantity
	}
	if thresholds.HighValueAmount == 0 {
		thresholds.HighValueAmount = defaults.HighValueAmount
	}
	if thresholds.SpecialAmount == 0 {
		thresholds.SpecialAmount = defaults.SpecialAmount
	}
	return &Detector{thresholds: thresholds}
}

type checkResult struct {
	detected bool
	severity float64
	name     string
	detail   string
}

// Detect scores one activity against the worker's rolling history. history
// holds the worker's prior activities (oldest first, current one excluded);
// daily holds the profile's per-day stats for the pattern check.
//
// Detected severities compound: the score starts at 1.0 and is multiplied by
// (1 - severity) for every detected check, so several weak signals together
// can cross the blocking threshold that none would alone.
func (d *Detector) Detect(act *activity.Activity, history []*activity.Activity, daily map[string]worker.DayStats, now time.Time) Detection {
	checks := []checkResult{
		d.checkRate(act, history),
		d.checkDuplicate(act, history),
		d.checkTiming(act, history, now),
		d.checkQuantity(act),
		d.checkPrice(act),
		d.checkPattern(act, daily),
	}

	detection := Detection{ConfidenceScore: 1.0}
	for _, check := range checks {
		if !check.detected {
			continue
		}
		detection.IsSuspicious = true
		detection.ConfidenceScore *= 1 - check.severity
		detection.AbuseTypes = append(detection.AbuseTypes, check.name)
		detection.Details = append(detection.Details, check.detail)
	}

	detection.ConfidenceScore = clamp01(detection.ConfidenceScore)

	if detection.IsSuspicious {
		detection.Recommendations = append(detection.Recommendations, "review recent activity for worker "+act.Author)
		if detection.ConfidenceScore < 0.3 {
			detection.Recommendations = append(detection.Recommendations, "block further submissions until reviewed")
		}
	}

	return detection
}

func (d *Detector) checkRate(act *activity.Activity, history []*activity.Activity) checkResult {
	var lastMinute, lastHour, depositsLastHour int
	for _, prev := range history {
		age := act.Timestamp.Sub(prev.Timestamp)
		if age < 0 {
			continue
		}
		if age <= time.Hour {
			lastHour++
			if prev.Type == parser.TypeDeposit {
				depositsLastHour++
			}
		}
		if age <= time.Minute {
			lastMinute++
		}
	}

	// the current activity counts toward its own windows
	lastMinute++
	lastHour++
	if act.Type == parser.TypeDeposit {
		depositsLastHour++
	}

	switch {
	case lastMinute > d.thresholds.MaxPerMinute:
		return checkResult{
			detected: true,
			severity: 0.5,
			name:     checkRateLimit,
			detail:   fmt.Sprintf("%d activities in the last minute (max %d)", lastMinute, d.thresholds.MaxPerMinute),
		}
	case act.Type == parser.TypeDeposit && depositsLastHour > d.thresholds.MaxDepositsPerHour:
		return checkResult{
			detected: true,
			severity: 0.4,
			name:     checkRateLimit,
			detail:   fmt.Sprintf("%d deposits in the last hour (max %d)", depositsLastHour, d.thresholds.MaxDepositsPerHour),
		}
	case lastHour > d.thresholds.MaxPerHour:
		return checkResult{
			detected: true,
			severity: 0.4,
			name:     checkRateLimit,
			detail:   fmt.Sprintf("%d activities in the last hour (max %d)", lastHour, d.thresholds.MaxPerHour),
		}
	}

	return checkResult{}
}

func (d *Detector) checkDuplicate(act *activity.Activity, history []*activity.Activity) checkResult {
	for _, prev := range history {
		age := act.Timestamp.Sub(prev.Timestamp)
		if age < 0 || age > d.thresholds.DuplicateWindow {
			continue
		}
		if prev.Type == act.Type && prev.Item == act.Item && prev.Quantity == act.Quantity {
			return checkResult{
				detected: true,
				severity: 0.4,
				name:     checkDuplicate,
				detail:   fmt.Sprintf("identical %s within %s", act.Type, d.thresholds.DuplicateWindow),
			}
		}
	}
	return checkResult{}
}

func (d *Detector) checkTiming(act *activity.Activity, history []*activity.Activity, now time.Time) checkResult {
	if act.Timestamp.After(now.Add(time.Minute)) {
		return checkResult{
			detected: true,
			severity: 0.8,
			name:     checkImpossibleTiming,
			detail:   "activity timestamped in the future",
		}
	}

	// minimum inter-arrival time for the fixed-value recurring deposit
	if act.Type == parser.TypeDeposit && act.Amount == d.thresholds.RecurringAmount {
		for i := len(history) - 1; i >= 0; i-- {
			prev := history[i]
			if prev.Type != parser.TypeDeposit || prev.Amount != d.thresholds.RecurringAmount {
				continue
			}
			if gap := act.Timestamp.Sub(prev.Timestamp); gap >= 0 && gap < d.thresholds.MinDepositGap {
				return checkResult{
					detected: true,
					severity: 0.5,
					name:     checkImpossibleTiming,
					detail:   fmt.Sprintf("recurring $%.0f deposit repeated after %s (min %s)", act.Amount, gap.Round(time.Second), d.thresholds.MinDepositGap),
				}
			}
			break
		}
	}

	return checkResult{}
}

func (d *Detector) checkQuantity(act *activity.Activity) checkResult {
	switch {
	case act.Quantity < 0:
		return checkResult{
			detected: true,
			severity: 1.0,
			name:     checkQuantityAnomaly,
			detail:   fmt.Sprintf("negative quantity %d", act.Quantity),
		}
	case act.Quantity > d.thresholds.MaxQuantity:
		return checkResult{
			detected: true,
			severity: 0.6,
			name:     checkQuantityAnomaly,
			detail:   fmt.Sprintf("quantity %d above single-transaction cap %d", act.Quantity, d.thresholds.MaxQuantity),
		}
	case act.Quantity >= 500 && act.Quantity%100 == 0:
		return checkResult{
			detected: true,
			severity: 0.3,
			name:     checkQuantityAnomaly,
			detail:   fmt.Sprintf("suspiciously round quantity %d", act.Quantity),
		}
	}
	return checkResult{}
}

func (d *Detector) checkPrice(act *activity.Activity) checkResult {
	if act.Amount == 0 {
		return checkResult{}
	}

	if act.Amount > d.thresholds.HighValueAmount {
		return checkResult{
			detected: true,
			severity: 0.5,
			name:     checkPriceAnomaly,
			detail:   fmt.Sprintf("amount $%.2f above high-value threshold $%.2f", act.Amount, d.thresholds.HighValueAmount),
		}
	}

	if act.Amount != math.Trunc(act.Amount) && act.Amount != d.thresholds.SpecialAmount {
		return checkResult{
			detected: true,
			severity: 0.4,
			name:     checkPriceAnomaly,
			detail:   fmt.Sprintf("non-integer amount $%.2f", act.Amount),
		}
	}

	return checkResult{}
}

func (d *Detector) checkPattern(act *activity.Activity, daily map[string]worker.DayStats) checkResult {
	if len(daily) < 7 {
		return checkResult{}
	}

	today := act.Timestamp.Format("2006-01-02")
	var counts []float64
	for key, day := range daily {
		if key == today {
			continue
		}
		counts = append(counts, float64(day.Activities))
	}
	if len(counts) < 7 {
		return checkResult{}
	}

	mean, stddev := meanStddev(counts)
	if stddev == 0 {
		return checkResult{}
	}

	todayCount := float64(daily[today].Activities) + 1
	z := (todayCount - mean) / stddev
	if math.Abs(z) > 3 {
		return checkResult{
			detected: true,
			severity: 0.5,
			name:     checkPatternAnomaly,
			detail:   fmt.Sprintf("daily activity count z-score %.1f", z),
		}
	}

	return checkResult{}
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

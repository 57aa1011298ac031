package evaluation

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"farmledger/services/abuse"
	"farmledger/services/worker"
)

// Bands configure the piecewise-linear efficiency scale and the honesty
// penalties. Zero values fall back to the defaults.
type Bands struct {
	PoorItemsPerHour      float64
	AverageItemsPerHour   float64
	GoodItemsPerHour      float64
	ExcellentItemsPerHour float64
	MaxAbuseRatio         float64
	IncidentDecay         float64
	RecoveryBonus         float64
}

func DefaultBands() Bands {
	return Bands{
		PoorItemsPerHour:      5,
		AverageItemsPerHour:   15,
		GoodItemsPerHour:      30,
		ExcellentItemsPerHour: 50,
		MaxAbuseRatio:         0.05,
		IncidentDecay:         0.02,
		RecoveryBonus:         0.05,
	}
}

type Evaluator struct {
	bands Bands
}

func NewEvaluator(bands Bands) *Evaluator {
	defaults := DefaultBands()
	if bands.PoorItemsPerHour == 0 {
		bands.PoorItemsPerHour = defaults.PoorItemsPerHour
	}
	if bands.AverageItemsPerHour == 0 {
		bands.AverageItemsPerHour = defaults.AverageItemsPerHour
	}
	if bands.GoodItemsPerHour == 0 {
		bands.GoodItemsPerHour = defaults.GoodItemsPerHour
	}
	if bands.ExcellentItemsPerHour == 0 {
		bands.ExcellentItemsPerHour = defaults.ExcellentItemsPerHour
	}
	if bands.MaxAbuseRatio == 0 {
		bands.MaxAbuseRatio = defaults.MaxAbuseRatio
	}
	if bands.IncidentDecay == 0 {
		bands.IncidentDecay = defaults.IncidentDecay
	}
	if bands.RecoveryBonus == 0 {
		bands.RecoveryBonus = defaults.RecoveryBonus
	}
	return &Evaluator{bands: bands}
}

// Result is a computed evaluation before persistence.
type Result struct {
	Scores          Scores
	StarRating      int
	Trend           string
	Recommendations []Recommendation
	Statistics      Statistics
	Badges          []string
	Err             string
}

// Evaluate aggregates a worker's profile, abuse history and prior score
// series into one rating. It never propagates internal errors: a panic
// yields a zero-star result with the error recorded.
func (e *Evaluator) Evaluate(profile *worker.Profile, incidents []*abuse.Action, series []ScorePoint, now time.Time) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("evaluation panicked", zap.Any("panic", r), zap.String("worker_id", profile.ID))
			result = Result{Err: fmt.Sprint(r)}
		}
	}()

	daily := profile.DailyStats.Data()

	scores := Scores{
		Consistency: e.consistency(profile, daily),
		Reliability: e.reliability(profile),
		Efficiency:  e.efficiency(profile, daily),
		Honesty:     e.honesty(profile, incidents, now),
	}
	scores.Overall = (scores.Consistency + scores.Reliability + scores.Efficiency + scores.Honesty) / 4

	stats := Statistics{
		TotalActivities: profile.TotalActivities,
		ActiveDays:      len(daily),
		ItemsPerHour:    itemsPerHour(profile, daily),
		AbuseIncidents:  len(incidents),
	}
	for _, day := range daily {
		stats.TotalEarnings += day.Earnings
	}

	trend := e.trend(series)

	return Result{
		Scores:          scores,
		StarRating:      StarRating(scores.Overall),
		Trend:           trend,
		Recommendations: e.recommendations(scores, trend),
		Statistics:      stats,
		Badges:          e.badges(scores, profile),
	}
}

// StarRating discretizes the overall score through the fixed ladder.
func StarRating(overall float64) int {
	switch {
	case overall >= 0.90:
		return 5
	case overall >= 0.75:
		return 4
	case overall >= 0.60:
		return 3
	case overall >= 0.40:
		return 2
	default:
		return 1
	}
}

// consistency blends schedule coverage with the evenness of daily output.
// Workers with fewer than 7 active days get the neutral 0.5.
func (e *Evaluator) consistency(profile *worker.Profile, daily map[string]worker.DayStats) float64 {
	activeDays := len(daily)
	if activeDays < 7 {
		return 0.5
	}

	span := profile.LastActivity.Sub(profile.FirstActivity).Hours()/24 + 1
	if span < 1 {
		span = 1
	}
	coverage := float64(activeDays) / span

	counts := make([]float64, 0, activeDays)
	for _, day := range daily {
		counts = append(counts, float64(day.Activities))
	}
	mean, stddev := meanStddev(counts)

	evenness := 1.0
	if mean > 0 {
		evenness = 1 - stddev/mean
	}

	return clamp01(0.6*coverage + 0.4*evenness)
}

// reliability has no task-tracking source yet, so it uses the capped
// activity-volume proxy.
func (e *Evaluator) reliability(profile *worker.Profile) float64 {
	return math.Min(1, float64(profile.TotalActivities)/100)
}

// efficiency maps items-per-hour through four linearly interpolated bands.
func (e *Evaluator) efficiency(profile *worker.Profile, daily map[string]worker.DayStats) float64 {
	rate := itemsPerHour(profile, daily)

	b := e.bands
	switch {
	case rate >= b.ExcellentItemsPerHour:
		return 1.0
	case rate >= b.GoodItemsPerHour:
		return lerp(rate, b.GoodItemsPerHour, b.ExcellentItemsPerHour, 0.75, 1.0)
	case rate >= b.AverageItemsPerHour:
		return lerp(rate, b.AverageItemsPerHour, b.GoodItemsPerHour, 0.5, 0.75)
	case rate >= b.PoorItemsPerHour:
		return lerp(rate, b.PoorItemsPerHour, b.AverageItemsPerHour, 0.25, 0.5)
	default:
		return lerp(rate, 0, b.PoorItemsPerHour, 0, 0.25)
	}
}

// honesty starts at 1.0 and decays with abuse: an over-ratio penalty, a flat
// per-incident decay, and a small recovery bonus after 7 clean days.
func (e *Evaluator) honesty(profile *worker.Profile, incidents []*abuse.Action, now time.Time) float64 {
	score := 1.0

	if profile.TotalActivities > 0 && len(incidents) > 0 {
		ratio := float64(len(incidents)) / float64(profile.TotalActivities)
		if ratio > e.bands.MaxAbuseRatio {
			score -= 10 * (ratio - e.bands.MaxAbuseRatio)
		}
	}

	score -= e.bands.IncidentDecay * float64(len(incidents))

	if len(incidents) > 0 {
		recent := false
		cutoff := now.AddDate(0, 0, -7)
		for _, incident := range incidents {
			if incident.CreatedAt.After(cutoff) {
				recent = true
				break
			}
		}
		if !recent {
			score += e.bands.RecoveryBonus
		}
	}

	return clamp01(score)
}

// trend compares the mean of the latest 3 overall scores against the mean of
// everything earlier; relative change beyond ±10% moves the needle.
func (e *Evaluator) trend(series []ScorePoint) string {
	if len(series) < 4 {
		return TrendStable
	}

	recent := series[len(series)-3:]
	earlier := series[:len(series)-3]

	var recentSum, earlierSum float64
	for _, p := range recent {
		recentSum += p.Overall
	}
	for _, p := range earlier {
		earlierSum += p.Overall
	}

	recentMean := recentSum / float64(len(recent))
	earlierMean := earlierSum / float64(len(earlier))
	if earlierMean == 0 {
		return TrendStable
	}

	change := (recentMean - earlierMean) / earlierMean
	switch {
	case change > 0.10:
		return TrendImproving
	case change < -0.10:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func (e *Evaluator) recommendations(scores Scores, trend string) []Recommendation {
	var recs []Recommendation

	if scores.Honesty < 0.8 {
		recs = append(recs, Recommendation{
			Priority:  "critical",
			Dimension: "honesty",
			Message:   "repeated abuse detections; audit this worker's recent transactions",
		})
	}
	if trend == TrendDeclining {
		recs = append(recs, Recommendation{
			Priority:  "high",
			Dimension: "overall",
			Message:   "performance is declining across recent evaluations",
		})
	}
	if scores.Consistency < 0.6 {
		recs = append(recs, Recommendation{
			Priority:  "medium",
			Dimension: "consistency",
			Message:   "work schedule is irregular; encourage steadier daily output",
		})
	}
	if scores.Reliability < 0.6 {
		recs = append(recs, Recommendation{
			Priority:  "medium",
			Dimension: "reliability",
			Message:   "low activity volume; not enough history to trust throughput",
		})
	}
	if scores.Efficiency < 0.5 {
		recs = append(recs, Recommendation{
			Priority:  "medium",
			Dimension: "efficiency",
			Message:   "items per hour below the average band",
		})
	}

	return recs
}

func (e *Evaluator) badges(scores Scores, profile *worker.Profile) []string {
	var badges []string

	if scores.Overall >= 0.9 {
		badges = append(badges, "elite_performer")
	}
	if scores.Consistency >= 0.85 {
		badges = append(badges, "consistency_master")
	}
	if scores.Efficiency >= 0.9 {
		badges = append(badges, "speed_demon")
	}
	if scores.Honesty == 1.0 {
		badges = append(badges, "fully_trusted")
	}

	switch {
	case profile.TotalActivities >= 1000:
		badges = append(badges, "legend_1000")
	case profile.TotalActivities >= 500:
		badges = append(badges, "workhorse_500")
	case profile.TotalActivities >= 100:
		badges = append(badges, "century_100")
	}

	return badges
}

func itemsPerHour(profile *worker.Profile, daily map[string]worker.DayStats) float64 {
	var items int64
	for _, day := range daily {
		items += day.Items
	}

	hours := profile.LastActivity.Sub(profile.FirstActivity).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(items) / hours
}

func lerp(v, lo, hi, outLo, outHi float64) float64 {
	if hi == lo {
		return outLo
	}
	return outLo + (v-lo)/(hi-lo)*(outHi-outLo)
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

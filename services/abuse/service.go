package abuse

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"farmledger/pkg/config"
	"farmledger/pkg/repository"
	"farmledger/services/activity"
	"farmledger/services/worker"
)

var (
	blockedTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "abuse_actions_blocked_total"})
	flaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "abuse_actions_flagged_total"})
)

func init() {
	prometheus.MustRegister(blockedTotal, flaggedTotal)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	detector *Detector

	actions repository.Repository[Action]
	workers *worker.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Cfg     *config.Config
	Workers *worker.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		detector: NewDetector(Thresholds{
			MaxPerMinute:       p.Cfg.Abuse.MaxPerMinute,
			MaxPerHour:         p.Cfg.Abuse.MaxPerHour,
			MaxDepositsPerHour: p.Cfg.Abuse.MaxDepositsPerHour,
			DuplicateWindow:    p.Cfg.Abuse.DuplicateWindow,
			MinDepositGap:      p.Cfg.Abuse.MinDepositGap,
			RecurringAmount:    p.Cfg.Abuse.RecurringAmount,
			MaxQuantity:        p.Cfg.Abuse.MaxQuantity,
			HighValueAmount:    p.Cfg.Abuse.HighValueAmount,
			SpecialAmount:      p.Cfg.Abuse.SpecialAmount,
		}),
		actions: repository.ProvideStore[Action](p.DB),
		workers: p.Workers,
	}
}

var Module = fx.Module("abuse.service",
	fx.Provide(NewService),
)

// Inspect scores one freshly applied activity against the worker's rolling
// history and durably logs an Action when suspicious. Internal failures are
// non-fatal: the pipeline gets a neutral detection instead of an error.
func (s *Service) Inspect(ctx context.Context, tx *gorm.DB, act *activity.Activity) (detection Detection) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("abuse inspection panicked", zap.Any("panic", r), zap.String("activity_id", act.ID))
			detection = Detection{ConfidenceScore: 0.5}
		}
	}()

	since := act.Timestamp.Add(-time.Hour)
	history, err := s.workers.History(ctx, act.Author, since)
	if err != nil {
		zap.L().Warn("failed to load worker history, skipping abuse checks", zap.Error(err))
		return Detection{ConfidenceScore: 0.5}
	}

	// the current activity may already be persisted; score it against the rest
	prior := make([]*activity.Activity, 0, len(history))
	for _, prev := range history {
		if prev.ID != act.ID {
			prior = append(prior, prev)
		}
	}

	var daily map[string]worker.DayStats
	if profile, err := s.workers.Get(ctx, act.Author); err == nil && profile != nil {
		daily = profile.DailyStats.Data()
	}

	detection = s.detector.Detect(act, prior, daily, time.Now())
	if !detection.IsSuspicious {
		return detection
	}

	status := StatusFlagged
	if detection.ConfidenceScore < 0.3 {
		status = StatusBlocked
	}

	action := &Action{
		ID:              s.node.Generate().String(),
		WorkerID:        act.Author,
		ActivityID:      act.ID,
		AbuseTypes:      datatypes.NewJSONType(detection.AbuseTypes),
		ConfidenceScore: detection.ConfidenceScore,
		Details:         datatypes.NewJSONType(detection.Details),
		Status:          status,
		CreatedAt:       time.Now(),
	}

	if err := s.actions.WithTrx(tx).Create(ctx, action); err != nil {
		zap.L().Error("failed to log abuse action", zap.Error(err), zap.String("worker_id", act.Author))
		return detection
	}

	if status == StatusBlocked {
		blockedTotal.Inc()
	} else {
		flaggedTotal.Inc()
	}

	zap.L().Warn("suspicious activity detected",
		zap.String("worker_id", act.Author),
		zap.String("activity_id", act.ID),
		zap.Strings("abuse_types", detection.AbuseTypes),
		zap.Float64("confidence_score", detection.ConfidenceScore),
		zap.String("status", status),
	)

	return detection
}

// HistoryFor returns all logged actions for one worker, oldest first.
func (s *Service) HistoryFor(ctx context.Context, workerID string) ([]*Action, error) {
	return s.actions.Find(ctx, &Action{WorkerID: workerID})
}

// ReportTotals counts blocked and flagged actions for reporting.
func (s *Service) ReportTotals(ctx context.Context) (*Totals, error) {
	blocked, err := s.actions.Count(ctx, &Action{Status: StatusBlocked})
	if err != nil {
		return nil, err
	}
	flagged, err := s.actions.Count(ctx, &Action{Status: StatusFlagged})
	if err != nil {
		return nil, err
	}
	return &Totals{Blocked: blocked, Flagged: flagged}, nil
}

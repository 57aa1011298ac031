package evaluation

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"farmledger/pkg/db/option"
	"farmledger/pkg/errutil"
	"farmledger/pkg/repository"
	"farmledger/services/abuse"
	"farmledger/services/worker"
)

const maxHistory = 30

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	evaluator *Evaluator
	group     singleflight.Group

	evaluations repository.Repository[Evaluation]
	points      repository.Repository[ScorePoint]
	workers     *worker.Service
	abuse       *abuse.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Workers *worker.Service
	Abuse   *abuse.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		evaluator:   NewEvaluator(Bands{}),
		evaluations: repository.ProvideStore[Evaluation](p.DB),
		points:      repository.ProvideStore[ScorePoint](p.DB),
		workers:     p.Workers,
		abuse:       p.Abuse,
	}
}

var Module = fx.Module("evaluation.service",
	fx.Provide(NewService),
)

// Evaluate computes and persists a fresh evaluation for the worker.
// Concurrent requests for the same worker share one computation.
func (s *Service) Evaluate(ctx context.Context, workerID string) (*Evaluation, error) {
	result, err, _ := s.group.Do(workerID, func() (any, error) {
		return s.evaluate(ctx, workerID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Evaluation), nil
}

func (s *Service) evaluate(ctx context.Context, workerID string) (*Evaluation, error) {
	profile, err := s.workers.Get(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errutil.NotFound("worker profile not found", nil)
	}

	incidents, err := s.abuse.HistoryFor(ctx, workerID)
	if err != nil {
		return nil, err
	}

	series, err := s.points.Find(ctx, &ScorePoint{WorkerID: workerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "date",
			OrderBy: "asc",
			Allow:   map[string]bool{"date": true},
		}),
	)
	if err != nil {
		return nil, err
	}

	points := make([]ScorePoint, 0, len(series))
	for _, p := range series {
		points = append(points, *p)
	}

	now := time.Now()
	result := s.evaluator.Evaluate(profile, incidents, points, now)

	evaluation := &Evaluation{
		ID:              s.node.Generate().String(),
		WorkerID:        workerID,
		EvaluationDate:  now,
		Scores:          datatypes.NewJSONType(result.Scores),
		StarRating:      result.StarRating,
		Trend:           result.Trend,
		Recommendations: datatypes.NewJSONType(result.Recommendations),
		Statistics:      datatypes.NewJSONType(result.Statistics),
		Badges:          datatypes.NewJSONType(result.Badges),
		Current:         true,
		Error:           result.Err,
		CreatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Evaluation{}).
			Where("worker_id = ? AND current", workerID).
			Update("current", false).Error; err != nil {
			return err
		}

		if err := s.evaluations.WithTrx(tx).Create(ctx, evaluation); err != nil {
			return err
		}

		// mirror {date, overall} for the next evaluation's trend window,
		// unless this run failed and carries no scores
		if result.Err == "" {
			if err := s.points.WithTrx(tx).Create(ctx, &ScorePoint{
				ID:       s.node.Generate().String(),
				WorkerID: workerID,
				Date:     now,
				Overall:  result.Scores.Overall,
			}); err != nil {
				return err
			}
		}

		return s.prune(ctx, tx, workerID)
	}); err != nil {
		return nil, err
	}

	zap.L().Info("worker evaluated",
		zap.String("worker_id", workerID),
		zap.Int("star_rating", evaluation.StarRating),
		zap.String("trend", evaluation.Trend),
	)

	return evaluation, nil
}

// prune keeps the evaluation history bounded to maxHistory rows per worker.
func (s *Service) prune(ctx context.Context, tx *gorm.DB, workerID string) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&Evaluation{}).
		Where("worker_id = ?", workerID).Count(&count).Error; err != nil {
		return err
	}
	if count <= maxHistory {
		return nil
	}

	var oldest []Evaluation
	if err := tx.WithContext(ctx).
		Where("worker_id = ? AND NOT current", workerID).
		Order("evaluation_date asc").
		Limit(int(count - maxHistory)).
		Find(&oldest).Error; err != nil {
		return err
	}

	for _, stale := range oldest {
		if err := tx.WithContext(ctx).Delete(&Evaluation{}, "id = ?", stale.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

// Current returns the worker's live evaluation, nil when never evaluated.
func (s *Service) Current(ctx context.Context, workerID string) (*Evaluation, error) {
	return s.evaluations.FindOne(ctx, &Evaluation{WorkerID: workerID, Current: true})
}

// History returns the bounded evaluation history, oldest first.
func (s *Service) History(ctx context.Context, workerID string) ([]*Evaluation, error) {
	return s.evaluations.Find(ctx, &Evaluation{WorkerID: workerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "evaluation_date",
			OrderBy: "asc",
			Allow:   map[string]bool{"evaluation_date": true},
		}),
	)
}

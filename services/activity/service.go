package activity

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"farmledger/pkg/db/option"
	"farmledger/pkg/repository"
)

type Service struct {
	db         *gorm.DB
	activities repository.Repository[Activity]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		activities: repository.ProvideStore[Activity](p.DB),
	}
}

var Module = fx.Module("activity.service",
	fx.Provide(NewService),
)

func (s *Service) Store() repository.Repository[Activity] {
	return s.activities
}

// Recent returns the latest n activities, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]*Activity, error) {
	return s.activities.Find(ctx, &Activity{},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "timestamp",
			OrderBy: "desc",
			Allow:   map[string]bool{"timestamp": true},
		}),
		option.WithLimit(n),
	)
}

// ByEntry returns the activities produced by a single webhook entry.
func (s *Service) ByEntry(ctx context.Context, entryID int64) ([]*Activity, error) {
	return s.activities.Find(ctx, &Activity{EntryID: entryID})
}

// Dashboard computes the aggregate snapshot carried by the dashboard
// change notification.
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{
		ByCategory:  make(map[string]int64),
		GeneratedAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Model(&Activity{}).Count(&stats.TotalActivities).Error; err != nil {
		return nil, err
	}

	rows, err := s.db.WithContext(ctx).Model(&Activity{}).
		Select("category, count(*) as total").
		Group("category").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var total int64
		if err := rows.Scan(&category, &total); err != nil {
			zap.L().Warn("failed to scan category row", zap.Error(err))
			continue
		}
		stats.ByCategory[category] = total
	}

	if err := s.db.WithContext(ctx).Model(&Activity{}).
		Where("type = ?", "deposit").
		Select("coalesce(sum(amount), 0)").Scan(&stats.TotalDeposited).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&Activity{}).
		Where("type = ?", "withdrawal").
		Select("coalesce(sum(amount), 0)").Scan(&stats.TotalWithdrawn).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&Activity{}).
		Select("count(distinct author)").Scan(&stats.ActiveWorkers).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

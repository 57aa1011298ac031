package worker

import (
	"context"
	"time"

	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"farmledger/pkg/db/option"
	"farmledger/pkg/repository"
	"farmledger/services/activity"
	"farmledger/services/parser"
)

type Service struct {
	db         *gorm.DB
	profiles   repository.Repository[Profile]
	activities repository.Repository[activity.Activity]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		profiles:   repository.ProvideStore[Profile](p.DB),
		activities: repository.ProvideStore[activity.Activity](p.DB),
	}
}

var Module = fx.Module("worker.service",
	fx.Provide(NewService),
)

// Apply folds one classified activity into the author's profile inside the
// given transaction. Creates the profile on first sight.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, act *activity.Activity) error {
	profiles := s.profiles.WithTrx(tx)

	profile, err := profiles.FindOne(ctx, &Profile{ID: act.Author})
	if err != nil {
		return err
	}

	now := time.Now()
	created := false
	if profile == nil {
		created = true
		profile = &Profile{
			ID:            act.Author,
			FirstActivity: act.Timestamp,
			CreatedAt:     now,
		}
	}

	if act.FixoID != "" {
		profile.FixoID = act.FixoID
	}

	profile.TotalActivities++
	if act.Timestamp.Before(profile.FirstActivity) || profile.FirstActivity.IsZero() {
		profile.FirstActivity = act.Timestamp
	}
	if act.Timestamp.After(profile.LastActivity) {
		profile.LastActivity = act.Timestamp
	}
	profile.UpdatedAt = now

	types := profile.ActivityTypes.Data()
	if types == nil {
		types = make(map[string]int64)
	}
	types[act.Type]++
	profile.ActivityTypes = datatypes.NewJSONType(types)

	if act.Item != "" {
		items := profile.ItemsProcessed.Data()
		if items == nil {
			items = make(map[string]int64)
		}
		items[act.Item] += act.Quantity
		profile.ItemsProcessed = datatypes.NewJSONType(items)
	}

	daily := profile.DailyStats.Data()
	if daily == nil {
		daily = make(map[string]DayStats)
	}
	key := act.Timestamp.Format(dayKeyLayout)
	day := daily[key]
	day.Activities++
	day.Items += act.Quantity
	if act.Type == parser.TypeDeposit || act.Type == parser.TypeAnimalSale {
		day.Earnings += act.Amount
	}
	daily[key] = day
	profile.DailyStats = datatypes.NewJSONType(daily)

	if created {
		return profiles.Create(ctx, profile)
	}
	return tx.WithContext(ctx).Save(profile).Error
}

// Get returns the profile for a worker, nil when unknown.
func (s *Service) Get(ctx context.Context, workerID string) (*Profile, error) {
	return s.profiles.FindOne(ctx, &Profile{ID: workerID})
}

// Workers lists every known worker id.
func (s *Service) Workers(ctx context.Context) ([]string, error) {
	profiles, err := s.profiles.Find(ctx, &Profile{})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		ids = append(ids, profile.ID)
	}
	return ids, nil
}

// History returns the worker's activities since the given time, oldest first.
// This is the rolling window the abuse detector scores against.
func (s *Service) History(ctx context.Context, workerID string, since time.Time) ([]*activity.Activity, error) {
	return s.activities.Find(ctx, &activity.Activity{Author: workerID},
		option.ApplyOperator(option.Condition{
			Field:    "timestamp",
			Operator: option.GTE,
			Value:    since,
		}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "timestamp",
			OrderBy: "asc",
			Allow:   map[string]bool{"timestamp": true},
		}),
	)
}

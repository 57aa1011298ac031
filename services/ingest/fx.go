package ingest

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"farmledger/pkg/config"
	"farmledger/pkg/watch"
	"farmledger/services/abuse"
	"farmledger/services/activity"
	"farmledger/services/evaluation"
	"farmledger/services/worker"
)

var Module = fx.Module("ingest.service",
	fx.Provide(NewService),
	fx.Invoke(autoMigrate),
	fx.Invoke(registerPipeline),
)

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WebhookEntry{},
		&ProcessingCursor{},
		&activity.Activity{},
		&worker.Profile{},
		&abuse.Action{},
		&evaluation.Evaluation{},
		&evaluation.ScorePoint{},
	)
}

type pipelineParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Service   *Service
	Observer  watch.Observer
	Cfg       *config.Config
}

// registerPipeline runs one catch-up pass on startup, then keeps replaying
// whenever the source topic fires. The buffered source log, when configured,
// feeds that same topic through an fsnotify trigger.
func registerPipeline(p pipelineParams) {
	watch.RegisterFileTrigger(p.Lifecycle, p.Observer, p.Cfg.Ingest.SourceLogPath, TopicSource)

	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			events, err := p.Observer.Subscribe(ctx, TopicSource)
			if err != nil {
				cancel()
				return err
			}

			go func() {
				if err := p.Service.Run(ctx); err != nil {
					zap.L().Error("startup catch-up failed", zap.Error(err))
				}

				for {
					select {
					case <-ctx.Done():
						return
					case _, ok := <-events:
						if !ok {
							return
						}
						if err := p.Service.Run(ctx); err != nil {
							zap.L().Error("catch-up pass failed", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"farmledger/internal/httpapi"
	"farmledger/internal/server"
	asynqfx "farmledger/pkg/asynq"
	"farmledger/pkg/config"
	"farmledger/pkg/db"
	"farmledger/pkg/health"
	"farmledger/pkg/logger"
	"farmledger/pkg/redis"
	"farmledger/pkg/watch"
	"farmledger/services/abuse"
	"farmledger/services/activity"
	"farmledger/services/evaluation"
	"farmledger/services/ingest"
	"farmledger/services/parser"
	"farmledger/services/worker"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		watch.Module,
		health.Module,
		asynqfx.Client,
		asynqfx.Server,
		asynqfx.SchedulerModule,
		fx.Provide(provideSnowflakeNode),
		parser.Module,
		activity.Module,
		worker.Module,
		abuse.Module,
		evaluation.Module,
		evaluation.TaskModule,
		ingest.Module,
		httpapi.Module,
		fx.Provide(server.ProvideHTTPServer),
		fx.Invoke(server.Run),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

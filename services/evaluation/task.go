package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"farmledger/pkg/config"
	"farmledger/services/worker"
)

const TaskEvaluateWorkers = "evaluation:run"

type EvaluatePayload struct {
	WorkerID string `json:"worker_id,omitempty"`
}

var TaskModule = fx.Module("task.evaluation",
	fx.Invoke(registerTaskHandler),
	fx.Invoke(registerSchedule),
)

type taskParams struct {
	fx.In
	Mux     *asynq.ServeMux
	Service *Service
	Workers *worker.Service
}

func registerTaskHandler(p taskParams) {
	p.Mux.HandleFunc(TaskEvaluateWorkers, func(ctx context.Context, t *asynq.Task) error {
		var payload EvaluatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}

		if payload.WorkerID != "" {
			_, err := p.Service.Evaluate(ctx, payload.WorkerID)
			return err
		}

		ids, err := p.Workers.Workers(ctx)
		if err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := p.Service.Evaluate(ctx, id); err != nil {
				zap.L().Error("failed to evaluate worker", zap.String("worker_id", id), zap.Error(err))
			}
		}
		return nil
	})
}

type scheduleParams struct {
	fx.In
	Scheduler *asynq.Scheduler `optional:"true"`
	Cfg       *config.Config
}

func registerSchedule(p scheduleParams) {
	if p.Scheduler == nil {
		return
	}

	spec := p.Cfg.Evaluation.Cron
	if spec == "" {
		spec = "@every 6h"
	}

	payload, _ := json.Marshal(EvaluatePayload{})
	if _, err := p.Scheduler.Register(spec, asynq.NewTask(TaskEvaluateWorkers, payload)); err != nil {
		zap.L().Error("failed to register evaluation schedule", zap.Error(err))
	}
}

// Enqueue requests a background evaluation for one worker.
func Enqueue(client *asynq.Client, workerID string) error {
	payload, err := json.Marshal(EvaluatePayload{WorkerID: workerID})
	if err != nil {
		return err
	}
	_, err = client.Enqueue(asynq.NewTask(TaskEvaluateWorkers, payload))
	return err
}

package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/featureflags"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/task"
	"smallbiznis-affiliate/pkg/taskname"
	"smallbiznis-affiliate/services/internal/errkind"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const distributeMaxRetry = 10

type DistributePayload struct {
	ConversionID string `json:"conversion_id"`
}

// NewDistributeTask builds the task for conversionID. The task id is derived
// from the conversion, so enqueueing twice yields asynq.ErrTaskIDConflict.
func NewDistributeTask(conversionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DistributePayload{ConversionID: conversionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.ConversionDistribute, payload,
		asynq.Queue(taskname.QueueCritical),
		asynq.TaskID("distribute:"+conversionID),
		asynq.MaxRetry(distributeMaxRetry),
	), nil
}

// Dispatcher decides whether a conversion is distributed inline or by the
// worker, and queues the deferred ones.
type Dispatcher struct {
	enqueuer task.Enqueuer
	flags    featureflags.FeatureFlag
	mode     string
}

type DispatcherParams struct {
	fx.In
	Config   *config.Config
	Enqueuer task.Enqueuer            `optional:"true"`
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		enqueuer: p.Enqueuer,
		flags:    p.Flags,
		mode:     p.Config.Distribution.Mode,
	}
}

// Deferred reports whether conversions of affiliateID go through the worker.
// Without a queue everything is distributed inline.
func (d *Dispatcher) Deferred(ctx context.Context, affiliateID string) bool {
	if d == nil || d.enqueuer == nil {
		return false
	}
	if d.mode == config.DistributionAsync {
		return true
	}
	return d.flags != nil && d.flags.IsEnabled(ctx, affiliateID, featureflags.AsyncDistribution)
}

func (d *Dispatcher) Enqueue(ctx context.Context, conversionID string) error {
	t, err := NewDistributeTask(conversionID)
	if err != nil {
		return err
	}

	info, err := d.enqueuer.Enqueue(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().With(logger.TraceFields(ctx)...).Info("distribution already queued", zap.String("conversion_id", conversionID))
		return nil
	}
	if err != nil {
		return err
	}

	zap.L().With(logger.TraceFields(ctx)...).Info("distribution queued",
		zap.String("conversion_id", conversionID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// TaskHandler runs queued distributions. Errors that a retry cannot fix
// (already processed, broken referral chain, unknown conversion) skip the
// retry queue.
type TaskHandler struct {
	conversions *Service
	engine      *Engine
}

func NewTaskHandler(conversions *Service, engine *Engine) *TaskHandler {
	return &TaskHandler{conversions: conversions, engine: engine}
}

func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p DistributePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	conv, err := h.conversions.Get(ctx, p.ConversionID)
	if err == nil {
		_, err = h.engine.Distribute(ctx, conv)
	}
	if err == nil {
		return nil
	}

	if errkind.Terminal(err) {
		zap.L().With(logger.TraceFields(ctx)...).Warn("distribution task dropped",
			zap.String("conversion_id", p.ConversionID), zap.Error(err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

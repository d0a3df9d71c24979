package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
)

// TaskData holds the data for one async assignment task.
type TaskData struct {
	Ctx  context.Context // Context derived for the task, NOT the original request context
	Lead model.Lead
}

// IWorker defines the interface for the assignment worker pool.
type IWorker interface {
	SubmitTask(taskData TaskData) error
	Stop()
}

// Worker runs assignment off the request path through a bounded pool.
type Worker struct {
	pool       *ants.PoolWithFunc
	engine     *Engine
	cfg        config.AssignmentWorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure Worker implements IWorker
var _ IWorker = (*Worker)(nil)

// NewWorker creates and initializes the assignment worker pool.
func NewWorker(cfg config.AssignmentWorkerPoolConfig, engine *Engine, baseLogger *zap.Logger) (*Worker, error) {
	worker := &Worker{
		engine:     engine,
		cfg:        cfg,
		baseLogger: baseLogger.Named("assignment_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(TaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in assignment worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Assignment worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitTask queues one lead for assignment.
func (w *Worker) SubmitTask(taskData TaskData) error {
	observer.SetAssignmentQueueLength(w.pool.Waiting())

	err := w.pool.Invoke(taskData)
	if err != nil {
		w.baseLogger.Warn("Failed to submit assignment task to pool",
			zap.String("lead_id", taskData.Lead.ID),
			zap.Error(err),
		)
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("assignment pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke assignment task: %w", err)
	}
	return nil
}

// Stop releases the pool, waiting for in-flight tasks.
func (w *Worker) Stop() {
	w.baseLogger.Info("Stopping assignment worker pool")
	w.pool.Release()
}

func (w *Worker) processTask(taskData TaskData) {
	lead := taskData.Lead
	log := w.baseLogger.With(
		zap.String("lead_id", lead.ID),
		zap.String("funnel_id", lead.FunnelID),
	)

	_, err := w.engine.Assign(taskData.Ctx, &lead)
	if err != nil {
		if apperrors.IsConflictError(err) {
			// Another attempt claimed it first; nothing to do.
			log.Debug("Assignment task lost claim race", zap.Error(err))
			return
		}
		log.Error("Assignment task failed", zap.Error(err))
		return
	}
	log.Debug("Assignment task completed", zap.String("status", string(lead.Status)))
}

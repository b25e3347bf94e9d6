package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// TaskFunc is the homogeneous task body dispatched once per TaskConfig.
type TaskFunc func(ctx context.Context, cfg *TaskConfig) (domain.MonitorData, error)

// Executor runs task configurations as independent parallel execution
// contexts. Implementations report their worker count (actionable for GPU
// round-robin) and release their resources on Close.
type Executor interface {
	Map(ctx context.Context, run TaskFunc, tasks []*TaskConfig) ([]domain.MonitorData, error)
	WorkerCount() int
	Close() error
}

// WorkerInitFunc runs in a worker's execution context before its task.
type WorkerInitFunc func() error

// LocalExecutor dispatches tasks onto a bounded in-process worker pool.
// Tasks share no mutable state; the pool cancels remaining work on the
// first error and reports that error.
type LocalExecutor struct {
	logger  *zap.Logger
	workers int
	initFn  WorkerInitFunc
}

// NewLocalExecutor builds an executor with the given worker count. initFn,
// when non-nil, runs in each worker's goroutine before its task body.
func NewLocalExecutor(logger *zap.Logger, workers int, initFn WorkerInitFunc) *LocalExecutor {
	return &LocalExecutor{logger: logger, workers: workers, initFn: initFn}
}

// WorkerCount returns the pool size.
func (e *LocalExecutor) WorkerCount() int {
	return e.workers
}

// Map runs every task and returns the successful results in unspecified
// order. Aggregation downstream is commutative, so ordering is not
// preserved across tasks.
func (e *LocalExecutor) Map(ctx context.Context, run TaskFunc, tasks []*TaskConfig) ([]domain.MonitorData, error) {
	var mu sync.Mutex
	results := make([]domain.MonitorData, 0, len(tasks))

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(e.workers)

	for i, task := range tasks {
		p.Go(func(ctx context.Context) error {
			if e.initFn != nil {
				if err := e.initFn(); err != nil {
					return fmt.Errorf("worker initialization: %w", err)
				}
			}
			e.logger.Debug("Starting pipeline task", zap.Int("task", i))
			data, err := run(ctx, task)
			if err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			mu.Lock()
			results = append(results, data)
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases the executor. The local pool holds nothing beyond its
// goroutines, which Wait has already joined.
func (e *LocalExecutor) Close() error {
	return nil
}

// RunDeps are the collaborators the run driver hands to every task.
type RunDeps struct {
	Logger   *zap.Logger
	Source   domain.TileSource
	Writer   domain.TileWriter
	Executor Executor
}

// Run derives one task per worker from the pipeline configuration,
// dispatches them on the executor, verifies that exactly one result came
// back per task, and merges the per-task monitor data into the run-level
// result. The executor is released on every exit path.
func Run(ctx context.Context, cfg *PipelineConfig, deps RunDeps) (domain.MonitorData, error) {
	logger := deps.Logger
	start := time.Now()

	logger.Info("Initializing pipeline tasks",
		zap.Int("workers", cfg.NWorkers),
		zap.Int64("memory_limit", cfg.MemoryLimit))
	tasks, err := cfg.TaskConfigs()
	if err != nil {
		return nil, err
	}

	defer func() {
		if cerr := deps.Executor.Close(); cerr != nil {
			logger.Error("Failed to release executor", zap.Error(cerr))
		}
	}()

	logger.Info("Starting pipeline", zap.Int("tasks", len(tasks)))
	taskFn := func(ctx context.Context, task *TaskConfig) (domain.MonitorData, error) {
		return RunTask(ctx, task, TaskDeps{Logger: logger, Source: deps.Source, Writer: deps.Writer})
	}
	results, err := deps.Executor.Map(ctx, taskFn, tasks)
	if err != nil {
		return nil, err
	}
	if len(results) != len(tasks) {
		return nil, fmt.Errorf("parallel execution returned %d results but %d were expected: %w",
			len(results), len(tasks), domain.ErrTaskCountMismatch)
	}

	logger.Info("Pipeline execution completed", zap.Duration("elapsed", time.Since(start).Round(time.Second)))
	return Concat(results...), nil
}

// Package scheduler runs named tasks on a fixed cadence with per-task
// error isolation: one failing task never stops the batch or the loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	fn   Task
}

// BatchResult summarizes one execution of all registered tasks.
type BatchResult struct {
	StartedAt time.Time
	Elapsed   time.Duration
	Errors    map[string]error
}

// Executor runs all registered tasks once per interval.
type Executor struct {
	interval time.Duration
	tasks    []namedTask

	mu         sync.Mutex
	errorCount int
}

// New creates an executor with the given interval.
func New(interval time.Duration) *Executor {
	return &Executor{interval: interval}
}

// Add registers a task. Tasks run in registration order within a batch.
// Register before Run; the slice is not locked.
func (e *Executor) Add(name string, fn Task) {
	e.tasks = append(e.tasks, namedTask{name: name, fn: fn})
}

// RunBatch executes every task once and collects failures.
func (e *Executor) RunBatch(ctx context.Context) BatchResult {
	result := BatchResult{
		StartedAt: time.Now(),
		Errors:    make(map[string]error),
	}

	for _, t := range e.tasks {
		if ctx.Err() != nil {
			break
		}
		if err := t.fn(ctx); err != nil {
			result.Errors[t.name] = err
			e.mu.Lock()
			e.errorCount++
			e.mu.Unlock()
			log.Warn().Err(err).Str("task", t.name).Msg("Task failed")
		}
	}

	result.Elapsed = time.Since(result.StartedAt)
	return result
}

// Run executes batches until the context is cancelled. The first batch
// fires after one interval, not immediately.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", e.interval).Int("tasks", len(e.tasks)).Msg("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("errors", e.ErrorCount()).Msg("Scheduler stopped")
			return
		case <-ticker.C:
			res := e.RunBatch(ctx)
			log.Debug().
				Dur("elapsed", res.Elapsed).
				Int("failed", len(res.Errors)).
				Msg("Batch completed")
		}
	}
}

// ErrorCount returns the number of task failures since creation.
func (e *Executor) ErrorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorCount
}

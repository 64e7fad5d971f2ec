package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusSkipped marks tasks not run because a prerequisite
	// failed.
	StatusSkipped Status = "skipped"
)

// TaskResult records one task's outcome.
type TaskResult struct {
	TaskID   string
	Status   Status
	Err      error
	Duration time.Duration
}

// Result summarizes a run.
type Result struct {
	RunID   string
	Results map[string]TaskResult
	Elapsed time.Duration
}

// Counts returns the number of succeeded, failed, and skipped tasks.
func (r *Result) Counts() (succeeded, failed, skipped int) {
	for _, tr := range r.Results {
		switch tr.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// Failed reports whether any task failed.
func (r *Result) Failed() bool {
	_, failed, _ := r.Counts()
	return failed > 0
}

// Execute runs every task of the run, respecting dependencies, with
// at most MaxParallelTasks tasks in flight. A failing task marks its
// dependents skipped; independent branches keep running. The returned
// error is non-nil when any task failed.
func (e *Engine) Execute(ctx context.Context, run *Run) (*Result, error) {
	levels, err := run.Graph.Levels()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{
		RunID:   run.ID,
		Results: make(map[string]TaskResult, len(run.Tasks)),
	}
	var mu sync.Mutex

	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.MaxParallelTasks)

		for _, id := range level {
			// Skip tasks whose prerequisites did not succeed.
			if blocked, cause := blockedBy(run, result, &mu, id); blocked {
				mu.Lock()
				result.Results[id] = TaskResult{TaskID: id, Status: StatusSkipped}
				mu.Unlock()
				e.logger.Warn("skipping task", "task", id, "blocked_by", cause)
				continue
			}

			id := id
			task := run.Tasks[id]
			g.Go(func() error {
				taskStart := time.Now()
				e.logger.Info("running task", "task", id)
				err := task.Run(gctx)
				elapsed := time.Since(taskStart)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Results[id] = TaskResult{TaskID: id, Status: StatusFailed, Err: err, Duration: elapsed}
					e.logger.Error("task failed", "task", id, "error", err, "duration", elapsed)
					// Do not fail the group: sibling tasks keep
					// running; dependents are skipped above.
					return nil
				}
				result.Results[id] = TaskResult{TaskID: id, Status: StatusSuccess, Duration: elapsed}
				e.logger.Info("task finished", "task", id, "duration", elapsed)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	result.Elapsed = time.Since(start)
	if result.Failed() {
		_, failed, skipped := result.Counts()
		return result, fmt.Errorf("run %s: %d task(s) failed, %d skipped", run.ID, failed, skipped)
	}
	return result, nil
}

// blockedBy reports whether a task has an unsuccessful prerequisite.
func blockedBy(run *Run, result *Result, mu *sync.Mutex, id string) (bool, string) {
	mu.Lock()
	defer mu.Unlock()
	for _, parent := range run.Graph.Parents(id) {
		if tr, ok := result.Results[parent]; !ok || tr.Status != StatusSuccess {
			return true, parent
		}
	}
	return false, ""
}

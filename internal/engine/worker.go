package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/peakfit/internal/fit"
)

// Pool dispatches independent fit jobs across worker goroutines. Each worker
// owns one solver instance for its whole lifetime: solver working buffers are
// reused across calls and must never be shared between goroutines.
type Pool struct {
	workers   int
	newSolver func() fit.Solver
	manager   *JobManager
}

// NewPool creates a pool of the given size. newSolver is called once per
// worker to build its private solver.
func NewPool(workers int, newSolver func() fit.Solver, manager *JobManager) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, newSolver: newSolver, manager: manager}
}

// Run fits all jobs, blocking until every job finished or the context was
// cancelled. Cancellation marks the not-yet-started jobs cancelled; jobs
// already running complete normally.
func (p *Pool) Run(ctx context.Context, jobs []*Job) {
	ch := make(chan *Job)
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			solver := p.newSolver()
			for job := range ch {
				p.runJob(solver, job)
			}
		}()
	}

	cancelled := 0
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			markJobCancelled(p.manager, job.ID)
			cancelled++
		case ch <- job:
		}
	}
	close(ch)
	wg.Wait()

	if cancelled > 0 {
		slog.Info("Fit run cancelled", "cancelled_jobs", cancelled, "total_jobs", len(jobs))
	}
}

// runJob executes one fit on the worker's solver.
func (p *Pool) runJob(solver fit.Solver, job *Job) {
	p.manager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
	})

	coefficients := append([]float64(nil), job.Initial...)
	fitted := make([]float64, len(job.Data))
	deviations := make([]float64, len(coefficients))

	start := time.Now()
	result := solver.Fit(job.Data, fitted, coefficients, deviations)
	elapsed := time.Since(start)

	endTime := time.Now()
	p.manager.UpdateJob(job.ID, func(j *Job) {
		j.Result = result
		j.Coefficients = coefficients
		j.Fitted = fitted
		j.Deviations = deviations
		j.EndTime = &endTime
		if result.Status == fit.StatusOK {
			j.State = StateCompleted
		} else {
			j.State = StateFailed
			j.Error = result.Status.String()
		}
	})

	slog.Debug("Job finished",
		"job_id", job.ID,
		"status", result.Status.String(),
		"rss", result.ResidualSS,
		"iterations", result.Iterations,
		"elapsed", elapsed,
	)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

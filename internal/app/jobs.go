package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/gauntlet/internal/adapters/mq/queue"
	"github.com/okian/gauntlet/internal/adapters/mq/worker"
	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
)

// Start launches the job workers and the sweeper that re-queues unfinished
// jobs, including those a previous process left running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.log.Info(ctx, "starting match engine...")

	q := queue.NewInMemoryQueue(queue.WithCapacity(e.queueSize))
	pool := worker.NewPool(e.workerCount, q, e)
	var sweeper *cron.Cron
	if e.sweepSchedule != "" {
		sweeper = cron.New()
		if _, err := sweeper.AddFunc(e.sweepSchedule, func() { e.Sweep(context.WithoutCancel(ctx)) }); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("sweep schedule %q: %w", e.sweepSchedule, err)
		}
	}
	e.queue, e.pool, e.sweeper = q, pool, sweeper
	pool.Start(ctx)
	if sweeper != nil {
		sweeper.Start()
	}
	e.started = true
	e.mu.Unlock()

	e.log.Info(ctx, "match engine started",
		logger.Int("workers", pool.Size()),
		logger.Int("queueSize", e.queueSize),
		logger.String("sweep", e.sweepSchedule),
	)
	e.Sweep(ctx)
	return nil
}

// Stop halts the sweeper, closes the queue and waits for the workers.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	sweeper, pool := e.sweeper, e.pool
	e.mu.Unlock()

	e.log.Info(ctx, "stopping match engine...")
	if sweeper != nil {
		select {
		case <-sweeper.Stop().Done():
		case <-ctx.Done():
		}
	}
	err := pool.Shutdown(ctx)
	e.log.Info(ctx, "match engine stopped")
	return err
}

// SubmitJob records a job that advances the match to target and queues it.
// A job that cannot be queued now stays pending for the sweeper.
func (e *Engine) SubmitJob(ctx context.Context, matchID string, target match.Status) (model.Job, error) {
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return model.Job{}, err
	}
	if target != m.Status {
		if _, ok := e.flow.Path(m.Status, target); !ok {
			return model.Job{}, fmt.Errorf("match %s is %s, cannot reach %s: %w", matchID, m.Status, target, ErrUnreachableTarget)
		}
	}
	job := model.Job{
		ID:       e.newID(),
		MatchID:  matchID,
		Target:   target,
		Progress: m.Status,
		State:    model.JobPending,
	}
	if err := e.store.PutJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("store job: %w", err)
	}
	if _, err := e.enqueue(ctx, job); err != nil {
		e.log.Warn(ctx, "job left for the sweeper",
			logger.String("job_id", job.ID),
			logger.Error(err),
		)
	}
	return e.store.GetJob(ctx, job.ID)
}

// GetJob returns a stored job.
func (e *Engine) GetJob(ctx context.Context, id string) (model.Job, error) {
	return e.store.GetJob(ctx, id)
}

// Sweep queues every pending or running job not already queued here and
// reports how many were queued.
func (e *Engine) Sweep(ctx context.Context) int {
	jobs, err := e.store.ListJobs(ctx, model.JobPending, model.JobRunning)
	if err != nil {
		e.log.Error(ctx, "failed to list unfinished jobs", logger.Error(err))
		return 0
	}
	n := 0
	for _, job := range jobs {
		queued, err := e.enqueue(ctx, job)
		if err != nil {
			e.log.Debug(ctx, "sweep stopped", logger.Error(err))
			break
		}
		if queued {
			n++
		}
	}
	if n > 0 {
		e.log.Info(ctx, "swept unfinished jobs", logger.Int("queued", n))
	}
	return n
}

func (e *Engine) enqueue(ctx context.Context, job model.Job) (bool, error) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return false, ErrNotStarted
	}
	if _, ok := e.active[job.ID]; ok {
		e.mu.Unlock()
		return false, nil
	}
	e.active[job.ID] = struct{}{}
	q := e.queue
	e.mu.Unlock()

	if err := q.Enqueue(ctx, job); err != nil {
		e.release(job.ID)
		return false, err
	}
	return true, nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// RunJob advances the job's match one stage at a time until it reaches the
// target, persisting progress after every completed stage. A rerun picks up
// from the stored progress.
func (e *Engine) RunJob(ctx context.Context, job model.Job) error {
	defer e.release(job.ID)

	stored, err := e.store.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	job = stored
	if job.Finished() || job.State == model.JobFailed {
		return nil
	}
	if job.Attempts > 0 {
		metrics.RecordJobResumed()
		e.log.Info(ctx, "resuming job",
			logger.String("job_id", job.ID),
			logger.String("progress", string(job.Progress)),
			logger.Int("attempt", job.Attempts+1),
		)
	}
	job.State = model.JobRunning
	job.Attempts++
	if err := e.store.PutJob(ctx, job); err != nil {
		return fmt.Errorf("store job: %w", err)
	}

	for {
		m, err := e.store.GetMatch(ctx, job.MatchID)
		if err != nil {
			return e.failJob(ctx, job, err)
		}
		done, err := e.reached(ctx, m, job.Target)
		if err != nil {
			return e.failJob(ctx, job, err)
		}
		if done {
			job.State = model.JobDone
			job.Progress = m.Status
			job.LastError = ""
			if err := e.store.PutJob(ctx, job); err != nil {
				return fmt.Errorf("store job: %w", err)
			}
			e.log.Info(ctx, "job done",
				logger.String("job_id", job.ID),
				logger.String("match_id", job.MatchID),
				logger.String("status", string(m.Status)),
			)
			return nil
		}

		res, err := e.AdvanceFrom(ctx, job.MatchID, m.Status)
		if err != nil {
			return e.failJob(ctx, job, err)
		}
		if res.Pending {
			select {
			case <-time.After(e.retryDelay):
				continue
			case <-ctx.Done():
				return e.failJob(ctx, job, ctx.Err())
			}
		}
		if res.Snapshot != nil || !res.Stage.HasOutput() {
			job.Progress = res.Stage
			if err := e.store.PutJob(ctx, job); err != nil {
				return fmt.Errorf("store job progress: %w", err)
			}
		}
	}
}

// reached reports whether the match is at or past target with target's
// output in place.
func (e *Engine) reached(ctx context.Context, m match.Match, target match.Status) (bool, error) {
	if target.Before(m.Status) {
		return true, nil
	}
	if m.Status != target {
		if _, ok := e.flow.Path(m.Status, target); !ok {
			return false, fmt.Errorf("match %s is %s, cannot reach %s: %w", m.ID, m.Status, target, ErrUnreachableTarget)
		}
		return false, nil
	}
	if !target.HasOutput() {
		return true, nil
	}
	_, err := e.store.GetSnapshot(ctx, m.ID, target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// failJob records the error and leaves the job pending for the sweeper
// until it has used up its attempts.
func (e *Engine) failJob(ctx context.Context, job model.Job, cause error) error {
	job.LastError = cause.Error()
	job.State = model.JobPending
	if job.Attempts >= e.maxAttempts || errors.Is(cause, ErrUnreachableTarget) || errors.Is(cause, ErrMatchEnded) {
		job.State = model.JobFailed
	}
	if err := e.store.PutJob(context.WithoutCancel(ctx), job); err != nil {
		e.log.Error(ctx, "failed to store job failure", logger.String("job_id", job.ID), logger.Error(err))
	}
	e.log.Warn(ctx, "job attempt failed",
		logger.String("job_id", job.ID),
		logger.String("state", string(job.State)),
		logger.Int("attempt", job.Attempts),
		logger.Error(cause),
	)
	return fmt.Errorf("job %s: %w", job.ID, cause)
}

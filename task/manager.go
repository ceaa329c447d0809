// Package task runs render work on a bounded pool of worker goroutines so
// encoder invocations never execute on an HTTP request goroutine.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"slidecast/config"
)

const queueSize = 100

// Sweeper removes stale on-disk artifacts left behind by finished jobs.
type Sweeper interface {
	Sweep() (int, error)
}

type Manager struct {
	cfg            *config.Config
	mu             sync.Mutex // guards jobs, stopped and every entry's mutable fields
	jobs           map[string]*entry
	stopped        bool
	taskQueue      chan *entry
	concurrencySem chan struct{}
	sweeper        Sweeper
	logger         *slog.Logger
}

func NewManager(cfg *config.Config, sweeper Sweeper, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:            cfg,
		jobs:           make(map[string]*entry),
		taskQueue:      make(chan *entry, queueSize),
		concurrencySem: make(chan struct{}, cfg.MaxConcurrency),
		sweeper:        sweeper,
		logger:         logger,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("render workers started", "concurrency", m.cfg.MaxConcurrency)
	go m.cleanupLoop(ctx)
	go m.workerLoop(ctx)
}

// workerLoop pulls jobs from the queue and processes them
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("render worker loop shutting down")
			m.stop(ctx.Err())
			return
		case e := <-m.taskQueue:
			// Wait for a free processing slot
			select {
			case m.concurrencySem <- struct{}{}:
			case <-ctx.Done():
				m.finish(e, ctx.Err())
				m.stop(ctx.Err())
				return
			}
			go func(e *entry) {
				defer func() { <-m.concurrencySem }()
				m.process(ctx, e)
			}(e)
		}
	}
}

// stop rejects further submissions, then fails every job still waiting in the queue.
func (m *Manager) stop(err error) {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.drain(err)
}

func (m *Manager) drain(err error) {
	for {
		select {
		case e := <-m.taskQueue:
			m.finish(e, err)
		default:
			return
		}
	}
}

func (m *Manager) process(ctx context.Context, e *entry) {
	m.mu.Lock()
	e.job.Status = StatusProcessing
	e.job.StartedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("processing job", "job_id", e.job.ID, "project_id", e.job.ProjectID)
	m.finish(e, e.run(ctx))
}

func (m *Manager) finish(e *entry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.job.Finished() {
		return
	}

	e.err = err
	e.job.CompletedAt = time.Now()
	switch {
	case err == nil:
		e.job.Status = StatusCompleted
		m.logger.Info("job completed", "job_id", e.job.ID, "project_id", e.job.ProjectID)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		e.job.Status = StatusCanceled
		e.job.Error = "job was canceled or timed out"
		m.logger.Warn("job canceled or timed out", "job_id", e.job.ID, "project_id", e.job.ProjectID, "error", err)
	default:
		e.job.Status = StatusFailed
		e.job.Error = err.Error()
		m.logger.Error("job failed", "job_id", e.job.ID, "project_id", e.job.ProjectID, "error", err)
	}
	close(e.done)
}

// cleanupLoop periodically sweeps stale render work directories and forgets
// finished jobs older than the work directory lifetime.
func (m *Manager) cleanupLoop(ctx context.Context) {
	interval := m.cfg.WorkdirLifetime / 4 // Check 4 times per lifetime
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("cleanup loop shutting down")
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	if m.sweeper != nil {
		removed, err := m.sweeper.Sweep()
		if err != nil {
			m.logger.Warn("work directory sweep failed", "error", err)
		} else if removed > 0 {
			m.logger.Info("removed stale work directories", "count", removed)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.jobs {
		if e.job.Finished() && time.Since(e.job.CompletedAt) > m.cfg.WorkdirLifetime {
			delete(m.jobs, id)
		}
	}
}

// Submit enqueues fn for execution on the worker pool.
func (m *Manager) Submit(projectID string, fn Func) (Job, error) {
	_, job, err := m.submit(projectID, fn)
	return job, err
}

func (m *Manager) submit(projectID string, fn Func) (*entry, Job, error) {
	e := &entry{
		job: Job{
			ID:        fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
			ProjectID: projectID,
			Status:    StatusQueued,
			CreatedAt: time.Now(),
		},
		run:  fn,
		done: make(chan struct{}),
	}

	job := e.job

	// Enqueueing under mu orders every submission before or after stop.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, Job{}, ErrStopped
	}
	select {
	case m.taskQueue <- e:
		m.jobs[job.ID] = e
	default:
		return nil, Job{}, ErrQueueFull
	}
	m.logger.Info("job submitted to queue", "job_id", job.ID, "project_id", projectID)
	return e, job, nil
}

// Wait blocks until the job finishes or ctx is done, and returns the error
// the job's Func returned.
func (m *Manager) Wait(ctx context.Context, jobID string) (Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return m.wait(ctx, e)
}

func (m *Manager) wait(ctx context.Context, e *entry) (Job, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		return e.job, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return e.job, e.err
}

// Run submits fn and waits for it.
func (m *Manager) Run(ctx context.Context, projectID string, fn Func) error {
	e, _, err := m.submit(projectID, fn)
	if err != nil {
		return err
	}
	_, err = m.wait(ctx, e)
	return err
}

func (m *Manager) Get(jobID string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[jobID]; ok {
		return e.job, true
	}
	return Job{}, false
}

// List returns a snapshot of every known job, oldest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		jobs = append(jobs, e.job)
	}
	m.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Stats reports how many jobs are queued and processing.
func (m *Manager) Stats() (queued, processing int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.jobs {
		switch e.job.Status {
		case StatusQueued:
			queued++
		case StatusProcessing:
			processing++
		}
	}
	return queued, processing
}

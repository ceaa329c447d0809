package task

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

var (
	ErrQueueFull = errors.New("render queue is full")
	ErrNotFound  = errors.New("job not found")
	ErrStopped   = errors.New("render workers are shut down")
)

// Func is the unit of work a job executes.
type Func func(ctx context.Context) error

// Job is a snapshot of one queued unit of render work.
type Job struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// entry is the manager-owned state behind a Job.
type entry struct {
	job  Job
	run  Func
	err  error
	done chan struct{}
}

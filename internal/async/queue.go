package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one image waiting to go through the pipeline. TraceID follows the
// job through every log line written for it.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. Returned errors are logged, not retried.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

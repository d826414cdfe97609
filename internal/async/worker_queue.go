package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerQueue runs jobs on a fixed pool of goroutines.
type WorkerQueue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewWorkerQueue(handle Handler, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		handle:  handle,
		logger:  logger,
		workers: 2,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *WorkerQueue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Debug("worker started", "worker_id", workerID)
	for job := range q.ch {
		q.run(workerID, job)
	}
	q.logger.Debug("worker stopped", "worker_id", workerID)
}

func (q *WorkerQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("job panicked", "worker_id", workerID, "trace_id", job.TraceID, "path", job.Path, "panic", rec)
		}
	}()

	start := time.Now()
	if err := q.handle(ctx, job); err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "trace_id", job.TraceID, "path", job.Path, "error", err)
		return
	}
	q.logger.Info("processed file successfully",
		"worker_id", workerID,
		"trace_id", job.TraceID,
		"path", job.Path,
		"wait_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *WorkerQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued file for processing", "trace_id", job.TraceID, "path", job.Path)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "trace_id", job.TraceID, "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs until ctx is done.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

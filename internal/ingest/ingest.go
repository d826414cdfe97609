package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/internal/async"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
)

// Processor runs one image through extraction, usually
// pipeline.Run(ctx, pipeline.FileUpload(path)).
type Processor func(ctx context.Context, path string) (entity.Report, error)

// Result is the per-file ingest outcome.
type Result struct {
	Path         string
	HashHex      string
	ReportID     uuid.UUID
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor feeds image files to a Processor once per distinct content.
type Ingestor struct {
	process Processor
	seen    *Deduper
	logger  *slog.Logger
}

func New(process Processor, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{process: process, seen: NewDeduper(), logger: logger}
}

// IngestPath hashes path and processes it unless the same bytes were already
// processed. A failed run forgets the hash so the file can be retried.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("path is required")
	}
	hex, err := HashFile(path)
	if err != nil {
		i.logger.Error("ingest.hash.failed", "path", path, "error", err)
		return Result{Path: path}, err
	}
	res := Result{Path: path, HashHex: hex}
	if i.seen.Seen(hex) {
		i.logger.Info("ingest.dedup", "path", path, "hash", hex)
		res.Deduplicated = true
		return res, nil
	}

	r, err := i.process(ctx, path)
	if err != nil {
		i.seen.Forget(hex)
		return res, fmt.Errorf("process %s: %w", path, err)
	}
	res.ReportID = r.ID
	i.logger.Info("ingest.ok", "path", path, "report_id", r.ID)
	return res, nil
}

// Handle adapts IngestPath to an async.Handler.
func (i *Ingestor) Handle(ctx context.Context, job async.Job) error {
	_, err := i.IngestPath(ctx, job.Path)
	return err
}

// Pump forwards watcher events onto q until events is closed or ctx is done.
func Pump(ctx context.Context, events <-chan string, q async.Queue, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				return
			}
			job := async.Job{Path: p, TraceID: uuid.NewString()}
			if err := q.Enqueue(ctx, job); err != nil {
				logger.Warn("ingest.enqueue.failed", "trace_id", job.TraceID, "path", p, "error", err)
				if errors.Is(err, async.ErrQueueClosed) {
					return
				}
			}
		}
	}
}

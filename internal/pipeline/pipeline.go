package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/extract"
)

// Recognizer is the OCR dependency; *ocr.Client satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// Appender is the history dependency; *reports.Store satisfies it.
type Appender interface {
	Append(ctx context.Context, r entity.Report) (entity.History, error)
}

// Pipeline runs upload -> OCR -> extraction -> history append.
type Pipeline struct {
	ocr          Recognizer
	extractor    extract.FieldExtractor
	store        Appender
	materializer Materializer
	now          func() time.Time
	newID        func() (uuid.UUID, error)
	logger       *slog.Logger
}

type Option func(*Pipeline)

func WithMaterializer(m Materializer) Option { return func(p *Pipeline) { p.materializer = m } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func WithIDGenerator(f func() (uuid.UUID, error)) Option { return func(p *Pipeline) { p.newID = f } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func New(ocr Recognizer, extractor extract.FieldExtractor, store Appender, opts ...Option) *Pipeline {
	p := &Pipeline{
		ocr:          ocr,
		extractor:    extractor,
		store:        store,
		materializer: TempDirMaterializer{},
		now:          time.Now,
		newID:        uuid.NewV7,
		logger:       slog.Default(),
	}
	if p.extractor == nil {
		p.extractor = extract.Default()
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// WithStore returns a copy of p that appends to store.
func (p *Pipeline) WithStore(store Appender) *Pipeline {
	cp := *p
	cp.store = store
	return &cp
}

// Run processes exactly one upload. Every error it returns is a *Failure and
// the temporary image is gone by the time it returns.
func (p *Pipeline) Run(ctx context.Context, uploads ...Upload) (entity.Report, error) {
	r, _, err := p.RunWithText(ctx, uploads...)
	return r, err
}

// RunWithText is Run that also returns the recognized text.
func (p *Pipeline) RunWithText(ctx context.Context, uploads ...Upload) (report entity.Report, text string, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("pipeline.panic", "panic", rec)
			report, text = entity.Report{}, ""
			err = fail(InternalError, "unexpected fault", fmt.Errorf("panic: %v", rec))
		}
		p.logOutcome(report, err, time.Since(start))
	}()

	if len(uploads) != 1 || uploads[0].Open == nil || uploads[0].FileName == "" {
		return entity.Report{}, "", fail(BadRequest, fmt.Sprintf("expected exactly one file, got %d", countFiles(uploads)), nil)
	}
	u := uploads[0]

	img, err := p.materializer.Materialize(ctx, u)
	if err != nil {
		return entity.Report{}, "", fail(InternalError, "materialize upload", err)
	}
	defer func() {
		if rerr := img.Release(); rerr != nil {
			p.logger.Warn("pipeline.cleanup.failed", "path", img.Path(), "error", rerr)
		}
	}()

	text, err = p.ocr.Recognize(ctx, img.Path())
	if err != nil {
		if ctx.Err() != nil {
			return entity.Report{}, "", fail(InternalError, "cancelled during ocr", errors.Join(ctx.Err(), err))
		}
		p.logger.Error("pipeline.ocr.failed", "file_name", u.FileName, "error", err)
		return entity.Report{}, "", fail(OcrFailed, "ocr", err)
	}

	fields := p.extractor.Extract(text)

	id, err := p.newID()
	if err != nil {
		return entity.Report{}, "", fail(InternalError, "report id", err)
	}
	report = entity.Report{
		ID:              id,
		FileName:        u.FileName,
		ExtractedValues: fields,
		CreatedAt:       p.now().UTC(),
	}

	if err := ctx.Err(); err != nil {
		return entity.Report{}, "", fail(InternalError, "cancelled before append", err)
	}
	if p.store != nil {
		if _, err := p.store.Append(ctx, report); err != nil {
			return entity.Report{}, "", fail(InternalError, "append report", err)
		}
	}
	return report.Clone(), text, nil
}

func (p *Pipeline) logOutcome(r entity.Report, err error, d time.Duration) {
	if err == nil {
		p.logger.Info("pipeline.ok",
			"report_id", r.ID,
			"file_name", r.FileName,
			"hemoglobin", r.ExtractedValues.Get(constants.Hemoglobin),
			"duration_ms", d.Milliseconds(),
		)
		return
	}
	p.logger.Warn("pipeline.failed",
		"outcome", KindOf(err).Outcome(),
		"error", err,
		"duration_ms", d.Milliseconds(),
	)
}

func countFiles(uploads []Upload) int {
	n := 0
	for _, u := range uploads {
		if u.Open != nil && u.FileName != "" {
			n++
		}
	}
	return n
}

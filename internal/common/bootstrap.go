package common

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/blood-report-parser/internal/ocr"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/blood-report-parser/internal/reports"
	"github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

// StoreResult is an opened report store. Call Cleanup once done.
type StoreResult struct {
	Backend  repository.Backend
	Sessions *reports.Sessions
	Cleanup  func()
}

// InitStore opens the configured backend and pings it.
func InitStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*StoreResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend, err := repository.Open(ctx, cfg.Store.Repository(), logger)
	if err != nil {
		return nil, WrapError(err, "open report store")
	}
	if err := repository.HealthCheck(ctx, backend, cfg.Store.DialTimeout, logger); err != nil {
		_ = backend.Close()
		return nil, WrapError(err, "report store health")
	}
	return &StoreResult{
		Backend:  backend,
		Sessions: reports.NewSessions(backend, cfg.Store.Slot, logger),
		Cleanup: func() {
			if err := backend.Close(); err != nil {
				logger.Error("failed to close report store", "error", err)
			}
		},
	}, nil
}

// NewPipeline wires the configured OCR engine into an extraction pipeline
// that appends to store (which may be nil and set later with WithStore).
func NewPipeline(cfg *Config, store pipeline.Appender, logger *slog.Logger) (*pipeline.Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := ocr.NewEngine(cfg.OCR.EngineConfig(), logger)
	if err != nil {
		return nil, NewAppError("OCR_ENGINE", fmt.Sprintf("engine %q", cfg.OCR.Engine), err)
	}
	client := ocr.NewClient(engine, cfg.OCR.Timeout, logger)
	return pipeline.New(client, nil, store,
		pipeline.WithMaterializer(pipeline.TempDirMaterializer{Dir: cfg.Upload.TempDir}),
		pipeline.WithLogger(logger),
	), nil
}

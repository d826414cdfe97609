package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/export"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/blood-report-parser/internal/reports"
)

// ReportService is the transport-neutral core behind the HTTP and gRPC surfaces.
// Every call is scoped to the history of one client id.
type ReportService struct {
	pipeline *pipeline.Pipeline
	sessions *reports.Sessions
	exporter *export.Service
	logger   *slog.Logger
}

func NewReportService(p *pipeline.Pipeline, sessions *reports.Sessions, exporter *export.Service, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	return &ReportService{pipeline: p, sessions: sessions, exporter: exporter, logger: logger}
}

// Extract runs one upload and appends the report to the client's history.
// Errors are *pipeline.Failure.
func (s *ReportService) Extract(ctx context.Context, clientID string, uploads ...pipeline.Upload) (entity.Report, string, error) {
	return s.pipeline.WithStore(s.sessions.For(clientID)).RunWithText(ctx, uploads...)
}

func (s *ReportService) History(ctx context.Context, clientID string) entity.History {
	return s.sessions.For(clientID).History(ctx)
}

func (s *ReportService) Clear(ctx context.Context, clientID string) error {
	if _, err := s.sessions.For(clientID).Clear(ctx); err != nil {
		s.logger.Error("reports.clear.failed", "client_id", clientID, "error", err)
		return common.WrapError(err, "clear history")
	}
	return nil
}

// Document is a rendered export ready to be sent to a client.
type Document struct {
	Format export.Format
	Data   []byte
}

// ExportReport renders one report (csv, pdf) or, for xlsx, the whole history.
// Invalid input wraps common.ErrInvalidInput; an unknown id wraps common.ErrNotFound.
func (s *ReportService) ExportReport(ctx context.Context, clientID, id, format string) (Document, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return Document{}, common.NewAppError("INVALID_FORMAT", err.Error(), common.ErrInvalidInput)
	}
	if !f.PerReport() {
		return s.ExportHistory(ctx, clientID, format, "")
	}

	rid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Document{}, common.NewAppError("INVALID_ID", "report id must be a UUID", common.ErrInvalidInput)
	}
	r, ok := s.History(ctx, clientID).Find(rid)
	if !ok {
		return Document{}, common.NewAppError("REPORT_NOT_FOUND", fmt.Sprintf("report %s not found", rid), common.ErrNotFound)
	}
	data, err := s.exporter.Report(f, r)
	if err != nil {
		s.logger.Error("export.report.failed", "report_id", rid, "format", f, "error", err)
		return Document{}, common.NewAppError("EXPORT_FAILED", "render failed", errors.Join(common.ErrInternal, err))
	}
	return Document{Format: f, Data: data}, nil
}

// ExportHistory renders the client's whole history; only xlsx is supported.
// parameters is an optional comma separated column selection ("hgb,plt").
func (s *ReportService) ExportHistory(ctx context.Context, clientID, format, parameters string) (Document, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return Document{}, common.NewAppError("INVALID_FORMAT", err.Error(), common.ErrInvalidInput)
	}
	if f != export.FormatXLSX {
		return Document{}, common.NewAppError("INVALID_FORMAT", "history export supports xlsx only", common.ErrUnsupported)
	}
	cols, err := constants.ParseParameterList(parameters)
	if err != nil {
		return Document{}, common.NewAppError("INVALID_PARAMETER", err.Error(), common.ErrInvalidInput)
	}
	data, err := s.exporter.XLSX(s.History(ctx, clientID), cols...)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "client_id", clientID, "error", err)
		return Document{}, common.NewAppError("EXPORT_FAILED", "render failed", errors.Join(common.ErrInternal, err))
	}
	return Document{Format: f, Data: data}, nil
}

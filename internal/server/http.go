package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
)

// ClientIDHeader scopes a request to one client's history.
const ClientIDHeader = "X-Client-ID"

const multipartMemory = 8 << 20

type HTTPOptions struct {
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type httpHandler struct {
	svc       *ReportService
	maxUpload int64
	logger    *slog.Logger
}

// NewHTTPHandler mounts the REST surface on a chi router.
func NewHTTPHandler(svc *ReportService, opts HTTPOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &httpHandler{svc: svc, maxUpload: opts.MaxUploadBytes, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.scope)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/extract", h.extract)
		r.Get("/reports", h.listReports)
		r.Delete("/reports", h.clearReports)
		r.Get("/reports/export", h.exportHistory)
		r.Get("/reports/{id}/export", h.exportReport)
	})
	return r
}

// scope copies the request and client ids into the context and logs the request.
func (h *httpHandler) scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := common.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ctx = common.WithClientID(ctx, r.Header.Get(ClientIDHeader))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		h.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", common.RequestIDFromContext(ctx),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type extractResponse struct {
	Report entity.Report `json:"report"`
	Text   string        `json:"text,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *httpHandler) extract(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	var uploads []pipeline.Upload
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: common.ErrTooLarge.Error()})
			return
		}
		// Anything that is not a readable multipart body carries no file.
		h.logger.Debug("multipart parse failed", "error", err)
	} else {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		for _, fh := range r.MultipartForm.File["file"] {
			uploads = append(uploads, fileHeaderUpload(fh))
		}
	}

	ctx := r.Context()
	report, text, err := h.svc.Extract(ctx, common.ClientIDFromContext(ctx), uploads...)
	if err != nil {
		kind := pipeline.KindOf(err)
		writeJSON(w, kindStatus(kind), errorResponse{Error: kind.UserMessage(), Kind: kind.String()})
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{Report: report, Text: text})
}

func fileHeaderUpload(fh *multipart.FileHeader) pipeline.Upload {
	return pipeline.Upload{
		FileName: fh.Filename,
		Open:     func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func kindStatus(k pipeline.Kind) int {
	switch k {
	case pipeline.BadRequest:
		return http.StatusBadRequest
	case pipeline.OcrFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type listResponse struct {
	Reports   entity.History         `json:"reports"`
	Summaries []entity.ReportSummary `json:"summaries"`
}

func (h *httpHandler) listReports(w http.ResponseWriter, r *http.Request) {
	hist := h.svc.History(r.Context(), common.ClientIDFromContext(r.Context()))
	if hist == nil {
		hist = entity.History{}
	}
	writeJSON(w, http.StatusOK, listResponse{Reports: hist, Summaries: hist.Summaries()})
}

func (h *httpHandler) clearReports(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context(), common.ClientIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *httpHandler) exportReport(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.ExportReport(r.Context(), common.ClientIDFromContext(r.Context()),
		chi.URLParam(r, "id"), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, doc)
}

func (h *httpHandler) exportHistory(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	doc, err := h.svc.ExportHistory(r.Context(), common.ClientIDFromContext(r.Context()),
		format, r.URL.Query().Get("parameters"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeDocument(w, doc)
}

func writeDocument(w http.ResponseWriter, doc Document) {
	w.Header().Set("Content-Type", doc.Format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Format.FileName()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrUnsupported):
		status, msg = http.StatusBadRequest, appMessage(err)
	case errors.Is(err, common.ErrNotFound):
		status, msg = http.StatusNotFound, appMessage(err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func appMessage(err error) string {
	var ae *common.AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

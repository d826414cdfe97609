package common

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.OCR.Lang != "eng" || cfg.Store.Backend != "file" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  http_addr: ":7000"
store:
  backend: sqlite
  path: /var/lib/reports.db
ocr:
  psm: 6
  timeout: 45s
watch:
  dir: /inbox
  debounce: 2s
log_level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7100")
	t.Setenv("OCR_TSV_CONFIDENCE", "true")
	t.Setenv("WATCH_WORKERS", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":7100" {
		t.Fatalf("env should override file: %q", cfg.Server.HTTPAddr)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/var/lib/reports.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.OCR.PSM != 6 || cfg.OCR.Timeout != 45*time.Second || !cfg.OCR.TSVConfidence {
		t.Fatalf("ocr = %+v", cfg.OCR)
	}
	if cfg.Watch.Dir != "/inbox" || cfg.Watch.Debounce != 2*time.Second || cfg.Watch.Workers != 2 {
		t.Fatalf("watch = %+v", cfg.Watch)
	}
	if cfg.OCR.Lang != "eng" {
		t.Fatalf("defaults lost under partial file: %q", cfg.OCR.Lang)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.OCR.EngineConfig(); got.PSM != 6 || got.Tesseract != "tesseract" || !got.EnableTSVConfidence {
		t.Fatalf("EngineConfig = %+v", got)
	}
	if got := cfg.Store.Repository(); got.Backend != "sqlite" {
		t.Fatalf("Repository = %+v", got)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }, "DB_URL"},
		{"unknown engine", func(c *Config) { c.OCR.Engine = "paddle" }, "ocr.engine"},
		{"bad converter", func(c *Config) { c.OCR.HeicConverter = "ffmpeg" }, "ocr.heic_converter"},
		{"zero upload limit", func(c *Config) { c.Upload.MaxBytes = 0 }, "upload.max_bytes"},
		{"watch without workers", func(c *Config) { c.Watch.Dir = "/in"; c.Watch.Workers = 0 }, "watch.workers"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("err = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestValidateAcceptsParseLevelSpellings(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "WARNING", " Error "} {
		cfg := DefaultConfig()
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(LOG_LEVEL=%q): %v", level, err)
		}
	}
	if got := ParseLevel("warning"); got != slog.LevelWarn {
		t.Fatalf("ParseLevel(warning) = %v", got)
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{WrapError(ErrNotFound, "report"), codes.NotFound},
		{NewAppError("BAD", "format", ErrUnsupported), codes.InvalidArgument},
		{ErrTooLarge, codes.ResourceExhausted},
		{errors.New("boom"), codes.Internal},
		{FailedPreconditionError("ocr"), codes.FailedPrecondition},
		{InvalidArgumentError("id"), codes.InvalidArgument},
		{NewAppError("REPORT_NOT_FOUND", "gone", ErrNotFound), codes.NotFound},
	}
	for _, tt := range tests {
		if got := status.Code(StatusFromError(tt.err)); got != tt.want {
			t.Fatalf("StatusFromError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if got := status.Convert(StatusFromError(ErrInvalidInput)).Message(); got != ErrInvalidInput.Error() {
		t.Fatalf("InvalidArgument message = %q", got)
	}
	if StatusFromError(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
)

// LowConfidenceThreshold flags recognitions that are likely to parse poorly.
const LowConfidenceThreshold = 0.6

type Config struct {
	Engine    string // EngineTesseract (default) | EngineGosseract
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang        string // default "eng"
	TessdataDir string

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	HeicConverter       string // heif-convert | magick | sips
	EnableTSVConfidence bool

	Timeout time.Duration // 0 = no per-call limit
}

func (c Config) withDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineTesseract
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Lang == "" {
		c.Lang = "eng"
	}
	return c
}

// Result is the raw output of one engine call.
type Result struct {
	Text       string
	Language   string
	Engine     string
	Duration   time.Duration
	Confidence float32 // 0 when the engine does not report one
	Warnings   []string
}

// Engine is one opaque OCR capability: image path in, text out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, path string) (Result, error)
}

// Error is returned by Client when the engine could not produce text.
type Error struct {
	Engine string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ocr %s: %s: %v", e.Engine, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewEngine builds the engine selected by cfg.Engine.
func NewEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	switch cfg.Engine {
	case EngineTesseract:
		return NewTesseractCLI(cfg, logger), nil
	case EngineGosseract:
		return newGosseractEngine(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
}

// Client wraps an Engine with normalization, timing and typed failures.
type Client struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(engine Engine, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{engine: engine, timeout: timeout, logger: logger}
}

// Recognize runs the engine once over the image at path. On failure it
// returns *Error and no text. The input file is never modified.
func (c *Client) Recognize(ctx context.Context, path string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	c.logger.Debug("ocr.recognize.start", "engine", c.engine.Name(), "path", path)
	res, err := c.engine.Recognize(ctx, path)
	if err != nil {
		c.logger.Error("ocr.recognize.failed",
			"engine", c.engine.Name(),
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", &Error{Engine: c.engine.Name(), Path: path, Err: err}
	}

	txt := Normalize(res.Text)
	conf := blendConfidence(res.Confidence, heuristicConfidence(txt))
	if conf < LowConfidenceThreshold {
		c.logger.Warn("ocr confidence low; values may be missing", "path", path, "conf", conf)
	}
	c.logger.Info("ocr.recognize.ok",
		"engine", c.engine.Name(),
		"lang", res.Language,
		"bytes", len(txt),
		"confidence", conf,
		"warnings", len(res.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return txt, nil
}

//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// gosseractEngine links libtesseract through cgo instead of spawning a process.
type gosseractEngine struct {
	cfg    Config
	logger *slog.Logger
}

func newGosseractEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	return &gosseractEngine{cfg: cfg, logger: logger}, nil
}

func (e *gosseractEngine) Name() string { return EngineGosseract }

func (e *gosseractEngine) Recognize(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{Engine: e.Name()}, err
	}

	c := gosseract.NewClient()
	defer c.Close()

	if e.cfg.TessdataDir != "" {
		c.TessdataPrefix = e.cfg.TessdataDir
	}
	if err := c.SetLanguage(e.cfg.Lang); err != nil {
		return Result{Engine: e.Name()}, fmt.Errorf("set language: %w", err)
	}
	if e.cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.cfg.PSM)); err != nil {
			return Result{Engine: e.Name()}, fmt.Errorf("set psm: %w", err)
		}
	}
	if e.cfg.OEM > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("tessedit_ocr_engine_mode"), strconv.Itoa(e.cfg.OEM)); err != nil {
			return Result{Engine: e.Name()}, fmt.Errorf("set oem: %w", err)
		}
	}
	if err := c.SetImage(path); err != nil {
		return Result{Engine: e.Name()}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return Result{Engine: e.Name()}, fmt.Errorf("recognize text: %w", err)
	}

	return Result{
		Text:       text,
		Language:   e.cfg.Lang,
		Engine:     e.Name(),
		Duration:   time.Since(start),
		Confidence: wordConfidence(c),
	}, nil
}

func wordConfidence(c *gosseract.Client) float32 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return float32(sum / float64(len(boxes)) / 100.0)
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

// TesseractCLI shells out to the tesseract binary.
type TesseractCLI struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractCLI(cfg Config, logger *slog.Logger) *TesseractCLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractCLI{cfg: cfg.withDefaults(), runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (e *TesseractCLI) WithRunner(r Runner) *TesseractCLI {
	e.runner = r
	return e
}

func (e *TesseractCLI) Name() string { return EngineTesseract }

func (e *TesseractCLI) Recognize(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	var warns []string

	if constants.IsHEICExt(filepath.Ext(path)) {
		out, w, cleanup, err := convertHEICtoPNG(ctx, e.runner, e.cfg.HeicConverter, path)
		if cleanup != nil {
			defer cleanup()
		}
		warns = append(warns, w...)
		if err != nil {
			e.logger.Error("heic conversion failed", "path", path, "error", err)
			return Result{Engine: e.Name(), Warnings: warns}, err
		}
		path = out
	}

	txt, w, err := e.tesseractOCR(ctx, path)
	warns = append(warns, w...)
	if err != nil {
		return Result{Engine: e.Name(), Warnings: warns}, err
	}

	var conf float32
	if e.cfg.EnableTSVConfidence {
		c, w2, err := e.tesseractTSVConfidence(ctx, path)
		warns = append(warns, w2...)
		if err != nil {
			warns = append(warns, err.Error())
		} else {
			conf = c
		}
	}

	return Result{
		Text:       txt,
		Language:   e.cfg.Lang,
		Engine:     e.Name(),
		Duration:   time.Since(start),
		Confidence: conf,
		Warnings:   warns,
	}, nil
}

func (e *TesseractCLI) baseArgs(path string) []string {
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

func (e *TesseractCLI) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.baseArgs(path)...)
	if err != nil {
		return "", nonEmpty(string(errb)), fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *TesseractCLI) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	args := append(e.baseArgs(path), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, nonEmpty(string(errb)), fmt.Errorf("tesseract tsv: %w", err)
	}
	return meanTSVConfidence(string(out)), nil, nil
}

// meanTSVConfidence averages the conf column (11th of 12), skipping the header
// and non-word rows (conf -1).
func meanTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		c := cols[10]
		if c == "" || c == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

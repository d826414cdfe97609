package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/export"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
)

func main() {
	var (
		format = flag.String("export", "", "also write the report as csv or pdf")
		out    = flag.String("out", "", "export path (defaults to blood_report.<format> next to the image)")
		text   = flag.Bool("text", false, "include the recognized text in the output")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: runocr [--export csv|pdf] [--out path] <image>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, cfg.LogLevel, true)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	image := flag.Arg(0)

	var f export.Format
	if *format != "" {
		if f, err = export.ParseFormat(*format); err != nil || !f.PerReport() {
			logger.Error("invalid --export", "value", *format)
			os.Exit(2)
		}
		if *out == "" {
			*out = filepath.Join(filepath.Dir(image), f.FileName())
		}
	}

	p, err := common.NewPipeline(cfg, nil, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	report, recognized, err := p.RunWithText(ctx, pipeline.FileUpload(image))
	if err != nil {
		kind := pipeline.KindOf(err)
		logger.Error(kind.UserMessage(), "kind", kind.String(), "error", err)
		os.Exit(1)
	}

	result := map[string]any{"report": report}
	if *text {
		result["text"] = recognized
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("failed to write report", "error", err)
		os.Exit(1)
	}

	if f == "" {
		return
	}
	data, err := export.NewService(logger).Report(f, report)
	if err != nil {
		logger.Error("export failed", "format", f, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write export", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "path", *out, "format", f, "bytes", len(data))
}

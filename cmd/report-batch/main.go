package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/export"
	"github.com/joseph-ayodele/blood-report-parser/internal/ingest"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

// printError prints to stderr, falling back to stdout.
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem  = flag.Bool("inmem", false, "keep the history in memory instead of the configured store")
		dir    = flag.String("dir", "", "directory of report images (required)")
		out    = flag.String("out", "", "output XLSX path (defaults to blood_reports.xlsx next to --dir)")
		client = flag.String("client", "", "history to append to (empty = shared)")
		hidden = flag.Bool("hidden", false, "include hidden files and directories")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), export.FormatXLSX.FileName())
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *inmem {
		cfg.Store.Backend = repository.BackendMemory
	}
	logger := common.NewLogger(os.Stdout, cfg.LogLevel, true)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := common.InitStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open report store", "error", err)
		os.Exit(1)
	}
	defer store.Cleanup()

	history := store.Sessions.For(*client)
	p, err := common.NewPipeline(cfg, history, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ing := ingest.New(func(ctx context.Context, path string) (entity.Report, error) {
		return p.Run(ctx, pipeline.FileUpload(path))
	}, logger)

	logger.Info("starting batch", "dir", *dir, "client", *client)
	_, stats, err := ing.IngestDirectory(ctx, *dir, !*hidden)
	if err != nil {
		logger.Error("failed to process directory", "error", err)
		os.Exit(1)
	}

	data, err := export.NewService(logger).XLSX(history.History(ctx))
	if err != nil {
		logger.Error("failed to export reports", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"matched", stats.Matched,
		"processed", stats.Succeeded-stats.Deduplicated,
		"deduplicated", stats.Deduplicated,
		"failures", stats.Failed,
		"output", *out,
	)
	if stats.Failed > 0 {
		os.Exit(3)
	}
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/reports"
	repo "github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

func main() {
	client := flag.String("client", "", "history to inspect (empty = shared)")
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Println("ERROR:", err)
		log.Println("  set STORE_BACKEND=file|sqlite|postgres|memory and STORE_PATH or DB_URL")
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, err := repo.Open(ctx, cfg.Store.Repository(), logger)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("ERROR: closing store: %v", err)
		}
	}()

	if err := repo.HealthCheck(ctx, backend, 1*time.Second, logger); err != nil {
		log.Fatalf("store health: FAIL (%v)", err)
	}
	log.Printf("store health: OK (%s)", cfg.Store.Backend)

	store := reports.NewSessions(backend, cfg.Store.Slot, logger).For(*client)
	summaries := store.Summaries(ctx)
	log.Printf("reports count: %d", len(summaries))
	for _, s := range summaries {
		log.Printf("- [%s] %s (Hemoglobin %s)", s.ID, s.FileName, s.Hemoglobin)
	}
}

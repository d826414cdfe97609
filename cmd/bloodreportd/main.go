package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/blood-report-parser/internal/async"
	"github.com/joseph-ayodele/blood-report-parser/internal/common"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/export"
	"github.com/joseph-ayodele/blood-report-parser/internal/ingest"
	"github.com/joseph-ayodele/blood-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/blood-report-parser/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stdout, cfg.LogLevel, false)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

// run owns every resource of the daemon so deferred cleanup happens before
// main decides the exit code.
func run(cfg *common.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := common.InitStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open report store (%s): %w", cfg.Store.Backend, err)
	}
	defer store.Cleanup()

	p, err := common.NewPipeline(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	svc := server.NewReportService(p, store.Sessions, export.NewService(logger), logger)

	g, gctx := errgroup.WithContext(ctx)

	// The watcher starts before any server goroutine so a bad inbox
	// directory fails fast without anything to unwind.
	var queue *async.WorkerQueue
	var events <-chan string
	var watchErrs <-chan error
	if cfg.Watch.Dir != "" {
		events, watchErrs, err = ingest.StartWatcher(gctx, ingest.WatchConfig{
			Roots:       []string{cfg.Watch.Dir},
			InitialScan: true,
			Debounce:    cfg.Watch.Debounce,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("start watcher on %s: %w", cfg.Watch.Dir, err)
		}
		// Watched files land in the unscoped history.
		inbox := ingest.New(func(ctx context.Context, path string) (entity.Report, error) {
			return p.WithStore(store.Sessions.For("")).Run(ctx, pipeline.FileUpload(path))
		}, logger)
		queue = async.NewWorkerQueue(inbox.Handle, logger,
			async.WithWorkers(cfg.Watch.Workers),
			async.WithQueueSize(cfg.Watch.QueueSize),
			async.WithProcessTimeout(cfg.OCR.Timeout),
		)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		if queue != nil {
			queue.Shutdown(context.Background())
		}
		return fmt.Errorf("listen on %s: %w", cfg.Server.GRPCAddr, err)
	}
	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: server.NewHTTPHandler(svc, server.HTTPOptions{MaxUploadBytes: cfg.Upload.MaxBytes, Logger: logger}),
	}
	grpcSrv, health := server.NewGRPC(svc, logger)

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
		return grpcSrv.Serve(lis)
	})

	if queue != nil {
		logger.Info("watching inbox", "dir", cfg.Watch.Dir, "workers", cfg.Watch.Workers)
		g.Go(func() error {
			ingest.Pump(gctx, events, queue, logger)
			return nil
		})
		g.Go(func() error {
			for err := range watchErrs {
				logger.Warn("inbox watcher error", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		grpcSrv.GracefulStop()
		if queue != nil {
			queue.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

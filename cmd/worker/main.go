package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notekeeper-zipjobs/internal/attachments"
	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/config"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/queue"
	"notekeeper-zipjobs/internal/store"
	"notekeeper-zipjobs/internal/telemetry"
	workerproc "notekeeper-zipjobs/internal/worker"
)

func main() {
	cfg := config.Load()

	// Generate a unique worker ID from hostname or env var
	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("service", "worker", "env", cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error(ctx, "connect postgres", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Error(ctx, "migrations", "error", err)
		os.Exit(1)
	}

	blobs, err := blob.New(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "init blob store", "backend", cfg.BlobBackend, "error", err)
		os.Exit(1)
	}
	atts := attachments.NewService(blobs, cfg.MaxAttachments, cfg.MaxAttachmentBytes)

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	handler := workerproc.NewZipHandler(atts, st, blobs, cfg.ScratchDir, logger)
	processor := workerproc.NewProcessor(cfg, q, handler.Handle, workerproc.NewPoisonArchiver(blobs), logger, workerID)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(ctx, "metrics server stopped", "error", err)
		}
	}()

	logger.Info(ctx, "worker started",
		"worker_id", workerID,
		"concurrency", cfg.WorkerConcurrency,
		"visibility", cfg.VisibilityTimeout,
		"backoff_initial", cfg.BackoffInitial,
	)
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "worker stopped", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsServer.Shutdown(shutdownCtx)
}

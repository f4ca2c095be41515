package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "notekeeper-zipjobs/internal/api"
	"notekeeper-zipjobs/internal/attachments"
	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/config"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/queue"
	"notekeeper-zipjobs/internal/ratelimit"
	"notekeeper-zipjobs/internal/store"
	"notekeeper-zipjobs/internal/zipjobs"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("service", "api", "env", cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
	limiter := ratelimit.NewTokenBucket(q.Client(), cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, api.Deps{
		Entities:    st,
		Attachments: atts,
		Submitter:   zipjobs.NewSubmitter(st, atts, st, q, cfg.ResultBaseURL, logger),
		Results:     zipjobs.NewResults(st, st, blobs, logger),
		Limiter:     limiter,
		Poison:      q,
		Log:         logger,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info(ctx, "api listening", "port", cfg.HTTPPort, "queue", cfg.QueueName, "blob_backend", cfg.BlobBackend)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "listen", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "shutdown", "error", err)
	}
}

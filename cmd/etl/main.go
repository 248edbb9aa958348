package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/flood-report-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-report-etl/internal/adapter/kafka"
	"github.com/couchcryptid/flood-report-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-report-etl/internal/config"
	"github.com/couchcryptid/flood-report-etl/internal/observability"
	"github.com/couchcryptid/flood-report-etl/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Run history is optional (RUN_HISTORY_PATH).
	var (
		store   *sqlite.RunStore
		history pipeline.HistoryRecorder
	)
	if cfg.RunHistoryPath != "" {
		store, err = sqlite.Open(cfg.RunHistoryPath)
		if err != nil {
			logger.Error("failed to open run history", "error", err, "path", cfg.RunHistoryPath)
			os.Exit(1)
		}
		defer store.Close()
		history = store
		logger.Info("run history enabled", "path", cfg.RunHistoryPath)
	} else {
		logger.Info("run history disabled")
	}

	runner := pipeline.NewRunner(pipeline.Options{
		DataDir:     cfg.DataDir,
		DepthColumn: cfg.DepthColumn,
		Classes:     cfg.ClassCount,
		JoinKey:     cfg.JoinKey,
	}, history, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(pipeline.AsJobRunner(runner), logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	var opts []httpadapter.Option
	if store != nil {
		opts = append(opts, httpadapter.WithRunHistory(store, func(err error) bool {
			return errors.Is(err, sqlite.ErrRunNotFound)
		}))
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Let the job in flight finish and publish its summary.
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

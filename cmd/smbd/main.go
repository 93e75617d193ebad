package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/landrepurpose/lrp-smb/internal/adapter/csvstore"
	httpadapter "github.com/landrepurpose/lrp-smb/internal/adapter/http"
	kafkaadapter "github.com/landrepurpose/lrp-smb/internal/adapter/kafka"
	"github.com/landrepurpose/lrp-smb/internal/adapter/sqlite"
	"github.com/landrepurpose/lrp-smb/internal/config"
	"github.com/landrepurpose/lrp-smb/internal/observability"
	"github.com/landrepurpose/lrp-smb/internal/pipeline"
	"github.com/landrepurpose/lrp-smb/internal/registry"
	"github.com/landrepurpose/lrp-smb/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var opts []pipeline.Option
	var source pipeline.SeriesSource
	var store *sqlite.Store

	switch cfg.StoreBackend {
	case config.BackendSQLite:
		store, err = sqlite.Open(cfg.SQLitePath, cfg.EndDate, logger)
		if err != nil {
			logger.Error("failed to open sqlite store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		source = store
		// Verdict history lives next to the observations.
		opts = append(opts, pipeline.WithLoaders(store))
	default:
		csv, err := csvstore.Open(csvstore.Config{
			PrecipPath:     cfg.PrecipPath,
			ETPath:         cfg.ETPath,
			FieldKeyPath:   cfg.FieldKeyPath,
			FieldAttribute: cfg.FieldAttribute,
			EndDate:        cfg.EndDate,
		})
		if err != nil {
			logger.Error("failed to read csv exports", "error", err)
			os.Exit(1)
		}
		source = csv
		logger.Info("csv exports loaded", "precip", cfg.PrecipPath, "et", cfg.ETPath)
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, pipeline.WithLoaders(writer))
		logger.Info("kafka verdict sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaVerdictTopic)
	} else {
		logger.Info("kafka verdict sink disabled")
	}

	if cfg.ReportPath != "" {
		opts = append(opts, pipeline.WithReports(report.NewFileWriter(cfg.ReportPath)))
		logger.Info("text report enabled", "path", cfg.ReportPath)
	}

	runner, err := pipeline.NewRunner(source, cfg.Options(), cfg.Workers, logger, metrics)
	if err != nil {
		logger.Error("invalid engine configuration", "error", err)
		os.Exit(1)
	}
	runner.WithAsOf(cfg.EndDate)

	p := pipeline.New(registry.File(cfg.ParcelsPath), runner, cfg.EvalInterval, logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("sqlite close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

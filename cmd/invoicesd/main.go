package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/export"
	"github.com/facturio/invoice-pipeline/internal/gemini"
	"github.com/facturio/invoice-pipeline/internal/pipeline"
	"github.com/facturio/invoice-pipeline/internal/repository"
	"github.com/facturio/invoice-pipeline/internal/server"
)

func main() {
	// Logger
	zlog, _ := zap.NewProduction()
	defer func() { _ = zlog.Sync() }()
	log := zlog.Sugar()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(slogger)

	// Env
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB pool (optional: skip persistence when DB_URL is unset)
	var repo repository.InvoiceRepository
	if cfg.Database.DSN != "" {
		pool, err := repository.Open(ctx, cfg.Database, slogger)
		if err != nil {
			log.Fatalf("opening DB: %v", err)
		}
		defer pool.Close()
		if err := repository.HealthCheck(ctx, pool, slogger); err != nil {
			log.Fatalf("DB health failed: %v", err)
		}
		log.Infow("DB health OK")
		repo = repository.NewInvoiceRepository(pool, slogger)
	} else {
		log.Infow("DB_URL not set, persistence disabled")
	}

	// Pipeline
	extractor := gemini.NewClient(gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		BaseURL:     cfg.Gemini.BaseURL,
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		Timeout:     cfg.Gemini.Timeout,
	}, slogger)

	maxArchive := cfg.Pipeline.MaxArchiveMB << 20
	processor := pipeline.NewProcessor(pipeline.Config{
		MaxArchiveSize: maxArchive,
		Concurrency:    cfg.Pipeline.Concurrency,
		TaskTimeout:    cfg.Pipeline.TaskTimeout,
		IncludeSkipped: cfg.Pipeline.IncludeSkipped,
	}, extractor, slogger)

	srv := server.New(processor, export.NewService(slogger), repo, maxArchive, slogger)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Infof("HTTP serving on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("stopped.")
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/export"
	"github.com/facturio/invoice-pipeline/internal/gemini"
	"github.com/facturio/invoice-pipeline/internal/pipeline"
	"github.com/facturio/invoice-pipeline/internal/repository"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		zipPath    = flag.String("zip", "", "chat export archive to process (required)")
		outPath    = flag.String("out", "", "output JSON file path (defaults next to the archive)")
		xlsxPath   = flag.String("xlsx", "", "also write an XLSX workbook to this path")
		sqlitePath = flag.String("sqlite", "", "persist results to a local sqlite database")
	)
	flag.Parse()

	if *zipPath == "" {
		printError("Error: --zip is required\n")
		os.Exit(1)
	}
	if *outPath == "" {
		base := strings.TrimSuffix(*zipPath, filepath.Ext(*zipPath))
		*outPath = base + ".invoices.json"
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	content, err := os.ReadFile(*zipPath)
	if err != nil {
		logger.Error("failed to read archive", "path", *zipPath, "error", err)
		os.Exit(1)
	}

	extractor := gemini.NewClient(gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		BaseURL:     cfg.Gemini.BaseURL,
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		Timeout:     cfg.Gemini.Timeout,
	}, logger)

	processor := pipeline.NewProcessor(pipeline.Config{
		MaxArchiveSize: cfg.Pipeline.MaxArchiveMB << 20,
		Concurrency:    cfg.Pipeline.Concurrency,
		TaskTimeout:    cfg.Pipeline.TaskTimeout,
		IncludeSkipped: cfg.Pipeline.IncludeSkipped,
	}, extractor, logger)

	result, err := processor.ProcessArchive(ctx, content)
	if err != nil {
		logger.Error("archive rejected", "error", err)
		os.Exit(1)
	}

	// Write JSON result
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("failed to encode result", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, data, 0644); err != nil {
		logger.Error("failed to write output file", "path", *outPath, "error", err)
		os.Exit(1)
	}

	// Optional XLSX workbook
	if *xlsxPath != "" {
		book, err := export.NewService(logger).BuildWorkbook(result)
		if err != nil {
			logger.Error("failed to build workbook", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxPath, book, 0644); err != nil {
			logger.Error("failed to write workbook", "path", *xlsxPath, "error", err)
			os.Exit(1)
		}
	}

	// Optional local persistence
	if *sqlitePath != "" {
		store, err := repository.OpenLocal(*sqlitePath, logger)
		if err != nil {
			logger.Error("failed to open local store", "error", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
		if err := store.SaveJobResult(ctx, result); err != nil {
			logger.Error("failed to persist results", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("batch processing complete",
		"job_id", result.JobID,
		"total_processed", result.TotalProcessed,
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount,
		"output_file", *outPath)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files processed: %d\n", result.TotalProcessed)
	fmt.Printf("- Invoices extracted: %d\n", result.SuccessCount)
	fmt.Printf("- Failures: %d\n", result.ErrorCount)
	fmt.Printf("- Output: %s\n", *outPath)
}

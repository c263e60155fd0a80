// Package pipeline turns one chat-export archive into one ordered JobResult.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/facturio/invoice-pipeline/constants"
	"github.com/facturio/invoice-pipeline/internal/archive"
	"github.com/facturio/invoice-pipeline/internal/classify"
	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/entity"
	"github.com/facturio/invoice-pipeline/internal/sequence"
)

// Config holds the pipeline knobs the caller supplies per deployment.
type Config struct {
	MaxArchiveSize int64         // bytes; default 300 MiB
	Concurrency    int           // default 3
	TaskTimeout    time.Duration // default 30s
	IncludeSkipped bool          // surface TEXT/UNSUPPORTED files as informational entries
}

// Processor coordinates validation, sequencing, classification, concurrent
// extraction and aggregation for one job at a time. Jobs are one-shot: no
// retry, no resume, no state carried across invocations.
type Processor struct {
	cfg     Config
	archive *archive.Extractor
	orch    *Orchestrator
	logger  *slog.Logger
}

func NewProcessor(cfg Config, extractor Extractor, logger *slog.Logger) *Processor {
	if cfg.MaxArchiveSize <= 0 {
		cfg.MaxArchiveSize = 300 << 20
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 3
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:     cfg,
		archive: archive.NewExtractor(cfg.MaxArchiveSize, logger),
		orch:    NewOrchestrator(extractor, cfg.Concurrency, cfg.TaskTimeout, logger),
		logger:  logger,
	}
}

// ProcessArchive runs the whole job. Fatal validation errors return before a
// single extraction task is created; afterwards the job always completes,
// reporting per-file failures inside the JobResult.
func (p *Processor) ProcessArchive(ctx context.Context, content []byte) (*entity.JobResult, error) {
	jobID := uuid.New()
	ctx = common.WithJobID(ctx, jobID.String())
	start := time.Now()
	p.logger.Info("job started",
		"job_id", jobID, "state", constants.JobStateCollecting, "archive_bytes", len(content))

	members, ignored, err := p.archive.Extract(content)
	if err != nil {
		p.logger.Error("job rejected", "job_id", jobID, "error", err)
		return nil, err
	}
	for _, ig := range ignored {
		p.logger.Debug("member ignored", "job_id", jobID, "filename", ig.Name, "reason", ig.Reason)
	}

	files := sequence.Order(members, p.logger)
	tasks, skipped := p.buildTasks(files)
	if !p.cfg.IncludeSkipped {
		skipped = nil
	}

	outcomes := p.orch.Run(ctx, tasks)
	p.logger.Info("job tasks finished",
		"job_id", jobID, "state", constants.JobStatePartial, "tasks", len(tasks))

	result := assemble(jobID, outcomes, skipped)
	p.logger.Info("job completed",
		"job_id", jobID,
		"state", constants.JobStateComplete,
		"total_processed", result.TotalProcessed,
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// buildTasks creates exactly one task per IMAGE/DOCUMENT file. TEXT and
// UNSUPPORTED files are never submitted; they become informational entries.
func (p *Processor) buildTasks(files []sequence.File) ([]entity.ExtractionTask, []entity.SkippedFile) {
	var (
		tasks   []entity.ExtractionTask
		skipped []entity.SkippedFile
	)
	for _, f := range files {
		cls := classify.Classify(f.Member.Name, f.Member.MediaType)
		if !classify.Extractable(cls) {
			skipped = append(skipped, entity.SkippedFile{
				SequenceID:     f.SequenceID,
				Filename:       f.Member.Name,
				Classification: cls,
			})
			continue
		}
		if !constants.MediaTypeMatches(cls, f.Member.MediaType) {
			p.logger.Warn("media type mismatch",
				"filename", f.Member.Name,
				"classification", cls,
				"media_type", f.Member.MediaType,
			)
		}
		tasks = append(tasks, entity.ExtractionTask{
			SequenceID:     f.SequenceID,
			Filename:       f.Member.Name,
			Payload:        f.Member.Data,
			MediaType:      f.Member.MediaType,
			Classification: cls,
		})
	}
	return tasks, skipped
}

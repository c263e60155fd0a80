package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/entity"
)

// Extractor is the external extraction call the orchestrator fans out to.
type Extractor interface {
	Extract(ctx context.Context, task entity.ExtractionTask) (entity.InvoiceRecord, error)
}

// outcome is the discriminated result one worker returns for one task.
// Workers share nothing; the merge happens sequentially in the aggregator.
type outcome struct {
	task   entity.ExtractionTask
	record entity.InvoiceRecord
	err    error
}

// Orchestrator runs extraction tasks on a fixed-size worker pool. At most
// `workers` tasks are in flight at any instant; each task carries its own
// timeout, and a failed or timed-out task never aborts its siblings.
type Orchestrator struct {
	extractor Extractor
	workers   int
	timeout   time.Duration
	logger    *slog.Logger
}

func NewOrchestrator(extractor Extractor, workers int, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{extractor: extractor, workers: workers, timeout: timeout, logger: logger}
}

// Run dispatches every task and blocks until each has produced an outcome.
// Completion order is unconstrained; callers restore order by sequence id.
// If ctx is cancelled mid-job, tasks not yet handed to a worker are reported
// as errors and the pool still drains cleanly.
func (o *Orchestrator) Run(ctx context.Context, tasks []entity.ExtractionTask) []outcome {
	if len(tasks) == 0 {
		return nil
	}

	in := make(chan entity.ExtractionTask)
	out := make(chan outcome, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.logger.Debug("worker started", "worker_id", workerID)
			for task := range in {
				out <- o.runTask(ctx, workerID, task)
			}
			o.logger.Debug("worker stopped", "worker_id", workerID)
		}(i + 1)
	}

feed:
	for i, t := range tasks {
		select {
		case in <- t:
		case <-ctx.Done():
			o.logger.Warn("job abandoned, reporting undispatched tasks as errors",
				"remaining", len(tasks)-i, "error", ctx.Err())
			for _, rest := range tasks[i:] {
				out <- outcome{task: rest, err: fmt.Errorf("job abandoned: %w", ctx.Err())}
			}
			break feed
		}
	}
	close(in)
	wg.Wait()
	close(out)

	outcomes := make([]outcome, 0, len(tasks))
	for oc := range out {
		outcomes = append(outcomes, oc)
	}
	return outcomes
}

// runTask executes a single task with its own timeout. A panic in the
// extractor is converted to an error outcome; nothing escapes a worker.
func (o *Orchestrator) runTask(ctx context.Context, workerID int, task entity.ExtractionTask) (res outcome) {
	res = outcome{task: task}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("extraction panic recovered",
				"worker_id", workerID, "sequence_id", task.SequenceID, "panic", r)
			res.err = fmt.Errorf("extraction panic: %v", r)
		}
	}()

	tctx, cancel := common.WithTimeout(ctx, o.timeout)
	defer cancel()

	rec, err := o.extractor.Extract(tctx, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("extraction timed out after %s: %w", o.timeout, err)
		}
		o.logger.Error("extraction task failed",
			"worker_id", workerID,
			"sequence_id", task.SequenceID,
			"filename", task.Filename,
			"error", err,
		)
		res.err = err
		return res
	}

	o.logger.Info("extraction task completed",
		"worker_id", workerID,
		"sequence_id", task.SequenceID,
		"filename", task.Filename,
		"confidence", rec.ConfidenceScore,
	)
	res.record = rec
	return res
}

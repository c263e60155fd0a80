package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturio/invoice-pipeline/constants"
	"github.com/facturio/invoice-pipeline/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExtractor is deterministic per sequence id; it honors ctx so timeouts
// and cancellation behave like a real HTTP call.
type fakeExtractor struct {
	delay    time.Duration
	failSeq  map[int]bool
	panicSeq map[int]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, task entity.ExtractionTask) (entity.InvoiceRecord, error) {
	if f.panicSeq[task.SequenceID] {
		panic("fake extractor exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return entity.InvoiceRecord{}, ctx.Err()
		}
	}
	if f.failSeq[task.SequenceID] {
		return entity.InvoiceRecord{}, errors.New("model refused")
	}
	return entity.InvoiceRecord{
		InvoiceNumber:   fmt.Sprintf("F001-%04d", task.SequenceID),
		Currency:        entity.DefaultCurrency,
		ConfidenceScore: 0.9,
		SourceFile:      task.Filename,
		SequenceID:      task.SequenceID,
	}, nil
}

func makeTasks(n int) []entity.ExtractionTask {
	tasks := make([]entity.ExtractionTask, 0, n)
	for i := 1; i <= n; i++ {
		tasks = append(tasks, entity.ExtractionTask{
			SequenceID:     i,
			Filename:       fmt.Sprintf("IMG-20240201-WA%04d.jpg", i),
			Payload:        []byte("img"),
			MediaType:      "image/jpeg",
			Classification: constants.IMAGE,
		})
	}
	return tasks
}

func TestRunProducesOneOutcomePerTask(t *testing.T) {
	o := NewOrchestrator(&fakeExtractor{}, 4, time.Second, testLogger())
	outcomes := o.Run(context.Background(), makeTasks(10))
	require.Len(t, outcomes, 10)

	seen := make(map[int]bool)
	for _, oc := range outcomes {
		assert.NoError(t, oc.err)
		assert.False(t, seen[oc.task.SequenceID], "duplicate outcome")
		seen[oc.task.SequenceID] = true
	}
}

func TestRunNoTasks(t *testing.T) {
	o := NewOrchestrator(&fakeExtractor{}, 4, time.Second, testLogger())
	assert.Nil(t, o.Run(context.Background(), nil))
}

func TestResultIdenticalAcrossConcurrency(t *testing.T) {
	tasks := makeTasks(20)
	ext := &fakeExtractor{failSeq: map[int]bool{3: true, 17: true}}
	jobID := uuid.New()

	serial := assemble(jobID, NewOrchestrator(ext, 1, time.Second, testLogger()).Run(context.Background(), tasks), nil)
	parallel := assemble(jobID, NewOrchestrator(ext, 8, time.Second, testLogger()).Run(context.Background(), tasks), nil)

	assert.Equal(t, serial.Results, parallel.Results)
	assert.Equal(t, serial.Errors, parallel.Errors)
	assert.Equal(t, serial.TotalProcessed, parallel.TotalProcessed)
}

func TestFailedTaskDoesNotAbortSiblings(t *testing.T) {
	tasks := makeTasks(5)
	ext := &fakeExtractor{failSeq: map[int]bool{2: true}}
	o := NewOrchestrator(ext, 3, time.Second, testLogger())

	result := assemble(uuid.New(), o.Run(context.Background(), tasks), nil)

	assert.Equal(t, 5, result.TotalProcessed)
	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].SequenceID)
	assert.Contains(t, result.Errors[0].Message, "model refused")
}

func TestTaskTimeoutBecomesError(t *testing.T) {
	tasks := makeTasks(2)
	ext := &fakeExtractor{delay: 200 * time.Millisecond, failSeq: map[int]bool{}}
	o := NewOrchestrator(ext, 2, 20*time.Millisecond, testLogger())

	outcomes := o.Run(context.Background(), tasks)
	require.Len(t, outcomes, 2)
	for _, oc := range outcomes {
		require.Error(t, oc.err)
		assert.Contains(t, oc.err.Error(), "timed out")
	}
}

func TestPanicIsContained(t *testing.T) {
	tasks := makeTasks(3)
	ext := &fakeExtractor{panicSeq: map[int]bool{2: true}}
	o := NewOrchestrator(ext, 2, time.Second, testLogger())

	result := assemble(uuid.New(), o.Run(context.Background(), tasks), nil)
	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "extraction panic")
}

func TestCancelledJobReportsAllTasks(t *testing.T) {
	tasks := makeTasks(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(&fakeExtractor{delay: 50 * time.Millisecond}, 2, time.Second, testLogger())
	outcomes := o.Run(ctx, tasks)

	require.Len(t, outcomes, 8)
	for _, oc := range outcomes {
		assert.Error(t, oc.err)
	}
}

func TestAssembleOrdersBySequenceID(t *testing.T) {
	outcomes := []outcome{
		{task: entity.ExtractionTask{SequenceID: 3, Filename: "c.jpg"}, record: entity.InvoiceRecord{SequenceID: 3}},
		{task: entity.ExtractionTask{SequenceID: 1, Filename: "a.jpg"}, err: errors.New("boom")},
		{task: entity.ExtractionTask{SequenceID: 2, Filename: "b.jpg"}, record: entity.InvoiceRecord{SequenceID: 2}},
	}
	result := assemble(uuid.New(), outcomes, nil)

	require.Len(t, result.Results, 2)
	assert.Equal(t, 2, result.Results[0].SequenceID)
	assert.Equal(t, 3, result.Results[1].SequenceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].SequenceID)
	assert.Equal(t, result.TotalProcessed, result.SuccessCount+result.ErrorCount)
}

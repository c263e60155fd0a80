package pipeline

import (
	"sort"

	"github.com/google/uuid"

	"github.com/facturio/invoice-pipeline/internal/entity"
)

// assemble merges worker outcomes into the single ordered report. Both lists
// are sorted by sequence id, independent of completion order. This stage has
// no failure mode.
func assemble(jobID uuid.UUID, outcomes []outcome, skipped []entity.SkippedFile) *entity.JobResult {
	result := &entity.JobResult{
		JobID:   jobID,
		Results: make([]entity.InvoiceRecord, 0, len(outcomes)),
		Errors:  make([]entity.ExtractionError, 0),
		Skipped: skipped,
	}

	for _, oc := range outcomes {
		if oc.err != nil {
			result.Errors = append(result.Errors, entity.ExtractionError{
				SequenceID: oc.task.SequenceID,
				Filename:   oc.task.Filename,
				Message:    oc.err.Error(),
			})
			continue
		}
		result.Results = append(result.Results, oc.record)
	}

	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].SequenceID < result.Results[j].SequenceID
	})
	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].SequenceID < result.Errors[j].SequenceID
	})
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].SequenceID < result.Skipped[j].SequenceID
	})

	result.SuccessCount = len(result.Results)
	result.ErrorCount = len(result.Errors)
	result.TotalProcessed = result.SuccessCount + result.ErrorCount
	return result
}

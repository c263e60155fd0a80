package entity

import (
	"github.com/google/uuid"

	"github.com/facturio/invoice-pipeline/constants"
)

// ExtractionTask is one unit of work submitting a single file to the model.
type ExtractionTask struct {
	SequenceID     int
	Filename       string
	Payload        []byte
	MediaType      string
	Classification constants.Classification
}

// ExtractionError records one task that failed without aborting the job.
type ExtractionError struct {
	SequenceID int    `json:"sequence_id"`
	Filename   string `json:"filename"`
	Message    string `json:"error"`
}

// SkippedFile is an informational entry for a TEXT/UNSUPPORTED member that was
// never submitted for extraction. Present only when the caller opts in.
type SkippedFile struct {
	SequenceID     int                      `json:"sequence_id"`
	Filename       string                   `json:"filename"`
	Classification constants.Classification `json:"classification"`
}

// JobResult is the single ordered report for one job.
//
// Invariant: TotalProcessed == SuccessCount + ErrorCount == len(Results) +
// len(Errors), and every IMAGE/DOCUMENT file appears in exactly one of the
// two lists. Skipped entries are informational and never counted.
type JobResult struct {
	JobID          uuid.UUID         `json:"job_id"`
	Results        []InvoiceRecord   `json:"results"`
	Errors         []ExtractionError `json:"errors"`
	Skipped        []SkippedFile     `json:"skipped,omitempty"`
	TotalProcessed int               `json:"total_processed"`
	SuccessCount   int               `json:"success_count"`
	ErrorCount     int               `json:"error_count"`
}

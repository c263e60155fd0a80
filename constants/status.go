package constants

// JobState is the lifecycle state of one extraction job.
type JobState string

// A job is strictly one-shot: COLLECTING while tasks are outstanding, PARTIAL
// once every task has finished, COMPLETE when the result is assembled. There
// is no transition back and no resume.
const (
	JobStateCollecting JobState = "COLLECTING"
	JobStatePartial    JobState = "PARTIAL"
	JobStateComplete   JobState = "COMPLETE"
)

package model

import "time"

// Stage names one phase of the analysis pipeline.
type Stage string

const (
	StageValidating  Stage = "validating"
	StageExtracting  Stage = "extracting"
	StageReasoning   Stage = "reasoning"
	StageMarketIntel Stage = "market_intel"
	StageGuidance    Stage = "guidance"
	StagePersisting  Stage = "persisting"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// ProgressEvent is one observation of job-level progress. Percent is
// non-decreasing for a given job.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	Stage     Stage     `json:"stage"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

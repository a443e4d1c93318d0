// Package store persists analysis jobs and their progress snapshots.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/harborview-partners/diligence-cli/internal/model"
)

// ErrNotFound is returned when no job exists for the given identifier.
var ErrNotFound = eris.New("store: job not found")

// ErrTerminal is returned when a terminal write targets a job that already
// reached a terminal status. The existing record is left untouched.
var ErrTerminal = eris.New("store: job already finalized")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status  model.JobStatus `json:"status,omitempty"`
	OwnerID string          `json:"owner_id,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// JobStore is the persistence contract for the analysis pipeline. Writes are
// keyed by job ID; SaveResult performs at most one terminal write per job.
type JobStore interface {
	// Create inserts the initial processing record for a job.
	Create(ctx context.Context, job *model.AnalysisJob) error

	// SaveProgress stores the latest progress snapshot for a job,
	// last-writer-wins. Only the most recent event is retained.
	SaveProgress(ctx context.Context, jobID string, ev model.ProgressEvent) error

	// SaveResult writes the terminal result for a job. A job that is already
	// completed or failed rejects the write with ErrTerminal.
	SaveResult(ctx context.Context, jobID string, job *model.AnalysisJob) error

	// Get returns the job record, or ErrNotFound.
	Get(ctx context.Context, jobID string) (*model.AnalysisJob, error)

	// LatestProgress returns the most recent progress snapshot, or nil when
	// none has been recorded yet.
	LatestProgress(ctx context.Context, jobID string) (*model.ProgressEvent, error)

	// List returns jobs matching the filter, newest first.
	List(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error)

	// Delete removes a job and reports whether it existed.
	Delete(ctx context.Context, jobID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

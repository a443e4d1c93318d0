package pipeline

import "fmt"

// Failure reasons surfaced on jobs that never produce a result.
const (
	ReasonNoUsableDocuments = "NoUsableDocuments"
	ReasonTooManyDocuments  = "TooManyDocuments"
	ReasonCanceled          = "Canceled"
)

// CollaboratorError marks a failure from an external service call. The
// pipeline absorbs these with fallbacks or per-document drops rather than
// failing the job.
type CollaboratorError struct {
	Service string
	Op      string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

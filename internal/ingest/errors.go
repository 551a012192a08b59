package ingest

import "fmt"

// FailureKind classifies terminal pipeline failures. Every failure maps to
// exactly one kind; nothing is retried.
type FailureKind int

const (
	// KindDecode means the uploaded payload was not valid base64.
	KindDecode FailureKind = iota
	// KindService means the speech service call failed or returned an
	// unusable response.
	KindService
	// KindPersistence means the blob or record could not be saved.
	KindPersistence
)

func (k FailureKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindService:
		return "service"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// PipelineError wraps a step failure with its classification.
type PipelineError struct {
	Kind  FailureKind
	cause error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s failure: %v", e.Kind, e.cause)
}

func (e *PipelineError) Unwrap() error { return e.cause }

func failure(kind FailureKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, cause: err}
}

package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies where in the job lifecycle a failure happened.
type Kind string

const (
	KindUploadInit        Kind = "upload_init"
	KindUploadTransfer    Kind = "upload_transfer"
	KindPipelineTrigger   Kind = "pipeline_trigger"
	KindStatusFetch       Kind = "status_fetch"
	KindUnexpectedFailure Kind = "unexpected_failure"
)

var kindMessages = map[Kind]string{
	KindUploadInit:        "upload init failed",
	KindUploadTransfer:    "upload transfer failed",
	KindPipelineTrigger:   "pipeline trigger failed",
	KindStatusFetch:       "status fetch failed",
	KindUnexpectedFailure: "unexpected failure",
}

// Error is a lifecycle-aware error with the HTTP status and body when the
// failure came from a response.
type Error struct {
	Kind       Kind
	JobID      string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (%d): %s", msg, e.StatusCode, e.Body)
	}
	if e.JobID != "" {
		msg = fmt.Sprintf("%s [job %s]", msg, e.JobID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

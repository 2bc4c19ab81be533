package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidTransition matches every operation rejected because its
	// precondition does not hold. The submission is left untouched.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	// ErrStaleResponse is returned when a reset overtook an outstanding call
	// and its result was discarded.
	ErrStaleResponse = errors.New("workflow: stale response discarded")
	// ErrNoImage rejects a selection without image bytes.
	ErrNoImage = errors.New("workflow: image has no data")
)

// TransitionError describes a rejected operation.
type TransitionError struct {
	Op     string
	Status Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("workflow: cannot %s while %s", e.Op, e.Status)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CredentialError reports that no usable bearer token could be obtained,
// or that a service refused the one presented.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return "credential: unavailable"
	}
	return fmt.Sprintf("credential: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// UploadError reports a failed upload call.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upload failed: %s", e.Reason)
	}
	return fmt.Sprintf("upload failed: %s: %v", e.Reason, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// AnalysisError reports a failed analysis call.
type AnalysisError struct {
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis failed: %s", e.Reason)
	}
	return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// UserMessage renders err as a sentence suitable for the status line.
func UserMessage(err error) string {
	var (
		credErr     *CredentialError
		uploadErr   *UploadError
		analysisErr *AnalysisError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &credErr):
		return "Please sign in again."
	case errors.As(err, &uploadErr):
		return fmt.Sprintf("Upload failed (%s). Press u to try again.", uploadErr.Reason)
	case errors.As(err, &analysisErr):
		return fmt.Sprintf("Analysis failed (%s). Press a to try again.", analysisErr.Reason)
	default:
		return err.Error()
	}
}

// reasoner is implemented by service errors that know how to describe
// themselves to users.
type reasoner interface {
	Reason() string
}

// authRejection is implemented by service errors for 401/403 responses.
type authRejection interface {
	Unauthorized() bool
}

// errValidation tags results that decoded but failed validation.
var errValidation = errors.New("invalid response")

func reasonFor(err error) string {
	var (
		r      reasoner
		netErr net.Error
	)
	switch {
	case errors.Is(err, errValidation):
		return "invalid response"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &r):
		return r.Reason()
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	default:
		return "failed"
	}
}

func isAuthRejection(err error) bool {
	var rej authRejection
	return errors.As(err, &rej) && rej.Unauthorized()
}

// classify converts a collaborator error into the workflow taxonomy.
func classify(step Step, err error) error {
	if err == nil {
		return nil
	}
	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return credErr
	}
	if isAuthRejection(err) {
		return &CredentialError{Err: err}
	}
	var (
		uploadErr   *UploadError
		analysisErr *AnalysisError
	)
	if step == StepUpload && errors.As(err, &uploadErr) {
		return uploadErr
	}
	if step == StepAnalyze && errors.As(err, &analysisErr) {
		return analysisErr
	}
	if step == StepAnalyze {
		return &AnalysisError{Reason: reasonFor(err), Err: err}
	}
	return &UploadError{Reason: reasonFor(err), Err: err}
}

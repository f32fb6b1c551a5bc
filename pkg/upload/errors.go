package upload

import (
	"errors"
	"fmt"
)

// ErrIntakeRejected is matched by *IntakeRejectedError when a batch would
// push the entry count past the configured maximum.
var ErrIntakeRejected = errors.New("upload: intake rejected")

// ErrValidation is matched by *ValidationError.
var ErrValidation = errors.New("upload: validation failed")

// ErrAuthMissing is returned when no bearer token is available.
var ErrAuthMissing = errors.New("upload: authentication token missing")

// ErrTransport is matched by *TransportError.
var ErrTransport = errors.New("upload: transport failed")

// ErrServerRejected is matched by *ServerError.
var ErrServerRejected = errors.New("upload: server rejected upload")

// ErrNothingToUpload is returned when no entry is pending.
var ErrNothingToUpload = errors.New("upload: nothing to upload")

// ErrBusy is returned when intake or upload is attempted while an upload is in flight.
var ErrBusy = errors.New("upload: upload in progress")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("upload: uploader closed")

// ErrNoAcceptRule is returned by Policy.Check when nothing would be accepted.
var ErrNoAcceptRule = errors.New("upload: accept policy lists no types or extensions")

// IntakeRejectedError reports a batch refused by the max-files ceiling.
// No entry from the batch is admitted.
type IntakeRejectedError struct {
	Max      int
	Existing int
	Pending  int
	Incoming int
}

func (e *IntakeRejectedError) Error() string {
	return fmt.Sprintf("You can upload at most %d files", e.Max)
}

func (e *IntakeRejectedError) Is(target error) bool { return target == ErrIntakeRejected }

// ValidationCode identifies which check rejected a file.
type ValidationCode string

const (
	CodeTooLargeHard   ValidationCode = "too_large_hard"
	CodeTooLarge       ValidationCode = "too_large"
	CodeNameTooLong    ValidationCode = "name_too_long"
	CodeNameInvalid    ValidationCode = "name_invalid"
	CodeTypeNotAllowed ValidationCode = "type_not_allowed"
	CodeCustom         ValidationCode = "custom"
)

// ValidationError is the first failed check for a file. Reason is the
// user-facing message stored on the entry.
type ValidationError struct {
	Code   ValidationCode
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ServerError is a non-2xx response from the upload endpoint.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string { return e.Message }

func (e *ServerError) Is(target error) bool { return target == ErrServerRejected }

// TransportError wraps network, encoding and response parsing failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Message returns the user-facing text for err. Pipeline errors carry their
// own wording; anything else falls back to err.Error().
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthMissing):
		return "Authentication token not found. Please log in again."
	case errors.Is(err, ErrNothingToUpload):
		return "Nothing to upload"
	case errors.Is(err, ErrBusy):
		return "An upload is already in progress"
	case errors.Is(err, ErrClosed):
		return "Uploader is closed"
	}
	return err.Error()
}

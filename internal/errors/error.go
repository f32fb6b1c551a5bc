package errors

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/vango-dev/dropzone/pkg/auth"
	"github.com/vango-dev/dropzone/pkg/upload"
)

// Category represents the type of error.
type Category string

const (
	CategoryIntake    Category = "intake"
	CategoryAuth      Category = "auth"
	CategoryTransport Category = "transport"
	CategoryServer    Category = "server"
	CategoryStorage   Category = "storage"
	CategoryConfig    Category = "config"
	CategoryCLI       Category = "cli"
)

// Location represents a position in a file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// DropzoneError is a structured error with a code, a hint and, for
// configuration problems, the offending file position.
type DropzoneError struct {
	// Code is a unique error identifier (e.g., "E020").
	Code string

	// Category is the error type (auth, transport, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position the error refers to.
	Location *Location

	// Context contains the lines surrounding Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DropzoneError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DropzoneError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position and the lines around it.
func (e *DropzoneError) WithLocation(file string, line, column int) *DropzoneError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DropzoneError) WithSuggestion(s string) *DropzoneError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *DropzoneError) WithDetail(d string) *DropzoneError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *DropzoneError) Wrap(err error) *DropzoneError {
	e.Wrapped = err
	return e
}

func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}
	return lines
}

// New creates a DropzoneError from a registered error code.
func New(code string) *DropzoneError {
	template, ok := registry[code]
	if !ok {
		return &DropzoneError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DropzoneError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		DocURL:     template.DocURL,
	}
}

// Newf creates a new DropzoneError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DropzoneError {
	return &DropzoneError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a DropzoneError.
func FromError(err error, code string) *DropzoneError {
	if err == nil {
		return nil
	}
	var de *DropzoneError
	if errors.As(err, &de) {
		return de
	}
	return New(code).Wrap(err)
}

// FromUpload maps a pipeline error to its registered code. The detail
// carries the message the pipeline shows to users.
func FromUpload(err error) *DropzoneError {
	if err == nil {
		return nil
	}
	var de *DropzoneError
	if errors.As(err, &de) {
		return de
	}

	code := "E099"
	switch {
	case errors.Is(err, upload.ErrIntakeRejected):
		code = "E001"
	case errors.Is(err, upload.ErrNothingToUpload):
		code = "E002"
	case errors.Is(err, upload.ErrBusy):
		code = "E003"
	case errors.Is(err, upload.ErrClosed):
		code = "E004"
	case errors.Is(err, upload.ErrNoAcceptRule):
		code = "E121"
	case errors.Is(err, auth.ErrSessionExpired):
		code = "E021"
	case errors.Is(err, upload.ErrAuthMissing), errors.Is(err, auth.ErrNoToken):
		code = "E020"
	case errors.Is(err, upload.ErrServerRejected):
		code = "E041"
	case errors.Is(err, upload.ErrTransport):
		code = "E040"
	}
	return New(code).WithDetail(upload.Message(err)).Wrap(err)
}

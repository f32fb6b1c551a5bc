package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// ANSI escape sequences.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
)

// detailWidth is where Detail text is wrapped.
const detailWidth = 70

var plain atomic.Bool

// DisableColors turns off ANSI escapes in Format and Fprint.
func DisableColors() { plain.Store(true) }

// EnableColors turns ANSI escapes back on.
func EnableColors() { plain.Store(false) }

func paint(style, text string) string {
	if plain.Load() {
		return text
	}
	return style + text + ansiReset
}

// Format renders the error for a terminal: a header, the source excerpt
// when a location is known, then detail, cause, hint and doc link.
func (e *DropzoneError) Format() string {
	var b strings.Builder
	b.WriteByte('\n')
	e.writeHeader(&b)
	e.writeSource(&b)

	for _, line := range wrapText(e.Detail, detailWidth) {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	if e.Detail != "" {
		b.WriteByte('\n')
	}
	if cause := e.cause(); cause != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", paint(ansiGray, "Cause: "), cause)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", paint(ansiCyan, "Hint: "), e.Suggestion)
	}
	if e.DocURL != "" {
		fmt.Fprintf(&b, "  %s%s\n", paint(ansiGray, "Learn more: "), paint(ansiBlue, e.DocURL))
	}
	return b.String()
}

func (e *DropzoneError) writeHeader(b *strings.Builder) {
	label := "ERROR:"
	msg := e.Message
	if e.Code != "" {
		label = "ERROR " + e.Code + ":"
	}
	fmt.Fprintf(b, "%s %s\n\n", paint(ansiRed+ansiBold, label), paint(ansiBold, msg))
}

// writeSource prints the location and the context lines, marking the
// target line with an arrow and the column with a caret.
func (e *DropzoneError) writeSource(b *strings.Builder) {
	if e.Location == nil {
		return
	}
	fmt.Fprintf(b, "  %s\n\n", paint(ansiCyan, e.Location.String()))
	if len(e.Context) == 0 {
		return
	}

	first := e.Location.Line - len(e.Context)/2
	bar := paint(ansiGray, " │ ")
	for i, text := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, bar, text)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", paint(ansiRed, "→ "), n, bar, text)
		if col := e.Location.Column; col > 0 {
			fmt.Fprintf(b, "       %s%s%s\n", paint(ansiGray, "│ "), strings.Repeat(" ", col-1), paint(ansiRed, "^"))
		}
	}
	b.WriteByte('\n')
}

// cause is the wrapped error text, omitted when Detail already says it.
func (e *DropzoneError) cause() string {
	if e.Wrapped == nil {
		return ""
	}
	if msg := e.Wrapped.Error(); msg != e.Detail {
		return msg
	}
	return ""
}

// FormatCompact returns "file:line: CODE: message" for log lines.
func (e *DropzoneError) FormatCompact() string {
	var parts []string
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	return strings.Join(append(parts, e.Message), ": ")
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	DocURL     string        `json:"docUrl,omitempty"`
}

// FormatJSON returns the error as a JSON object for --json output.
func (e *DropzoneError) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	if l := e.Location; l != nil {
		out.Location = &jsonLocation{File: l.File, Line: l.Line, Column: l.Column}
	}
	data, _ := json.Marshal(out)
	return string(data)
}

// wrapText breaks text into lines of at most width bytes at word
// boundaries. A single word longer than width gets its own line.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := []string{words[0]}
	for _, w := range words[1:] {
		last := &lines[len(lines)-1]
		if len(*last)+1+len(w) > width {
			lines = append(lines, w)
			continue
		}
		*last += " " + w
	}
	return lines
}

// Fprint writes err to w. A DropzoneError anywhere in the chain gets the
// full Format layout; anything else a one-line header.
func Fprint(w io.Writer, err error) {
	var de *DropzoneError
	if stderrors.As(err, &de) {
		io.WriteString(w, de.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", paint(ansiRed+ansiBold, "ERROR:"), err.Error())
}

// PrintError prints a formatted error to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}

package toast

import (
	"fmt"
	"io"
	"sync"
)

// EventName is the event name dispatched for toasts.
// Browser clients of the live hub listen for this event.
const EventName = "dropzone:toast"

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Emitter delivers a named event with a payload.
type Emitter interface {
	Emit(name string, data any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, data any)

func (f EmitterFunc) Emit(name string, data any) { f(name, data) }

// Show sends a toast notification through e.
//
// The payload is:
//   - { level: "success|error|warning|info", message: "..." }
func Show(e Emitter, level Type, message string) {
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"message": message,
	})
}

// Success shows a success toast.
//
//	toast.Success(e, "3 files uploaded")
func Success(e Emitter, message string) {
	Show(e, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(e, "Upload failed")
func Error(e Emitter, message string) {
	Show(e, TypeError, message)
}

// Warning shows a warning toast.
func Warning(e Emitter, message string) {
	Show(e, TypeWarning, message)
}

// Info shows an info toast.
func Info(e Emitter, message string) {
	Show(e, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(e, toast.TypeError, "Upload", "disk full")
func WithTitle(e Emitter, level Type, title, message string) {
	e.Emit(EventName, map[string]any{
		"level":   string(level),
		"title":   title,
		"message": message,
	})
}

// WithAction shows a toast with an action button.
//
//	toast.WithAction(e, toast.TypeError, "Upload failed", "Retry", "retry-upload")
func WithAction(e Emitter, level Type, message, actionLabel, actionID string) {
	e.Emit(EventName, map[string]any{
		"level":       string(level),
		"message":     message,
		"actionLabel": actionLabel,
		"actionID":    actionID,
	})
}

// Custom shows a toast with custom data.
func Custom(e Emitter, data map[string]any) {
	e.Emit(EventName, data)
}

// Notifier adapts an Emitter to the upload pipeline's notification hook.
type Notifier struct {
	Emitter Emitter
}

// Notify shows message at level.
func (n Notifier) Notify(level, message string) {
	if n.Emitter == nil {
		return
	}
	Show(n.Emitter, Type(level), message)
}

// Multi fans every event out to all emitters.
type Multi []Emitter

func (m Multi) Emit(name string, data any) {
	for _, e := range m {
		if e != nil {
			e.Emit(name, data)
		}
	}
}

// Terminal prints toasts as colored lines.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewTerminal returns an Emitter writing to w. Color uses ANSI escapes.
func NewTerminal(w io.Writer, color bool) *Terminal {
	return &Terminal{w: w, color: color}
}

func (t *Terminal) Emit(name string, data any) {
	if name != EventName {
		return
	}
	payload, ok := data.(map[string]any)
	if !ok {
		return
	}
	level, _ := payload["level"].(string)
	message, _ := payload["message"].(string)
	if title, ok := payload["title"].(string); ok && title != "" {
		message = title + ": " + message
	}

	symbol, code := "•", "36"
	switch Type(level) {
	case TypeSuccess:
		symbol, code = "✓", "32"
	case TypeError:
		symbol, code = "✗", "31"
	case TypeWarning:
		symbol, code = "⚠", "33"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.color {
		fmt.Fprintf(t.w, "\033[%sm%s\033[0m %s\n", code, symbol, message)
		return
	}
	fmt.Fprintf(t.w, "%s %s\n", symbol, message)
}

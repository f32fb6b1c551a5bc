package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/dropzone/pkg/upload"

// DefaultMaxFiles is used when Config.MaxFiles is zero.
const DefaultMaxFiles = 10

// UploadPath is appended to Config.BaseURL.
const UploadPath = "/app/file/upload/many"

// Notification levels passed to a Notifier.
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// TokenSource supplies the bearer token for an upload.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(level, message string)
}

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	IntakeRejected(incoming int)
	FileAdmitted(status Status, code ValidationCode)
	PreviewResult(ok bool)
	UploadFinished(files int, bytes int64, elapsed time.Duration, err error)
}

// Config configures an Uploader.
type Config struct {
	// BaseURL is the API root; uploads go to BaseURL + UploadPath.
	BaseURL string

	// APIKey is sent as X-API-KEY when set.
	APIKey string

	// Multiple admits many files per intake and appends them. When false
	// only the first file of a batch is taken and it replaces local entries.
	Multiple bool

	// MaxFiles caps existing plus local entries. Default: 10.
	MaxFiles int

	Policy Policy

	// FileConfigs is sent as the JSON "fileConfigs" field when non-empty.
	FileConfigs []map[string]any

	// Existing seeds the registry with files already on the server.
	Existing []RemoteFile

	OnSuccess      func([]FileResult)
	OnError        func(message string)
	OnFilesChanged func([]LocalEntry)
}

// Uploader runs intake and upload against one Registry.
type Uploader struct {
	cfg       Config
	registry  *Registry
	previewer *Previewer
	client    *http.Client
	tokens    TokenSource
	notifier  Notifier
	observer  Observer
	tracer    trace.Tracer
	logger    *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

// WithHTTPClient sets the client used for uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) { u.client = c }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(u *Uploader) { u.tokens = ts }
}

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(u *Uploader) { u.notifier = n }
}

// WithObserver sets the pipeline observer.
func WithObserver(o Observer) Option {
	return func(u *Uploader) { u.observer = o }
}

// WithPreviewer replaces the default previewer.
func WithPreviewer(p *Previewer) Option {
	return func(u *Uploader) { u.previewer = p }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(u *Uploader) { u.tracer = tp.Tracer(tracerName) }
}

// New validates cfg and returns an Uploader seeded with cfg.Existing.
func New(cfg Config, opts ...Option) (*Uploader, error) {
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFiles < 0 {
		return nil, fmt.Errorf("upload: invalid max files %d", cfg.MaxFiles)
	}
	if err := cfg.Policy.Check(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	u := &Uploader{
		cfg:       cfg,
		registry:  NewRegistry(),
		previewer: &Previewer{},
		client:    http.DefaultClient,
		tokens:    TokenFunc(func(context.Context) (string, error) { return "", nil }),
		notifier:  nopNotifier{},
		observer:  nopObserver{},
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default().With("component", "upload"),
	}
	for _, opt := range opts {
		opt(u)
	}

	if len(cfg.Existing) > 0 {
		u.registry.SetExisting(RemoteEntries(cfg.Existing))
	}
	return u, nil
}

// Config returns the effective configuration.
func (u *Uploader) Config() Config { return u.cfg }

// Registry returns the underlying registry.
func (u *Uploader) Registry() *Registry { return u.registry }

// Entries returns existing entries first, then local entries in intake order.
func (u *Uploader) Entries() []Entry { return u.registry.Entries() }

// Snapshot returns the current registry state.
func (u *Uploader) Snapshot() Snapshot { return u.registry.Snapshot() }

// Subscribe delivers every registry snapshot to fn.
func (u *Uploader) Subscribe(fn func(Snapshot)) (cancel func()) {
	return u.registry.Subscribe(fn)
}

// SetExisting replaces the existing entries.
func (u *Uploader) SetExisting(files []RemoteFile) {
	u.registry.SetExisting(RemoteEntries(files))
}

// Remove drops an entry. Removing a local entry re-sends OnFilesChanged.
func (u *Uploader) Remove(id string) bool {
	removed, ok := u.registry.Remove(id)
	if !ok {
		return false
	}
	if _, local := removed.(LocalEntry); local {
		u.filesChanged()
	}
	return true
}

// Close releases every preview. Intake and Upload fail with ErrClosed afterwards.
func (u *Uploader) Close() error {
	u.registry.Close()
	return nil
}

// filesChanged reports local entries that did not fail validation.
func (u *Uploader) filesChanged() {
	if u.cfg.OnFilesChanged == nil {
		return
	}
	var valid []LocalEntry
	for _, e := range u.registry.Snapshot().Locals() {
		if e.Status != StatusError {
			valid = append(valid, e)
		}
	}
	u.cfg.OnFilesChanged(valid)
}

// fail notifies and reports message through OnError.
func (u *Uploader) fail(err error) {
	msg := Message(err)
	level := LevelError
	if errors.Is(err, ErrNothingToUpload) {
		level = LevelWarning
	}
	u.notifier.Notify(level, msg)
	if u.cfg.OnError != nil {
		u.cfg.OnError(msg)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}

type nopObserver struct{}

func (nopObserver) IntakeRejected(int) {}
func (nopObserver) FileAdmitted(Status, ValidationCode) {}
func (nopObserver) PreviewResult(bool) {}
func (nopObserver) UploadFinished(int, int64, time.Duration, error) {}

package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/dropzone/pkg/upload"
)

// Config configures Metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "dropzone").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "dropzone",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records pipeline and HTTP metrics. It implements
// upload.Observer:
//
//	m := telemetry.NewMetrics(telemetry.WithRegistry(reg))
//	u, _ := upload.New(cfg, upload.WithObserver(m))
//
// Metrics collected:
//   - dropzone_intake_rejected_total: batches refused by the file ceiling
//   - dropzone_files_admitted_total: admitted files by status and validation code
//   - dropzone_previews_total: preview attempts by result
//   - dropzone_uploads_total: upload requests by outcome
//   - dropzone_upload_duration_seconds: upload request duration
//   - dropzone_uploaded_bytes_total, dropzone_uploaded_files_total
//   - dropzone_http_requests_total: server requests by method, route and status
//   - dropzone_http_request_duration_seconds: server request duration
//   - dropzone_http_requests_in_flight
type Metrics struct {
	intakeRejected prometheus.Counter
	filesAdmitted  *prometheus.CounterVec
	previews       *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	uploadedBytes  prometheus.Counter
	uploadedFiles  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

var _ upload.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors. Registering twice on the same
// registry panics.
func NewMetrics(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}
	histogram := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}
	}

	return &Metrics{
		intakeRejected: factory.NewCounter(counter("intake_rejected_total", "Intake batches refused by the max-files ceiling")),
		filesAdmitted:  factory.NewCounterVec(counter("files_admitted_total", "Files admitted to the registry"), []string{"status", "code"}),
		previews:       factory.NewCounterVec(counter("previews_total", "Preview generation attempts"), []string{"result"}),
		uploads:        factory.NewCounterVec(counter("uploads_total", "Upload requests by outcome"), []string{"outcome"}),
		uploadDuration: factory.NewHistogram(histogram("upload_duration_seconds", "Upload request duration in seconds")),
		uploadedBytes:  factory.NewCounter(counter("uploaded_bytes_total", "Bytes confirmed by the server")),
		uploadedFiles:  factory.NewCounter(counter("uploaded_files_total", "Files confirmed by the server")),

		httpRequests: factory.NewCounterVec(counter("http_requests_total", "HTTP requests served"), []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(histogram("http_request_duration_seconds", "HTTP request duration in seconds"), []string{"method", "route"}),
		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_in_flight",
			Help:        "HTTP requests currently being served",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// IntakeRejected implements upload.Observer.
func (m *Metrics) IntakeRejected(int) {
	m.intakeRejected.Inc()
}

// FileAdmitted implements upload.Observer.
func (m *Metrics) FileAdmitted(status upload.Status, code upload.ValidationCode) {
	c := string(code)
	if c == "" {
		c = "none"
	}
	m.filesAdmitted.WithLabelValues(status.String(), c).Inc()
}

// PreviewResult implements upload.Observer.
func (m *Metrics) PreviewResult(ok bool) {
	result := "skipped"
	if ok {
		result = "ok"
	}
	m.previews.WithLabelValues(result).Inc()
}

// UploadFinished implements upload.Observer.
func (m *Metrics) UploadFinished(files int, bytes int64, elapsed time.Duration, err error) {
	m.uploadDuration.Observe(elapsed.Seconds())
	m.uploads.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		m.uploadedFiles.Add(float64(files))
		m.uploadedBytes.Add(float64(bytes))
	}
}

// Outcome maps an upload error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, upload.ErrAuthMissing):
		return "auth_missing"
	case errors.Is(err, upload.ErrServerRejected):
		return "server_rejected"
	case errors.Is(err, upload.ErrTransport):
		return "transport"
	case errors.Is(err, upload.ErrBusy):
		return "busy"
	case errors.Is(err, upload.ErrNothingToUpload):
		return "nothing_to_upload"
	case errors.Is(err, upload.ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}

// Middleware records HTTP metrics. Routes are labelled with the chi
// route pattern so ids in paths don't create new series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

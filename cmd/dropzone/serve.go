package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/dropzone/internal/config"
	"github.com/vango-dev/dropzone/internal/errors"
	"github.com/vango-dev/dropzone/pkg/auth"
	"github.com/vango-dev/dropzone/pkg/endpoint"
	"github.com/vango-dev/dropzone/pkg/telemetry"
	"github.com/vango-dev/dropzone/pkg/upload"
)

const shutdownTimeout = 30 * time.Second

type serveFlags struct {
	addr      string
	dir       string
	publicURL string
	tokens    []string
	secret    string
	apiKey    string
	maxSize   int
	maxAge    time.Duration
	metrics   bool
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference upload endpoint",
		Long: `Run an upload endpoint that stores files on disk.

Routes:
  POST   /app/file/upload/many   multipart upload (files[], fileConfigs)
  GET    /app/file/list          stored files
  GET    /files/{id}             download a stored file
  DELETE /files/{id}             remove a stored file
  GET    /health                 health check
  GET    /metrics                Prometheus metrics (with --metrics)

Requests need "Authorization: Bearer <token>" matching --token or a JWT
signed with --secret, plus X-API-KEY when --api-key is set.

Examples:
  dropzone serve --token dev-token
  dropzone serve --addr :9000 --dir /var/lib/dropzone --max-age 72h
  dropzone serve --secret dev-secret --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "Listen address (default from config, :8080)")
	fl.StringVar(&f.dir, "dir", "", "Storage directory (default from config, ./uploads)")
	fl.StringVar(&f.publicURL, "public-url", "", "Base URL used in returned file links")
	fl.StringArrayVar(&f.tokens, "token", nil, "Accepted bearer token (repeatable)")
	fl.StringVar(&f.secret, "secret", "", "Accept HS256 JWTs signed with this secret")
	fl.StringVar(&f.apiKey, "api-key", "", "Required X-API-KEY value")
	fl.IntVar(&f.maxSize, "max-size", 0, "Per-file limit in MB (max 100)")
	fl.DurationVar(&f.maxAge, "max-age", 0, "Delete stored files older than this")
	fl.BoolVar(&f.metrics, "metrics", false, "Expose Prometheus metrics at /metrics")

	return cmd
}

func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	sc := &cfg.Serve
	if f.addr != "" {
		sc.Addr = f.addr
	}
	if f.dir != "" {
		sc.Dir = f.dir
	}
	if f.publicURL != "" {
		sc.PublicURL = f.publicURL
	}
	if len(f.tokens) > 0 {
		sc.Tokens = f.tokens
	}
	if f.secret != "" {
		sc.HMACSecret = f.secret
	}
	if f.apiKey != "" {
		sc.APIKey = f.apiKey
	}
	if f.maxSize > 0 {
		sc.MaxSizeMB = f.maxSize
	}
	if f.maxAge > 0 {
		sc.MaxAge = f.maxAge.String()
	}
	if cmd.Flags().Changed("metrics") {
		sc.Metrics = f.metrics
	}
}

func runServe(cfg *config.Config) error {
	logger := slog.Default()
	sc := cfg.Serve

	maxBytes := upload.HardMaxBytes
	if sc.MaxSizeMB > 0 {
		maxBytes = int64(sc.MaxSizeMB) * upload.MB
	}

	store, err := endpoint.NewDiskStore(sc.Dir, maxBytes)
	if err != nil {
		return errors.New("E061").WithDetail(err.Error()).Wrap(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(telemetry.WithRegistry(registry))

	mw := []func(http.Handler) http.Handler{
		telemetry.Tracing(telemetry.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		})),
		metrics.Middleware,
	}
	if guard, ok := newGuard(sc); ok {
		mw = append(mw, guard.Middleware)
	} else {
		logger.Warn("no tokens configured, uploads are not authenticated")
	}

	api := endpoint.New(store, endpoint.Options{
		PublicURL:   sc.PublicURL,
		MaxFileSize: maxBytes,
		MaxFiles:    sc.MaxFiles,
		Accept:      sc.Accept,
		Middleware:  mw,
		Logger:      logger,
	})

	r := chi.NewRouter()
	if sc.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	r.Mount("/", api)

	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return errors.New("E142").WithDetail(err.Error()).Wrap(err)
	}
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	if maxAge := config.Duration(sc.MaxAge); maxAge > 0 {
		interval := config.Duration(sc.CleanupInterval)
		if interval <= 0 {
			interval = time.Hour
		}
		go api.RunCleanup(cleanupCtx, interval, maxAge)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	logger.Info("serving uploads",
		"addr", ln.Addr().String(),
		"dir", sc.Dir,
		"max_file_bytes", maxBytes,
		"metrics", sc.Metrics,
	)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				logger.Info("shutting down")
				return srv.Shutdown(ctx)
			},
			"cleanup": func(context.Context) error {
				stopCleanup()
				return nil
			},
		},
	)

	select {
	case err := <-serveErr:
		return errors.New("E142").WithDetail(err.Error()).Wrap(err)
	case code := <-wait:
		if code != 0 {
			return errors.New("E142").WithDetail("shutdown did not complete cleanly")
		}
		return nil
	}
}

// newGuard builds the bearer check from the configured tokens and
// secret. ok is false when neither is set.
func newGuard(sc config.ServeConfig) (auth.Guard, bool) {
	var validators []auth.Validator
	if len(sc.Tokens) > 0 {
		validators = append(validators, auth.StaticTokens(sc.Tokens...))
	}
	if sc.HMACSecret != "" {
		validators = append(validators, auth.HMACTokens([]byte(sc.HMACSecret)))
	}
	if len(validators) == 0 {
		return auth.Guard{}, false
	}
	return auth.Guard{
		Validate: auth.AnyOf(validators...),
		APIKey:   sc.APIKey,
		Public:   endpoint.Public,
	}, true
}

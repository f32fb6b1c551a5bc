package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/dropzone/internal/config"
	"github.com/vango-dev/dropzone/internal/errors"
	"github.com/vango-dev/dropzone/pkg/auth"
	"github.com/vango-dev/dropzone/pkg/existing"
	"github.com/vango-dev/dropzone/pkg/live"
	"github.com/vango-dev/dropzone/pkg/telemetry"
	"github.com/vango-dev/dropzone/pkg/toast"
	"github.com/vango-dev/dropzone/pkg/upload"
)

type uploadFlags struct {
	baseURL     string
	token       string
	maxFiles    int
	maxSize     int
	accept      []string
	single      bool
	thumb       string
	liveAddr    string
	jsonOut     bool
	dryRun      bool
	existing    string
	existingURL string
	s3Bucket    string
	s3Prefix    string
	minioBucket string
}

func uploadCmd(flags *globalFlags) *cobra.Command {
	var f uploadFlags

	cmd := &cobra.Command{
		Use:   "upload [paths...]",
		Short: "Validate and upload files",
		Long: `Validate files and send them to the upload endpoint.

Every file is checked against the size limits, the filename rules and
the accept policy. Files that fail stay in the list with their reason
and are not sent. Files the server already holds count towards
--max-files.

Examples:
  dropzone upload photo.jpg scan.pdf
  dropzone upload --accept 'image/*' --max-size 5 *.png
  dropzone upload --existing existing.yaml --dry-run new.png
  dropzone upload --live :9090 big/*.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := f.apply(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runUpload(ctx, cfg, &f, flags.noColor, args, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.baseURL, "base-url", "", "Upload endpoint base URL (default from config)")
	fl.StringVarP(&f.token, "token", "t", "", "Bearer token (default: config, Redis, then login session)")
	fl.IntVarP(&f.maxFiles, "max-files", "n", 0, "Maximum number of files, existing ones included")
	fl.IntVar(&f.maxSize, "max-size", 0, "Per-file size limit in MB (hard cap 100)")
	fl.StringArrayVarP(&f.accept, "accept", "a", nil, "Accepted type or extension, e.g. image/* or .pdf (repeatable)")
	fl.BoolVar(&f.single, "single", false, "Single-file mode: the last valid file replaces the pending one")
	fl.StringVar(&f.thumb, "thumb", "", "Scale previews to fit WxH, e.g. 320x240")
	fl.StringVar(&f.liveAddr, "live", "", "Serve the live websocket feed and /metrics on this address")
	fl.BoolVar(&f.jsonOut, "json", false, "Print results as JSON")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Validate and list files without uploading")
	fl.StringVar(&f.existing, "existing", "", "JSON or YAML list of files already on the server")
	fl.StringVar(&f.existingURL, "existing-url", "", "Endpoint listing files already on the server")
	fl.StringVar(&f.s3Bucket, "s3-bucket", "", "S3 bucket holding existing files")
	fl.StringVar(&f.s3Prefix, "s3-prefix", "", "Key prefix within --s3-bucket")
	fl.StringVar(&f.minioBucket, "minio-bucket", "", "MinIO bucket holding existing files (endpoint from config)")

	return cmd
}

// apply copies the flags that were set over the configuration.
func (f *uploadFlags) apply(cfg *config.Config) error {
	if f.baseURL != "" {
		cfg.Endpoint.BaseURL = f.baseURL
	}
	if f.token != "" {
		cfg.Auth.Token = f.token
	}
	if f.maxFiles > 0 {
		cfg.Upload.MaxFiles = f.maxFiles
	}
	if f.maxSize > 0 {
		cfg.Upload.MaxSizeMB = f.maxSize
	}
	if f.single {
		single := false
		cfg.Upload.Multiple = &single
	}
	if len(f.accept) > 0 {
		cfg.Upload.Accept = parseAccept(f.accept)
	}
	if f.thumb != "" {
		w, h, err := parseThumb(f.thumb)
		if err != nil {
			return errors.New("E122").WithDetail(err.Error())
		}
		cfg.Preview.MaxWidth, cfg.Preview.MaxHeight = w, h
	}
	if f.liveAddr != "" {
		cfg.Live.Addr = f.liveAddr
	}
	if f.existing != "" {
		cfg.Existing.File = f.existing
	}
	if f.existingURL != "" {
		cfg.Existing.URL = f.existingURL
	}
	if f.s3Bucket != "" {
		if cfg.Existing.S3 == nil {
			cfg.Existing.S3 = &config.S3Config{}
		}
		cfg.Existing.S3.Bucket = f.s3Bucket
		if f.s3Prefix != "" {
			cfg.Existing.S3.Prefix = f.s3Prefix
		}
	}
	if f.minioBucket != "" {
		if cfg.Existing.MinIO == nil {
			cfg.Existing.MinIO = &config.MinIOConfig{}
		}
		cfg.Existing.MinIO.Bucket = f.minioBucket
	}
	return cfg.Validate()
}

// parseAccept splits values into MIME patterns and extensions. "*" and
// "*/*" admit everything.
func parseAccept(values []string) upload.Accept {
	var a upload.Accept
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			switch {
			case item == "":
			case item == "*" || item == "*/*":
				a.Any = true
			case strings.Contains(item, "/"):
				a.Types = append(a.Types, item)
			default:
				a.Extensions = append(a.Extensions, item)
			}
		}
	}
	if a.Types == nil && a.Extensions == nil && !a.Any {
		a.Types = []string{}
	}
	return a
}

func parseThumb(s string) (w, h int, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("--thumb %q must look like 320x240", s)
	}
	if w, err = strconv.Atoi(ws); err != nil || w < 0 {
		return 0, 0, fmt.Errorf("--thumb width %q is not a number", ws)
	}
	if h, err = strconv.Atoi(hs); err != nil || h < 0 {
		return 0, 0, fmt.Errorf("--thumb height %q is not a number", hs)
	}
	return w, h, nil
}

func runUpload(ctx context.Context, cfg *config.Config, f *uploadFlags, noColor bool, paths []string, out io.Writer) error {
	logger := slog.Default()

	tokens, closeTokens := tokenSource(cfg)
	defer closeTokens()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(telemetry.WithRegistry(registry))

	blobs := upload.NewBlobStore()
	var hub *live.Hub
	emitters := toast.Multi{toast.NewTerminal(os.Stderr, !noColor)}
	if cfg.Live.Addr != "" {
		hub = live.NewHub(live.Options{Blobs: blobs, Logger: logger})
		emitters = append(emitters, hub)
	}

	client := &http.Client{Timeout: config.Duration(cfg.Endpoint.Timeout)}
	u, err := upload.New(cfg.UploadConfig(),
		upload.WithLogger(logger),
		upload.WithHTTPClient(client),
		upload.WithTokenSource(tokens),
		upload.WithNotifier(toast.Notifier{Emitter: emitters}),
		upload.WithObserver(metrics),
		upload.WithPreviewer(cfg.Previewer(blobs)),
	)
	if err != nil {
		return errors.FromUpload(err)
	}
	defer u.Close()

	if hub != nil {
		defer hub.Attach(u)()
		stopLive, err := serveLive(cfg.Live.Addr, hub, registry, logger)
		if err != nil {
			return err
		}
		defer stopLive()
	}

	listers, err := buildListers(ctx, cfg, tokens)
	if err != nil {
		return err
	}
	if len(listers) > 0 {
		n, err := existing.Load(ctx, existing.Multi(listers), u)
		if err != nil {
			return errors.New("E060").Wrap(err).WithDetail(err.Error())
		}
		logger.Info("existing files loaded", "count", n)
	}

	sources := make([]upload.Source, 0, len(paths))
	for _, p := range paths {
		src, err := upload.OpenDiskFile(p)
		if err != nil {
			return errors.New("E140").WithDetail(p).Wrap(err)
		}
		sources = append(sources, src)
	}

	if err := u.Intake(ctx, sources); err != nil {
		return errors.FromUpload(err)
	}
	if !f.jsonOut {
		printEntries(out, u.Snapshot())
	}
	if f.dryRun {
		if f.jsonOut {
			return printJSON(out, entryRows(u.Snapshot()))
		}
		return nil
	}

	results, err := u.Upload(ctx)
	if err != nil {
		if f.jsonOut {
			printJSON(out, entryRows(u.Snapshot()))
		}
		return errors.FromUpload(err)
	}

	if f.jsonOut {
		return printJSON(out, map[string]any{"data": results})
	}
	fmt.Fprintln(out)
	printResults(out, results)
	return nil
}

// tokenSource chains the configured sources in order: a fixed token,
// Redis, then the login session. JWTs close to expiry are refused before
// any request is made.
func tokenSource(cfg *config.Config) (upload.TokenSource, func()) {
	var (
		chain   auth.Chain
		closers []func()
	)
	if cfg.Auth.Token != "" {
		chain = append(chain, auth.Static(cfg.Auth.Token))
	}
	if rc := cfg.Auth.Redis; rc != nil {
		key := rc.Key
		if key == "" {
			key = "dropzone:token"
		}
		r := auth.NewRedis(rc.Addr, rc.Password, rc.DB, key)
		chain = append(chain, r)
		closers = append(closers, func() { r.Close() })
	}
	chain = append(chain, sessionFile(cfg.Auth.SessionFile))

	src := auth.WithExpiryCheck(chain, config.Duration(cfg.Auth.ExpiryLeeway))
	return src, func() {
		for _, c := range closers {
			c()
		}
	}
}

// buildListers returns a lister for every configured source of existing
// files.
func buildListers(ctx context.Context, cfg *config.Config, tokens upload.TokenSource) ([]existing.Lister, error) {
	var listers []existing.Lister
	ec := cfg.Existing
	if ec.File != "" {
		listers = append(listers, existing.File{Path: ec.File})
	}
	if ec.URL != "" {
		listers = append(listers, existing.HTTP{URL: ec.URL, Tokens: tokens})
	}
	if sc := ec.S3; sc != nil {
		l, err := existing.NewS3(ctx, existing.S3Options{
			Bucket:    sc.Bucket,
			Prefix:    sc.Prefix,
			Region:    sc.Region,
			Endpoint:  sc.Endpoint,
			URLExpiry: config.Duration(sc.Expiry),
		})
		if err != nil {
			return nil, errors.New("E060").WithDetail(err.Error()).Wrap(err)
		}
		listers = append(listers, l)
	}
	if mc := ec.MinIO; mc != nil {
		l, err := existing.NewMinIO(existing.MinIOOptions{
			Endpoint:  mc.Endpoint,
			AccessKey: mc.AccessKey,
			SecretKey: mc.SecretKey,
			UseSSL:    mc.UseSSL,
			Bucket:    mc.Bucket,
			Prefix:    mc.Prefix,
			URLExpiry: config.Duration(mc.Expiry),
		})
		if err != nil {
			return nil, errors.New("E060").WithDetail(err.Error()).Wrap(err)
		}
		listers = append(listers, l)
	}
	return listers, nil
}

// serveLive starts the websocket feed and /metrics in the background.
func serveLive(addr string, hub *live.Hub, registry *prometheus.Registry, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New("E142").WithDetail("live: " + err.Error()).Wrap(err)
	}

	r := chi.NewRouter()
	hub.Routes(r)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("live server stopped", "error", err)
		}
	}()
	logger.Info("live feed listening", "addr", ln.Addr().String())

	return func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

type entryRow struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	URL    string `json:"url,omitempty"`
}

func entryRows(s upload.Snapshot) []entryRow {
	rows := make([]entryRow, 0, len(s.Entries))
	for _, e := range s.Entries {
		rows = append(rows, upload.Match(e,
			func(l upload.LocalEntry) entryRow {
				row := entryRow{
					Kind:   "local",
					Name:   l.DisplayName(),
					Type:   l.Type,
					Size:   l.ByteSize(),
					Status: l.Status.String(),
					Error:  l.Err,
				}
				if l.Result != nil {
					row.URL = l.Result.URL
				}
				return row
			},
			func(r upload.RemoteEntry) entryRow {
				return entryRow{
					Kind:   "remote",
					Name:   r.Filename,
					Type:   r.Type,
					Size:   r.Size,
					Status: "stored",
					URL:    r.URL,
				}
			},
		))
	}
	return rows
}

func printEntries(w io.Writer, s upload.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tTYPE\tSIZE\tSTATUS\t")
	for _, row := range entryRows(s) {
		status := row.Status
		if row.Error != "" {
			status += ": " + row.Error
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t\n", row.Name, row.Type, humanSize(row.Size), status)
	}
	tw.Flush()
}

func printResults(w io.Writer, results []upload.FileResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  FILE\tSIZE\tURL\t")
	for _, r := range results {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t\n", r.Filename, humanSize(r.Size), r.URL)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func humanSize(n int64) string {
	switch {
	case n >= upload.MB:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(upload.MB))
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}

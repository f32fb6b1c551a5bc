package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vango-dev/dropzone/pkg/upload"
)

const (
	// ListPath returns every stored file in the upload response shape.
	ListPath = "/app/file/list"

	// FilesPath is the prefix stored files are served under.
	FilesPath = "/files"

	maxConfigBytes = 1 << 20
)

// Options configures the endpoint.
type Options struct {
	// PublicURL prefixes the URLs of stored files. Empty means the
	// scheme and host of the request.
	PublicURL string

	// MaxFileSize is the per-file limit in bytes. Default: 100MB.
	MaxFileSize int64

	// MaxFiles is the per-request limit. Default: 10.
	MaxFiles int

	// Accept restricts file types. An empty Accept admits everything.
	Accept upload.Accept

	// Middleware runs before every route, e.g. auth.Guard.
	Middleware []func(http.Handler) http.Handler

	Logger *slog.Logger
}

// Server is a reference implementation of the upload endpoint the
// pipeline talks to.
type Server struct {
	store  Store
	opts   Options
	logger *slog.Logger
	router chi.Router
}

// New builds the endpoint over store.
func New(store Store, opts Options) *Server {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = upload.HardMaxBytes
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = upload.DefaultMaxFiles
	}
	if len(opts.Accept.Types) == 0 && len(opts.Accept.Extensions) == 0 {
		opts.Accept.Any = true
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "endpoint"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(opts.Middleware...)

	r.Get("/health", s.handleHealth)
	r.Post(upload.UploadPath, s.handleUpload)
	r.Get(ListPath, s.handleList)
	r.Get(FilesPath+"/{id}", s.handleGet)
	r.Delete(FilesPath+"/{id}", s.handleDelete)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Public reports whether r may skip authentication: health checks and
// reads of stored files.
func Public(r *http.Request) bool {
	if r.URL.Path == "/health" {
		return true
	}
	return r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, FilesPath+"/")
}

// RunCleanup removes files older than maxAge every interval until ctx is
// done.
func (s *Server) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.Cleanup(maxAge)
			if err != nil {
				s.logger.Warn("cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("cleanup", "removed", n)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Limit request body size before reading any part.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.opts.MaxFiles)*s.opts.MaxFileSize+maxConfigBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Expected a multipart/form-data body")
		return
	}

	var (
		saved   []*Meta
		configs []map[string]any
	)
	rollback := func() {
		for _, m := range saved {
			s.store.Delete(m.ID)
		}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rollback()
			s.writeReadError(w, err)
			return
		}

		switch part.FormName() {
		case "files[]", "files":
			if len(saved) >= s.opts.MaxFiles {
				part.Close()
				rollback()
				writeMessage(w, http.StatusBadRequest, fmt.Sprintf("You can upload at most %d files", s.opts.MaxFiles))
				return
			}
			meta, err := s.savePart(part)
			part.Close()
			if err != nil {
				rollback()
				if !isClientError(err) {
					s.logger.Error("save failed", "error", err)
					writeMessage(w, http.StatusInternalServerError, "Upload failed")
					return
				}
				s.writeReadError(w, err)
				return
			}
			saved = append(saved, meta)

		case "fileConfigs":
			data, err := io.ReadAll(io.LimitReader(part, maxConfigBytes))
			part.Close()
			if err != nil {
				rollback()
				s.writeReadError(w, err)
				return
			}
			if err := json.Unmarshal(data, &configs); err != nil {
				rollback()
				writeMessage(w, http.StatusBadRequest, "fileConfigs must be a JSON array")
				return
			}

		default:
			part.Close()
		}
	}

	if len(saved) == 0 {
		writeMessage(w, http.StatusBadRequest, "No files provided")
		return
	}
	if configs != nil && len(configs) != len(saved) {
		s.logger.Debug("fileConfigs length differs from file count", "configs", len(configs), "files", len(saved))
	}

	base := s.baseURL(r)
	results := make([]upload.FileResult, len(saved))
	var total int64
	for i, m := range saved {
		results[i] = s.result(base, m)
		total += m.Size
	}

	s.logger.Info("upload stored",
		"request_id", middleware.GetReqID(r.Context()),
		"files", len(saved),
		"bytes", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

func (s *Server) savePart(part *multipart.Part) (*Meta, error) {
	name := upload.SanitizeFilename(part.FileName())
	typ := part.Header.Get("Content-Type")
	if typ != "" {
		if mt, _, err := mime.ParseMediaType(typ); err == nil {
			typ = mt
		}
	}
	if !s.opts.Accept.Allows(typ, name) {
		return nil, errUnsupported
	}

	meta, err := s.store.Save(name, typ, io.LimitReader(part, s.opts.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if meta.Size > s.opts.MaxFileSize {
		s.store.Delete(meta.ID)
		return nil, ErrTooLarge
	}
	return meta, nil
}

var errUnsupported = errors.New("endpoint: file type not allowed")

func isClientError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || errors.Is(err, ErrTooLarge) || errors.Is(err, errUnsupported)
}

func (s *Server) writeReadError(w http.ResponseWriter, err error) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe), errors.Is(err, ErrTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, "File too large")
	case errors.Is(err, errUnsupported):
		writeMessage(w, http.StatusUnsupportedMediaType, "File type not allowed")
	default:
		writeMessage(w, http.StatusBadRequest, "Failed to read upload")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.List()
	if err != nil {
		s.logger.Error("list failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "List failed")
		return
	}
	base := s.baseURL(r)
	results := make([]upload.FileResult, len(metas))
	for i, m := range metas {
		results[i] = s.result(base, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	meta, rc, err := s.store.Open(chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		s.logger.Error("open failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Read failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": meta.Filename}))
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, meta.Filename, meta.CreatedAt, rs)
		return
	}
	io.Copy(w, rc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("delete failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) baseURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return s.opts.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) result(base string, m *Meta) upload.FileResult {
	return upload.FileResult{
		URL:      base + FilesPath + "/" + m.ID,
		Type:     m.ContentType,
		Size:     m.Size,
		Filename: m.Filename,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

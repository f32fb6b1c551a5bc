package endpoint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/vango-dev/dropzone/pkg/auth"
	"github.com/vango-dev/dropzone/pkg/endpoint"
	"github.com/vango-dev/dropzone/pkg/upload"
)

type part struct {
	field    string
	filename string
	typ      string
	body     string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		disp := `form-data; name="` + p.field + `"`
		if p.filename != "" {
			disp += `; filename="` + p.filename + `"`
		}
		h.Set("Content-Disposition", disp)
		if p.typ != "" {
			h.Set("Content-Type", p.typ)
		}
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		pw.Write([]byte(p.body))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("writer.Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, upload.UploadPath, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newServer(t *testing.T, opts endpoint.Options) (*endpoint.Server, *endpoint.DiskStore) {
	t.Helper()
	store, err := endpoint.NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.PublicURL == "" {
		opts.PublicURL = "https://files.example"
	}
	return endpoint.New(store, opts), store
}

func decodeResults(t *testing.T, rec *httptest.ResponseRecorder) []upload.FileResult {
	t.Helper()
	var body struct {
		Data []upload.FileResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Data
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	return body["message"]
}

func TestUpload_StoresFilesInOrder(t *testing.T) {
	srv, store := newServer(t, endpoint.Options{})

	req := multipartRequest(t,
		part{"files[]", "a report.pdf", "application/pdf", "%PDF-1.4"},
		part{"files[]", "b.txt", "text/plain", "hello"},
		part{"fileConfigs", "", "", `[{"folder":"x"},{}]`},
	)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	results := decodeResults(t, rec)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Filename != "a_report.pdf" || results[0].Type != "application/pdf" {
		t.Fatalf("results[0] = %+v", results[0])
	}
	if results[1].Filename != "b.txt" || results[1].Size != 5 {
		t.Fatalf("results[1] = %+v", results[1])
	}
	if !strings.HasPrefix(results[0].URL, "https://files.example/files/") {
		t.Fatalf("url = %q", results[0].URL)
	}
	if list, _ := store.List(); len(list) != 2 {
		t.Fatalf("stored = %d, want 2", len(list))
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		opts  endpoint.Options
		parts []part
		want  int
		msg   string
	}{
		{
			name:  "no files",
			parts: []part{{"fileConfigs", "", "", "[]"}},
			want:  http.StatusBadRequest,
			msg:   "No files provided",
		},
		{
			name:  "bad configs",
			parts: []part{{"files[]", "a.txt", "text/plain", "a"}, {"fileConfigs", "", "", "{"}},
			want:  http.StatusBadRequest,
			msg:   "fileConfigs must be a JSON array",
		},
		{
			name:  "too many files",
			opts:  endpoint.Options{MaxFiles: 1},
			parts: []part{{"files[]", "a.txt", "text/plain", "a"}, {"files[]", "b.txt", "text/plain", "b"}},
			want:  http.StatusBadRequest,
			msg:   "You can upload at most 1 files",
		},
		{
			name:  "type not allowed",
			opts:  endpoint.Options{Accept: upload.Accept{Types: []string{"image/*"}}},
			parts: []part{{"files[]", "a.txt", "text/plain", "a"}},
			want:  http.StatusUnsupportedMediaType,
			msg:   "File type not allowed",
		},
		{
			name:  "file too large",
			opts:  endpoint.Options{MaxFileSize: 4, MaxFiles: 3},
			parts: []part{{"files[]", "a.txt", "text/plain", "123456"}},
			want:  http.StatusRequestEntityTooLarge,
			msg:   "File too large",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newServer(t, tt.opts)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, multipartRequest(t, tt.parts...))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if got := messageOf(t, rec); got != tt.msg {
				t.Fatalf("message = %q, want %q", got, tt.msg)
			}
			if list, _ := store.List(); len(list) != 0 {
				t.Fatalf("rejected request left %d files behind", len(list))
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	srv, _ := newServer(t, endpoint.Options{})
	req := httptest.NewRequest(http.MethodPost, upload.UploadPath, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetListDelete(t *testing.T) {
	srv, _ := newServer(t, endpoint.Options{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, multipartRequest(t, part{"files[]", "hello.txt", "text/plain", "hello"}))
	stored := decodeResults(t, rec)[0]
	path := strings.TrimPrefix(stored.URL, "https://files.example")

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("GET = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "hello.txt") {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.ListPath, nil))
	if list := decodeResults(t, rec); len(list) != 1 || list[0].URL != stored.URL {
		t.Fatalf("list = %+v", list)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET after delete = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, endpoint.Options{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGuardedEndpoint(t *testing.T) {
	guard := auth.Guard{Validate: auth.StaticTokens("dev"), Public: endpoint.Public}
	srv, _ := newServer(t, endpoint.Options{Middleware: []func(http.Handler) http.Handler{guard.Middleware}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, multipartRequest(t, part{"files[]", "a.txt", "text/plain", "a"}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

// The uploader and the endpoint agree on the wire format.
func TestUploaderRoundTrip(t *testing.T) {
	srv, store := newServer(t, endpoint.Options{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	u, err := upload.New(upload.Config{
		BaseURL:  ts.URL,
		Multiple: true,
		Policy:   upload.Policy{Accept: upload.AcceptAny()},
	}, upload.WithTokenSource(upload.TokenFunc(func(context.Context) (string, error) { return "tok", nil })))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer u.Close()

	ctx := context.Background()
	if err := u.Intake(ctx, []upload.Source{
		upload.NewMemoryFile("one.txt", "text/plain", []byte("one")),
		upload.NewMemoryFile("two.txt", "text/plain", []byte("two!")),
	}); err != nil {
		t.Fatalf("Intake: %v", err)
	}
	results, err := u.Upload(ctx)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(results) != 2 || results[1].Size != 4 {
		t.Fatalf("results = %+v", results)
	}
	if list, _ := store.List(); len(list) != 2 {
		t.Fatalf("stored = %d, want 2", len(list))
	}
	for _, e := range u.Snapshot().Locals() {
		if e.Status != upload.StatusSuccess {
			t.Fatalf("entry %s status = %v", e.ID, e.Status)
		}
	}
}

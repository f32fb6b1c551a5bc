package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vango-dev/dropzone/pkg/upload"
)

type receivedPart struct {
	filename    string
	contentType string
	body        string
}

type fakeEndpoint struct {
	mu      sync.Mutex
	calls   atomic.Int32
	auth    string
	apiKey  string
	parts   []receivedPart
	configs string

	status int
	body   string
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Path != upload.UploadPath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var parts []receivedPart
	var configs string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(p)
		switch p.FormName() {
		case "files[]":
			parts = append(parts, receivedPart{
				filename:    p.FileName(),
				contentType: p.Header.Get("Content-Type"),
				body:        string(data),
			})
		case "fileConfigs":
			configs = string(data)
		}
	}

	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.apiKey = r.Header.Get("X-API-KEY")
	f.parts = parts
	f.configs = configs
	f.mu.Unlock()

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, f.body)
}

func staticToken(token string) upload.TokenSource {
	return upload.TokenFunc(func(context.Context) (string, error) { return token, nil })
}

func newUploadFixture(t *testing.T, ep *fakeEndpoint, cfg upload.Config, opts ...upload.Option) *upload.Uploader {
	t.Helper()
	srv := httptest.NewServer(ep)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/"
	cfg.Multiple = true
	if cfg.Policy.Accept.Types == nil && cfg.Policy.Accept.Extensions == nil {
		cfg.Policy.Accept = upload.AcceptAny()
	}
	opts = append([]upload.Option{upload.WithHTTPClient(srv.Client())}, opts...)
	return newUploader(t, cfg, opts...)
}

func TestUpload_SendsMultipartAndMarksSuccess(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":[
		{"url":"https://cdn/x/my_photo.png","type":"image/png","size":61,"filename":"my_photo.png"},
		{"link":"https://cdn/x/notes.bin","mimeType":"application/octet-stream","size":5,"filename":"notes.bin"}
	]}`}
	var got []upload.FileResult
	u := newUploadFixture(t, ep, upload.Config{
		APIKey:      "key-1",
		FileConfigs: []map[string]any{{"folder": "invoices"}},
		OnSuccess:   func(r []upload.FileResult) { got = r },
	}, upload.WithTokenSource(staticToken("tok")))

	batch := []upload.Source{
		&fakeSource{name: "my photo.png", typ: "image/png", data: []byte("pngdata")},
		&fakeSource{name: "notes.bin", typ: "", data: []byte("hello")},
	}
	if err := u.Intake(context.Background(), batch); err != nil {
		t.Fatalf("Intake: %v", err)
	}

	results, err := u.Upload(context.Background())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(results) != 2 || len(got) != 2 {
		t.Fatalf("results = %d, OnSuccess got %d; want 2", len(results), len(got))
	}
	if got[1].URL != "https://cdn/x/notes.bin" || got[1].Type != "application/octet-stream" {
		t.Fatalf("alias fields not normalized: %+v", got[1])
	}

	if ep.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", ep.calls.Load())
	}
	if ep.auth != "Bearer tok" || ep.apiKey != "key-1" {
		t.Fatalf("headers = %q, %q", ep.auth, ep.apiKey)
	}
	if len(ep.parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(ep.parts))
	}
	if ep.parts[0].filename != "my_photo.png" || ep.parts[0].contentType != "image/png" || ep.parts[0].body != "pngdata" {
		t.Fatalf("parts[0] = %+v", ep.parts[0])
	}
	if ep.parts[1].contentType != "application/octet-stream" {
		t.Fatalf("parts[1] content type = %q, want default", ep.parts[1].contentType)
	}
	var configs []map[string]any
	if err := json.Unmarshal([]byte(ep.configs), &configs); err != nil || configs[0]["folder"] != "invoices" {
		t.Fatalf("fileConfigs = %q (%v)", ep.configs, err)
	}

	for _, l := range u.Snapshot().Locals() {
		if l.Status != upload.StatusSuccess {
			t.Fatalf("%s status = %v, want success", l.Name, l.Status)
		}
		if l.Result == nil || l.Result.URL == "" {
			t.Fatalf("%s has no server result", l.Name)
		}
	}
	if name := u.Snapshot().Locals()[0].DisplayName(); name != "my_photo.png" {
		t.Fatalf("DisplayName = %q, want server-confirmed name", name)
	}
}

func TestUpload_ObjectDataKeepsDocumentOrder(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":{"z":{"url":"u1","filename":"first.txt","size":1},"a":{"url":"u2","filename":"second.txt","size":2}}}`}
	u := newUploadFixture(t, ep, upload.Config{}, upload.WithTokenSource(staticToken("tok")))

	batch := []upload.Source{
		&fakeSource{name: "1.txt", typ: "text/plain", data: []byte("1")},
		&fakeSource{name: "2.txt", typ: "text/plain", data: []byte("22")},
	}
	if err := u.Intake(context.Background(), batch); err != nil {
		t.Fatalf("Intake: %v", err)
	}
	results, err := u.Upload(context.Background())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if results[0].Filename != "first.txt" || results[1].Filename != "second.txt" {
		t.Fatalf("results = %+v", results)
	}
	locals := u.Snapshot().Locals()
	if locals[0].DisplayName() != "first.txt" || locals[1].DisplayName() != "second.txt" {
		t.Fatalf("positional mapping broken: %q, %q", locals[0].DisplayName(), locals[1].DisplayName())
	}
}

func TestUpload_NoTokenMakesNoRequest(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":[]}`}
	notes := &recordingNotifier{}
	u := newUploadFixture(t, ep, upload.Config{},
		upload.WithTokenSource(staticToken("")),
		upload.WithNotifier(notes),
	)
	if err := u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")}); err != nil {
		t.Fatalf("Intake: %v", err)
	}
	before := u.Snapshot().Version

	_, err := u.Upload(context.Background())
	if !errors.Is(err, upload.ErrAuthMissing) {
		t.Fatalf("err = %v, want ErrAuthMissing", err)
	}
	if ep.calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", ep.calls.Load())
	}
	if v := u.Snapshot().Version; v != before {
		t.Fatalf("registry mutated: version %d -> %d", before, v)
	}
	if l := u.Snapshot().Locals()[0]; l.Status != upload.StatusPending {
		t.Fatalf("status = %v, want pending", l.Status)
	}
	if level, _ := notes.last(); level != upload.LevelError {
		t.Fatalf("notification level = %q", level)
	}
}

func TestUpload_TokenSourceErrorIsAuthMissing(t *testing.T) {
	ep := &fakeEndpoint{}
	u := newUploadFixture(t, ep, upload.Config{}, upload.WithTokenSource(upload.TokenFunc(
		func(context.Context) (string, error) { return "", errors.New("session expired") },
	)))
	u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")})

	if _, err := u.Upload(context.Background()); !errors.Is(err, upload.ErrAuthMissing) {
		t.Fatalf("err = %v, want ErrAuthMissing", err)
	}
	if ep.calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", ep.calls.Load())
	}
}

func TestUpload_ServerErrorMarksBatch(t *testing.T) {
	ep := &fakeEndpoint{status: http.StatusInternalServerError, body: `{"message":"disk full"}`}
	var onErr string
	u := newUploadFixture(t, ep, upload.Config{OnError: func(m string) { onErr = m }},
		upload.WithTokenSource(staticToken("tok")))
	u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png"), imageSource(t, "b.png")})

	_, err := u.Upload(context.Background())
	var serr *upload.ServerError
	if !errors.As(err, &serr) || serr.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want *ServerError 500", err)
	}
	if !errors.Is(err, upload.ErrServerRejected) {
		t.Fatal("expected errors.Is(ErrServerRejected)")
	}
	for _, l := range u.Snapshot().Locals() {
		if l.Status != upload.StatusError || l.Err != "disk full" {
			t.Fatalf("%s = %v %q, want error \"disk full\"", l.Name, l.Status, l.Err)
		}
	}
	if onErr != "disk full" {
		t.Fatalf("OnError = %q", onErr)
	}
	if u.Snapshot().Uploading {
		t.Fatal("in-flight flag not cleared")
	}
}

func TestUpload_ServerErrorFallbackMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"quota exceeded"}`, "quota exceeded"},
		{`not json`, "HTTP 502: Bad Gateway"},
		{``, "HTTP 502: Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ep := &fakeEndpoint{status: http.StatusBadGateway, body: tt.body}
			u := newUploadFixture(t, ep, upload.Config{}, upload.WithTokenSource(staticToken("tok")))
			u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")})

			_, err := u.Upload(context.Background())
			if err == nil || err.Error() != tt.want {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestUpload_TransportFailureMarksBatch(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	u := newUploader(t, upload.Config{
		BaseURL:  srv.URL,
		Multiple: true,
		Policy:   upload.Policy{Accept: upload.AcceptAny()},
	}, upload.WithTokenSource(staticToken("tok")))
	u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")})

	_, err := u.Upload(context.Background())
	if !errors.Is(err, upload.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	l := u.Snapshot().Locals()[0]
	if l.Status != upload.StatusError || l.Err == "" {
		t.Fatalf("entry = %v %q, want error with message", l.Status, l.Err)
	}
}

func TestUpload_MalformedSuccessBodyIsTransportError(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":"nope"}`}
	u := newUploadFixture(t, ep, upload.Config{}, upload.WithTokenSource(staticToken("tok")))
	u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")})

	if _, err := u.Upload(context.Background()); !errors.Is(err, upload.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestUpload_TwiceAfterSuccessIsNoop(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":[{"url":"u","filename":"a.png","size":1}]}`}
	u := newUploadFixture(t, ep, upload.Config{}, upload.WithTokenSource(staticToken("tok")))
	u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")})

	if _, err := u.Upload(context.Background()); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	version := u.Snapshot().Version

	if _, err := u.Upload(context.Background()); !errors.Is(err, upload.ErrNothingToUpload) {
		t.Fatalf("second Upload = %v, want ErrNothingToUpload", err)
	}
	if ep.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", ep.calls.Load())
	}
	if u.Snapshot().Version != version {
		t.Fatal("second Upload mutated the registry")
	}
}

func TestUpload_SkipsInvalidEntries(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":[]}`}
	u := newUploadFixture(t, ep, upload.Config{Policy: upload.Policy{Accept: upload.Accept{Types: []string{"image/*"}}}},
		upload.WithTokenSource(staticToken("tok")))
	u.Intake(context.Background(), []upload.Source{
		imageSource(t, "a.png"),
		&fakeSource{name: "b.txt", typ: "text/plain", data: []byte("b")},
	})

	if _, err := u.Upload(context.Background()); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(ep.parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(ep.parts))
	}
	locals := u.Snapshot().Locals()
	if locals[0].Status != upload.StatusSuccess || locals[1].Status != upload.StatusError {
		t.Fatalf("statuses = %v, %v", locals[0].Status, locals[1].Status)
	}
	// No result for the file: local name and size are kept.
	if locals[0].Result == nil || locals[0].Result.Filename != "a.png" {
		t.Fatalf("Result = %+v", locals[0].Result)
	}
}

func TestUpload_StatusSequenceObservedBySubscribers(t *testing.T) {
	ep := &fakeEndpoint{body: `{"data":[]}`}
	u := newUploadFixture(t, ep, upload.Config{}, upload.WithTokenSource(staticToken("tok")))
	u.Intake(context.Background(), []upload.Source{imageSource(t, "a.png")})

	var seen []upload.Status
	cancel := u.Subscribe(func(s upload.Snapshot) {
		if l := s.Locals(); len(l) == 1 {
			seen = append(seen, l[0].Status)
		}
	})
	defer cancel()

	if _, err := u.Upload(context.Background()); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := []upload.Status{upload.StatusPending, upload.StatusUploading, upload.StatusSuccess}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/dropzone/pkg/auth"
	"github.com/vango-dev/dropzone/pkg/upload"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "intake error",
			code:    "E001",
			wantMsg: "Too many files",
			wantCat: CategoryIntake,
		},
		{
			name:    "auth error",
			code:    "E020",
			wantMsg: "Authentication token not found",
			wantCat: CategoryAuth,
		},
		{
			name:    "config error",
			code:    "E120",
			wantMsg: "Invalid configuration file",
			wantCat: CategoryConfig,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNew_CopiesSuggestion(t *testing.T) {
	err := New("E020")
	if !strings.Contains(err.Suggestion, "dropzone login") {
		t.Errorf("Suggestion = %q, want login hint", err.Suggestion)
	}
	if !strings.HasSuffix(err.DocURL, "#e020") {
		t.Errorf("DocURL = %q", err.DocURL)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "file %q not found", "photo.png")
	if err.Message != `file "photo.png" not found` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
	if err.Error() != err.Message {
		t.Errorf("Error() = %q, want bare message", err.Error())
	}
}

func TestError(t *testing.T) {
	err := New("E003")
	if got, want := err.Error(), "E003: Upload in progress"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := New("E040").Wrap(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestWithLocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dropzone.yaml")
	content := "endpoint:\n  baseUrl: http://localhost\nupload:\n  maxFiles: 5\n  accept types: [image/*]\n  maxSizeMB: 10\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	err := New("E120").WithLocation(path, 4, 3)
	if err.Location == nil {
		t.Fatal("Location not set")
	}
	if got := err.Location.String(); got != path+":4:3" {
		t.Errorf("Location = %q", got)
	}
	if len(err.Context) != 5 {
		t.Fatalf("Context = %d lines, want 5", len(err.Context))
	}
	if err.Context[2] != "  maxFiles: 5" {
		t.Errorf("Context[2] = %q, want target line", err.Context[2])
	}
}

func TestWithLocation_MissingFile(t *testing.T) {
	err := New("E120").WithLocation("/nonexistent/dropzone.yaml", 3, 0)
	if err.Context != nil {
		t.Errorf("Context = %v, want nil", err.Context)
	}
	if got := err.Location.String(); got != "/nonexistent/dropzone.yaml:3" {
		t.Errorf("Location = %q", got)
	}
}

func TestLocationString_Nil(t *testing.T) {
	var l *Location
	if l.String() != "" {
		t.Error("nil Location should format as empty")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E099") != nil {
		t.Error("FromError(nil) should be nil")
	}

	plain := fmt.Errorf("boom")
	err := FromError(plain, "E061")
	if err.Code != "E061" || err.Wrapped != plain {
		t.Errorf("FromError = %+v", err)
	}

	coded := New("E141")
	if got := FromError(fmt.Errorf("load: %w", coded), "E099"); got != coded {
		t.Errorf("FromError should return the existing DropzoneError, got %v", got)
	}
}

func TestFromUpload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"intake", &upload.IntakeRejectedError{Max: 2}, "E001"},
		{"nothing", upload.ErrNothingToUpload, "E002"},
		{"busy", upload.ErrBusy, "E003"},
		{"closed", upload.ErrClosed, "E004"},
		{"accept", upload.ErrNoAcceptRule, "E121"},
		{"auth missing", upload.ErrAuthMissing, "E020"},
		{"no token", auth.ErrNoToken, "E020"},
		{"expired", fmt.Errorf("%w: %w", upload.ErrAuthMissing, auth.ErrSessionExpired), "E021"},
		{"server", &upload.ServerError{Status: 500, Message: "disk full"}, "E041"},
		{"transport", &upload.TransportError{Err: fmt.Errorf("EOF")}, "E040"},
		{"other", fmt.Errorf("odd"), "E099"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromUpload(tt.err)
			if err.Code != tt.want {
				t.Errorf("Code = %q, want %q", err.Code, tt.want)
			}
			if !stderrors.Is(err, tt.err) {
				t.Error("mapped error should wrap the original")
			}
		})
	}

	if FromUpload(nil) != nil {
		t.Error("FromUpload(nil) should be nil")
	}
}

func TestFromUpload_Detail(t *testing.T) {
	err := FromUpload(&upload.ServerError{Status: 413, Message: "File too large"})
	if err.Detail != "File too large" {
		t.Errorf("Detail = %q, want server message", err.Detail)
	}
	err = FromUpload(upload.ErrAuthMissing)
	if err.Detail != "Authentication token not found. Please log in again." {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E041").
		WithDetail("disk full").
		Wrap(fmt.Errorf("status 507"))
	out := err.Format()

	for _, want := range []string{
		"ERROR E041: Server rejected upload",
		"disk full",
		"Cause: status 507",
		"Learn more: " + docBase + "e041",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}

func TestFormat_NoCauseWhenSameAsDetail(t *testing.T) {
	DisableColors()
	defer EnableColors()

	cause := fmt.Errorf("disk full")
	out := New("E041").WithDetail("disk full").Wrap(cause).Format()
	if strings.Contains(out, "Cause:") {
		t.Errorf("Format() repeated the detail as a cause:\n%s", out)
	}
}

func TestFormat_Location(t *testing.T) {
	DisableColors()
	defer EnableColors()

	path := filepath.Join(t.TempDir(), "dropzone.json")
	os.WriteFile(path, []byte("{\n  \"upload\": {\n    \"maxFiles\": \"ten\"\n  }\n}\n"), 0644)

	out := New("E122").WithLocation(path, 3, 17).Format()
	if !strings.Contains(out, "→    3 │     \"maxFiles\": \"ten\"") {
		t.Errorf("Format() missing highlighted line:\n%s", out)
	}
	if !strings.Contains(out, strings.Repeat(" ", 16)+"^") {
		t.Errorf("Format() missing column marker:\n%s", out)
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E120")
	err.Location = &Location{File: "dropzone.yaml", Line: 7}
	if got, want := err.FormatCompact(), "dropzone.yaml:7: E120: Invalid configuration file"; got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E040").Wrap(fmt.Errorf("timeout"))
	err.Location = &Location{File: "a.json", Line: 2, Column: 4}

	var out map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &out); jerr != nil {
		t.Fatalf("FormatJSON is not JSON: %v", jerr)
	}
	if out["code"] != "E040" || out["category"] != "transport" || out["cause"] != "timeout" {
		t.Errorf("FormatJSON = %v", out)
	}
	loc, _ := out["location"].(map[string]any)
	if loc["file"] != "a.json" || loc["line"] != float64(2) {
		t.Errorf("location = %v", loc)
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, fmt.Errorf("upload: %w", New("E002")))
	if !strings.Contains(buf.String(), "ERROR E002: Nothing to upload") {
		t.Errorf("Fprint(coded) = %q", buf.String())
	}

	buf.Reset()
	Fprint(&buf, fmt.Errorf("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Errorf("Fprint(plain) = %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("the quick brown fox jumps over the lazy dog", 15)
	for _, l := range lines {
		if len(l) > 15 {
			t.Errorf("line %q longer than 15", l)
		}
	}
	if strings.Join(lines, " ") != "the quick brown fox jumps over the lazy dog" {
		t.Errorf("wrapText lost words: %v", lines)
	}
	if wrapText("", 10) != nil {
		t.Error("empty text should wrap to nil")
	}
}

func TestRegister(t *testing.T) {
	Register("E998", ErrorTemplate{Category: CategoryStorage, Message: "custom"})
	defer delete(registry, "E998")

	if got := New("E998").Message; got != "custom" {
		t.Errorf("Message = %q", got)
	}
	if _, ok := GetTemplate("E998"); !ok {
		t.Error("GetTemplate should find registered code")
	}
}

func TestAllCodesHaveDocs(t *testing.T) {
	for _, code := range GetAllCodes() {
		tmpl, _ := GetTemplate(code)
		if tmpl.Message == "" {
			t.Errorf("%s has no message", code)
		}
		if !strings.HasPrefix(tmpl.DocURL, docBase) {
			t.Errorf("%s DocURL = %q", code, tmpl.DocURL)
		}
	}
}

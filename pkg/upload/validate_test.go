package upload_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/vango-dev/dropzone/pkg/upload"
)

func TestPolicyValidate_HardCapRegardlessOfSoftCap(t *testing.T) {
	p := upload.Policy{MaxSizeMB: 500, Accept: upload.AcceptAny()}
	src := &fakeSource{name: "big.bin", typ: "application/octet-stream", size: 150 * upload.MB}

	verr := p.Validate(src)
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if verr.Code != upload.CodeTooLargeHard {
		t.Fatalf("code = %q, want %q", verr.Code, upload.CodeTooLargeHard)
	}
	if !strings.Contains(verr.Reason, "100MB") {
		t.Fatalf("reason = %q, want mention of 100MB", verr.Reason)
	}
	if !errors.Is(verr, upload.ErrValidation) {
		t.Fatal("expected errors.Is(ErrValidation)")
	}
}

func TestPolicyValidate_SoftCap(t *testing.T) {
	p := upload.Policy{MaxSizeMB: 2, Accept: upload.AcceptAny()}

	if verr := p.Validate(&fakeSource{name: "ok.txt", size: 2 * upload.MB}); verr != nil {
		t.Fatalf("at limit: %v", verr)
	}
	verr := p.Validate(&fakeSource{name: "big.txt", size: 2*upload.MB + 1})
	if verr == nil || verr.Code != upload.CodeTooLarge {
		t.Fatalf("verr = %v, want too_large", verr)
	}
	if verr.Reason != "File exceeds the size limit of 2MB" {
		t.Fatalf("reason = %q", verr.Reason)
	}
}

func TestPolicyValidate_DefaultSoftCap(t *testing.T) {
	p := upload.Policy{Accept: upload.AcceptAny()}
	verr := p.Validate(&fakeSource{name: "a.txt", size: 11 * upload.MB})
	if verr == nil || verr.Code != upload.CodeTooLarge {
		t.Fatalf("verr = %v, want too_large at the 10MB default", verr)
	}
}

func TestPolicyValidate_NameLength(t *testing.T) {
	p := upload.Policy{Accept: upload.AcceptAny()}

	if verr := p.Validate(&fakeSource{name: strings.Repeat("a", 255), size: 1}); verr != nil {
		t.Fatalf("255 chars: %v", verr)
	}
	verr := p.Validate(&fakeSource{name: strings.Repeat("a", 256), size: 1})
	if verr == nil || verr.Code != upload.CodeNameTooLong {
		t.Fatalf("verr = %v, want name_too_long", verr)
	}
	// Length counts characters, not bytes.
	if verr := p.Validate(&fakeSource{name: strings.Repeat("é", 200), size: 1}); verr != nil {
		t.Fatalf("200 two-byte chars: %v", verr)
	}
}

func TestPolicyValidate_ForbiddenCharacters(t *testing.T) {
	p := upload.Policy{Accept: upload.AcceptAny()}
	for _, name := range []string{
		"a<b.txt", "a>b.txt", "a:b.txt", `a"b.txt`, "a/b.txt", `a\b.txt`,
		"a|b.txt", "a?b.txt", "a*b.txt", "a\x00b.txt", "a\nb.txt", "a\x7fb.txt",
	} {
		t.Run(name, func(t *testing.T) {
			verr := p.Validate(&fakeSource{name: name, size: 1})
			if verr == nil || verr.Code != upload.CodeNameInvalid {
				t.Fatalf("verr = %v, want name_invalid", verr)
			}
		})
	}
}

func TestAcceptAllows(t *testing.T) {
	accept := upload.Accept{
		Types:      []string{"image/*", "application/pdf"},
		Extensions: []string{".docx", "csv"},
	}
	tests := []struct {
		typ, name string
		want      bool
	}{
		{"image/png", "a.png", true},
		{"IMAGE/JPEG", "a.jpg", true},
		{"application/pdf; charset=binary", "a.pdf", true},
		{"application/octet-stream", "report.DOCX", true},
		{"", "data.csv", true},
		{"text/plain", "notes.txt", false},
		{"application/zip", "archive", false},
		{"imagex/png", "a.bin", false},
	}
	for _, tt := range tests {
		if got := accept.Allows(tt.typ, tt.name); got != tt.want {
			t.Errorf("Allows(%q, %q) = %v, want %v", tt.typ, tt.name, got, tt.want)
		}
	}

	if !upload.AcceptAny().Allows("application/x-whatever", "x") {
		t.Error("AcceptAny should allow everything")
	}
	if (upload.Accept{}).Allows("image/png", "a.png") {
		t.Error("empty Accept should allow nothing")
	}
}

func TestPolicyValidate_TypeNotAllowed(t *testing.T) {
	p := upload.Policy{Accept: upload.Accept{Types: []string{"image/*"}}}
	verr := p.Validate(&fakeSource{name: "a.txt", typ: "text/plain", size: 1})
	if verr == nil || verr.Code != upload.CodeTypeNotAllowed {
		t.Fatalf("verr = %v, want type_not_allowed", verr)
	}
}

func TestPolicyValidate_CustomRunsLast(t *testing.T) {
	calls := 0
	p := upload.Policy{
		Accept: upload.AcceptAny(),
		Custom: func(src upload.Source) error {
			calls++
			if strings.HasPrefix(src.Name(), "draft") {
				return errors.New("Drafts cannot be uploaded")
			}
			return nil
		},
	}

	verr := p.Validate(&fakeSource{name: "draft.txt", size: 1})
	if verr == nil || verr.Code != upload.CodeCustom || verr.Reason != "Drafts cannot be uploaded" {
		t.Fatalf("verr = %v, want custom reason", verr)
	}

	// A built-in failure short-circuits the custom hook.
	p.Validate(&fakeSource{name: "draft?.txt", size: 1})
	if calls != 1 {
		t.Fatalf("custom calls = %d, want 1", calls)
	}
}

func TestPolicyValidate_CustomPanicBecomesError(t *testing.T) {
	p := upload.Policy{
		Accept: upload.AcceptAny(),
		Custom: func(upload.Source) error { panic("boom") },
	}

	verr := p.Validate(&fakeSource{name: "a.txt", size: 1})
	if verr == nil || verr.Code != upload.CodeCustom {
		t.Fatalf("verr = %v, want custom", verr)
	}
	if !strings.Contains(verr.Reason, "boom") {
		t.Errorf("Reason = %q, want the panic value", verr.Reason)
	}
}

func TestPolicyCheck(t *testing.T) {
	if err := (upload.Policy{}).Check(); !errors.Is(err, upload.ErrNoAcceptRule) {
		t.Fatalf("err = %v, want ErrNoAcceptRule", err)
	}
	if err := (upload.Policy{Accept: upload.Accept{Extensions: []string{".pdf"}}}).Check(); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := (upload.Policy{MaxSizeMB: -1, Accept: upload.AcceptAny()}).Check(); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"my photo (1).jpg", "my_photo_1_.jpg"},
		{"a   b", "a_b"},
		{"a__b", "a_b"},
		{"résumé.docx", "r_sum_.docx"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"", "file"},
		{strings.Repeat("x", 300) + ".txt", strings.Repeat("x", 255)},
	}
	for _, tt := range tests {
		got := upload.SanitizeFilename(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := upload.SanitizeFilename(got); again != got {
			t.Errorf("SanitizeFilename not idempotent: %q -> %q", got, again)
		}
	}
}

package upload

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MB is the unit used by size limits.
	MB int64 = 1024 * 1024

	// HardMaxBytes is enforced regardless of any configured limit.
	HardMaxBytes = 100 * MB

	// MaxNameLength is the longest accepted file name, in characters.
	MaxNameLength = 255

	// DefaultMaxSizeMB is the soft cap used when Policy.MaxSizeMB is zero.
	DefaultMaxSizeMB = 10
)

const forbiddenNameChars = `<>:"/\|?*`

// Accept lists the MIME types and extensions a Policy admits. A file passes
// when either list matches. Types may use a wildcard subtype ("image/*").
// Any disables the check.
type Accept struct {
	Types      []string `json:"types,omitempty" yaml:"types,omitempty"`
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Any        bool     `json:"any,omitempty" yaml:"any,omitempty"`
}

// AcceptAny admits every type.
func AcceptAny() Accept { return Accept{Any: true} }

// Policy is the validation policy applied to every incoming file.
type Policy struct {
	// MaxSizeMB is the soft size cap. It only applies when it is below
	// the 100MB hard cap. Default: 10.
	MaxSizeMB int

	Accept Accept

	// Custom runs after every built-in check passed. A non-nil error
	// rejects the file with the error text as reason.
	Custom func(Source) error
}

// Check reports configuration errors in the policy itself.
func (p Policy) Check() error {
	if !p.Accept.Any && len(p.Accept.Types) == 0 && len(p.Accept.Extensions) == 0 {
		return ErrNoAcceptRule
	}
	if p.MaxSizeMB < 0 {
		return fmt.Errorf("upload: negative size limit %d", p.MaxSizeMB)
	}
	return nil
}

func (p Policy) softLimit() int64 {
	mb := p.MaxSizeMB
	if mb == 0 {
		mb = DefaultMaxSizeMB
	}
	return int64(mb) * MB
}

// Validate runs the checks in order and returns the first failure, or nil.
func (p Policy) Validate(src Source) *ValidationError {
	size := src.Size()
	if size > HardMaxBytes {
		return &ValidationError{
			Code:   CodeTooLargeHard,
			Reason: fmt.Sprintf("File exceeds the maximum allowed size of %dMB", HardMaxBytes/MB),
		}
	}

	if soft := p.softLimit(); soft <= HardMaxBytes && size > soft {
		return &ValidationError{
			Code:   CodeTooLarge,
			Reason: fmt.Sprintf("File exceeds the size limit of %dMB", soft/MB),
		}
	}

	name := src.Name()
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &ValidationError{
			Code:   CodeNameTooLong,
			Reason: fmt.Sprintf("File name is too long (max %d characters)", MaxNameLength),
		}
	}
	if !ValidName(name) {
		return &ValidationError{Code: CodeNameInvalid, Reason: "File name contains invalid characters"}
	}

	if !p.Accept.Allows(src.Type(), name) {
		return &ValidationError{Code: CodeTypeNotAllowed, Reason: "File type not allowed"}
	}

	return p.custom(src)
}

// custom runs the caller's hook. A panic in the hook fails the file
// instead of the intake goroutine.
func (p Policy) custom(src Source) (verr *ValidationError) {
	if p.Custom == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			verr = &ValidationError{Code: CodeCustom, Reason: fmt.Sprintf("Validation failed: %v", r)}
		}
	}()
	if err := p.Custom(src); err != nil {
		return &ValidationError{Code: CodeCustom, Reason: err.Error()}
	}
	return nil
}

// ValidName reports whether name is free of control characters and of
// characters reserved by common filesystems.
func ValidName(name string) bool {
	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(forbiddenNameChars, r) {
			return false
		}
	}
	return true
}

// Allows reports whether a file of type typ named name is accepted.
func (a Accept) Allows(typ, name string) bool {
	if a.Any {
		return true
	}
	typ = strings.ToLower(baseType(typ))
	for _, want := range a.Types {
		if matchType(strings.ToLower(strings.TrimSpace(want)), typ) {
			return true
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, want := range a.Extensions {
		if normalizeExt(want) == ext {
			return true
		}
	}
	return false
}

func matchType(pattern, typ string) bool {
	if pattern == "" || typ == "" {
		return false
	}
	if pattern == "*/*" || pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(typ, prefix+"/")
	}
	return pattern == typ
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// SanitizeFilename maps name onto [A-Za-z0-9.-], replacing everything else
// with "_", collapsing repeated underscores and truncating to 255 characters.
// The result is stable under repeated application.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r < utf8.RuneSelf && (r == '.' || r == '-' || isAlnum(byte(r))) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := b.String()
	if len(out) > MaxNameLength {
		out = out[:MaxNameLength]
	}
	if out == "" {
		return "file"
	}
	return out
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

package upload

import (
	"fmt"
	"strings"
)

// Status is the upload life cycle of a LocalEntry.
type Status int

const (
	StatusPending Status = iota
	StatusUploading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusUploading:
		return "uploading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// canAdvance enforces pending -> uploading -> {success, error}.
// Pending may also fail directly.
func (s Status) canAdvance(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusUploading || to == StatusError
	case StatusUploading:
		return to == StatusSuccess || to == StatusError
	}
	return false
}

// Entry is one item of the registry: either a LocalEntry or a RemoteEntry.
// The interface is sealed; use Match to handle both variants.
type Entry interface {
	EntryID() string
	DisplayName() string
	MIMEType() string
	ByteSize() int64
	PreviewURI() string
	isEntry()
}

// LocalEntry is a file chosen in this session.
type LocalEntry struct {
	ID      string
	Source  Source
	Name    string
	Type    string
	Size    int64
	Preview Preview
	Status  Status
	Err     string

	// Result is set once the server confirmed the file.
	Result *FileResult
}

func (e LocalEntry) EntryID() string { return e.ID }

// DisplayName prefers the server-confirmed name after success.
func (e LocalEntry) DisplayName() string {
	if e.Result != nil && e.Result.Filename != "" {
		return e.Result.Filename
	}
	return e.Name
}

func (e LocalEntry) MIMEType() string { return e.Type }

func (e LocalEntry) ByteSize() int64 {
	if e.Result != nil && e.Result.Size > 0 {
		return e.Result.Size
	}
	return e.Size
}

func (e LocalEntry) PreviewURI() string { return e.Preview.URI }

func (LocalEntry) isEntry() {}

// RemoteEntry is a file already stored on the server. It is never
// re-validated or re-uploaded.
type RemoteEntry struct {
	ID       string
	URL      string
	Type     string
	Size     int64
	Filename string
	Preview  string
}

func (e RemoteEntry) EntryID() string     { return e.ID }
func (e RemoteEntry) DisplayName() string { return e.Filename }
func (e RemoteEntry) MIMEType() string    { return e.Type }
func (e RemoteEntry) ByteSize() int64     { return e.Size }
func (e RemoteEntry) PreviewURI() string  { return e.Preview }

func (RemoteEntry) isEntry() {}

// Match dispatches on the entry variant.
func Match[T any](e Entry, local func(LocalEntry) T, remote func(RemoteEntry) T) T {
	switch v := e.(type) {
	case LocalEntry:
		return local(v)
	case *LocalEntry:
		return local(*v)
	case RemoteEntry:
		return remote(v)
	case *RemoteEntry:
		return remote(*v)
	}
	panic(fmt.Sprintf("upload: unknown entry type %T", e))
}

// FileResult is a file as confirmed by the server.
type FileResult struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
}

// isImageType reports whether typ is any image/* type.
func isImageType(typ string) bool {
	return strings.HasPrefix(strings.ToLower(baseType(typ)), "image/")
}

// baseType strips MIME parameters.
func baseType(typ string) string {
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = typ[:i]
	}
	return strings.TrimSpace(typ)
}

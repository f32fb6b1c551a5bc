package upload

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// PlaceholderFilename is shown for existing files whose URL carries no usable name.
const PlaceholderFilename = "file"

// RemoteFile describes a file already stored on the server, as supplied
// by the caller.
type RemoteFile struct {
	ID       string `json:"id" yaml:"id"`
	URL      string `json:"url" yaml:"url"`
	Type     string `json:"type" yaml:"type"`
	Size     int64  `json:"size" yaml:"size"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
}

// UnmarshalJSON also accepts the "link", "mimeType" and "name" spellings
// some backends use.
func (f *RemoteFile) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		URL      string          `json:"url"`
		Link     string          `json:"link"`
		Type     string          `json:"type"`
		MIMEType string          `json:"mimeType"`
		Size     int64           `json:"size"`
		Filename string          `json:"filename"`
		Name     string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = RemoteFile{
		ID:       rawID(raw.ID),
		URL:      firstNonEmpty(raw.URL, raw.Link),
		Type:     firstNonEmpty(raw.Type, raw.MIMEType),
		Size:     raw.Size,
		Filename: firstNonEmpty(raw.Filename, raw.Name),
	}
	return nil
}

// Entry converts f into a registry entry. A missing filename is derived
// from the URL, a missing id is generated, and image types preview the URL.
func (f RemoteFile) Entry() RemoteEntry {
	e := RemoteEntry{
		ID:       f.ID,
		URL:      f.URL,
		Type:     f.Type,
		Size:     f.Size,
		Filename: f.Filename,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Filename == "" {
		e.Filename = FilenameFromURL(f.URL)
	}
	if isImageType(f.Type) {
		e.Preview = f.URL
	}
	return e
}

// RemoteEntries converts a list of existing files.
func RemoteEntries(files []RemoteFile) []RemoteEntry {
	out := make([]RemoteEntry, 0, len(files))
	for _, f := range files {
		out = append(out, f.Entry())
	}
	return out
}

// FilenameFromURL returns the decoded last path segment of raw when it
// contains a dot, and PlaceholderFilename otherwise.
func FilenameFromURL(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.EscapedPath()
	} else if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	seg := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		seg = path[i+1:]
	}
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	if seg == "" || !strings.Contains(seg, ".") {
		return PlaceholderFilename
	}
	return seg
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package live

import (
	"strings"

	"github.com/vango-dev/dropzone/pkg/upload"
)

// MessageType identifies a hub message.
type MessageType string

const (
	TypeSnapshot MessageType = "snapshot"
	TypeEvent    MessageType = "event"
)

// Message is what clients receive. Snapshot messages carry Version,
// Uploading and Entries. Event messages carry Name and Data.
type Message struct {
	Type MessageType `json:"type"`

	Version   uint64      `json:"version,omitempty"`
	Uploading bool        `json:"uploading,omitempty"`
	Entries   []EntryView `json:"entries,omitempty"`

	Name string `json:"name,omitempty"`
	Data any    `json:"data,omitempty"`
}

// EntryView is the wire form of a registry entry.
type EntryView struct {
	Kind     string `json:"kind"` // "local" or "remote"
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Preview  string `json:"preview,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	URL      string `json:"url,omitempty"`
}

// SnapshotMessage converts a registry snapshot. Blob previews are
// rewritten to previewBase + "/" + id so browsers can fetch them.
func SnapshotMessage(s upload.Snapshot, previewBase string) Message {
	views := make([]EntryView, len(s.Entries))
	for i, e := range s.Entries {
		views[i] = upload.Match(e,
			func(l upload.LocalEntry) EntryView {
				v := EntryView{
					Kind:     "local",
					ID:       l.ID,
					Filename: l.DisplayName(),
					Type:     l.MIMEType(),
					Size:     l.ByteSize(),
					Preview:  previewURL(l.PreviewURI(), previewBase),
					Status:   l.Status.String(),
					Error:    l.Err,
				}
				if l.Result != nil {
					v.URL = l.Result.URL
				}
				return v
			},
			func(r upload.RemoteEntry) EntryView {
				return EntryView{
					Kind:     "remote",
					ID:       r.ID,
					Filename: r.Filename,
					Type:     r.Type,
					Size:     r.Size,
					Preview:  r.Preview,
					URL:      r.URL,
				}
			},
		)
	}
	return Message{
		Type:      TypeSnapshot,
		Version:   s.Version,
		Uploading: s.Uploading,
		Entries:   views,
	}
}

func previewURL(uri, base string) string {
	if id, ok := strings.CutPrefix(uri, upload.BlobScheme); ok {
		return base + "/" + id
	}
	return uri
}


package upload_test

import (
	"encoding/json"
	"testing"

	"github.com/vango-dev/dropzone/pkg/upload"
)

func TestFilenameFromURL(t *testing.T) {
	tests := []struct{ url, want string }{
		{"https://cdn.example.com/uploads/invoice.pdf", "invoice.pdf"},
		{"https://cdn.example.com/uploads/my%20photo.jpg?sig=abc", "my photo.jpg"},
		{"https://cdn.example.com/uploads/abc123", "file"},
		{"https://cdn.example.com/", "file"},
		{"", "file"},
		{"relative/path/notes.v2.txt#frag", "notes.v2.txt"},
	}
	for _, tt := range tests {
		if got := upload.FilenameFromURL(tt.url); got != tt.want {
			t.Errorf("FilenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestRemoteFileEntry(t *testing.T) {
	img := upload.RemoteFile{ID: "r1", URL: "https://x/a/logo.png", Type: "image/png", Size: 42}.Entry()
	if img.Filename != "logo.png" {
		t.Fatalf("Filename = %q", img.Filename)
	}
	if img.Preview != "https://x/a/logo.png" {
		t.Fatalf("Preview = %q, want the URL", img.Preview)
	}

	doc := upload.RemoteFile{URL: "https://x/a/blob", Type: "application/pdf", Filename: "contract.pdf"}.Entry()
	if doc.ID == "" {
		t.Fatal("expected generated id")
	}
	if doc.Filename != "contract.pdf" || doc.Preview != "" {
		t.Fatalf("entry = %+v", doc)
	}
}

func TestRemoteFileUnmarshalAliases(t *testing.T) {
	var files []upload.RemoteFile
	data := `[{"id": 7, "link": "https://x/b.gif", "mimeType": "image/gif", "size": 3, "name": "b.gif"},
	          {"id": "s", "url": "https://x/c.txt", "type": "text/plain"}]`
	if err := json.Unmarshal([]byte(data), &files); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if files[0].ID != "7" || files[0].URL != "https://x/b.gif" || files[0].Type != "image/gif" || files[0].Filename != "b.gif" {
		t.Fatalf("files[0] = %+v", files[0])
	}
	if files[1].ID != "s" || files[1].URL != "https://x/c.txt" {
		t.Fatalf("files[1] = %+v", files[1])
	}
}

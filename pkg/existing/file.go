package existing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/dropzone/pkg/upload"
)

// Lister returns the files already stored on the server.
type Lister interface {
	List(ctx context.Context) ([]upload.RemoteFile, error)
}

// File reads existing files from a JSON or YAML document. The document is
// either a list of files or an object with a "files" list. YAML is chosen
// for .yaml and .yml paths.
type File struct {
	Path string
}

type fileDoc struct {
	Files []upload.RemoteFile `json:"files" yaml:"files"`
}

// List reads and parses the file.
func (f File) List(_ context.Context) ([]upload.RemoteFile, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("existing: %w", err)
	}
	files, err := Parse(data, isYAML(f.Path))
	if err != nil {
		return nil, fmt.Errorf("existing: %s: %w", f.Path, err)
	}
	return files, nil
}

// Parse decodes a document in the File format.
func Parse(data []byte, asYAML bool) ([]upload.RemoteFile, error) {
	if asYAML {
		return parseYAML(data)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var files []upload.RemoteFile
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, err
		}
		return files, nil
	}
	var doc fileDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.Files, nil
}

func parseYAML(data []byte) ([]upload.RemoteFile, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var files []upload.RemoteFile
		if err := root.Decode(&files); err != nil {
			return nil, err
		}
		return files, nil
	}
	var doc fileDoc
	if err := root.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Files, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Static is a fixed list.
type Static []upload.RemoteFile

// List returns a copy of the list.
func (s Static) List(context.Context) ([]upload.RemoteFile, error) {
	return append([]upload.RemoteFile(nil), s...), nil
}

// Multi concatenates the lists of every source, in order. The first
// error stops the walk.
type Multi []Lister

func (m Multi) List(ctx context.Context) ([]upload.RemoteFile, error) {
	var out []upload.RemoteFile
	for _, l := range m {
		files, err := l.List(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

// Load lists the files and hands them to the uploader's registry.
func Load(ctx context.Context, l Lister, u *upload.Uploader) (int, error) {
	files, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	u.SetExisting(files)
	return len(files), nil
}

package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Source is a raw file handed to Intake. Open may fail for sources that
// cannot be read; such files get no preview but are still admitted.
type Source interface {
	Name() string
	Type() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// DiskFile is a Source backed by a path on the local filesystem.
type DiskFile struct {
	path string
	name string
	typ  string
	size int64
}

// OpenDiskFile stats path and detects its MIME type from content,
// falling back to the extension when detection is inconclusive.
func OpenDiskFile(path string) (*DiskFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("upload: %s is a directory", path)
	}
	return &DiskFile{
		path: path,
		name: filepath.Base(path),
		typ:  DetectType(path),
		size: info.Size(),
	}, nil
}

func (f *DiskFile) Name() string { return f.name }
func (f *DiskFile) Type() string { return f.typ }
func (f *DiskFile) Size() int64  { return f.size }
func (f *DiskFile) Path() string { return f.path }

func (f *DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// DetectType returns the MIME type of the file at path without parameters.
func DetectType(path string) string {
	typ := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		typ = mt.String()
	}
	if typ == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
			typ = byExt
		}
	}
	return baseType(typ)
}

// MemoryFile is a Source held in memory.
type MemoryFile struct {
	name string
	typ  string
	data []byte
}

// NewMemoryFile returns a Source over data. An empty typ is detected from content.
func NewMemoryFile(name, typ string, data []byte) *MemoryFile {
	if typ == "" {
		typ = baseType(mimetype.Detect(data).String())
	}
	return &MemoryFile{name: name, typ: typ, data: data}
}

func (f *MemoryFile) Name() string { return f.name }
func (f *MemoryFile) Type() string { return f.typ }
func (f *MemoryFile) Size() int64  { return int64(len(f.data)) }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

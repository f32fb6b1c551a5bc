package endpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a stored file doesn't exist.
	ErrNotFound = errors.New("endpoint: file not found")

	// ErrTooLarge is returned when a file exceeds the size limit.
	ErrTooLarge = errors.New("endpoint: file too large")
)

// Store is the storage backend behind the upload endpoint.
type Store interface {
	// Save stores the file and returns its metadata. A blank content type
	// is detected from the leading bytes.
	Save(filename, contentType string, r io.Reader) (*Meta, error)

	// Open returns the file for reading. The caller closes it.
	Open(id string) (*Meta, io.ReadCloser, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(id string) error

	// List returns every stored file, oldest first.
	List() ([]*Meta, error)

	// Cleanup removes files older than maxAge and returns how many went.
	Cleanup(maxAge time.Duration) (int, error)
}

// Meta describes a stored file.
type Meta struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiskStore stores files in a directory, each with a JSON .meta sidecar so
// metadata survives restarts.
type DiskStore struct {
	dir     string
	maxSize int64
	now     func() time.Time

	mu    sync.RWMutex
	files map[string]*Meta
}

// NewDiskStore creates the directory if needed and indexes the sidecars
// already in it. maxSize of 0 means no limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
		files:   make(map[string]*Meta),
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the storage directory.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) index() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".meta")
		if !ok || e.IsDir() {
			continue
		}
		meta, err := s.loadMeta(id)
		if err != nil {
			continue
		}
		s.files[id] = meta
	}
	return nil
}

// Save writes r to disk. Reads stop one byte past maxSize so an oversized
// body is detected without consuming all of it.
func (s *DiskStore) Save(filename, contentType string, r io.Reader) (*Meta, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if s.maxSize > 0 {
		r = io.LimitReader(r, s.maxSize+1)
	}

	// Sniff from the head of the stream, then write it back out.
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		os.Remove(path)
		return nil, err
	}
	head = head[:n]
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(head).String()
	}

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if s.maxSize > 0 && written > s.maxSize {
		os.Remove(path)
		return nil, ErrTooLarge
	}

	meta := &Meta{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        written,
		CreatedAt:   s.now(),
	}
	if err := s.saveMeta(meta); err != nil {
		os.Remove(path)
		return nil, err
	}

	s.mu.Lock()
	s.files[id] = meta
	s.mu.Unlock()
	return meta, nil
}

// Open looks the file up in memory first, then on disk.
func (s *DiskStore) Open(id string) (*Meta, io.ReadCloser, error) {
	if !validID(id) {
		return nil, nil, ErrNotFound
	}
	s.mu.RLock()
	meta, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		var err error
		if meta, err = s.loadMeta(id); err != nil {
			return nil, nil, ErrNotFound
		}
	}
	f, err := os.Open(filepath.Join(s.dir, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return meta, f, nil
}

// Delete removes the file and its sidecar.
func (s *DiskStore) Delete(id string) error {
	if !validID(id) {
		return nil
	}
	s.mu.Lock()
	delete(s.files, id)
	s.mu.Unlock()
	return s.remove(id)
}

// List returns the indexed files sorted by creation time.
func (s *DiskStore) List() ([]*Meta, error) {
	s.mu.RLock()
	out := make([]*Meta, 0, len(s.files))
	for _, m := range s.files {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Cleanup removes expired files, plus orphaned data files with no sidecar.
func (s *DiskStore) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0

	s.mu.Lock()
	for id, meta := range s.files {
		if meta.CreatedAt.Before(cutoff) {
			delete(s.files, id)
			s.remove(id)
			removed++
		}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return removed, err
	}
	for _, e := range entries {
		if e.IsDir() || !validID(e.Name()) {
			continue
		}
		s.mu.RLock()
		_, known := s.files[e.Name()]
		s.mu.RUnlock()
		if known {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.remove(e.Name())
			removed++
		}
	}
	return removed, nil
}

func (s *DiskStore) remove(id string) error {
	err := os.Remove(filepath.Join(s.dir, id))
	os.Remove(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta")
}

func (s *DiskStore) saveMeta(meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(meta.ID), data, 0644)
}

func (s *DiskStore) loadMeta(id string) (*Meta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.ID == "" {
		meta.ID = id
	}
	return &meta, nil
}

// validID rejects anything that isn't a UUID so ids can't escape dir.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package upload

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobScheme prefixes preview URIs held in a BlobStore.
const BlobScheme = "blob:"

// Blob is a preview held in memory.
type Blob struct {
	Type string
	Data []byte
}

// BlobStore holds revocable preview bytes addressed by "blob:" URIs.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewBlobStore returns an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]Blob)}
}

// Put stores data and returns its id.
func (s *BlobStore) Put(typ string, data []byte) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = Blob{Type: typ, Data: data}
	s.mu.Unlock()
	return id
}

// Get returns the blob for id, which may carry the "blob:" prefix.
func (s *BlobStore) Get(id string) (Blob, bool) {
	id = strings.TrimPrefix(id, BlobScheme)
	s.mu.RLock()
	b, ok := s.blobs[id]
	s.mu.RUnlock()
	return b, ok
}

// Revoke drops the blob. Unknown ids are ignored.
func (s *BlobStore) Revoke(id string) {
	id = strings.TrimPrefix(id, BlobScheme)
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
}

// Len returns the number of live blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

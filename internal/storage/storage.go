package storage

import (
	"sync"

	"github.com/google/uuid"
)

// BlobStore hands out revocable display URLs for in-memory images,
// the way a browser issues blob: object URLs.
type BlobStore struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

func New() *BlobStore {
	return &BlobStore{
		blobs: make(map[string][]byte),
	}
}

// Create registers data and returns its display URL
func (s *BlobStore) Create(data []byte) string {
	url := "blob:" + uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[url] = data
	return url
}

func (s *BlobStore) Get(url string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, exists := s.blobs[url]
	return data, exists
}

// Revoke releases url. Revoking an unknown URL is a no-op.
func (s *BlobStore) Revoke(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, url)
}

// Len returns the number of live URLs
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

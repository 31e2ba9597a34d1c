package memory

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory snapshot store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the snapshot in memory.
func (s *Store) Save(ctx context.Context, docID string, snapshot []byte) error {
	// Copy so later mutation of the caller's slice cannot reach the store.
	stored := make([]byte, len(snapshot))
	copy(stored, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[docID] = stored
	return nil
}

// Load retrieves the snapshot from memory.
func (s *Store) Load(ctx context.Context, docID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.data[docID]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}

	out := make([]byte, len(snapshot))
	copy(out, snapshot)
	return out, nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, docID)
	return nil
}

// List returns the stored document IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

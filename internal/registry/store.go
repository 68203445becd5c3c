package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ChuLiYu/loghive/pkg/types"
)

// ErrRecordNotFound is returned by stores for unknown record ids.
var ErrRecordNotFound = errors.New("input record not found")

// InputStore persists durable input records. The engine behind it is a
// collaborator; the registry only issues single-record reads and writes
// and relies on the store serializing access per record.
type InputStore interface {
	// Save upserts a record and returns its id, assigning one if the
	// record has none.
	Save(ctx context.Context, rec types.InputRecord) (string, error)

	// Delete removes a record. Deleting an unknown id is an error.
	Delete(ctx context.Context, id string) error

	// FindForNode returns the records pinned to nodeID plus, when
	// includeGlobal is set, all global records.
	FindForNode(ctx context.Context, nodeID string, includeGlobal bool) ([]types.InputRecord, error)
}

// MemoryInputStore is the in-process reference implementation, used by
// single-node deployments and tests.
type MemoryInputStore struct {
	mu      sync.RWMutex
	records map[string]types.InputRecord
}

// NewMemoryInputStore returns an empty store.
func NewMemoryInputStore() *MemoryInputStore {
	return &MemoryInputStore{records: make(map[string]types.InputRecord)}
}

func (s *MemoryInputStore) Save(_ context.Context, rec types.InputRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.records[rec.ID] = rec
	return rec.ID, nil
}

func (s *MemoryInputStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryInputStore) FindForNode(_ context.Context, nodeID string, includeGlobal bool) ([]types.InputRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.InputRecord
	for _, rec := range s.records {
		if rec.Global && includeGlobal {
			out = append(out, rec)
			continue
		}
		if !rec.Global && rec.NodeID == nodeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/ChuLiYu/loghive/pkg/types"
)

// NodeStore records cluster-wide node membership. The store itself does
// not enforce single-mastership; it only answers questions about the
// records it holds. Its one atomicity requirement is that RegisterServer
// upserts a single record.
type NodeStore interface {
	// RegisterServer upserts this node's record, refreshing last-seen.
	RegisterServer(ctx context.Context, rec types.NodeRecord) error

	// IsOnlyMaster reports whether no *other* alive node record claims
	// the master role.
	IsOnlyMaster(ctx context.Context, nodeID string) (bool, error)

	// MarkHeartbeat refreshes the node's last-seen timestamp.
	MarkHeartbeat(ctx context.Context, nodeID string) error

	// AliveNodes lists records seen within the liveness window.
	AliveNodes(ctx context.Context) ([]types.NodeRecord, error)
}

// MemoryNodeStore is the in-process reference implementation of
// NodeStore. A record counts as alive while its last-seen timestamp is
// within the ping timeout.
type MemoryNodeStore struct {
	pingTimeout time.Duration

	mu    sync.RWMutex
	nodes map[string]types.NodeRecord
}

// NewMemoryNodeStore returns an empty store with the given liveness
// window.
func NewMemoryNodeStore(pingTimeout time.Duration) *MemoryNodeStore {
	return &MemoryNodeStore{
		pingTimeout: pingTimeout,
		nodes:       make(map[string]types.NodeRecord),
	}
}

func (s *MemoryNodeStore) RegisterServer(_ context.Context, rec types.NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.LastSeenAt = time.Now().UTC()
	s.nodes[rec.NodeID] = rec
	return nil
}

func (s *MemoryNodeStore) IsOnlyMaster(_ context.Context, nodeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-s.pingTimeout)
	for id, rec := range s.nodes {
		if id == nodeID {
			continue
		}
		if rec.IsMaster && rec.LastSeenAt.After(cutoff) {
			return false, nil
		}
	}
	return true, nil
}

func (s *MemoryNodeStore) MarkHeartbeat(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[nodeID]
	if !ok {
		return nil
	}
	rec.LastSeenAt = time.Now().UTC()
	s.nodes[nodeID] = rec
	return nil
}

func (s *MemoryNodeStore) AliveNodes(_ context.Context) ([]types.NodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-s.pingTimeout)
	var out []types.NodeRecord
	for _, rec := range s.nodes {
		if rec.LastSeenAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Package cluster holds the node's cluster-facing pieces: its own
// identity and role, the membership and notification stores, the
// boot-time master coordination and the liveness heartbeat.
package cluster

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Status is this node's own view of its identity and role. It is
// constructed once at boot and passed down explicitly; the master flag
// is mutable because the coordinator may demote the node before
// services start.
type Status struct {
	nodeID           string
	transportAddress string

	mu              sync.RWMutex
	masterCandidate bool
	isMaster        bool
}

// NewStatus builds the node status. A candidate node considers itself
// master until the coordinator says otherwise.
func NewStatus(nodeID, transportAddress string, masterCandidate bool) *Status {
	return &Status{
		nodeID:           nodeID,
		transportAddress: transportAddress,
		masterCandidate:  masterCandidate,
		isMaster:         masterCandidate,
	}
}

// NodeID returns the stable per-process node identity.
func (s *Status) NodeID() string {
	return s.nodeID
}

// TransportAddress returns the address other nodes reach this one at.
func (s *Status) TransportAddress() string {
	return s.transportAddress
}

// IsMasterCandidate reports whether the node is configured to take the
// master role.
func (s *Status) IsMasterCandidate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.masterCandidate
}

// IsMaster reports whether the node currently holds the master role.
func (s *Status) IsMaster() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isMaster
}

// Demote clears both the master role and the candidate flag. Called by
// the coordinator when another live master is detected.
func (s *Status) Demote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterCandidate = false
	s.isMaster = false
}

// LoadOrCreateNodeID reads the node id from path, creating and
// persisting a fresh one on first boot so the identity survives
// restarts.
func LoadOrCreateNodeID(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read node id file: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist node id: %w", err)
	}
	return id, nil
}

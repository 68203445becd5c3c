package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/ChuLiYu/loghive/pkg/types"
)

// NotificationStore publishes operator-visible alerts with
// publish-if-first semantics: for a given type the insert succeeds for
// exactly one caller, ever. That insert-if-absent atomicity is the
// store's single requirement.
type NotificationStore interface {
	// PublishIfFirst stores n unless a notification of the same type
	// already exists. Returns true for the caller that won the insert.
	PublishIfFirst(ctx context.Context, n types.Notification) (bool, error)

	// All lists every stored notification.
	All(ctx context.Context) ([]types.Notification, error)
}

// MemoryNotificationStore is the in-process reference implementation.
type MemoryNotificationStore struct {
	mu            sync.Mutex
	notifications map[types.NotificationType]types.Notification
}

// NewMemoryNotificationStore returns an empty store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{
		notifications: make(map[types.NotificationType]types.Notification),
	}
}

func (s *MemoryNotificationStore) PublishIfFirst(_ context.Context, n types.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.Type]; exists {
		return false, nil
	}
	n.FirstPublishedAt = time.Now().UTC()
	s.notifications[n.Type] = n
	return true, nil
}

func (s *MemoryNotificationStore) All(_ context.Context) ([]types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	return out, nil
}

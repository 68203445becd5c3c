package registry

import (
	"context"
)

// Service adapts the registry to the supervisor: starting it re-hydrates
// this node's persisted inputs, stopping it winds every input down.
type Service struct {
	reg *Registry
}

// NewService wraps reg.
func NewService(reg *Registry) *Service {
	return &Service{reg: reg}
}

func (s *Service) Name() string { return "input-registry" }

// Start launches the node's persisted, non-terminated inputs. The
// service is healthy once the launches are accepted; individual inputs
// reaching running (or failed) is observed asynchronously, per the
// launch contract.
func (s *Service) Start(ctx context.Context) error {
	return s.reg.LaunchPersisted(ctx)
}

// Stop stops all inputs, bounded per input by the stop grace period.
func (s *Service) Stop(_ context.Context) error {
	s.reg.StopAll()
	return nil
}

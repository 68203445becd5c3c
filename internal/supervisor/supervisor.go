// Package supervisor brings up the node's long-running services as a
// unit, awaits their collective health and unwinds them exactly once on
// failure or external signal.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStartupTimeout reports that not every service became healthy within
// the startup deadline.
var ErrStartupTimeout = errors.New("services did not become healthy in time")

// Service is one independently long-running subsystem. Start blocks
// until the service is healthy or has failed; Stop requests shutdown and
// respects the context deadline.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts and stops an ordered set of services. Startup failure
// stops whatever already started before reporting; shutdown is
// idempotent and safe to trigger concurrently from a signal handler and
// a failure path at once.
type Manager struct {
	services []Service
	logger   *slog.Logger

	mu      sync.Mutex
	started []Service

	stopOnce sync.Once
	stopDone chan struct{}
	stopErr  error
}

// New builds a manager over the given services. There is no cross-service
// ordering dependency; they start concurrently.
func New(services ...Service) *Manager {
	return &Manager{
		services: services,
		logger:   slog.With("component", "supervisor"),
		stopDone: make(chan struct{}),
	}
}

// StartAll starts every service and waits for all of them to report
// healthy within timeout. On any failure or on timeout it stops whatever
// started and returns the aggregate error; the caller must treat that as
// fatal and not proceed to serve traffic.
func (m *Manager) StartAll(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	results := make(chan error, len(m.services))

	for _, svc := range m.services {
		go func(svc Service) {
			began := time.Now()
			err := svc.Start(ctx)
			if err == nil {
				m.mu.Lock()
				m.started = append(m.started, svc)
				m.mu.Unlock()
				m.logger.Info("service healthy", "service", svc.Name(), "took", time.Since(began))
			}
			if err != nil {
				err = fmt.Errorf("service %s failed to start: %w", svc.Name(), err)
			}
			results <- err
		}(svc)
	}

	var failures []error
	received := 0
	for received < len(m.services) && len(failures) == 0 {
		select {
		case err := <-results:
			received++
			if err != nil {
				failures = append(failures, err)
			}
		case <-ctx.Done():
			failures = append(failures, fmt.Errorf("%w (after %s)", ErrStartupTimeout, time.Since(start)))
		}
	}

	if len(failures) == 0 {
		m.logger.Info("all services healthy", "count", len(m.services), "took", time.Since(start))
		return nil
	}

	// Abort starts still in flight and wait them out so the started
	// list is final before unwinding.
	cancel()
	drain := time.After(timeout)
	for received < len(m.services) {
		select {
		case <-results:
			received++
		case <-drain:
			received = len(m.services)
		}
	}

	stopErr := m.StopAll(timeout)
	if stopErr != nil {
		failures = append(failures, stopErr)
	}
	return errors.Join(failures...)
}

// StopAll requests every started service to stop and waits up to
// timeout. Services that do not stop in time are reported, but StopAll
// itself always returns. Concurrent and repeated calls are no-ops that
// wait for and return the first call's result.
func (m *Manager) StopAll(timeout time.Duration) error {
	m.stopOnce.Do(func() {
		defer close(m.stopDone)
		m.stopErr = m.stopStarted(timeout)
	})
	<-m.stopDone
	return m.stopErr
}

func (m *Manager) stopStarted(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m.mu.Lock()
	started := make([]Service, len(m.started))
	copy(started, m.started)
	m.mu.Unlock()

	results := make(chan error, len(started))
	for _, svc := range started {
		go func(svc Service) {
			if err := svc.Stop(ctx); err != nil {
				results <- fmt.Errorf("service %s did not stop cleanly: %w", svc.Name(), err)
				return
			}
			m.logger.Info("service stopped", "service", svc.Name())
			results <- nil
		}(svc)
	}

	var failures []error
	for range started {
		select {
		case err := <-results:
			if err != nil {
				failures = append(failures, err)
			}
		case <-ctx.Done():
			failures = append(failures, fmt.Errorf("shutdown timed out after %s", timeout))
			return errors.Join(failures...)
		}
	}
	return errors.Join(failures...)
}

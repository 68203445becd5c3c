package cluster

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/loghive/pkg/types"
)

// Heartbeat keeps this node's membership record fresh. It re-registers
// the full record on every pass so role changes (a boot-time demotion)
// are visible to the rest of the cluster, not just the timestamp.
type Heartbeat struct {
	status   *Status
	nodes    NodeStore
	interval time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup
}

// NewHeartbeat builds the heartbeat service.
func NewHeartbeat(status *Status, nodes NodeStore, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		status:   status,
		nodes:    nodes,
		interval: interval,
		logger:   slog.With("component", "cluster.heartbeat"),
		stopCh:   make(chan struct{}),
	}
}

// Name implements supervisor.Service.
func (h *Heartbeat) Name() string { return "cluster-heartbeat" }

// Start registers the node once and starts the refresh loop. The first
// registration doubles as the health gate: when it succeeds the service
// is up.
func (h *Heartbeat) Start(ctx context.Context) error {
	if err := h.beat(ctx); err != nil {
		return err
	}

	h.loopWg.Add(1)
	go h.loop()
	return nil
}

// Stop terminates the refresh loop.
func (h *Heartbeat) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stopCh) })

	done := make(chan struct{})
	go func() {
		h.loopWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Heartbeat) loop() {
	defer h.loopWg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.interval)
			if err := h.beat(ctx); err != nil {
				h.logger.Warn("heartbeat failed", "error", err)
			}
			cancel()
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) error {
	return h.nodes.RegisterServer(ctx, types.NodeRecord{
		NodeID:           h.status.NodeID(),
		IsMaster:         h.status.IsMaster(),
		TransportAddress: h.status.TransportAddress(),
	})
}

package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChuLiYu/loghive/internal/metrics"
	"github.com/ChuLiYu/loghive/pkg/types"
)

func registerMaster(t *testing.T, nodes NodeStore, nodeID string) {
	t.Helper()
	err := nodes.RegisterServer(context.Background(), types.NodeRecord{
		NodeID:   nodeID,
		IsMaster: true,
	})
	if err != nil {
		t.Fatalf("failed to register node %s: %v", nodeID, err)
	}
}

func TestCoordinatorSkipsNonCandidate(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", false)
	nodes := NewMemoryNodeStore(time.Hour)
	notifications := NewMemoryNotificationStore()
	registerMaster(t, nodes, "node-b")

	c := NewCoordinator(status, nodes, notifications, nil, nil, 10*time.Millisecond)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status.IsMaster() {
		t.Fatal("non-candidate must never become master")
	}
	assertNotificationCount(t, notifications, 0)
}

func TestCoordinatorSoleMasterProceeds(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(time.Hour)
	notifications := NewMemoryNotificationStore()
	registerMaster(t, nodes, "node-a")

	c := NewCoordinator(status, nodes, notifications, nil, nil, 10*time.Millisecond)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !status.IsMaster() {
		t.Fatal("sole master candidate must keep the role")
	}
	assertNotificationCount(t, notifications, 0)
}

func TestCoordinatorProceedsWhenStaleMasterExpires(t *testing.T) {
	// The conflicting record goes stale within the coordinator's grace
	// period, so the second query clears the conflict.
	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(30 * time.Millisecond)
	notifications := NewMemoryNotificationStore()
	registerMaster(t, nodes, "node-a")
	registerMaster(t, nodes, "node-dead")

	c := NewCoordinator(status, nodes, notifications, nil, nil, 100*time.Millisecond)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !status.IsMaster() {
		t.Fatal("node must proceed as master once the stale record expired")
	}
	assertNotificationCount(t, notifications, 0)
}

func TestCoordinatorDemotesOnPersistentConflict(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(time.Hour)
	notifications := NewMemoryNotificationStore()
	registerMaster(t, nodes, "node-a")
	registerMaster(t, nodes, "node-b")

	c := NewCoordinator(status, nodes, notifications, nil, nil, 10*time.Millisecond)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status.IsMaster() {
		t.Fatal("node must demote itself when the other master stays alive")
	}
	if status.IsMasterCandidate() {
		t.Fatal("demotion must clear the candidate flag")
	}

	all, err := notifications.All(context.Background())
	if err != nil {
		t.Fatalf("listing notifications failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(all))
	}
	if all[0].Type != types.NotificationMultiMaster {
		t.Fatalf("unexpected notification type %s", all[0].Type)
	}
	if all[0].Severity != types.SeverityUrgent {
		t.Fatalf("unexpected severity %s", all[0].Severity)
	}
}

func TestCoordinatorDemotionReachesMasterGauge(t *testing.T) {
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(time.Hour)
	registerMaster(t, nodes, "node-a")
	registerMaster(t, nodes, "node-b")

	c := NewCoordinator(status, nodes, NewMemoryNotificationStore(), nil, collector, 10*time.Millisecond)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status.IsMaster() {
		t.Fatal("node must demote itself")
	}

	// The gauge must carry the post-coordination role, not the one the
	// node booted with.
	if got := masterGaugeValue(t, promReg); got != 0 {
		t.Fatalf("loghive_node_is_master = %v after demotion, want 0", got)
	}
}

func masterGaugeValue(t *testing.T, promReg *prometheus.Registry) float64 {
	t.Helper()
	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "loghive_node_is_master" {
			continue
		}
		for _, m := range mf.GetMetric() {
			return m.GetGauge().GetValue()
		}
	}
	t.Fatal("loghive_node_is_master not found in gathered metrics")
	return 0
}

func TestCoordinatorConflictRaisesSingleNotification(t *testing.T) {
	// Both nodes detect the conflict concurrently; only one of their
	// publishes may stick.
	nodes := NewMemoryNodeStore(time.Hour)
	notifications := NewMemoryNotificationStore()

	statusA := NewStatus("node-a", "127.0.0.1:9000", true)
	statusB := NewStatus("node-b", "127.0.0.1:9001", true)
	registerMaster(t, nodes, "node-a")
	registerMaster(t, nodes, "node-b")

	var wg sync.WaitGroup
	for _, st := range []*Status{statusA, statusB} {
		wg.Add(1)
		go func(st *Status) {
			defer wg.Done()
			c := NewCoordinator(st, nodes, notifications, nil, nil, 10*time.Millisecond)
			if err := c.Run(context.Background()); err != nil {
				t.Errorf("run failed for %s: %v", st.NodeID(), err)
			}
		}(st)
	}
	wg.Wait()

	if statusA.IsMaster() || statusB.IsMaster() {
		t.Fatal("both conflicting nodes must demote")
	}
	assertNotificationCount(t, notifications, 1)
}

func TestCoordinatorAbortsOnCancelledContext(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(time.Hour)
	registerMaster(t, nodes, "node-b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCoordinator(status, nodes, NewMemoryNotificationStore(), nil, nil, time.Hour)
	if err := c.Run(ctx); err == nil {
		t.Fatal("expected a context error")
	}
}

func assertNotificationCount(t *testing.T, store NotificationStore, want int) {
	t.Helper()
	all, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("listing notifications failed: %v", err)
	}
	if len(all) != want {
		t.Fatalf("expected %d notifications, got %d", want, len(all))
	}
}

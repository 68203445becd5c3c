package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/ChuLiYu/loghive/pkg/types"
)

func findRecord(t *testing.T, nodes NodeStore, nodeID string) (types.NodeRecord, bool) {
	t.Helper()
	alive, err := nodes.AliveNodes(context.Background())
	if err != nil {
		t.Fatalf("listing nodes failed: %v", err)
	}
	for _, rec := range alive {
		if rec.NodeID == nodeID {
			return rec, true
		}
	}
	return types.NodeRecord{}, false
}

func TestHeartbeatRegistersOnStart(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(time.Hour)

	hb := NewHeartbeat(status, nodes, time.Hour)
	if err := hb.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() {
		if err := hb.Stop(context.Background()); err != nil {
			t.Fatalf("stop failed: %v", err)
		}
	}()

	rec, ok := findRecord(t, nodes, "node-a")
	if !ok {
		t.Fatal("start must register the node record")
	}
	if !rec.IsMaster {
		t.Fatal("the record must carry the master role")
	}
	if rec.TransportAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected transport address %s", rec.TransportAddress)
	}
}

func TestHeartbeatPropagatesRoleChange(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", true)
	nodes := NewMemoryNodeStore(time.Hour)

	hb := NewHeartbeat(status, nodes, 10*time.Millisecond)
	if err := hb.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer hb.Stop(context.Background())

	status.Demote()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := findRecord(t, nodes, "node-a"); ok && !rec.IsMaster {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("demotion never reached the membership record")
}

func TestHeartbeatStopIsIdempotent(t *testing.T) {
	status := NewStatus("node-a", "127.0.0.1:9000", false)
	nodes := NewMemoryNodeStore(time.Hour)

	hb := NewHeartbeat(status, nodes, 10*time.Millisecond)
	if err := hb.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := hb.Stop(context.Background()); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := hb.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

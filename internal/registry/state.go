package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ChuLiYu/loghive/internal/input"
	"github.com/ChuLiYu/loghive/pkg/types"
)

// ioState is the mutable runtime status of one launched input instance.
// Its mutex serializes mutations for that runtime id only; independent
// ids never contend on it. The registry map mutex is always taken before
// an ioState mutex, never the other way around.
type ioState struct {
	mu sync.Mutex

	instance *input.Instance
	stage    types.Stage
	detail   string

	startedAt time.Time
	stoppedAt time.Time

	// cancel aborts the run context; done is closed when the run
	// goroutine of the current launch exits. Both are replaced on
	// relaunch and nil until the first start is scheduled.
	cancel context.CancelFunc
	done   chan struct{}
}

// StateSnapshot is a consistent copy of one lifecycle state, safe to
// hand to external serialization. Configuration carries the resolved
// values, Schema the descriptor's field definitions.
type StateSnapshot struct {
	RuntimeID     types.InputID       `json:"runtime_id"`
	PersistID     string              `json:"persist_id,omitempty"`
	Type          string              `json:"type"`
	Title         string              `json:"title"`
	Global        bool                `json:"global"`
	NodeID        string              `json:"node_id,omitempty"`
	CreatorID     string              `json:"creator_user_id,omitempty"`
	Stage         types.Stage         `json:"stage"`
	Detail        string              `json:"detail,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	StoppedAt     time.Time           `json:"stopped_at"`
	Configuration input.Configuration `json:"configuration"`
	Schema        []input.ConfigField `json:"requested_configuration"`
}

// snapshot copies the state under its own lock.
func (st *ioState) snapshot(id types.InputID) StateSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	inst := st.instance
	cfg := make(input.Configuration, len(inst.Config))
	for k, v := range inst.Config {
		cfg[k] = v
	}

	return StateSnapshot{
		RuntimeID:     id,
		PersistID:     inst.PersistID,
		Type:          inst.Descriptor.Type,
		Title:         inst.Title,
		Global:        inst.Global,
		NodeID:        inst.NodeID,
		CreatorID:     inst.CreatorID,
		Stage:         st.stage,
		Detail:        st.detail,
		StartedAt:     st.startedAt,
		StoppedAt:     st.stoppedAt,
		Configuration: cfg,
		Schema:        inst.Descriptor.Schema.Fields(),
	}
}

// Package registry owns the lifecycle of this node's input instances.
// It is the sole authority for stage transitions, enforces type
// exclusivity at launch and isolates each input's faults: an input that
// panics or errors moves to the failed stage without touching any other
// instance or the process itself.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/loghive/internal/activity"
	"github.com/ChuLiYu/loghive/internal/input"
	"github.com/ChuLiYu/loghive/internal/metrics"
	"github.com/ChuLiYu/loghive/pkg/types"
)

var (
	// ErrInputTypeExclusive reports a launch rejected because another
	// instance of an exclusive type is already active.
	ErrInputTypeExclusive = errors.New("input type is exclusive and already has an instance running")
	// ErrInputNotFound reports an unknown runtime id.
	ErrInputNotFound = errors.New("input not found")
	// ErrDuplicateRuntimeID reports a launch with a runtime id that is
	// already registered. Runtime ids are never reused.
	ErrDuplicateRuntimeID = errors.New("runtime id already registered")
	// ErrInputActive reports a relaunch of an input that has not stopped.
	ErrInputActive = errors.New("input is still active")
)

// NodeInfo exposes the identity of the owning node. The master flag may
// change at boot (coordinator demotion), so it is read per call rather
// than captured.
type NodeInfo interface {
	NodeID() string
	IsMaster() bool
}

// Config tunes the registry.
type Config struct {
	// StopGracePeriod bounds how long Stop waits for an input to wind
	// down before force-reclaiming it.
	StopGracePeriod time.Duration
}

// DefaultStopGracePeriod is used when Config.StopGracePeriod is zero.
const DefaultStopGracePeriod = 10 * time.Second

// Registry is the lifecycle state table of this process plus the
// operations the REST layer invokes on it. Mutations on one runtime id
// are mutually exclusive with each other; independent ids do not block
// one another. Reads return copied snapshots.
type Registry struct {
	setup    *input.Setup
	store    InputStore
	node     NodeInfo
	activity *activity.Writer
	metrics  *metrics.Collector
	logger   *slog.Logger

	grace time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.RWMutex
	states map[types.InputID]*ioState

	wg sync.WaitGroup
}

// New creates a registry over the given descriptor table and durable
// store. The activity writer and metrics collector may be nil.
func New(setup *input.Setup, store InputStore, node NodeInfo, aw *activity.Writer, mc *metrics.Collector, cfg Config) *Registry {
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = DefaultStopGracePeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		setup:      setup,
		store:      store,
		node:       node,
		activity:   aw,
		metrics:    mc,
		logger:     slog.With("component", "registry"),
		grace:      cfg.StopGracePeriod,
		baseCtx:    ctx,
		baseCancel: cancel,
		states:     make(map[types.InputID]*ioState),
	}
}

// NewRuntimeID allocates a fresh runtime id.
func NewRuntimeID() types.InputID {
	return types.InputID(uuid.NewString())
}

// Create instantiates a fresh, unconfigured instance from a registered
// descriptor. Returns input.ErrNoSuchInputType for unknown types.
func (r *Registry) Create(inputType string) (*input.Instance, error) {
	return r.setup.Create(inputType)
}

// CheckConfiguration validates cfg against the instance's schema without
// side effects.
func (r *Registry) CheckConfiguration(inst *input.Instance, cfg input.Configuration) error {
	return inst.CheckConfiguration(cfg)
}

// Persist resolves the configuration (filling schema defaults), pins
// non-global instances to this node and saves the durable record. The
// assigned persist id is written back to the instance.
func (r *Registry) Persist(ctx context.Context, inst *input.Instance, cfg input.Configuration) error {
	resolved, err := inst.Descriptor.Schema.Resolve(cfg)
	if err != nil {
		return err
	}
	if err := inst.Input.CheckConfiguration(resolved); err != nil {
		return err
	}
	inst.Config = resolved
	if !inst.Global {
		inst.NodeID = r.node.NodeID()
	}

	id, err := r.store.Save(ctx, types.InputRecord{
		ID:            inst.PersistID,
		Type:          inst.Descriptor.Type,
		Title:         inst.Title,
		CreatorID:     inst.CreatorID,
		Global:        inst.Global,
		NodeID:        inst.NodeID,
		Configuration: inst.Config,
		CreatedAt:     inst.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to persist input: %w", err)
	}
	inst.PersistID = id
	return nil
}

// Launch registers a new lifecycle state for inst under runtimeID and
// schedules the transition to running. It returns once the instance is
// accepted; the caller observes the eventual stage via GetInputState.
// The only synchronous failures are a duplicate runtime id and the
// exclusivity violation, in which case no state is created.
func (r *Registry) Launch(inst *input.Instance, runtimeID types.InputID) error {
	r.mu.Lock()
	if _, dup := r.states[runtimeID]; dup {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateRuntimeID, runtimeID)
	}
	if inst.Descriptor.Exclusive && r.typeActiveLocked(inst.Descriptor.Type, "") {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInputTypeExclusive, inst.Descriptor.Type)
	}
	inst.RuntimeID = string(runtimeID)
	st := &ioState{instance: inst, stage: types.StageCreated}
	r.states[runtimeID] = st

	st.mu.Lock()
	r.mu.Unlock()
	defer st.mu.Unlock()

	r.metrics.RecordLaunch()
	r.activity.Write("registry", fmt.Sprintf("Launching input [%s] (%s).", inst.Title, inst.Descriptor.Type))
	r.start(st)
	return nil
}

// Relaunch re-launches a previously stopped or failed input, reusing its
// instance and runtime id. The exclusivity invariant is re-checked.
func (r *Registry) Relaunch(runtimeID types.InputID) error {
	r.mu.Lock()
	st, ok := r.states[runtimeID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInputNotFound, runtimeID)
	}

	st.mu.Lock()
	if st.stage != types.StageStopped && st.stage != types.StageFailed {
		st.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInputActive, runtimeID, st.stage)
	}
	if st.instance.Descriptor.Exclusive && r.typeActiveLocked(st.instance.Descriptor.Type, runtimeID) {
		st.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInputTypeExclusive, st.instance.Descriptor.Type)
	}
	st.stage = types.StageCreated
	st.detail = ""
	r.mu.Unlock()
	defer st.mu.Unlock()

	r.metrics.RecordLaunch()
	r.activity.Write("registry", fmt.Sprintf("Relaunching input [%s].", st.instance.Title))
	r.start(st)
	return nil
}

// start runs the configuration hook and schedules the run goroutine.
// Called with st.mu held and st.stage == created. Hook failures become a
// failed stage, never an error to the caller: launch has already been
// accepted at this point.
func (r *Registry) start(st *ioState) {
	if st.stage != types.StageCreated {
		return
	}
	inst := st.instance

	if err := safeInitialize(inst, inst.Config); err != nil {
		r.failLocked(st, fmt.Sprintf("initialization failed: %v", err))
		return
	}
	st.stage = types.StageConfigured

	ctx, cancel := context.WithCancel(r.baseCtx)
	st.cancel = cancel
	done := make(chan struct{})
	st.done = done

	r.wg.Add(1)
	go r.run(st, ctx, done)
}

// run is the supervised execution path of one launched instance. It is
// the isolation boundary: errors and panics from the input end here, as
// a failed stage on this state only.
func (r *Registry) run(st *ioState, ctx context.Context, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)

	st.mu.Lock()
	if st.stage != types.StageConfigured {
		// Stopped or terminated before the goroutine got scheduled.
		st.mu.Unlock()
		return
	}
	inst := st.instance
	st.stage = types.StageRunning
	st.startedAt = time.Now().UTC()
	st.stoppedAt = time.Time{}
	st.mu.Unlock()

	r.metrics.InputStarted(inst.Descriptor.Type)
	r.logger.Info("input running", "runtime_id", inst.RuntimeID, "type", inst.Descriptor.Type)

	err := safeRun(inst, ctx)

	r.metrics.InputStopped(inst.Descriptor.Type)

	st.mu.Lock()
	defer st.mu.Unlock()
	switch st.stage {
	case types.StageRunning:
		if err != nil {
			r.failLocked(st, err.Error())
			return
		}
		st.stage = types.StageStopped
		st.stoppedAt = time.Now().UTC()
		st.detail = "input wound down on its own"
	case types.StageStopping:
		// The stop path finalizes the stage once done is observed; it
		// only needs the failure cause recorded, if any.
		if err != nil {
			st.detail = err.Error()
		}
	default:
		// Force-reclaimed or terminated while we were still running.
	}
}

// failLocked records a failed stage. Called with st.mu held.
func (r *Registry) failLocked(st *ioState, detail string) {
	st.stage = types.StageFailed
	st.detail = detail
	st.stoppedAt = time.Now().UTC()
	r.metrics.RecordFailure()
	r.logger.Error("input failed", "runtime_id", st.instance.RuntimeID,
		"type", st.instance.Descriptor.Type, "detail", detail)
}

// Stop transitions a running input through stopping to stopped, invoking
// its stop hook and cancelling its run context. It is idempotent:
// stopping an already stopped, failed or unstarted input is a no-op.
// An input that ignores the cooperative signal past the grace period is
// force-reclaimed: its goroutine is abandoned and the stage set to
// stopped with a note.
func (r *Registry) Stop(runtimeID types.InputID) error {
	st, err := r.state(runtimeID)
	if err != nil {
		return err
	}
	r.stopState(st, runtimeID)
	return nil
}

func (r *Registry) stopState(st *ioState, runtimeID types.InputID) {
	st.mu.Lock()
	switch st.stage {
	case types.StageStopped, types.StageFailed, types.StageTerminated:
		st.mu.Unlock()
		return
	case types.StageCreated:
		// Accepted but never scheduled; nothing is running.
		st.stage = types.StageStopped
		st.stoppedAt = time.Now().UTC()
		st.mu.Unlock()
		return
	}

	st.stage = types.StageStopping
	cancel := st.cancel
	done := st.done
	inst := st.instance
	st.mu.Unlock()

	r.activity.Write("registry", fmt.Sprintf("Stopping input [%s].", inst.Title))

	if cancel != nil {
		cancel()
	}
	safeStop(inst)

	forced := false
	if done != nil {
		select {
		case <-done:
		case <-time.After(r.grace):
			forced = true
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stage != types.StageStopping {
		// A concurrent stop already finalized it.
		return
	}
	st.stage = types.StageStopped
	st.stoppedAt = time.Now().UTC()
	if forced {
		st.detail = "stop grace period exceeded, input force-reclaimed"
		r.metrics.RecordForcedReclaim()
		r.logger.Warn("input did not stop in time, abandoning its goroutine",
			"runtime_id", runtimeID, "grace", r.grace)
	}
}

// Restart is stop followed by relaunch. Best-effort recovery: a failing
// stop does not prevent the relaunch attempt.
func (r *Registry) Restart(runtimeID types.InputID) error {
	if err := r.Stop(runtimeID); err != nil && !errors.Is(err, ErrInputNotFound) {
		r.logger.Warn("stop during restart failed, attempting relaunch anyway",
			"runtime_id", runtimeID, "error", err)
	} else if err != nil {
		return err
	}
	return r.Relaunch(runtimeID)
}

// Terminate stops the input and removes its lifecycle state from the
// registry; the runtime id becomes invalid for subsequent operations.
func (r *Registry) Terminate(runtimeID types.InputID) error {
	st, err := r.state(runtimeID)
	if err != nil {
		return err
	}
	r.stopState(st, runtimeID)

	st.mu.Lock()
	st.stage = types.StageTerminated
	inst := st.instance
	st.mu.Unlock()

	r.mu.Lock()
	delete(r.states, runtimeID)
	r.mu.Unlock()

	r.metrics.RecordTermination()
	r.activity.Write("registry", fmt.Sprintf("Terminated input [%s].", inst.Title))
	return nil
}

// CleanInput removes the durable record of a terminated input. Global
// instances are cluster-owned: only the master removes their records,
// non-master nodes silently skip the cleanup. Non-global records are
// removed by whichever node terminates them.
func (r *Registry) CleanInput(ctx context.Context, inst *input.Instance) error {
	if inst.Global && !r.node.IsMaster() {
		r.logger.Debug("skipping durable cleanup of global input on non-master node",
			"persist_id", inst.PersistID)
		return nil
	}
	if inst.PersistID == "" {
		return nil
	}
	if err := r.store.Delete(ctx, inst.PersistID); err != nil {
		return fmt.Errorf("failed to clean input record: %w", err)
	}
	r.activity.Write("registry", fmt.Sprintf("Removed input record [%s].", inst.PersistID))
	return nil
}

// GetRunningInput returns the instance registered under runtimeID, or
// nil when the id is unknown or already terminated.
func (r *Registry) GetRunningInput(runtimeID types.InputID) *input.Instance {
	r.mu.RLock()
	st, ok := r.states[runtimeID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.instance
}

// GetInputState returns a snapshot of one lifecycle state.
func (r *Registry) GetInputState(runtimeID types.InputID) (StateSnapshot, bool) {
	r.mu.RLock()
	st, ok := r.states[runtimeID]
	r.mu.RUnlock()
	if !ok {
		return StateSnapshot{}, false
	}
	return st.snapshot(runtimeID), true
}

// GetInputStates returns a snapshot of all lifecycle states, ordered by
// start time then runtime id. Mutations that begin after this call do
// not appear in the result.
func (r *Registry) GetInputStates() []StateSnapshot {
	r.mu.RLock()
	ids := make([]types.InputID, 0, len(r.states))
	states := make([]*ioState, 0, len(r.states))
	for id, st := range r.states {
		ids = append(ids, id)
		states = append(states, st)
	}
	r.mu.RUnlock()

	out := make([]StateSnapshot, 0, len(states))
	for i, st := range states {
		out = append(out, st.snapshot(ids[i]))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].RuntimeID < out[j].RuntimeID
	})
	return out
}

// HasTypeRunning reports whether any instance of inputType is active.
func (r *Registry) HasTypeRunning(inputType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typeActiveLocked(inputType, "")
}

// Descriptors exposes the type catalog.
func (r *Registry) Descriptors() []*input.Descriptor {
	return r.setup.Descriptors()
}

// LaunchPersisted re-hydrates this node's persisted inputs: records
// pinned to the node plus, when it holds the master role, global ones.
// Individual launch failures are logged and isolated so one broken
// record cannot block boot.
func (r *Registry) LaunchPersisted(ctx context.Context) error {
	records, err := r.store.FindForNode(ctx, r.node.NodeID(), r.node.IsMaster())
	if err != nil {
		return fmt.Errorf("failed to load persisted inputs: %w", err)
	}

	for _, rec := range records {
		inst, err := r.setup.Create(rec.Type)
		if err != nil {
			r.logger.Error("cannot re-hydrate persisted input", "persist_id", rec.ID, "error", err)
			continue
		}
		inst.PersistID = rec.ID
		inst.Title = rec.Title
		inst.CreatorID = rec.CreatorID
		inst.CreatedAt = rec.CreatedAt
		inst.Global = rec.Global
		inst.NodeID = rec.NodeID

		resolved, err := inst.Descriptor.Schema.Resolve(rec.Configuration)
		if err != nil {
			r.logger.Error("persisted input has invalid configuration", "persist_id", rec.ID, "error", err)
			continue
		}
		inst.Config = resolved

		if err := r.Launch(inst, NewRuntimeID()); err != nil {
			r.logger.Error("failed to launch persisted input", "persist_id", rec.ID, "error", err)
		}
	}
	return nil
}

// StopAll stops every non-terminal input. Used on node shutdown; bounded
// per input by the stop grace period.
func (r *Registry) StopAll() {
	r.mu.RLock()
	ids := make([]types.InputID, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id types.InputID) {
			defer wg.Done()
			_ = r.Stop(id)
		}(id)
	}
	wg.Wait()
	r.baseCancel()
}

func (r *Registry) state(runtimeID types.InputID) (*ioState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[runtimeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, runtimeID)
	}
	return st, nil
}

// typeActiveLocked reports an active (created, configured or running)
// instance of inputType other than exclude. Caller holds r.mu.
func (r *Registry) typeActiveLocked(inputType string, exclude types.InputID) bool {
	for id, st := range r.states {
		if id == exclude || st.instance.Descriptor.Type != inputType {
			continue
		}
		// Stage reads here race with per-state mutations, but only
		// transiently: the launch path inserts new states under r.mu,
		// which is what the invariant depends on.
		st.mu.Lock()
		active := st.stage == types.StageCreated || st.stage.Active()
		st.mu.Unlock()
		if active {
			return true
		}
	}
	return false
}

// safeInitialize runs the configuration hook under the isolation
// boundary, converting panics into errors.
func safeInitialize(inst *input.Instance, cfg input.Configuration) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in initialize: %v", rec)
		}
	}()
	return inst.Input.Initialize(cfg)
}

// safeRun executes the blocking input body under the isolation boundary.
func safeRun(inst *input.Instance, ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in run: %v", rec)
		}
	}()
	return inst.Input.Run(ctx)
}

// safeStop invokes the stop hook, swallowing panics: a broken stop hook
// must not break the stop path, the grace period handles the rest.
func safeStop(inst *input.Instance) {
	defer func() {
		_ = recover()
	}()
	inst.Input.Stop()
}

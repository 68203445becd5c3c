// Package input defines the pluggable input contract of a loghive node:
// the behavior hooks an input implements, the descriptor that declares an
// input type's capabilities, and the setup table mapping type names to
// factories. The table is populated once at boot from the plugin
// collaborator and is an immutable lookup thereafter.
package input

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNoSuchInputType is returned when a requested input type has not been
// registered with the setup table.
var ErrNoSuchInputType = errors.New("no such input type registered")

// Input is the per-instance behavior contract. Run blocks for the
// lifetime of the input and is executed under the registry's isolation
// boundary: any error or panic raised from Initialize or Run is caught
// there and converted into a FAILED stage transition, never allowed to
// unwind into the registry's own control flow.
type Input interface {
	// CheckConfiguration validates cfg beyond schema checks (for example
	// port ranges). It must have no side effects.
	CheckConfiguration(cfg Configuration) error

	// Initialize prepares the input with its resolved configuration.
	Initialize(cfg Configuration) error

	// Run executes the input until ctx is cancelled or an unrecoverable
	// failure occurs. A nil return means the input wound down gracefully.
	Run(ctx context.Context) error

	// Stop asks the input to wind down. It is the cooperative half of
	// cancellation; the registry additionally cancels the Run context.
	Stop()
}

// Factory constructs a fresh, unconfigured Input of one type.
type Factory func() Input

// Descriptor declares an input type: identity, capabilities and the
// configuration schema instances of it accept. Descriptors are
// registered once at process start and immutable afterwards.
type Descriptor struct {
	Type      string
	Name      string
	Exclusive bool // at most one active instance of this type per process
	Schema    ConfigSchema
	DocsLink  string

	factory Factory
}

// Instance is one configured, possibly running, unit of ingestion work.
// Provenance fields are immutable after creation; PersistID is set once,
// after the first successful save of the durable record.
type Instance struct {
	RuntimeID  string
	PersistID  string
	Descriptor *Descriptor
	Title      string
	CreatorID  string
	CreatedAt  time.Time
	Global     bool
	NodeID     string
	Config     Configuration

	Input Input
}

// CheckConfiguration validates cfg against the descriptor schema and the
// input's own checks, without side effects.
func (in *Instance) CheckConfiguration(cfg Configuration) error {
	if err := in.Descriptor.Schema.Validate(cfg); err != nil {
		return err
	}
	return in.Input.CheckConfiguration(cfg)
}

// Setup is the immutable descriptor table of this process. Registration
// happens during boot; Create consults it for the process lifetime.
type Setup struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// NewSetup returns an empty descriptor table.
func NewSetup() *Setup {
	return &Setup{descriptors: make(map[string]*Descriptor)}
}

// Register adds an input type. Registering the same type twice is a
// programming error.
func (s *Setup) Register(d Descriptor, f Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.descriptors[d.Type]; exists {
		return fmt.Errorf("input type %q already registered", d.Type)
	}
	d.factory = f
	s.descriptors[d.Type] = &d
	return nil
}

// Descriptor looks up one registered type.
func (s *Setup) Descriptor(inputType string) (*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.descriptors[inputType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchInputType, inputType)
	}
	return d, nil
}

// Descriptors returns the type catalog sorted by type name.
func (s *Setup) Descriptors() []*Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Descriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Create instantiates a fresh, unconfigured instance of a registered type.
func (s *Setup) Create(inputType string) (*Instance, error) {
	d, err := s.Descriptor(inputType)
	if err != nil {
		return nil, err
	}
	return &Instance{
		Descriptor: d,
		CreatedAt:  time.Now().UTC(),
		Input:      d.factory(),
	}, nil
}

package input

import (
	"context"
	"errors"
	"testing"
)

type nopInput struct{}

func (nopInput) CheckConfiguration(Configuration) error { return nil }
func (nopInput) Initialize(Configuration) error         { return nil }
func (nopInput) Run(ctx context.Context) error          { <-ctx.Done(); return nil }
func (nopInput) Stop()                                  {}

func newTestSetup(t *testing.T, types ...string) *Setup {
	t.Helper()
	s := NewSetup()
	for _, typ := range types {
		err := s.Register(Descriptor{Type: typ, Name: typ}, func() Input { return nopInput{} })
		if err != nil {
			t.Fatalf("failed to register %s: %v", typ, err)
		}
	}
	return s
}

func TestCreateUnknownType(t *testing.T) {
	s := newTestSetup(t, "known")

	_, err := s.Create("unknown")
	if !errors.Is(err, ErrNoSuchInputType) {
		t.Errorf("expected ErrNoSuchInputType, got %v", err)
	}
}

func TestCreateReturnsFreshInstances(t *testing.T) {
	s := newTestSetup(t, "known")

	a, err := s.Create("known")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := s.Create("known")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("expected distinct instances")
	}
	if a.Descriptor != b.Descriptor {
		t.Error("expected instances to share the descriptor")
	}
	if a.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestRegisterDuplicateType(t *testing.T) {
	s := newTestSetup(t, "dup")

	err := s.Register(Descriptor{Type: "dup"}, func() Input { return nopInput{} })
	if err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestDescriptorsSorted(t *testing.T) {
	s := newTestSetup(t, "zeta", "alpha", "mid")

	descriptors := s.Descriptors()
	if len(descriptors) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descriptors))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, d := range descriptors {
		if d.Type != want[i] {
			t.Errorf("descriptor %d: got %s, want %s", i, d.Type, want[i])
		}
	}
}

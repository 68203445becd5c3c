package builtin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/loghive/internal/input"
)

func TestRegisterAddsBuiltinTypes(t *testing.T) {
	setup := input.NewSetup()
	if err := Register(setup, func(string, []byte) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, typ := range []string{"raw-tcp", "beat"} {
		if _, err := setup.Descriptor(typ); err != nil {
			t.Errorf("builtin type %s not registered: %v", typ, err)
		}
	}
}

func TestRawTCPRejectsBadPort(t *testing.T) {
	in := newRawTCP(func(string, []byte) {})

	if err := in.CheckConfiguration(input.Configuration{"port": 70000}); err == nil {
		t.Error("expected port range error")
	}
	if err := in.CheckConfiguration(input.Configuration{"port": 5555}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBeatEmitsAndStops(t *testing.T) {
	var mu sync.Mutex
	var got []string
	in := newBeat(func(source string, raw []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(raw))
	})

	cfg := input.Configuration{"interval_ms": 5, "text": "tick"}
	if err := in.CheckConfiguration(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := in.Initialize(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- in.Run(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("beat did not emit in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	in.Stop()
	in.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("beat did not stop in time")
	}
}

func TestBeatSurvivesRelaunch(t *testing.T) {
	var mu sync.Mutex
	emitted := 0
	in := newBeat(func(string, []byte) {
		mu.Lock()
		emitted++
		mu.Unlock()
	})
	cfg := input.Configuration{"interval_ms": 5, "text": "tick"}

	// Two full initialize/run/stop cycles over the same value, the way
	// a relaunch drives it. The second run must actually run: a stop
	// channel left closed from the first cycle would end it instantly.
	for cycle := 0; cycle < 2; cycle++ {
		if err := in.Initialize(cfg); err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", cycle, err)
		}

		done := make(chan error, 1)
		go func() { done <- in.Run(context.Background()) }()

		mu.Lock()
		before := emitted
		mu.Unlock()

		deadline := time.After(2 * time.Second)
		for {
			mu.Lock()
			n := emitted
			mu.Unlock()
			if n > before {
				break
			}
			select {
			case <-deadline:
				t.Fatalf("cycle %d: beat did not emit", cycle)
			case <-time.After(5 * time.Millisecond):
			}
		}

		in.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("cycle %d: unexpected run error: %v", cycle, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d: beat did not stop", cycle)
		}
	}
}

func TestRawTCPSurvivesRelaunch(t *testing.T) {
	in := newRawTCP(func(string, []byte) {})
	cfg := input.Configuration{"bind_address": "127.0.0.1", "port": 0}

	// Stop must keep working across cycles: a sticky stopping flag from
	// the first cycle would leave the second run's listener open and
	// Run blocked in Accept forever.
	for cycle := 0; cycle < 2; cycle++ {
		if err := in.Initialize(cfg); err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", cycle, err)
		}

		done := make(chan error, 1)
		go func() { done <- in.Run(context.Background()) }()

		// Let Run reach Accept before stopping.
		deadline := time.Now().Add(2 * time.Second)
		for {
			in.mu.Lock()
			bound := in.listener != nil
			in.mu.Unlock()
			if bound {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("cycle %d: listener never bound", cycle)
			}
			time.Sleep(5 * time.Millisecond)
		}

		in.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("cycle %d: unexpected run error: %v", cycle, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d: run did not return after stop", cycle)
		}
	}
}

func TestBeatRejectsNegativeInterval(t *testing.T) {
	in := newBeat(func(string, []byte) {})
	if err := in.CheckConfiguration(input.Configuration{"interval_ms": -1}); err == nil {
		t.Error("expected error for negative interval")
	}
}

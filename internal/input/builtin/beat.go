package builtin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChuLiYu/loghive/internal/input"
)

// beat emits a synthetic message on a fixed interval. It is marked
// exclusive: more than one per node only duplicates traffic.
type beat struct {
	handler  MessageHandler
	interval time.Duration
	text     string

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce *sync.Once
}

func newBeat(handler MessageHandler) *beat {
	return &beat{
		handler:  handler,
		stopCh:   make(chan struct{}),
		stopOnce: new(sync.Once),
	}
}

func (b *beat) CheckConfiguration(cfg input.Configuration) error {
	if ms := cfg.Int("interval_ms"); ms < 0 {
		return &input.ConfigurationError{Fields: map[string]string{
			"interval_ms": "must not be negative",
		}}
	}
	return nil
}

// Initialize arms a fresh stop channel. Relaunching reuses the same
// Input value, so the channel closed by the previous Stop must not
// leak into the next run.
func (b *beat) Initialize(cfg input.Configuration) error {
	ms := cfg.Int("interval_ms")
	if ms == 0 {
		ms = 1000
	}
	b.interval = time.Duration(ms) * time.Millisecond
	b.text = cfg.String("text")

	b.mu.Lock()
	b.stopCh = make(chan struct{})
	b.stopOnce = new(sync.Once)
	b.mu.Unlock()
	return nil
}

func (b *beat) Run(ctx context.Context) error {
	b.mu.Lock()
	stopCh := b.stopCh
	b.mu.Unlock()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C:
			seq++
			b.handler("beat", []byte(fmt.Sprintf("%s %d", b.text, seq)))
		}
	}
}

func (b *beat) Stop() {
	b.mu.Lock()
	once, ch := b.stopOnce, b.stopCh
	b.mu.Unlock()
	once.Do(func() { close(ch) })
}

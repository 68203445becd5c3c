// Package builtin ships the input types compiled into the node itself.
// External input plugins register through the same setup table; these
// exist so a bare node can ingest something out of the box and so the
// registry has real inputs to drive in tests and demos.
package builtin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/ChuLiYu/loghive/internal/input"
)

// MessageHandler receives raw payloads from builtin inputs. Message
// processing and persistence live outside this core.
type MessageHandler func(source string, raw []byte)

// Register adds the builtin input types to the setup table.
func Register(setup *input.Setup, handler MessageHandler) error {
	if err := setup.Register(input.Descriptor{
		Type:      "raw-tcp",
		Name:      "Raw TCP input",
		Exclusive: false,
		Schema: input.ConfigSchema{
			{Name: "bind_address", Kind: input.FieldString, Required: true, Default: "0.0.0.0", Description: "Address to bind the listener to"},
			{Name: "port", Kind: input.FieldInt, Required: true, Default: 5555, Description: "TCP port to listen on"},
		},
		DocsLink: "https://github.com/ChuLiYu/loghive/blob/main/docs/inputs.md#raw-tcp",
	}, func() input.Input { return newRawTCP(handler) }); err != nil {
		return err
	}

	return setup.Register(input.Descriptor{
		Type:      "beat",
		Name:      "Synthetic heartbeat input",
		Exclusive: true,
		Schema: input.ConfigSchema{
			{Name: "interval_ms", Kind: input.FieldInt, Required: false, Default: 1000, Description: "Emit interval in milliseconds"},
			{Name: "text", Kind: input.FieldString, Required: false, Default: "beat", Description: "Payload text of each emitted message"},
		},
		DocsLink: "https://github.com/ChuLiYu/loghive/blob/main/docs/inputs.md#beat",
	}, func() input.Input { return newBeat(handler) })
}

// rawTCP is a line-oriented TCP listener. Anything fancier than newline
// framing (syslog, GELF, TLS) belongs to protocol plugins, not here.
type rawTCP struct {
	handler MessageHandler
	logger  *slog.Logger

	addr string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopping bool
}

func newRawTCP(handler MessageHandler) *rawTCP {
	return &rawTCP{
		handler: handler,
		logger:  slog.With("component", "input.raw-tcp"),
		conns:   make(map[net.Conn]struct{}),
	}
}

func (r *rawTCP) CheckConfiguration(cfg input.Configuration) error {
	port := cfg.Int("port")
	if port < 1 || port > 65535 {
		return &input.ConfigurationError{Fields: map[string]string{
			"port": fmt.Sprintf("port %d out of range", port),
		}}
	}
	return nil
}

// Initialize resolves the listen address and clears the stop state of
// any previous run. Relaunching reuses the same Input value, so a stale
// stopping flag would turn every later Stop into a no-op and leak the
// freshly bound listener.
func (r *rawTCP) Initialize(cfg input.Configuration) error {
	r.addr = net.JoinHostPort(cfg.String("bind_address"), fmt.Sprintf("%d", cfg.Int("port")))

	r.mu.Lock()
	r.stopping = false
	r.listener = nil
	r.mu.Unlock()
	return nil
}

func (r *rawTCP) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", r.addr, err)
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()

	r.logger.Info("listening", "addr", r.addr)

	// Close this run's listener on cancellation so Accept unblocks. The
	// goroutine captures the listener rather than going through Stop: a
	// context from a previous run must not be able to touch the state of
	// a relaunch.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if r.isStopping() || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		r.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.untrack(conn)
			r.serve(conn)
		}()
	}
}

func (r *rawTCP) serve(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)
		r.handler(conn.RemoteAddr().String(), raw)
	}
}

func (r *rawTCP) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopping {
		return
	}
	r.stopping = true
	if r.listener != nil {
		_ = r.listener.Close()
	}
	for conn := range r.conns {
		_ = conn.Close()
	}
}

func (r *rawTCP) isStopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

func (r *rawTCP) track(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = struct{}{}
}

func (r *rawTCP) untrack(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

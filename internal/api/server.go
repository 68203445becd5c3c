package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
)

// Server hosts the REST handlers as a supervised service. Start reports
// healthy once the listener is bound; Stop drains connections within the
// caller's deadline.
type Server struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	srv *http.Server
}

// NewServer builds the service around an already-routed handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  slog.With("component", "api.server"),
	}
}

func (s *Server) Name() string { return "rest-api" }

func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{Handler: s.handler}
	s.logger.Info("listening", "addr", listener.Addr().String())

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Addr returns the bound address once started.
func (s *Server) Addr() string { return s.addr }

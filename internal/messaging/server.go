// Package messaging runs an embedded NATS server that relays room traffic
// between peers using the natsbus transport.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

type Server struct {
	ns    *server.Server
	ready chan struct{}

	startupTimeout time.Duration
	host           string
	port           int
}

func NewServer(opts ...ServerOpt) (*Server, error) {
	s := &Server{
		ready:          make(chan struct{}),
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
		port:           server.DEFAULT_PORT,
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:   s.host,
		Port:   s.port,
		NoSigs: true, // Let the application handle signals
		NoLog:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	s.ns = ns

	return s, nil
}

// Start runs the server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.ns.Start()

	if !s.ns.ReadyForConnections(s.startupTimeout) {
		s.ns.Shutdown()
		return fmt.Errorf("nats server not ready for connections")
	}
	close(s.ready)

	slog.InfoContext(ctx, "nats server listening", "addr", s.ns.Addr())

	<-ctx.Done()
	s.ns.Shutdown()
	s.ns.WaitForShutdown()

	return nil
}

// Ready is closed once the server accepts client connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the server is ready or ctx is done.
func (s *Server) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientURL is the url clients dial. Only meaningful once Ready is closed.
func (s *Server) ClientURL() string {
	return s.ns.ClientURL()
}

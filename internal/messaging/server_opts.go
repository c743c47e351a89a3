package messaging

import "time"

type ServerOpt func(*Server)

// WithStartTimeout sets how long Start waits for the server to accept connections
func WithStartTimeout(d time.Duration) ServerOpt {
	return func(s *Server) {
		s.startupTimeout = d
	}
}

// WithHost sets the listen host for the nats server
func WithHost(host string) ServerOpt {
	return func(s *Server) {
		s.host = host
	}
}

// WithPort sets the listen port for the nats server. -1 picks a free port.
func WithPort(port int) ServerOpt {
	return func(s *Server) {
		s.port = port
	}
}

package natsbus

import (
	"log/slog"

	"github.com/nats-io/nats.go"
)

type Opt func(*Transport)

// WithLogger sets the logger for transport warnings.
func WithLogger(l *slog.Logger) Opt {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithPrefix changes the subject prefix shared by all peers of a deployment.
func WithPrefix(prefix string) Opt {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithNatsOptions appends options passed to nats.Connect.
func WithNatsOptions(opts ...nats.Option) Opt {
	return func(t *Transport) {
		t.natsOpts = append(t.natsOpts, opts...)
	}
}

// WithBufferSize sets how many inbound messages may queue before NATS
// reports a slow consumer.
func WithBufferSize(n int) Opt {
	return func(t *Transport) {
		t.bufSize = n
	}
}

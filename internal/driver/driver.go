// Package driver runs a function on a fixed interval against an injectable
// clock so loops can be stepped with a fake clock in tests.
package driver

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultInterval = 50 * time.Millisecond
)

type Ticker interface {
	Tick(context.Context) error
}

// TickerFunc adapts a function to Ticker.
type TickerFunc func(context.Context) error

func (f TickerFunc) Tick(ctx context.Context) error {
	return f(ctx)
}

type Driver struct {
	interval time.Duration
	clock    clockwork.Clock
	tickers  []Ticker
}

func NewDriver(tickers []Ticker, opts ...DriverOpt) *Driver {
	d := &Driver{
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
		tickers:  tickers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start ticks every interval until ctx is canceled or a ticker fails.
func (d *Driver) Start(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			err := d.Tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

// Tick runs every ticker once, in order.
func (d *Driver) Tick(ctx context.Context) error {
	for _, t := range d.tickers {
		if err := t.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Interval() time.Duration {
	return d.interval
}

package driver

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type DriverOpt func(*Driver)

func WithInterval(interval time.Duration) DriverOpt {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithClock(clock clockwork.Clock) DriverOpt {
	return func(d *Driver) {
		d.clock = clock
	}
}

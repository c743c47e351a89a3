package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-statesync/internal/messaging"
)

type NatsConfig struct {
	// Embedded runs a NATS server inside this process.
	Embedded     bool   `json:"embedded"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	StartTimeout string `json:"start_timeout"`

	// URL of an external server. Ignored when Embedded is set.
	URL    string `json:"url"`
	Prefix string `json:"prefix"`
}

func (c *NatsConfig) validate() error {
	el := errors.NewErrorList()

	if !c.Embedded && c.URL == "" {
		el.Add(fmt.Errorf("nats: url is required unless embedded is set"))
	}

	if c.StartTimeout != "" {
		_, err := time.ParseDuration(c.StartTimeout)
		if err != nil {
			el.Add(fmt.Errorf("nats: parsing start_timeout: %w", err))
		}
	}

	return el.Err()
}

// buildServer returns nil when an external server is used.
func (c *NatsConfig) buildServer() (*messaging.Server, error) {
	if !c.Embedded {
		return nil, nil
	}

	var opts []messaging.ServerOpt
	if c.StartTimeout != "" {
		d, err := time.ParseDuration(c.StartTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing start_timeout: %w", err)
		}
		opts = append(opts, messaging.WithStartTimeout(d))
	}
	if c.Host != "" {
		opts = append(opts, messaging.WithHost(c.Host))
	}
	if c.Port != 0 {
		opts = append(opts, messaging.WithPort(c.Port))
	}

	return messaging.NewServer(opts...)
}

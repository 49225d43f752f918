// Package natsconn is the shared NATS connection factory. Services dial
// through it so reconnect policy is tuned in one place.
package natsconn

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/course-platform/internal/platform/config"
)

// Options configures the connection. Zero values fall back to env vars or
// built-in defaults.
type Options struct {
	URL           string
	Name          string        // connection name reported to the server
	MaxReconnects int           // NATS_MAX_RECONNECTS, default 5
	ReconnectWait time.Duration // NATS_RECONNECT_WAIT, default 2s
}

// Connect dials the server with the configured retry policy. The initial
// dial is not retried; callers decide whether a missing broker is fatal.
func Connect(opts Options) (*nats.Conn, error) {
	url := opts.URL
	if url == "" {
		url = config.EnvStr("NATS_URL", "nats://nats:4222")
	}
	maxReconnects := opts.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = config.EnvInt("NATS_MAX_RECONNECTS", 5)
	}
	wait := opts.ReconnectWait
	if wait == 0 {
		wait = config.EnvDuration("NATS_RECONNECT_WAIT", 2*time.Second)
	}

	connOpts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(wait),
		nats.RetryOnFailedConnect(false),
	}
	if opts.Name != "" {
		connOpts = append(connOpts, nats.Name(opts.Name))
	}

	nc, err := nats.Connect(url, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

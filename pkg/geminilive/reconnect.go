package geminilive

import (
	"context"
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// Reconnect defaults.
const (
	DefaultReconnectTimeout     = 30 * time.Second
	DefaultReconnectMaxAttempts = 5
)

// ReconnectPolicy controls recovery from unexpected disconnects.
type ReconnectPolicy struct {
	// Disabled turns reconnection off; an unexpected disconnect closes the
	// session.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// MaxAttempts bounds the number of attempts. Zero means
	// DefaultReconnectMaxAttempts.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// Timeout bounds each attempt, dial and handshake included. Zero means
	// DefaultReconnectTimeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Backoff is the pause before each attempt. The zero value uses gax
	// defaults from 500ms up to 10s.
	Backoff gax.Backoff `json:"-" yaml:"-"`
}

func (p ReconnectPolicy) attempts() int {
	if p.Disabled {
		return 0
	}
	if p.MaxAttempts <= 0 {
		return DefaultReconnectMaxAttempts
	}
	return p.MaxAttempts
}

func (p ReconnectPolicy) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultReconnectTimeout
	}
	return p.Timeout
}

func (p ReconnectPolicy) backoff() *gax.Backoff {
	bo := p.Backoff
	if bo.Initial == 0 {
		bo.Initial = 500 * time.Millisecond
	}
	if bo.Max == 0 {
		bo.Max = 10 * time.Second
	}
	if bo.Multiplier == 0 {
		bo.Multiplier = 2
	}
	return &bo
}

// reconnect runs the recovery loop after an unexpected disconnect. It stops
// on the first successful attempt, on Close, or when the policy gives up.
func (c *Connector) reconnect(cause error) {
	policy := c.cfg.Reconnect
	bo := policy.backoff()
	lastErr := cause

	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		c.hooks.reconnecting(attempt, lastErr)

		if err := gax.Sleep(c.ctx, bo.Pause()); err != nil {
			return
		}

		actx, cancel := context.WithTimeout(c.ctx, policy.timeout())
		err := c.connect(actx, true)
		cancel()
		if err == nil {
			return
		}
		if c.ctx.Err() != nil {
			return
		}
		lastErr = err
		c.cfg.Logger.Warn("geminilive: reconnect attempt failed", "attempt", attempt, "error", err)
	}

	err := ErrReconnectExhausted
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrReconnectExhausted, lastErr)
	}
	c.hooks.reconnectFailed(err)
}

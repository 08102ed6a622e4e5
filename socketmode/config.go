package socketmode

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid socket mode configuration")

// Config controls the connections opened for one token.
type Config struct {
	// MaxConnectionsCount is the number of parallel connections per token.
	MaxConnectionsCount int

	// DebugConnections asks the server for short-lived connections.
	DebugConnections bool

	// InitialBackoff staggers the start of parallel connections.
	InitialBackoff time.Duration

	// ReconnectTimeout is the wait between failed connect attempts.
	ReconnectTimeout time.Duration

	// MaxReconnectTimeout enables exponential growth of the wait, capped at
	// this value. Zero keeps the wait fixed at ReconnectTimeout.
	MaxReconnectTimeout time.Duration

	// MaxReconnectAttempts stops a client after this many failed attempts.
	// Zero retries until shutdown.
	MaxReconnectAttempts int

	// PingInterval is the period between pings.
	PingInterval time.Duration

	// PingFailureThreshold is how many ping intervals may pass without a
	// pong before the connection is considered dead.
	PingFailureThreshold int

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// MaxMessageSize limits inbound frames.
	MaxMessageSize int64
}

// DefaultConfig returns the platform's recommended settings.
func DefaultConfig() Config {
	return Config{
		MaxConnectionsCount:  2,
		DebugConnections:     false,
		InitialBackoff:       5 * time.Second,
		ReconnectTimeout:     30 * time.Second,
		PingInterval:         15 * time.Second,
		PingFailureThreshold: 5,
		WriteTimeout:         10 * time.Second,
		MaxMessageSize:       1024 * 1024, // 1MB
	}
}

// withDefaults replaces zero fields with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConnectionsCount == 0 {
		c.MaxConnectionsCount = d.MaxConnectionsCount
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.ReconnectTimeout == 0 {
		c.ReconnectTimeout = d.ReconnectTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingFailureThreshold == 0 {
		c.PingFailureThreshold = d.PingFailureThreshold
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// Validate reports negative or inconsistent settings.
func (c Config) Validate() error {
	switch {
	case c.MaxConnectionsCount < 1:
		return fmt.Errorf("%w: max connections count must be at least 1", ErrInvalidConfig)
	case c.InitialBackoff < 0:
		return fmt.Errorf("%w: negative initial backoff", ErrInvalidConfig)
	case c.ReconnectTimeout <= 0:
		return fmt.Errorf("%w: reconnect timeout must be positive", ErrInvalidConfig)
	case c.MaxReconnectTimeout != 0 && c.MaxReconnectTimeout < c.ReconnectTimeout:
		return fmt.Errorf("%w: max reconnect timeout below reconnect timeout", ErrInvalidConfig)
	case c.MaxReconnectAttempts < 0:
		return fmt.Errorf("%w: negative max reconnect attempts", ErrInvalidConfig)
	case c.PingInterval <= 0:
		return fmt.Errorf("%w: ping interval must be positive", ErrInvalidConfig)
	case c.PingFailureThreshold < 1:
		return fmt.Errorf("%w: ping failure threshold must be at least 1", ErrInvalidConfig)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("%w: write timeout must be positive", ErrInvalidConfig)
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	return nil
}

// LivenessTimeout is how long a connection may go without a pong.
func (c Config) LivenessTimeout() time.Duration {
	return c.PingInterval * time.Duration(c.PingFailureThreshold)
}

// nextReconnectWait returns the wait after current, doubling up to
// MaxReconnectTimeout when it is set.
func (c Config) nextReconnectWait(current time.Duration) time.Duration {
	if c.MaxReconnectTimeout == 0 {
		return c.ReconnectTimeout
	}
	next := current * 2
	if next > c.MaxReconnectTimeout {
		next = c.MaxReconnectTimeout
	}
	return next
}

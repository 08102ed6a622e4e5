package ratelimit

import (
	"context"
	"sync"
	"time"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
)

// RateController serializes access to a RateThrottler and performs the wait.
// It is safe for concurrent use.
type RateController struct {
	mu        sync.Mutex
	throttler *RateThrottler
	config    RateControlConfig
	sleep     func(ctx context.Context, d time.Duration) error // for testing
}

// NewRateController creates a controller for config.
func NewRateController(config RateControlConfig) *RateController {
	return &RateController{
		throttler: NewRateThrottler(config),
		config:    config,
		sleep:     sleepContext,
	}
}

// Config returns the controller's configuration.
func (c *RateController) Config() RateControlConfig {
	return c.config
}

// ThrottleDelay blocks until the call may be sent. It returns a rate limit
// error without waiting when the delay exceeds MaxDelayTimeout, and the
// context error if ctx ends first.
func (c *RateController) ThrottleDelay(ctx context.Context, methodCfg *MethodRateControlConfig, teamID TeamID) error {
	return c.ThrottleDelayWithRetryAfter(ctx, methodCfg, teamID, 0)
}

// ThrottleDelayWithRetryAfter is ThrottleDelay for a retried call. Capacity is
// consumed as usual, but a positive retryAfter from the server replaces the
// computed delay. A call rejected by MaxDelayTimeout consumes nothing.
func (c *RateController) ThrottleDelayWithRetryAfter(ctx context.Context, methodCfg *MethodRateControlConfig, teamID TeamID, retryAfter time.Duration) error {
	ceiling := c.config.MaxDelayTimeout
	if retryAfter > 0 {
		ceiling = 0
	}

	c.mu.Lock()
	delay, ok := c.throttler.TryThrottleDelay(methodCfg, teamID, ceiling)
	c.mu.Unlock()

	if !ok {
		return clienterrors.RateLimited("client side throttling",
			clienterrors.WithCause(ErrMaxDelayExceeded),
			clienterrors.WithRetryAfter(delay),
			clienterrors.WithRetryable(false),
			clienterrors.WithMetadata("team_id", string(teamID)),
		)
	}
	if retryAfter > 0 {
		delay = retryAfter
	}

	if delay <= 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, delay)
}

// CalcDelay consumes capacity and returns the wait without sleeping.
func (c *RateController) CalcDelay(methodCfg *MethodRateControlConfig, teamID TeamID) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttler.CalcThrottleDelay(methodCfg, teamID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

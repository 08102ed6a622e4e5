package ratelimit

import (
	"fmt"
	"time"
)

// UnlimitedRetries makes the connector retry rate limited calls until they
// succeed.
const UnlimitedRetries = -1

// DefaultTierLimits returns the platform's published per-tier limits.
func DefaultTierLimits() map[Tier]RateLimit {
	return map[Tier]RateLimit{
		Tier1: PerMinute(1),
		Tier2: PerMinute(20),
		Tier3: PerMinute(50),
		Tier4: PerMinute(100),
	}
}

// RateControlConfig configures client-side throttling and the 429 retry loop.
type RateControlConfig struct {
	// GlobalMaxRateLimit caps calls across all teams. Nil disables it.
	GlobalMaxRateLimit *RateLimit

	// TeamMaxRateLimit caps calls per team. Nil disables it.
	TeamMaxRateLimit *RateLimit

	// TierLimits overrides per-tier limits. Missing tiers use DefaultTierLimits.
	TierLimits map[Tier]RateLimit

	// MaxDelayTimeout fails a call instead of waiting longer than this.
	// Zero waits as long as required.
	MaxDelayTimeout time.Duration

	// MaxRetries bounds retries of rate limited calls. Zero never retries,
	// a negative value retries without bound.
	MaxRetries int
}

// DefaultRateControlConfig returns tier limits only, with unbounded retries.
func DefaultRateControlConfig() RateControlConfig {
	return RateControlConfig{
		TierLimits: DefaultTierLimits(),
		MaxRetries: UnlimitedRetries,
	}
}

// Validate checks every configured limit.
func (c RateControlConfig) Validate() error {
	if c.GlobalMaxRateLimit != nil {
		if err := c.GlobalMaxRateLimit.Validate(); err != nil {
			return fmt.Errorf("%w: global limit: %v", ErrInvalidConfig, err)
		}
	}
	if c.TeamMaxRateLimit != nil {
		if err := c.TeamMaxRateLimit.Validate(); err != nil {
			return fmt.Errorf("%w: team limit: %v", ErrInvalidConfig, err)
		}
	}
	for tier, limit := range c.TierLimits {
		if tier <= TierNone || tier > Tier4 {
			return fmt.Errorf("%w: %v", ErrUnknownTier, tier)
		}
		if err := limit.Validate(); err != nil {
			return fmt.Errorf("%w: %v limit: %v", ErrInvalidConfig, tier, err)
		}
	}
	if c.MaxDelayTimeout < 0 {
		return fmt.Errorf("%w: negative max delay timeout", ErrInvalidConfig)
	}
	return nil
}

// TierLimit returns the configured limit for tier, falling back to the default.
func (c RateControlConfig) TierLimit(tier Tier) (RateLimit, bool) {
	if limit, ok := c.TierLimits[tier]; ok {
		return limit, true
	}
	limit, ok := DefaultTierLimits()[tier]
	return limit, ok
}

// RetriesLeft reports whether another retry is allowed after retried attempts.
func (c RateControlConfig) RetriesLeft(retried int) bool {
	if c.MaxRetries < 0 {
		return true
	}
	return retried < c.MaxRetries
}

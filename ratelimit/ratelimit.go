package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common errors.
var (
	ErrInvalidValue      = errors.New("rate limit value must be positive")
	ErrInvalidPeriod     = errors.New("rate limit period must be positive")
	ErrInvalidConfig     = errors.New("invalid rate control configuration")
	ErrMaxDelayExceeded  = errors.New("throttle delay exceeds max delay timeout")
	ErrUnknownTier       = errors.New("unknown tier")
	ErrEmptySpecialLimit = errors.New("special rate limit key is empty")
)

// TeamID identifies a workspace. An empty TeamID means the call is not
// attributed to any team and only the global limit applies.
type TeamID string

// RateLimit describes "Value operations per Per".
type RateLimit struct {
	Value int
	Per   time.Duration
}

// NewRateLimit returns a validated RateLimit.
func NewRateLimit(value int, per time.Duration) (RateLimit, error) {
	rl := RateLimit{Value: value, Per: per}
	if err := rl.Validate(); err != nil {
		return RateLimit{}, err
	}
	return rl, nil
}

// PerMinute returns a limit of n operations per minute.
func PerMinute(n int) RateLimit {
	return RateLimit{Value: n, Per: time.Minute}
}

// PerSecond returns a limit of n operations per second.
func PerSecond(n int) RateLimit {
	return RateLimit{Value: n, Per: time.Second}
}

// Ptr returns a pointer to a copy of rl, for optional config fields.
func (rl RateLimit) Ptr() *RateLimit {
	return &rl
}

// Validate checks that both value and period are positive.
func (rl RateLimit) Validate() error {
	if rl.Value <= 0 {
		return ErrInvalidValue
	}
	if rl.Per <= 0 {
		return ErrInvalidPeriod
	}
	return nil
}

// InMillis returns the replenishment interval of one token, never below 1ms.
// The limit must pass Validate.
func (rl RateLimit) InMillis() int64 {
	ms := rl.Per.Milliseconds() / int64(rl.Value)
	if ms < 1 {
		return 1
	}
	return ms
}

// Capacity returns the bucket size derived from the limit.
func (rl RateLimit) Capacity() int64 {
	c := rl.Per.Milliseconds() / rl.InMillis()
	if c < 1 {
		return 1
	}
	return c
}

func (rl RateLimit) String() string {
	return fmt.Sprintf("%d/%s", rl.Value, rl.Per)
}

// ParseRateLimit parses "<value>/<duration>", for example "20/1m".
func ParseRateLimit(s string) (RateLimit, error) {
	value, per, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return RateLimit{}, fmt.Errorf("%w: %q is not <value>/<duration>", ErrInvalidConfig, s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return RateLimit{}, fmt.Errorf("%w: %q: %v", ErrInvalidValue, s, err)
	}
	d, err := time.ParseDuration(strings.TrimSpace(per))
	if err != nil {
		return RateLimit{}, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, s, err)
	}
	return NewRateLimit(n, d)
}

func (rl RateLimit) MarshalText() ([]byte, error) {
	return []byte(rl.String()), nil
}

func (rl *RateLimit) UnmarshalText(text []byte) error {
	parsed, err := ParseRateLimit(string(text))
	if err != nil {
		return err
	}
	*rl = parsed
	return nil
}

// Tier is the coarse rate limit class the platform assigns to most methods.
type Tier int

const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case Tier1, Tier2, Tier3, Tier4:
		return fmt.Sprintf("tier%d", int(t))
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps "tier1".."tier4" to a Tier.
func ParseTier(s string) (Tier, error) {
	for _, t := range []Tier{Tier1, Tier2, Tier3, Tier4} {
		if t.String() == s {
			return t, nil
		}
	}
	return TierNone, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// SpecialLimitKey names a special limit bucket, usually the method name.
type SpecialLimitKey string

// SpecialRateLimit overrides or tightens the tier limit for one method.
type SpecialRateLimit struct {
	Key   SpecialLimitKey
	Limit RateLimit
}

// MethodRateControlConfig describes how a single API method is throttled.
type MethodRateControlConfig struct {
	Tier             Tier
	SpecialRateLimit *SpecialRateLimit
}

// Validate checks the special limit, if any.
func (m MethodRateControlConfig) Validate() error {
	if m.Tier < TierNone || m.Tier > Tier4 {
		return fmt.Errorf("%w: %d", ErrUnknownTier, int(m.Tier))
	}
	if m.SpecialRateLimit == nil {
		return nil
	}
	if m.SpecialRateLimit.Key == "" {
		return ErrEmptySpecialLimit
	}
	return m.SpecialRateLimit.Limit.Validate()
}

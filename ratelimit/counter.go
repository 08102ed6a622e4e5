package ratelimit

import "time"

// ThrottlingCounter is an immutable token bucket. All arithmetic is done in
// whole milliseconds.
type ThrottlingCounter struct {
	capacity          int64 // negative while in debt
	maxCapacity       int64
	lastUpdated       time.Time // tick-aligned time of the last replenishment
	lastArrived       time.Time // when the last accepted call fires
	rateLimitInMillis int64
	delay             time.Duration
}

// NewThrottlingCounter returns a full bucket for limit.
func NewThrottlingCounter(limit RateLimit, now time.Time) ThrottlingCounter {
	return ThrottlingCounter{
		capacity:          limit.Capacity(),
		maxCapacity:       limit.Capacity(),
		lastUpdated:       now,
		lastArrived:       now,
		rateLimitInMillis: limit.InMillis(),
	}
}

// Update returns the counter after one call at now.
//
// Whole ticks elapsed since lastUpdated are added back (capped at
// maxCapacity) and one token is consumed. If that leaves the bucket in debt
// the call waits one tick per started multiple of maxCapacity owed, minus the
// part of the current tick that has already passed.
func (c ThrottlingCounter) Update(now time.Time) ThrottlingCounter {
	rate := c.rateLimitInMillis

	elapsed := now.Sub(c.lastUpdated).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	ticks := elapsed / rate
	inTick := elapsed % rate

	next := c
	next.lastUpdated = c.lastUpdated.Add(time.Duration(ticks*rate) * time.Millisecond)

	available := c.capacity + ticks
	if available > c.maxCapacity {
		available = c.maxCapacity
	}
	next.capacity = available - 1

	if next.capacity >= 0 {
		next.delay = 0
		next.lastArrived = now
		return next
	}

	deficit := -next.capacity
	delayMs := rate*((deficit-1)/c.maxCapacity+1) - inTick
	next.delay = time.Duration(delayMs) * time.Millisecond
	next.lastArrived = now.Add(next.delay)
	return next
}

// Capacity returns the tokens left, negative when in debt.
func (c ThrottlingCounter) Capacity() int64 { return c.capacity }

// MaxCapacity returns the bucket size.
func (c ThrottlingCounter) MaxCapacity() int64 { return c.maxCapacity }

// RateLimitInMillis returns the replenishment interval of one token.
func (c ThrottlingCounter) RateLimitInMillis() int64 { return c.rateLimitInMillis }

// Delay returns the wait computed by the most recent Update.
func (c ThrottlingCounter) Delay() time.Duration { return c.delay }

// LastUpdated returns the tick-aligned time of the last replenishment.
func (c ThrottlingCounter) LastUpdated() time.Time { return c.lastUpdated }

// LastArrived returns when the most recent call is allowed to fire.
func (c ThrottlingCounter) LastArrived() time.Time { return c.lastArrived }

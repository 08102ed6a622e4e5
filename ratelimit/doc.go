// Package ratelimit throttles outbound Web API calls before they are sent.
//
// Every call is checked against up to four independent token buckets: a
// process-wide global limit, a per-team limit, the limit of the method's tier
// and an optional special limit for sensitive methods such as
// chat.postMessage. The caller waits for the largest delay any of them
// requires.
//
//	cfg := ratelimit.DefaultRateControlConfig()
//	cfg.TeamMaxRateLimit = ratelimit.PerMinute(300).Ptr()
//
//	ctrl := ratelimit.NewRateController(cfg)
//	methods := ratelimit.DefaultMethodRegistry()
//
//	mc, _ := methods.Lookup("conversations.history")
//	if err := ctrl.ThrottleDelay(ctx, &mc, "T0123"); err != nil {
//	    return err
//	}
//
// # Algorithm
//
// A ThrottlingCounter is an immutable token bucket. Update returns a new
// counter that has consumed one token and reports how long the call must
// wait. Tokens are replenished in whole ticks of Per/Value milliseconds and
// the bucket never holds more than its capacity. When the bucket is empty its
// capacity goes negative and the wait grows by one tick for every full
// capacity of debt.
//
// RateThrottler owns the counters for every scope and team and is not safe
// for concurrent use. RateController guards it with a mutex that is held only
// while delays are computed, never while sleeping.
package ratelimit

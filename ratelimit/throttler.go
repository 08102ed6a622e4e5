package ratelimit

import (
	"sort"
	"time"
)

// TeamIdleTimeout is how long a team may go without calls before its
// counters are dropped.
const TeamIdleTimeout = time.Hour

type teamLimits struct {
	teamCounter     *ThrottlingCounter
	tierCounters    map[Tier]ThrottlingCounter
	specialCounters map[SpecialLimitKey]ThrottlingCounter
	lastTouched     time.Time
}

// RateThrottler tracks token buckets for every scope and team.
// It is not safe for concurrent use; see RateController.
type RateThrottler struct {
	config        RateControlConfig
	globalCounter *ThrottlingCounter
	perTeam       map[TeamID]*teamLimits
	nowFunc       func() time.Time // for testing
}

// NewRateThrottler creates a throttler with no counters yet.
func NewRateThrottler(config RateControlConfig) *RateThrottler {
	return &RateThrottler{
		config:  config,
		perTeam: make(map[TeamID]*teamLimits),
		nowFunc: time.Now,
	}
}

// CalcThrottleDelay consumes one token from every scope that applies to the
// call and returns the largest wait among them. An empty teamID or nil
// methodCfg limits the call to the scopes that can still be resolved.
// Limits that fail Validate are skipped.
func (t *RateThrottler) CalcThrottleDelay(methodCfg *MethodRateControlConfig, teamID TeamID) time.Duration {
	delay, _ := t.TryThrottleDelay(methodCfg, teamID, 0)
	return delay
}

// TryThrottleDelay is CalcThrottleDelay with a ceiling. When limit is positive
// and the wait would exceed it, no token is consumed and ok is false.
func (t *RateThrottler) TryThrottleDelay(methodCfg *MethodRateControlConfig, teamID TeamID, limit time.Duration) (delay time.Duration, ok bool) {
	now := t.nowFunc()
	defer t.evictIdleTeams(now)

	u := t.plan(methodCfg, teamID, now)
	if limit > 0 && u.delay > limit {
		return u.delay, false
	}
	t.commit(u)
	return u.delay, true
}

// update holds the counters a call would leave behind.
type update struct {
	now     time.Time
	teamID  TeamID
	delay   time.Duration
	global  *ThrottlingCounter
	team    *ThrottlingCounter
	tier    Tier
	tierCtr *ThrottlingCounter
	key     SpecialLimitKey
	special *ThrottlingCounter
}

func (u *update) apply(c ThrottlingCounter) *ThrottlingCounter {
	u.delay = maxDelay(u.delay, c.Delay())
	return &c
}

// plan computes the next counters without storing them.
func (t *RateThrottler) plan(methodCfg *MethodRateControlConfig, teamID TeamID, now time.Time) update {
	u := update{now: now, teamID: teamID}

	if t.globalCounter != nil {
		u.global = u.apply(t.globalCounter.Update(now))
	} else if rl := t.config.GlobalMaxRateLimit; usable(rl) {
		u.global = u.apply(NewThrottlingCounter(*rl, now).Update(now))
	}

	if teamID == "" {
		return u
	}
	tl := t.perTeam[teamID]

	switch {
	case tl != nil && tl.teamCounter != nil:
		u.team = u.apply(tl.teamCounter.Update(now))
	case tl == nil && usable(t.config.TeamMaxRateLimit):
		u.team = u.apply(NewThrottlingCounter(*t.config.TeamMaxRateLimit, now).Update(now))
	}

	if methodCfg == nil {
		return u
	}
	if rl, found := t.config.TierLimit(methodCfg.Tier); found && usable(&rl) {
		c, exists := ThrottlingCounter{}, false
		if tl != nil {
			c, exists = tl.tierCounters[methodCfg.Tier]
		}
		if !exists {
			c = NewThrottlingCounter(rl, now)
		}
		u.tier = methodCfg.Tier
		u.tierCtr = u.apply(c.Update(now))
	}
	if special := methodCfg.SpecialRateLimit; special != nil && usable(&special.Limit) {
		c, exists := ThrottlingCounter{}, false
		if tl != nil {
			c, exists = tl.specialCounters[special.Key]
		}
		if !exists {
			c = NewThrottlingCounter(special.Limit, now)
		}
		u.key = special.Key
		u.special = u.apply(c.Update(now))
	}
	return u
}

func (t *RateThrottler) commit(u update) {
	if u.global != nil {
		t.globalCounter = u.global
	}
	if u.teamID == "" {
		return
	}
	tl := t.team(u.teamID, u.now)
	tl.lastTouched = u.now
	if u.team != nil {
		tl.teamCounter = u.team
	}
	if u.tierCtr != nil {
		tl.tierCounters[u.tier] = *u.tierCtr
	}
	if u.special != nil {
		tl.specialCounters[u.key] = *u.special
	}
}

func usable(rl *RateLimit) bool {
	return rl != nil && rl.Validate() == nil
}

func (t *RateThrottler) team(teamID TeamID, now time.Time) *teamLimits {
	if tl, ok := t.perTeam[teamID]; ok {
		return tl
	}
	tl := &teamLimits{
		tierCounters:    make(map[Tier]ThrottlingCounter),
		specialCounters: make(map[SpecialLimitKey]ThrottlingCounter),
		lastTouched:     now,
	}
	t.perTeam[teamID] = tl
	return tl
}

func (t *RateThrottler) evictIdleTeams(now time.Time) {
	for id, tl := range t.perTeam {
		if now.Sub(tl.lastTouched) > TeamIdleTimeout {
			delete(t.perTeam, id)
		}
	}
}

// Teams returns the teams that currently hold counters, sorted.
func (t *RateThrottler) Teams() []TeamID {
	ids := make([]TeamID, 0, len(t.perTeam))
	for id := range t.perTeam {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Config returns the configuration the throttler was built with.
func (t *RateThrottler) Config() RateControlConfig {
	return t.config
}

func maxDelay(a, b time.Duration) time.Duration {
	if b > a {
		return b
	}
	return a
}

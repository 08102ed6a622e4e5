package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
	"github.com/google/go-cmp/cmp"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestThrottler(cfg RateControlConfig) (*RateThrottler, *fakeClock) {
	clock := &fakeClock{now: epoch}
	th := NewRateThrottler(cfg)
	th.nowFunc = clock.Now
	return th, clock
}

// --- Unit Tests ---

func TestRateThrottler_BindingConstraint(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.GlobalMaxRateLimit = PerMinute(1).Ptr()
	cfg.TierLimits = map[Tier]RateLimit{Tier4: PerMinute(100)}
	th, _ := newTestThrottler(cfg)

	method := &MethodRateControlConfig{Tier: Tier4}
	if d := th.CalcThrottleDelay(method, "T1"); d != 0 {
		t.Fatalf("first call delay = %v, want 0", d)
	}
	if d := th.CalcThrottleDelay(method, "T1"); d != time.Minute {
		t.Errorf("second call delay = %v, want 1m from global limit", d)
	}
}

func TestRateThrottler_SpecialLimit(t *testing.T) {
	th, clock := newTestThrottler(DefaultRateControlConfig())
	post, ok := DefaultMethodRegistry().Lookup("chat.postMessage")
	if !ok {
		t.Fatal("chat.postMessage not registered")
	}

	if d := th.CalcThrottleDelay(&post, "T1"); d != 0 {
		t.Fatalf("first post delay = %v", d)
	}
	if d := th.CalcThrottleDelay(&post, "T1"); d != time.Second {
		t.Errorf("second post delay = %v, want 1s", d)
	}

	// special limits are tracked per team
	if d := th.CalcThrottleDelay(&post, "T2"); d != 0 {
		t.Errorf("other team delay = %v, want 0", d)
	}

	clock.Advance(3 * time.Second)
	if d := th.CalcThrottleDelay(&post, "T1"); d != 0 {
		t.Errorf("after 3s delay = %v, want 0", d)
	}
}

func TestRateThrottler_TeamLimit(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.TeamMaxRateLimit = PerSecond(2).Ptr()
	th, _ := newTestThrottler(cfg)

	th.CalcThrottleDelay(nil, "T1")
	th.CalcThrottleDelay(nil, "T1")
	if d := th.CalcThrottleDelay(nil, "T1"); d != 500*time.Millisecond {
		t.Errorf("third call delay = %v, want 500ms", d)
	}
}

func TestRateThrottler_NoTeamOnlyGlobal(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.TeamMaxRateLimit = PerMinute(1).Ptr()
	th, _ := newTestThrottler(cfg)

	method := &MethodRateControlConfig{Tier: Tier1}
	for i := 0; i < 5; i++ {
		if d := th.CalcThrottleDelay(method, ""); d != 0 {
			t.Fatalf("call %d without team delayed %v", i+1, d)
		}
	}
	if len(th.Teams()) != 0 {
		t.Errorf("expected no team state, got %v", th.Teams())
	}
}

func TestRateThrottler_TierFallsBackToDefaults(t *testing.T) {
	cfg := RateControlConfig{} // no tier limits configured
	th, _ := newTestThrottler(cfg)

	method := &MethodRateControlConfig{Tier: Tier1}
	th.CalcThrottleDelay(method, "T1")
	if d := th.CalcThrottleDelay(method, "T1"); d != time.Minute {
		t.Errorf("delay = %v, want default Tier1 1m", d)
	}
}

func TestRateThrottler_EvictsIdleTeams(t *testing.T) {
	th, clock := newTestThrottler(DefaultRateControlConfig())
	method := &MethodRateControlConfig{Tier: Tier3}

	th.CalcThrottleDelay(method, "T-old")
	clock.Advance(30 * time.Minute)
	th.CalcThrottleDelay(method, "T-mid")

	if diff := cmp.Diff([]TeamID{"T-mid", "T-old"}, th.Teams()); diff != "" {
		t.Fatalf("teams mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(31 * time.Minute)
	th.CalcThrottleDelay(method, "T-new")

	if diff := cmp.Diff([]TeamID{"T-mid", "T-new"}, th.Teams()); diff != "" {
		t.Errorf("teams mismatch (-want +got):\n%s", diff)
	}
}

func TestRateThrottler_EvictionRunsWithoutTeam(t *testing.T) {
	th, clock := newTestThrottler(DefaultRateControlConfig())
	th.CalcThrottleDelay(nil, "T1")
	clock.Advance(TeamIdleTimeout + time.Second)
	th.CalcThrottleDelay(nil, "")
	if len(th.Teams()) != 0 {
		t.Errorf("expected T1 evicted, got %v", th.Teams())
	}
}

func TestRateThrottler_TryThrottleDelayKeepsCountersOnReject(t *testing.T) {
	th, clock := newTestThrottler(DefaultRateControlConfig())
	method := &MethodRateControlConfig{Tier: Tier1}

	if d, ok := th.TryThrottleDelay(method, "T1", 20*time.Second); !ok || d != 0 {
		t.Fatalf("first call = (%v, %v), want (0, true)", d, ok)
	}

	clock.Advance(time.Second)
	for i := 0; i < 3; i++ {
		if d, ok := th.TryThrottleDelay(method, "T1", 20*time.Second); ok || d != 59*time.Second {
			t.Fatalf("rejected call %d = (%v, %v), want (59s, false)", i, d, ok)
		}
	}

	// rejected calls did not deepen the deficit
	clock.Advance(59 * time.Second)
	if d, ok := th.TryThrottleDelay(method, "T1", 20*time.Second); !ok || d != 0 {
		t.Errorf("after refill = (%v, %v), want (0, true)", d, ok)
	}
}

func TestRateThrottler_RejectDoesNotCreateTeam(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.GlobalMaxRateLimit = PerMinute(1).Ptr()
	th, _ := newTestThrottler(cfg)
	method := &MethodRateControlConfig{Tier: Tier4}

	th.CalcThrottleDelay(method, "T1")
	if _, ok := th.TryThrottleDelay(method, "T2", time.Second); ok {
		t.Fatal("expected rejection from global limit")
	}
	if diff := cmp.Diff([]TeamID{"T1"}, th.Teams()); diff != "" {
		t.Errorf("teams mismatch (-want +got):\n%s", diff)
	}
}

func TestRateThrottler_SkipsInvalidLimits(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.TeamMaxRateLimit = &RateLimit{Value: 0, Per: time.Minute}
	th, _ := newTestThrottler(cfg)

	method := &MethodRateControlConfig{
		Tier:             Tier4,
		SpecialRateLimit: &SpecialRateLimit{Key: "broken", Limit: RateLimit{Value: 0, Per: time.Second}},
	}
	for i := 0; i < 3; i++ {
		if d := th.CalcThrottleDelay(method, "T1"); d != 0 {
			t.Fatalf("call %d delay = %v, want 0 from tier4 only", i, d)
		}
	}
}

func TestRateControlConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateControlConfig
		wantErr bool
	}{
		{"default", DefaultRateControlConfig(), false},
		{"bad global", RateControlConfig{GlobalMaxRateLimit: &RateLimit{0, time.Second}}, true},
		{"bad team", RateControlConfig{TeamMaxRateLimit: &RateLimit{1, 0}}, true},
		{"bad tier key", RateControlConfig{TierLimits: map[Tier]RateLimit{TierNone: PerSecond(1)}}, true},
		{"negative timeout", RateControlConfig{MaxDelayTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateControlConfig_RetriesLeft(t *testing.T) {
	cfg := RateControlConfig{MaxRetries: 2}
	if !cfg.RetriesLeft(0) || !cfg.RetriesLeft(1) || cfg.RetriesLeft(2) {
		t.Error("MaxRetries=2 should allow exactly two retries")
	}
	if (RateControlConfig{}).RetriesLeft(0) {
		t.Error("MaxRetries=0 should never retry")
	}
	if !DefaultRateControlConfig().RetriesLeft(1000) {
		t.Error("default should retry without bound")
	}
}

func TestMethodRegistry(t *testing.T) {
	r := DefaultMethodRegistry()
	cfg, ok := r.Lookup("apps.connections.open")
	if !ok || cfg.Tier != Tier1 {
		t.Errorf("apps.connections.open = %+v, %v", cfg, ok)
	}
	if _, ok := r.Lookup("no.such.method"); ok {
		t.Error("unexpected lookup hit")
	}

	before := r.Len()
	if err := r.Set("custom.method", MethodRateControlConfig{Tier: Tier2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if r.Len() != before+1 {
		t.Errorf("Len() = %d, want %d", r.Len(), before+1)
	}
	err := r.Set("bad.method", MethodRateControlConfig{SpecialRateLimit: &SpecialRateLimit{Limit: PerSecond(1)}})
	if !errors.Is(err, ErrEmptySpecialLimit) {
		t.Errorf("expected ErrEmptySpecialLimit, got %v", err)
	}
}

// --- Controller Tests ---

func newTestController(cfg RateControlConfig) (*RateController, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{now: epoch}
	ctrl := NewRateController(cfg)
	ctrl.throttler.nowFunc = clock.Now
	var slept []time.Duration
	var mu sync.Mutex
	ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return ctrl, clock, &slept
}

func TestRateController_SleepsComputedDelay(t *testing.T) {
	ctrl, _, slept := newTestController(DefaultRateControlConfig())
	method := &MethodRateControlConfig{Tier: Tier1}
	ctx := context.Background()

	if err := ctrl.ThrottleDelay(ctx, method, "T1"); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.ThrottleDelay(ctx, method, "T1"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]time.Duration{time.Minute}, *slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestRateController_RetryAfterOverrides(t *testing.T) {
	ctrl, _, slept := newTestController(DefaultRateControlConfig())
	method := &MethodRateControlConfig{Tier: Tier4}

	if err := ctrl.ThrottleDelayWithRetryAfter(context.Background(), method, "T1", 7*time.Second); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]time.Duration{7 * time.Second}, *slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestRateController_MaxDelayTimeout(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.MaxDelayTimeout = 10 * time.Second
	ctrl, _, slept := newTestController(cfg)
	method := &MethodRateControlConfig{Tier: Tier1}

	_ = ctrl.ThrottleDelay(context.Background(), method, "T1")
	err := ctrl.ThrottleDelay(context.Background(), method, "T1")

	if !clienterrors.IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if !errors.Is(err, ErrMaxDelayExceeded) {
		t.Error("expected ErrMaxDelayExceeded in chain")
	}
	if clienterrors.IsRetryable(err) {
		t.Error("client side timeout must not be retried")
	}
	if d, _ := clienterrors.RetryAfter(err); d != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", d)
	}
	if len(*slept) != 0 {
		t.Errorf("should not sleep, slept %v", *slept)
	}
}

func TestRateController_RejectedCallsDoNotConsume(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.MaxDelayTimeout = 20 * time.Second
	ctrl, clock, slept := newTestController(cfg)
	method := &MethodRateControlConfig{Tier: Tier1}
	ctx := context.Background()

	if err := ctrl.ThrottleDelay(ctx, method, "T1"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := ctrl.ThrottleDelay(ctx, method, "T1"); !errors.Is(err, ErrMaxDelayExceeded) {
		t.Fatalf("expected ErrMaxDelayExceeded, got %v", err)
	}

	clock.Advance(59 * time.Second)
	if err := ctrl.ThrottleDelay(ctx, method, "T1"); err != nil {
		t.Errorf("call after refill: %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("should not sleep, slept %v", *slept)
	}
}

func TestRateController_RetryAfterIgnoresMaxDelay(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.MaxDelayTimeout = time.Second
	ctrl, _, slept := newTestController(cfg)
	method := &MethodRateControlConfig{Tier: Tier1}
	ctx := context.Background()

	_ = ctrl.ThrottleDelay(ctx, method, "T1")
	if err := ctrl.ThrottleDelayWithRetryAfter(ctx, method, "T1", 30*time.Second); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]time.Duration{30 * time.Second}, *slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestRateController_ContextCanceled(t *testing.T) {
	ctrl := NewRateController(DefaultRateControlConfig())
	method := &MethodRateControlConfig{Tier: Tier1}
	_ = ctrl.ThrottleDelay(context.Background(), method, "T1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ctrl.ThrottleDelay(ctx, method, "T1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep did not honor context")
	}
}

func TestRateController_ConcurrentCallsSerialize(t *testing.T) {
	cfg := DefaultRateControlConfig()
	cfg.TierLimits = map[Tier]RateLimit{Tier2: {Value: 10, Per: 10 * time.Second}}
	ctrl, _, slept := newTestController(cfg)
	method := &MethodRateControlConfig{Tier: Tier2}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.ThrottleDelay(context.Background(), method, "T1")
		}()
	}
	wg.Wait()

	// capacity 10: exactly the calls beyond it wait
	if len(*slept) != 10 {
		t.Errorf("expected 10 delayed calls, got %d", len(*slept))
	}
}

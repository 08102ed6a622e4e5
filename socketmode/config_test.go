package socketmode

import (
	"errors"
	"testing"
	"time"
)

// --- Unit Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConnectionsCount != 2 {
		t.Errorf("MaxConnectionsCount = %d, want 2", cfg.MaxConnectionsCount)
	}
	if cfg.DebugConnections {
		t.Error("DebugConnections should default to false")
	}
	if cfg.InitialBackoff != 5*time.Second {
		t.Errorf("InitialBackoff = %v, want 5s", cfg.InitialBackoff)
	}
	if cfg.ReconnectTimeout != 30*time.Second {
		t.Errorf("ReconnectTimeout = %v, want 30s", cfg.ReconnectTimeout)
	}
	if cfg.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %v, want 15s", cfg.PingInterval)
	}
	if cfg.PingFailureThreshold != 5 {
		t.Errorf("PingFailureThreshold = %d, want 5", cfg.PingFailureThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_LivenessTimeout(t *testing.T) {
	// 15s pings, five misses: dead after 75s of silence.
	if got := DefaultConfig().LivenessTimeout(); got != 75*time.Second {
		t.Errorf("LivenessTimeout() = %v, want 75s", got)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{MaxConnectionsCount: 4, PingInterval: time.Second}.withDefaults()
	if cfg.MaxConnectionsCount != 4 {
		t.Errorf("MaxConnectionsCount = %d, want 4", cfg.MaxConnectionsCount)
	}
	if cfg.PingInterval != time.Second {
		t.Errorf("PingInterval = %v, want 1s", cfg.PingInterval)
	}
	if cfg.ReconnectTimeout != 30*time.Second {
		t.Errorf("ReconnectTimeout = %v, want default", cfg.ReconnectTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero connections", func(c *Config) { c.MaxConnectionsCount = 0 }},
		{"negative backoff", func(c *Config) { c.InitialBackoff = -time.Second }},
		{"zero reconnect timeout", func(c *Config) { c.ReconnectTimeout = 0 }},
		{"max below reconnect", func(c *Config) { c.MaxReconnectTimeout = time.Second }},
		{"negative attempts", func(c *Config) { c.MaxReconnectAttempts = -1 }},
		{"zero ping interval", func(c *Config) { c.PingInterval = 0 }},
		{"zero threshold", func(c *Config) { c.PingFailureThreshold = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
		{"zero message size", func(c *Config) { c.MaxMessageSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_NextReconnectWait(t *testing.T) {
	fixed := Config{ReconnectTimeout: time.Second}
	if got := fixed.nextReconnectWait(time.Second); got != time.Second {
		t.Errorf("fixed wait = %v, want 1s", got)
	}

	exp := Config{ReconnectTimeout: time.Second, MaxReconnectTimeout: 5 * time.Second}
	wait := exp.ReconnectTimeout
	var got []time.Duration
	for i := 0; i < 4; i++ {
		wait = exp.nextReconnectWait(wait)
		got = append(got, wait)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %v, want %v", i, got[i], want[i])
		}
	}
}

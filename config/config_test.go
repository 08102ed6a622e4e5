package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abdolence/slack-morphism-go/api"
	"github.com/abdolence/slack-morphism-go/logging"
	"github.com/abdolence/slack-morphism-go/ratelimit"
	"github.com/abdolence/slack-morphism-go/socketmode"
)

func writeConfig(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const fullConfig = `
[slack]
app_token = "xapp-1-A1-abc"
bot_token = "xoxb-123"
signing_secret = "shhh"
team_id = "T1"

[api]
base_url = "https://example.test/api/"
request_timeout = "10s"
transport_retries = 2
user_agent = "my-bot/1.0"

[rate_control]
global_max_rate_limit = "100/1m"
team_max_rate_limit = "50/1m"
max_delay_timeout = "30s"
max_retries = 3

[rate_control.tiers]
tier2 = "30/1m"

[socket_mode]
max_connections_count = 4
debug_connections = true
initial_backoff = "1s"
reconnect_timeout = "5s"
max_reconnect_timeout = "1m"
ping_interval = "10s"
ping_failure_threshold = 3

[events]
max_age = "2m"

[logging]
level = "debug"
format = "json"

[telemetry]
enabled = true
endpoint = "localhost:4317"
protocol = "grpc"
insecure = true
sample_ratio = 0.5
`

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) < 2 {
		t.Errorf("expected at least 2 standard paths, got %d", len(paths))
	}
	if paths[0] != "slack-morphism.toml" {
		t.Errorf("first path should be slack-morphism.toml, got %s", paths[0])
	}
}

func TestLoadFile_Full(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, fullConfig, 0600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.AppToken(); got.Value != "xapp-1-A1-abc" || got.TeamID != "T1" || got.Type() != api.TokenTypeApp {
		t.Errorf("app token = %+v", got)
	}
	if got := cfg.BotToken(); got.Value != "xoxb-123" {
		t.Errorf("bot token = %+v", got)
	}

	rc, err := cfg.RateControlConfig()
	if err != nil {
		t.Fatalf("RateControlConfig: %v", err)
	}
	wantTiers := ratelimit.DefaultTierLimits()
	wantTiers[ratelimit.Tier2] = ratelimit.PerMinute(30)
	want := &ratelimit.RateControlConfig{
		GlobalMaxRateLimit: ratelimit.PerMinute(100).Ptr(),
		TeamMaxRateLimit:   ratelimit.PerMinute(50).Ptr(),
		TierLimits:         wantTiers,
		MaxDelayTimeout:    30 * time.Second,
		MaxRetries:         3,
	}
	if diff := cmp.Diff(want, rc); diff != "" {
		t.Errorf("rate control mismatch (-want +got):\n%s", diff)
	}

	cc, err := cfg.ConnectorConfig(logging.Nop())
	if err != nil {
		t.Fatalf("ConnectorConfig: %v", err)
	}
	if cc.BaseURL != "https://example.test/api/" || cc.RequestTimeout != 10*time.Second ||
		cc.TransportRetries != 2 || cc.UserAgent != "my-bot/1.0" || cc.RateControl == nil {
		t.Errorf("connector config = %+v", cc)
	}

	wantSM := socketmode.DefaultConfig()
	wantSM.MaxConnectionsCount = 4
	wantSM.DebugConnections = true
	wantSM.InitialBackoff = time.Second
	wantSM.ReconnectTimeout = 5 * time.Second
	wantSM.MaxReconnectTimeout = time.Minute
	wantSM.PingInterval = 10 * time.Second
	wantSM.PingFailureThreshold = 3
	if diff := cmp.Diff(wantSM, cfg.SocketModeConfig()); diff != "" {
		t.Errorf("socket mode mismatch (-want +got):\n%s", diff)
	}

	hc := cfg.HandlerConfig(nil)
	if hc.SigningSecret != "shhh" || hc.MaxAge != 2*time.Minute {
		t.Errorf("handler config = %+v", hc)
	}

	pc, enabled := cfg.ProviderConfig()
	if !enabled || pc.Endpoint != "localhost:4317" || pc.SampleRatio != 0.5 || !pc.Insecure {
		t.Errorf("provider config = %+v, enabled %v", pc, enabled)
	}
}

func TestLoadFile_EmptyUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "", 0600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc, err := cfg.RateControlConfig()
	if err != nil {
		t.Fatalf("RateControlConfig: %v", err)
	}
	if diff := cmp.Diff(ratelimit.DefaultRateControlConfig(), *rc); diff != "" {
		t.Errorf("rate control mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(socketmode.DefaultConfig(), cfg.SocketModeConfig()); diff != "" {
		t.Errorf("socket mode mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_RateControlDisabled(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "[rate_control]\ndisabled = true\n", 0600))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cc, err := cfg.ConnectorConfig(nil)
	if err != nil {
		t.Fatalf("ConnectorConfig: %v", err)
	}
	if cc.RateControl != nil {
		t.Errorf("RateControl = %+v, want nil", cc.RateControl)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown tier", "[rate_control.tiers]\ntier7 = \"1/1m\"\n"},
		{"bad tier limit", "[rate_control.tiers]\ntier1 = \"fast\"\n"},
		{"bad global limit", "[rate_control]\nglobal_max_rate_limit = \"0/1m\"\n"},
		{"negative delay", "[rate_control]\nmax_delay_timeout = \"-1s\"\n"},
		{"bad socket mode", "[socket_mode]\nmax_reconnect_attempts = -2\n"},
		{"negative transport retries", "[api]\ntransport_retries = -1\n"},
		{"unknown key", "[slack]\napp_tokn = \"x\"\n"},
		{"not toml", "[slack\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content, 0600))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	path := writeConfig(t, fullConfig, 0600)
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("err = %v, want ErrInsecurePermissions", err)
	}
}

func TestSecretsFallBackToEnvironment(t *testing.T) {
	t.Setenv(EnvAppToken, "xapp-from-env")
	t.Setenv(EnvBotToken, "xoxb-from-env")
	t.Setenv(EnvSigningSecret, "env-secret")

	cfg := &Config{}
	if got := cfg.AppToken().Value; got != "xapp-from-env" {
		t.Errorf("app token = %q", got)
	}
	if got := cfg.BotToken().Value; got != "xoxb-from-env" {
		t.Errorf("bot token = %q", got)
	}
	if got := cfg.SigningSecret(); got != "env-secret" {
		t.Errorf("signing secret = %q", got)
	}

	cfg.Slack.SigningSecret = "file-secret"
	if got := cfg.SigningSecret(); got != "file-secret" {
		t.Errorf("file value should win, got %q", got)
	}
}

func TestLoad_NoFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" || cfg == nil {
		t.Errorf("Load() = %+v, %q", cfg, path)
	}
}

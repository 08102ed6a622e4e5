// Package config loads client settings from a TOML file.
//
// The file carries tokens and the signing secret, so it must not be
// readable by group or others. Any secret left empty falls back to its
// environment variable (SLACK_APP_TOKEN, SLACK_BOT_TOKEN,
// SLACK_SIGNING_SECRET).
//
//	[slack]
//	app_token = "xapp-..."
//	bot_token = "xoxb-..."
//
//	[rate_control]
//	global_max_rate_limit = "100/1m"
//	max_retries = 3
//
//	[rate_control.tiers]
//	tier2 = "30/1m"
//
//	[socket_mode]
//	max_connections_count = 2
//	ping_interval = "15s"
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/abdolence/slack-morphism-go/api"
	"github.com/abdolence/slack-morphism-go/events"
	"github.com/abdolence/slack-morphism-go/logging"
	"github.com/abdolence/slack-morphism-go/ratelimit"
	"github.com/abdolence/slack-morphism-go/socketmode"
	"github.com/abdolence/slack-morphism-go/telemetry"
)

// ErrInsecurePermissions is returned when the config file is readable by
// group or others.
var ErrInsecurePermissions = errors.New("config file has insecure permissions")

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables consulted for empty secrets.
const (
	EnvAppToken      = "SLACK_APP_TOKEN"
	EnvBotToken      = "SLACK_BOT_TOKEN"
	EnvSigningSecret = "SLACK_SIGNING_SECRET"
)

// Config mirrors the TOML file.
type Config struct {
	Slack       SlackConfig       `toml:"slack"`
	API         APIConfig         `toml:"api"`
	RateControl RateControlConfig `toml:"rate_control"`
	SocketMode  SocketModeConfig  `toml:"socket_mode"`
	Events      EventsConfig      `toml:"events"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

type SlackConfig struct {
	AppToken      string `toml:"app_token"`
	BotToken      string `toml:"bot_token"`
	SigningSecret string `toml:"signing_secret"`
	TeamID        string `toml:"team_id"`
}

type APIConfig struct {
	BaseURL          string        `toml:"base_url"`
	RequestTimeout   time.Duration `toml:"request_timeout"`
	TransportRetries int           `toml:"transport_retries"`
	UserAgent        string        `toml:"user_agent"`
}

// RateControlConfig holds limits as "<value>/<duration>" strings.
type RateControlConfig struct {
	Disabled           bool                 `toml:"disabled"`
	GlobalMaxRateLimit *ratelimit.RateLimit `toml:"global_max_rate_limit"`
	TeamMaxRateLimit   *ratelimit.RateLimit `toml:"team_max_rate_limit"`
	Tiers              map[string]string    `toml:"tiers"`
	MaxDelayTimeout    time.Duration        `toml:"max_delay_timeout"`

	// MaxRetries left unset retries without bound.
	MaxRetries *int `toml:"max_retries"`
}

type SocketModeConfig struct {
	MaxConnectionsCount  int           `toml:"max_connections_count"`
	DebugConnections     bool          `toml:"debug_connections"`
	InitialBackoff       time.Duration `toml:"initial_backoff"`
	ReconnectTimeout     time.Duration `toml:"reconnect_timeout"`
	MaxReconnectTimeout  time.Duration `toml:"max_reconnect_timeout"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts"`
	PingInterval         time.Duration `toml:"ping_interval"`
	PingFailureThreshold int           `toml:"ping_failure_threshold"`
}

type EventsConfig struct {
	Listen string        `toml:"listen"`
	Path   string        `toml:"path"`
	MaxAge time.Duration `toml:"max_age"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TelemetryConfig struct {
	Enabled     bool              `toml:"enabled"`
	Endpoint    string            `toml:"endpoint"`
	Protocol    string            `toml:"protocol"`
	Insecure    bool              `toml:"insecure"`
	ServiceName string            `toml:"service_name"`
	SampleRatio float64           `toml:"sample_ratio"`
	Headers     map[string]string `toml:"headers"`
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"slack-morphism.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "slack-morphism", "config.toml"))
	}
	return paths
}

// Load reads the first file found in StandardPaths. A missing file is not
// an error: the returned config is empty and the path is "".
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			return cfg, path, err
		}
	}
	return &Config{}, "", nil
}

// LoadFile reads and validates one file.
func LoadFile(path string) (*Config, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must not be group or world accessible)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %q", ErrInvalid, path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate builds every derived config once to surface errors early.
func (c *Config) Validate() error {
	if _, err := c.RateControlConfig(); err != nil {
		return err
	}
	if err := c.SocketModeConfig().Validate(); err != nil {
		return fmt.Errorf("%w: socket_mode: %v", ErrInvalid, err)
	}
	if c.API.TransportRetries < 0 {
		return fmt.Errorf("%w: api.transport_retries must not be negative", ErrInvalid)
	}
	if c.Events.MaxAge < 0 {
		return fmt.Errorf("%w: events.max_age must not be negative", ErrInvalid)
	}
	return nil
}

// AppToken returns the Socket Mode app token.
func (c *Config) AppToken() api.Token {
	return c.token(c.Slack.AppToken, EnvAppToken)
}

// BotToken returns the bot token.
func (c *Config) BotToken() api.Token {
	return c.token(c.Slack.BotToken, EnvBotToken)
}

func (c *Config) token(value, env string) api.Token {
	if value == "" {
		value = os.Getenv(env)
	}
	t := api.NewToken(value)
	if c.Slack.TeamID != "" {
		t = t.WithTeamID(ratelimit.TeamID(c.Slack.TeamID))
	}
	return t
}

// SigningSecret returns the request signing secret.
func (c *Config) SigningSecret() string {
	if c.Slack.SigningSecret != "" {
		return c.Slack.SigningSecret
	}
	return os.Getenv(EnvSigningSecret)
}

// RateControlConfig returns nil when rate control is disabled.
func (c *Config) RateControlConfig() (*ratelimit.RateControlConfig, error) {
	rc := c.RateControl
	if rc.Disabled {
		return nil, nil
	}
	out := ratelimit.DefaultRateControlConfig()
	out.GlobalMaxRateLimit = rc.GlobalMaxRateLimit
	out.TeamMaxRateLimit = rc.TeamMaxRateLimit
	out.MaxDelayTimeout = rc.MaxDelayTimeout
	if rc.MaxRetries != nil {
		out.MaxRetries = *rc.MaxRetries
	}
	for name, raw := range rc.Tiers {
		tier, err := ratelimit.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("%w: rate_control.tiers: %v", ErrInvalid, err)
		}
		limit, err := ratelimit.ParseRateLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: rate_control.tiers.%s: %v", ErrInvalid, name, err)
		}
		out.TierLimits[tier] = limit
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: rate_control: %v", ErrInvalid, err)
	}
	return &out, nil
}

// ConnectorConfig returns the HTTP connector settings.
func (c *Config) ConnectorConfig(logger *logging.Logger) (api.ConnectorConfig, error) {
	out := api.DefaultConnectorConfig()
	rc, err := c.RateControlConfig()
	if err != nil {
		return out, err
	}
	out.RateControl = rc
	if c.API.BaseURL != "" {
		out.BaseURL = c.API.BaseURL
	}
	if c.API.RequestTimeout != 0 {
		out.RequestTimeout = c.API.RequestTimeout
	}
	if c.API.UserAgent != "" {
		out.UserAgent = c.API.UserAgent
	}
	out.TransportRetries = c.API.TransportRetries
	out.Logger = logger
	return out, nil
}

// SocketModeConfig overlays the set fields on socketmode.DefaultConfig.
func (c *Config) SocketModeConfig() socketmode.Config {
	sm := c.SocketMode
	out := socketmode.DefaultConfig()
	if sm.MaxConnectionsCount != 0 {
		out.MaxConnectionsCount = sm.MaxConnectionsCount
	}
	out.DebugConnections = sm.DebugConnections
	if sm.InitialBackoff != 0 {
		out.InitialBackoff = sm.InitialBackoff
	}
	if sm.ReconnectTimeout != 0 {
		out.ReconnectTimeout = sm.ReconnectTimeout
	}
	out.MaxReconnectTimeout = sm.MaxReconnectTimeout
	out.MaxReconnectAttempts = sm.MaxReconnectAttempts
	if sm.PingInterval != 0 {
		out.PingInterval = sm.PingInterval
	}
	if sm.PingFailureThreshold != 0 {
		out.PingFailureThreshold = sm.PingFailureThreshold
	}
	return out
}

// HandlerConfig returns the events handler settings without callbacks.
func (c *Config) HandlerConfig(logger *logging.Logger) events.HandlerConfig {
	return events.HandlerConfig{
		SigningSecret: c.SigningSecret(),
		MaxAge:        c.Events.MaxAge,
		Logger:        logger,
	}
}

// ApplyLogging sets level and format on logger.
func (c *Config) ApplyLogging(logger *logging.Logger) {
	if c.Logging.Level != "" {
		logger.SetLevel(logging.ParseLevel(c.Logging.Level))
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatJSON:
		logger.SetFormat(logging.FormatJSON)
	case logging.FormatConsole:
		logger.SetFormat(logging.FormatConsole)
	}
}

// ProviderConfig returns the OTLP settings and whether tracing is enabled.
func (c *Config) ProviderConfig() (telemetry.ProviderConfig, bool) {
	t := c.Telemetry
	return telemetry.ProviderConfig{
		ServiceName: t.ServiceName,
		Endpoint:    t.Endpoint,
		Protocol:    t.Protocol,
		Insecure:    t.Insecure,
		Headers:     t.Headers,
		SampleRatio: t.SampleRatio,
	}, t.Enabled
}

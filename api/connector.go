package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
	"github.com/abdolence/slack-morphism-go/logging"
	"github.com/abdolence/slack-morphism-go/ratelimit"
	"github.com/abdolence/slack-morphism-go/telemetry"
)

const (
	// DefaultBaseURL is the Web API root.
	DefaultBaseURL = "https://slack.com/api/"

	// DefaultRequestTimeout bounds a single HTTP exchange, excluding
	// throttling waits.
	DefaultRequestTimeout = 30 * time.Second

	maxResponseBytes = 10 << 20
)

// ConnectorConfig configures an HTTPConnector.
type ConnectorConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// RateControl enables throttling and the 429 retry loop. Nil disables both.
	RateControl *ratelimit.RateControlConfig

	// Methods maps method names to tiers; defaults to DefaultMethodRegistry.
	Methods *ratelimit.MethodRegistry

	// RequestTimeout bounds each HTTP exchange. Zero uses DefaultRequestTimeout,
	// a negative value disables it.
	RequestTimeout time.Duration

	// TransportRetries is the number of extra attempts on network errors and
	// 5xx responses made by the default HTTP client.
	TransportRetries int

	UserAgent  string
	HTTPClient HTTPClient
	Logger     *logging.Logger
	Tracer     *telemetry.Tracer
}

// DefaultConnectorConfig returns a config with default rate control.
func DefaultConnectorConfig() ConnectorConfig {
	rc := ratelimit.DefaultRateControlConfig()
	return ConnectorConfig{
		BaseURL:        DefaultBaseURL,
		RateControl:    &rc,
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      "slack-morphism-go",
	}
}

// HTTPConnector performs rate-controlled Web API calls. It is safe for
// concurrent use and read-only after construction.
type HTTPConnector struct {
	baseURL        string
	methods        *ratelimit.MethodRegistry
	rateControl    *ratelimit.RateControlConfig
	controller     *ratelimit.RateController
	requestTimeout time.Duration
	userAgent      string
	client         HTTPClient
	log            *logging.Logger
	tracer         *telemetry.Tracer
}

// NewHTTPConnector validates cfg and fills defaults for zero fields.
func NewHTTPConnector(cfg ConnectorConfig) (*HTTPConnector, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, clienterrors.InvalidInput("invalid base url", clienterrors.WithCause(err))
	}
	if cfg.Methods == nil {
		cfg.Methods = ratelimit.DefaultMethodRegistry()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.TransportRetries < 0 {
		return nil, clienterrors.InvalidInput("transport retries must not be negative")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "slack-morphism-go"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.GetTracer()
	}
	log := cfg.Logger.WithComponent("api")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newTransportClient(cfg.TransportRetries, log)
	}

	c := &HTTPConnector{
		baseURL:        cfg.BaseURL,
		methods:        cfg.Methods,
		requestTimeout: cfg.RequestTimeout,
		userAgent:      cfg.UserAgent,
		client:         cfg.HTTPClient,
		log:            log,
		tracer:         cfg.Tracer,
	}
	if cfg.RateControl != nil {
		if err := cfg.RateControl.Validate(); err != nil {
			return nil, clienterrors.InvalidInput("invalid rate control config", clienterrors.WithCause(err))
		}
		rc := *cfg.RateControl
		c.rateControl = &rc
		c.controller = ratelimit.NewRateController(rc)
	}
	return c, nil
}

// RateController returns the connector's controller, nil when rate control
// is disabled.
func (c *HTTPConnector) RateController() *ratelimit.RateController {
	return c.controller
}

// Post sends body as JSON to method and decodes the response into out.
func (c *HTTPConnector) Post(ctx context.Context, method string, token *Token, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return clienterrors.InvalidInput("encode request", clienterrors.WithCause(err))
		}
	}
	return c.call(ctx, http.MethodPost, method, token, nil, payload, out)
}

// Get calls method with query params and decodes the response into out.
func (c *HTTPConnector) Get(ctx context.Context, method string, token *Token, params url.Values, out interface{}) error {
	return c.call(ctx, http.MethodGet, method, token, params, nil, out)
}

// call runs the throttle, send, retry loop. Only server-side rate limit
// errors are retried, and only while rate control allows it.
func (c *HTTPConnector) call(ctx context.Context, httpMethod, method string, token *Token, params url.Values, body []byte, out interface{}) (err error) {
	requestID := uuid.NewString()
	var teamID ratelimit.TeamID
	if token != nil {
		teamID = token.TeamID
	}

	var methodCfg *ratelimit.MethodRateControlConfig
	if mc, ok := c.methods.Lookup(method); ok {
		methodCfg = &mc
	}

	ctx, span := c.tracer.StartAPISpan(ctx, method)
	spanOpts := telemetry.APISpanOptions{RequestID: requestID, TeamID: string(teamID)}
	defer func() {
		spanOpts.HTTPStatus = clienterrors.HTTPStatus(err)
		spanOpts.APIError = clienterrors.APICode(err)
		c.tracer.EndAPISpan(span, spanOpts, err)
	}()

	var retryAfter time.Duration
	for {
		if c.controller != nil {
			if err := c.controller.ThrottleDelayWithRetryAfter(ctx, methodCfg, teamID, retryAfter); err != nil {
				return err
			}
		}

		err = c.send(ctx, httpMethod, method, token, params, body, out)
		if err == nil {
			return nil
		}
		if c.rateControl == nil || !clienterrors.IsRateLimited(err) || !clienterrors.IsRetryable(err) {
			return err
		}
		if !c.rateControl.RetriesLeft(spanOpts.Retries) {
			c.log.Warn("rate limit retries exhausted", map[string]interface{}{
				"method":     method,
				"request_id": requestID,
				"retries":    spanOpts.Retries,
			})
			return err
		}

		spanOpts.Retries++
		retryAfter, _ = clienterrors.RetryAfter(err)
		c.log.Warn("rate limited, retrying", map[string]interface{}{
			"method":      method,
			"request_id":  requestID,
			"team_id":     string(teamID),
			"retry":       spanOpts.Retries,
			"retry_after": retryAfter.String(),
		})
	}
}

// apiEnvelope is the part of every response that reports success.
type apiEnvelope struct {
	OK               bool              `json:"ok"`
	Error            string            `json:"error,omitempty"`
	Warning          string            `json:"warning,omitempty"`
	ResponseMetadata *ResponseMetadata `json:"response_metadata,omitempty"`
}

func (c *HTTPConnector) send(ctx context.Context, httpMethod, method string, token *Token, params url.Values, body []byte, out interface{}) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	target := c.baseURL + method
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, target, reader)
	if err != nil {
		return clienterrors.InvalidInput("build request", clienterrors.WithCause(err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if token != nil && token.Value != "" {
		req.Header.Set("Authorization", "Bearer "+token.Value)
	}

	c.log.Debug("sending request", map[string]interface{}{"method": method, "http_method": httpMethod})

	resp, err := c.client.Do(req)
	if err != nil {
		return clienterrors.Wrap(err, method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return clienterrors.Wrap(err, method, clienterrors.WithHTTPStatus(resp.StatusCode))
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	if resp.StatusCode == http.StatusTooManyRequests {
		return clienterrors.RateLimited(method,
			clienterrors.WithHTTPStatus(resp.StatusCode),
			clienterrors.WithRetryAfter(retryAfter),
		)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return clienterrors.HTTP(method, resp.StatusCode, clienterrors.WithMetadata("body", truncate(string(raw), 512)))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return clienterrors.HTTPProtocol(method,
			clienterrors.WithCause(err),
			clienterrors.WithHTTPStatus(resp.StatusCode),
			clienterrors.WithMetadata("body", truncate(string(raw), 512)),
		)
	}
	if !env.OK {
		var warnings []string
		if env.ResponseMetadata != nil {
			warnings = append(warnings, env.ResponseMetadata.Messages...)
		}
		if env.Error == "ratelimited" {
			return clienterrors.RateLimited(method,
				clienterrors.WithHTTPStatus(resp.StatusCode),
				clienterrors.WithRetryAfter(retryAfter),
				clienterrors.WithWarnings(warnings...),
			)
		}
		return clienterrors.API(method, env.Error, env.Warning,
			clienterrors.WithHTTPStatus(resp.StatusCode),
			clienterrors.WithWarnings(warnings...),
		)
	}
	if env.Warning != "" {
		c.log.Warn("api warning", map[string]interface{}{"method": method, "warning": env.Warning})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return clienterrors.HTTPProtocol(method, clienterrors.WithCause(err), clienterrors.WithHTTPStatus(resp.StatusCode))
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	clienterrors "github.com/abdolence/slack-morphism-go/errors"
	"github.com/abdolence/slack-morphism-go/logging"
	"github.com/abdolence/slack-morphism-go/telemetry"
)

// DefaultMaxBodySize bounds request bodies read by Handler.
const DefaultMaxBodySize = 1024 * 1024

// Callbacks receive verified pushes. Nil callbacks acknowledge silently.
type Callbacks struct {
	OnEvent       func(ctx context.Context, ev *EventCallback) error
	OnInteraction func(ctx context.Context, ev *InteractionEvent) error
	OnCommand     func(ctx context.Context, ev *SlashCommand) (*CommandResponse, error)
}

// ErrorHandler maps a callback error to the HTTP status returned to the
// platform. A 2xx status acknowledges the push; anything else makes the
// platform retry it.
type ErrorHandler func(ctx context.Context, err error) int

// HandlerConfig configures Handler.
type HandlerConfig struct {
	SigningSecret string
	MaxAge        time.Duration
	MaxBodySize   int64
	Callbacks     Callbacks
	ErrorHandler  ErrorHandler
	Logger        *logging.Logger
	Tracer        *telemetry.Tracer
}

// Handler serves the Events API, interactivity and slash command URLs.
type Handler struct {
	verifier    *Verifier
	maxBodySize int64
	callbacks   Callbacks
	onError     ErrorHandler
	logger      *logging.Logger
	tracer      *telemetry.Tracer
}

var _ http.Handler = (*Handler)(nil)

// NewHandler creates a handler. The signing secret is required.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	verifier, err := NewVerifier(cfg.SigningSecret, cfg.MaxAge)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		verifier:    verifier,
		maxBodySize: cfg.MaxBodySize,
		callbacks:   cfg.Callbacks,
		onError:     cfg.ErrorHandler,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
	}
	if h.maxBodySize <= 0 {
		h.maxBodySize = DefaultMaxBodySize
	}
	if h.logger == nil {
		h.logger = logging.New().WithComponent("events")
	}
	if h.tracer == nil {
		h.tracer = telemetry.GetTracer()
	}
	if h.onError == nil {
		h.onError = h.defaultErrorHandler
	}
	return h, nil
}

func (h *Handler) defaultErrorHandler(ctx context.Context, err error) int {
	h.logger.Error("push callback failed", map[string]interface{}{"error": err})
	return http.StatusInternalServerError
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "reading body failed", http.StatusBadRequest)
		return
	}

	if err := h.verifier.VerifyRequest(r.Header, body); err != nil {
		h.logger.Warn("rejected unsigned push", map[string]interface{}{
			"error":  err,
			"remote": r.RemoteAddr,
		})
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		h.logger.Debug("redelivered push", map[string]interface{}{
			"retry_num":    retry,
			"retry_reason": r.Header.Get("X-Slack-Retry-Reason"),
		})
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		h.serveForm(r.Context(), w, body)
		return
	}
	h.serveJSON(r.Context(), w, body)
}

func (h *Handler) serveJSON(ctx context.Context, w http.ResponseWriter, body []byte) {
	var push struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &push); err != nil {
		http.Error(w, "malformed push", http.StatusBadRequest)
		return
	}

	switch push.Type {
	case PushURLVerification:
		var v URLVerification
		if err := json.Unmarshal(body, &v); err != nil || v.Challenge == "" {
			http.Error(w, "malformed url verification", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"challenge": v.Challenge})

	case PushEventCallback:
		var ev EventCallback
		if err := json.Unmarshal(body, &ev); err != nil {
			http.Error(w, "malformed event callback", http.StatusBadRequest)
			return
		}
		ctx, span := h.tracer.StartEnvelopeSpan(ctx, PushEventCallback, ev.EventID)
		var err error
		if h.callbacks.OnEvent != nil {
			err = guard(func() error { return h.callbacks.OnEvent(ctx, &ev) })
		}
		status := h.status(ctx, err)
		h.tracer.EndEnvelopeSpan(span, status < 300, err)
		w.WriteHeader(status)

	case PushAppRateLimited:
		var rl AppRateLimited
		_ = json.Unmarshal(body, &rl)
		h.logger.Warn("app pushes rate limited", map[string]interface{}{
			"team_id":             rl.TeamID,
			"api_app_id":          rl.APIAppID,
			"minute_rate_limited": rl.MinuteRateLimited,
		})
		w.WriteHeader(http.StatusOK)

	default:
		h.logger.Warn("unknown push type", map[string]interface{}{"type": push.Type})
		http.Error(w, "unknown push type", http.StatusBadRequest)
	}
}

func (h *Handler) serveForm(ctx context.Context, w http.ResponseWriter, body []byte) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	switch {
	case form.Has("payload"):
		var ev InteractionEvent
		if err := json.Unmarshal([]byte(form.Get("payload")), &ev); err != nil {
			http.Error(w, "malformed interaction payload", http.StatusBadRequest)
			return
		}
		ctx, span := h.tracer.StartEnvelopeSpan(ctx, "interactive", ev.TriggerID)
		var err error
		if h.callbacks.OnInteraction != nil {
			err = guard(func() error { return h.callbacks.OnInteraction(ctx, &ev) })
		}
		status := h.status(ctx, err)
		h.tracer.EndEnvelopeSpan(span, status < 300, err)
		w.WriteHeader(status)

	case form.Has("command"):
		cmd := slashCommandFromForm(form)
		ctx, span := h.tracer.StartEnvelopeSpan(ctx, "slash_commands", cmd.TriggerID)
		var resp *CommandResponse
		var err error
		if h.callbacks.OnCommand != nil {
			err = guard(func() error {
				var cbErr error
				resp, cbErr = h.callbacks.OnCommand(ctx, cmd)
				return cbErr
			})
		}
		status := h.status(ctx, err)
		h.tracer.EndEnvelopeSpan(span, status < 300, err)
		if err == nil && resp != nil {
			writeJSON(w, resp)
			return
		}
		w.WriteHeader(status)

	default:
		http.Error(w, "unrecognized form push", http.StatusBadRequest)
	}
}

// status is 200 on success, otherwise whatever the error handler says.
func (h *Handler) status(ctx context.Context, err error) int {
	if err == nil {
		return http.StatusOK
	}
	status := h.onError(ctx, err)
	if status < 100 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = clienterrors.RecoverPanic(r)
		}
	}()
	return fn()
}

func slashCommandFromForm(form url.Values) *SlashCommand {
	return &SlashCommand{
		Command:     form.Get("command"),
		Text:        form.Get("text"),
		TeamID:      form.Get("team_id"),
		TeamDomain:  form.Get("team_domain"),
		ChannelID:   form.Get("channel_id"),
		ChannelName: form.Get("channel_name"),
		UserID:      form.Get("user_id"),
		UserName:    form.Get("user_name"),
		APIAppID:    form.Get("api_app_id"),
		ResponseURL: form.Get("response_url"),
		TriggerID:   form.Get("trigger_id"),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("encoding response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

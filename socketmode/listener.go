package socketmode

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/abdolence/slack-morphism-go/api"
	clienterrors "github.com/abdolence/slack-morphism-go/errors"
	"github.com/abdolence/slack-morphism-go/events"
	"github.com/abdolence/slack-morphism-go/logging"
	"github.com/abdolence/slack-morphism-go/telemetry"
)

// ErrorHandler decides what happens after a callback or protocol error. The
// returned HTTP-style status controls the ack: 2xx acknowledges the
// envelope anyway, anything else leaves it unacknowledged so the platform
// redelivers it.
type ErrorHandler interface {
	HandleError(ctx context.Context, err error, env *ListenerEnvironment) int
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, err error, env *ListenerEnvironment) int

func (f ErrorHandlerFunc) HandleError(ctx context.Context, err error, env *ListenerEnvironment) int {
	return f(ctx, err, env)
}

// DefaultErrorHandler logs the error and withholds the ack.
var DefaultErrorHandler ErrorHandler = ErrorHandlerFunc(func(ctx context.Context, err error, env *ListenerEnvironment) int {
	env.Logger.Error("socket mode listener error", map[string]interface{}{"error": err})
	return http.StatusInternalServerError
})

// ListenerEnvironment is shared by every callback of a manager.
type ListenerEnvironment struct {
	Client       *api.Client
	ErrorHandler ErrorHandler
	Logger       *logging.Logger
	Tracer       *telemetry.Tracer

	// UserState is opaque application state handed to callbacks.
	UserState interface{}
}

// NewListenerEnvironment returns an environment with the default error
// handler, logger and tracer.
func NewListenerEnvironment(client *api.Client) *ListenerEnvironment {
	return &ListenerEnvironment{
		Client:       client,
		ErrorHandler: DefaultErrorHandler,
		Logger:       logging.New().WithComponent("socketmode"),
		Tracer:       telemetry.GetTracer(),
	}
}

func (e *ListenerEnvironment) withDefaults() *ListenerEnvironment {
	out := *e
	if out.ErrorHandler == nil {
		out.ErrorHandler = DefaultErrorHandler
	}
	if out.Logger == nil {
		out.Logger = logging.New().WithComponent("socketmode")
	}
	if out.Tracer == nil {
		out.Tracer = telemetry.GetTracer()
	}
	return &out
}

// Callbacks receive envelopes. Nil callbacks are skipped and their
// envelopes acknowledged.
type Callbacks struct {
	OnHello       func(ctx context.Context, ev *HelloEvent, env *ListenerEnvironment)
	OnDisconnect  func(ctx context.Context, ev *DisconnectEvent, env *ListenerEnvironment)
	OnEvent       func(ctx context.Context, ev *events.EventCallback, env *ListenerEnvironment) error
	OnInteraction func(ctx context.Context, ev *events.InteractionEvent, env *ListenerEnvironment) error
	OnCommand     func(ctx context.Context, ev *events.SlashCommand, env *ListenerEnvironment) (*events.CommandResponse, error)
}

// restarter is the listener's only view of its manager: it can ask for a
// slot to be replaced or dropped by id, nothing else.
type restarter interface {
	RestartClient(ctx context.Context, id WssClientID) error
	RemoveClient(id WssClientID) error
}

// listener dispatches envelopes for every client of one token.
type listener struct {
	env       *ListenerEnvironment
	callbacks Callbacks
	manager   restarter
}

func newListener(env *ListenerEnvironment, callbacks Callbacks, manager restarter) *listener {
	return &listener{env: env, callbacks: callbacks, manager: manager}
}

// outcome tells the reader what to do after an envelope.
type outcome struct {
	ack        *Ack
	disconnect bool
}

// handleMessage processes one text frame synchronously.
func (l *listener) handleMessage(ctx context.Context, id WssClientID, data []byte) outcome {
	envelope, err := ParseEnvelope(data)
	if err != nil {
		l.reportError(ctx, id, err)
		return outcome{}
	}

	ctx, span := l.env.Tracer.StartEnvelopeSpan(ctx, string(envelope.Type), envelope.EnvelopeID)
	out, err := l.dispatch(ctx, envelope)
	if err != nil {
		status := l.env.ErrorHandler.HandleError(ctx, err, l.env)
		if envelope.Type.RequiresAck() && status >= 200 && status < 300 {
			out.ack = &Ack{EnvelopeID: envelope.EnvelopeID}
		}
	}
	l.env.Tracer.EndEnvelopeSpan(span, out.ack != nil, err)
	return out
}

func (l *listener) dispatch(ctx context.Context, envelope *Envelope) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = clienterrors.RecoverPanic(r)
		}
	}()

	switch envelope.Type {
	case EnvelopeHello:
		if l.callbacks.OnHello != nil {
			ev := &HelloEvent{NumConnections: envelope.NumConnections}
			if envelope.ConnectionInfo != nil {
				ev.ConnectionInfo = *envelope.ConnectionInfo
			}
			if envelope.DebugInfo != nil {
				ev.DebugInfo = *envelope.DebugInfo
			}
			l.callbacks.OnHello(ctx, ev, l.env)
		}
		return outcome{}, nil

	case EnvelopeDisconnect:
		if l.callbacks.OnDisconnect != nil {
			ev := &DisconnectEvent{Reason: envelope.Reason}
			if envelope.DebugInfo != nil {
				ev.DebugInfo = *envelope.DebugInfo
			}
			l.callbacks.OnDisconnect(ctx, ev, l.env)
		}
		return outcome{disconnect: true}, nil

	case EnvelopeEventsAPI:
		ack := &Ack{EnvelopeID: envelope.EnvelopeID}
		if l.callbacks.OnEvent == nil {
			return outcome{ack: ack}, nil
		}
		var ev events.EventCallback
		if err := decodePayload(envelope, &ev); err != nil {
			return outcome{}, err
		}
		if err := l.callbacks.OnEvent(ctx, &ev, l.env); err != nil {
			return outcome{}, err
		}
		return outcome{ack: ack}, nil

	case EnvelopeInteractive:
		ack := &Ack{EnvelopeID: envelope.EnvelopeID}
		if l.callbacks.OnInteraction == nil {
			return outcome{ack: ack}, nil
		}
		var ev events.InteractionEvent
		if err := decodePayload(envelope, &ev); err != nil {
			return outcome{}, err
		}
		if err := l.callbacks.OnInteraction(ctx, &ev, l.env); err != nil {
			return outcome{}, err
		}
		return outcome{ack: ack}, nil

	case EnvelopeSlashCommands:
		ack := &Ack{EnvelopeID: envelope.EnvelopeID}
		if l.callbacks.OnCommand == nil {
			return outcome{ack: ack}, nil
		}
		var ev events.SlashCommand
		if err := decodePayload(envelope, &ev); err != nil {
			return outcome{}, err
		}
		resp, err := l.callbacks.OnCommand(ctx, &ev, l.env)
		if err != nil {
			return outcome{}, err
		}
		if resp != nil {
			ack.Payload = resp
		}
		return outcome{ack: ack}, nil
	}
	return outcome{}, nil
}

func decodePayload(envelope *Envelope, v interface{}) error {
	if err := json.Unmarshal(envelope.Payload, v); err != nil {
		return clienterrors.SocketModeProtocol("malformed payload",
			clienterrors.WithCause(err),
			clienterrors.WithMetadata("type", string(envelope.Type)),
			clienterrors.WithMetadata("envelope_id", envelope.EnvelopeID),
		)
	}
	return nil
}

// reportError passes a connection-level error to the error handler. There
// is nothing to acknowledge, so the status is ignored.
func (l *listener) reportError(ctx context.Context, id WssClientID, err error) {
	l.env.Logger.Debug("reporting listener error", map[string]interface{}{"client_id": id.String()})
	_ = l.env.ErrorHandler.HandleError(ctx, err, l.env)
}

// connectionEnded asks the manager to replace the client and reports
// whether one will. The restart runs asynchronously because it shuts the
// calling client down.
func (l *listener) connectionEnded(id WssClientID) bool {
	if l.manager == nil {
		return false
	}
	go func() {
		if err := l.manager.RestartClient(context.Background(), id); err != nil {
			l.env.Logger.Warn("client restart skipped", map[string]interface{}{
				"client_id": id.String(),
				"error":     err,
			})
		}
	}()
	return true
}

// clientGaveUp drops the slot of a client that ran out of reconnect
// attempts. Like connectionEnded it runs asynchronously.
func (l *listener) clientGaveUp(id WssClientID) {
	if l.manager == nil {
		return
	}
	go func() {
		if err := l.manager.RemoveClient(id); err != nil {
			l.env.Logger.Debug("client removal skipped", map[string]interface{}{
				"client_id": id.String(),
				"error":     err,
			})
		}
	}()
}

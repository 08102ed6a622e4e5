package socketmode

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/abdolence/slack-morphism-go/api"
	clienterrors "github.com/abdolence/slack-morphism-go/errors"
)

// ConnectionOpener resolves a fresh single-use WebSocket URL for a token.
// *api.Client implements it with apps.connections.open.
type ConnectionOpener interface {
	OpenConnection(ctx context.Context, token api.Token) (string, error)
}

var _ ConnectionOpener = (*api.Client)(nil)

// ClientState is the lifecycle stage of a WssClient.
type ClientState int32

const (
	StateCreated ClientState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateShuttingDown
	StateDestroyed
)

func (s ClientState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateShuttingDown:
		return "shutting_down"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// shutdownTimeout bounds how long Shutdown waits for goroutines to exit.
const shutdownTimeout = 5 * time.Second

// commandQueueSize is the buffer of the per-connection write queue.
const commandQueueSize = 64

type commandKind int

const (
	commandMessage commandKind = iota
	commandPing
	commandPong
	commandExit
)

// command is one write request. Only the writer goroutine performs them.
type command struct {
	kind commandKind
	data []byte
}

// WssClient owns one physical Socket Mode connection at a time.
type WssClient struct {
	id       WssClientID
	token    api.Token
	config   Config
	opener   ConnectionOpener
	listener *listener
	dialer   *websocket.Dialer

	state     atomic.Int32
	destroyed atomic.Bool
	lastPong  atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	commands chan command
	done     chan struct{}

	nowFunc func() time.Time
}

func newWssClient(id WssClientID, token api.Token, config Config, opener ConnectionOpener, l *listener) *WssClient {
	return &WssClient{
		id:       id,
		token:    token,
		config:   config,
		opener:   opener,
		listener: l,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		nowFunc: time.Now,
	}
}

// ID returns the slot id of this client.
func (c *WssClient) ID() WssClientID {
	return c.id
}

// State returns the current lifecycle stage.
func (c *WssClient) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *WssClient) setState(s ClientState) {
	c.state.Store(int32(s))
}

// Start connects in the background after initialWait. It returns
// immediately; calling it twice is a no-op.
func (c *WssClient) Start(ctx context.Context, initialWait time.Duration) {
	c.mu.Lock()
	if c.done != nil || c.destroyed.Load() {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.setState(StateConnecting)
	go func() {
		defer close(done)
		defer cancel()
		c.run(ctx, initialWait)
	}()
}

// Shutdown marks the client destroyed, closes the connection gracefully and
// waits for its goroutines.
func (c *WssClient) Shutdown() {
	if c.destroyed.Swap(true) {
		return
	}
	c.setState(StateShuttingDown)

	c.mu.Lock()
	commands := c.commands
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if done != nil {
		if commands != nil {
			select {
			case commands <- command{kind: commandExit}:
				select {
				case <-done:
				case <-time.After(c.config.WriteTimeout):
				}
			default:
			}
		}
		cancel()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			c.listener.env.Logger.Warn("socket mode client did not stop in time", map[string]interface{}{
				"client_id": c.id.String(),
			})
		}
	}
	c.setState(StateDestroyed)
}

func (c *WssClient) run(ctx context.Context, initialWait time.Duration) {
	logger := c.listener.env.Logger
	if initialWait > 0 {
		select {
		case <-time.After(initialWait):
		case <-ctx.Done():
			return
		}
	}

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if !c.destroyed.Load() && ctx.Err() == nil {
				c.listener.reportError(ctx, c.id, err)
				c.setState(StateDisconnected)
				logger.Warn("socket mode client gave up reconnecting", map[string]interface{}{
					"client_id": c.id.String(),
					"error":     err,
				})
				c.listener.clientGaveUp(c.id)
			}
			return
		}

		c.setState(StateConnected)
		logger.Info("socket mode connected", map[string]interface{}{"client_id": c.id.String()})

		err = c.serve(ctx, conn)
		if c.destroyed.Load() || ctx.Err() != nil {
			return
		}

		c.setState(StateDisconnected)
		logger.Info("socket mode disconnected", map[string]interface{}{
			"client_id": c.id.String(),
			"error":     err,
		})
		if c.listener.connectionEnded(c.id) {
			return
		}
		c.setState(StateConnecting)
	}
}

// connect resolves a URL and dials it, retrying failed attempts through
// a rate gate until success, ctx cancellation, destruction or
// MaxReconnectAttempts.
func (c *WssClient) connect(ctx context.Context) (*websocket.Conn, error) {
	wait := c.config.ReconnectTimeout
	gate := rate.NewLimiter(rate.Every(wait), 1)

	for attempt := 1; ; attempt++ {
		if c.destroyed.Load() {
			return nil, clienterrors.EndOfStream("client destroyed",
				clienterrors.WithMetadata("client_id", c.id.String()))
		}
		if err := gate.Wait(ctx); err != nil {
			return nil, clienterrors.Wrap(err, "waiting to reconnect")
		}
		if c.destroyed.Load() {
			return nil, clienterrors.EndOfStream("client destroyed",
				clienterrors.WithMetadata("client_id", c.id.String()))
		}

		conn, err := c.dial(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, clienterrors.Wrap(ctx.Err(), "connect canceled")
		}

		c.listener.env.Logger.Warn("socket mode connect failed", map[string]interface{}{
			"client_id": c.id.String(),
			"attempt":   attempt,
			"error":     err,
		})
		if limit := c.config.MaxReconnectAttempts; limit > 0 && attempt >= limit {
			return nil, clienterrors.Wrap(err, "giving up reconnecting",
				clienterrors.WithMetadata("client_id", c.id.String()),
				clienterrors.WithRetryable(false))
		}

		wait = c.config.nextReconnectWait(wait)
		gate.SetLimit(rate.Every(wait))
	}
}

func (c *WssClient) dial(ctx context.Context) (_ *websocket.Conn, err error) {
	ctx, span := c.listener.env.Tracer.StartConnectionSpan(ctx, c.id.String())
	defer func() { c.listener.env.Tracer.EndConnectionSpan(span, err) }()

	wssURL, err := c.opener.OpenConnection(ctx, c.token)
	if err != nil {
		return nil, err
	}
	if c.config.DebugConnections {
		wssURL, err = withDebugReconnects(wssURL)
		if err != nil {
			return nil, err
		}
	}

	conn, resp, err := c.dialer.DialContext(ctx, wssURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		opts := []clienterrors.Option{clienterrors.WithMetadata("client_id", c.id.String())}
		if resp != nil {
			opts = append(opts, clienterrors.WithHTTPStatus(resp.StatusCode))
		}
		return nil, clienterrors.Wrap(err, "websocket handshake failed", opts...)
	}
	return conn, nil
}

func withDebugReconnects(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", clienterrors.SocketModeProtocol("invalid connection url", clienterrors.WithCause(err))
	}
	q := u.Query()
	q.Set("debug_reconnects", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// serve runs the writer, pinger and reader for one connection and returns
// when the first of them stops.
func (c *WssClient) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan command, commandQueueSize)
	c.mu.Lock()
	c.commands = commands
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.commands = nil
		c.mu.Unlock()
	}()

	// Shutdown may have raced with the connect.
	if c.destroyed.Load() {
		commands <- command{kind: commandExit}
	}

	c.lastPong.Store(c.nowFunc().UnixNano())
	conn.SetReadLimit(c.config.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(c.nowFunc().UnixNano())
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		enqueue(ctx, commands, command{kind: commandPong, data: []byte(appData)})
		return nil
	})

	errc := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		errc <- c.writeLoop(ctx, conn, commands)
	}()
	go func() {
		defer wg.Done()
		errc <- c.pingLoop(ctx, commands)
	}()
	go func() {
		defer wg.Done()
		errc <- c.readLoop(ctx, conn, commands)
	}()

	err := <-errc
	cancel()
	conn.Close()
	wg.Wait()
	return err
}

func enqueue(ctx context.Context, commands chan<- command, cmd command) bool {
	select {
	case commands <- cmd:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeLoop is the only goroutine writing to conn.
func (c *WssClient) writeLoop(ctx context.Context, conn *websocket.Conn, commands <-chan command) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-commands:
			deadline := c.nowFunc().Add(c.config.WriteTimeout)
			var err error
			switch cmd.kind {
			case commandMessage:
				conn.SetWriteDeadline(deadline)
				err = conn.WriteMessage(websocket.TextMessage, cmd.data)
			case commandPing:
				err = conn.WriteControl(websocket.PingMessage, cmd.data, deadline)
			case commandPong:
				err = conn.WriteControl(websocket.PongMessage, cmd.data, deadline)
			case commandExit:
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return clienterrors.EndOfStream("client shut down",
					clienterrors.WithMetadata("client_id", c.id.String()))
			}
			if err != nil {
				return clienterrors.Wrap(err, "websocket write failed",
					clienterrors.WithMetadata("client_id", c.id.String()))
			}
		}
	}
}

// pingLoop sends pings and fails the connection when no pong arrived
// within the liveness timeout.
func (c *WssClient) pingLoop(ctx context.Context, commands chan<- command) error {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	timeout := c.config.LivenessTimeout()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := c.nowFunc()
			silent := now.Sub(time.Unix(0, c.lastPong.Load()))
			if silent > timeout {
				return clienterrors.New(clienterrors.ErrCodeTimeout, "no pong received",
					clienterrors.WithMetadata("client_id", c.id.String()),
					clienterrors.WithMetadata("silent_for", silent.String()))
			}
			payload := []byte(now.Format(time.RFC3339Nano))
			if !enqueue(ctx, commands, command{kind: commandPing, data: payload}) {
				return nil
			}
		}
	}
}

// readLoop dispatches frames in read order.
func (c *WssClient) readLoop(ctx context.Context, conn *websocket.Conn, commands chan<- command) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return clienterrors.EndOfStream("connection closed by server",
					clienterrors.WithCause(err),
					clienterrors.WithMetadata("client_id", c.id.String()))
			}
			return clienterrors.Wrap(err, "websocket read failed",
				clienterrors.WithMetadata("client_id", c.id.String()))
		}

		if kind != websocket.TextMessage {
			c.listener.reportError(ctx, c.id, clienterrors.SocketModeProtocol("unexpected non-text frame",
				clienterrors.WithMetadata("client_id", c.id.String())))
			continue
		}

		out := c.listener.handleMessage(ctx, c.id, data)
		if out.ack != nil {
			payload, err := json.Marshal(out.ack)
			if err != nil {
				c.listener.reportError(ctx, c.id, clienterrors.Internal("encoding ack", clienterrors.WithCause(err)))
			} else if !enqueue(ctx, commands, command{kind: commandMessage, data: payload}) {
				return nil
			}
		}
		if out.disconnect {
			return clienterrors.EndOfStream("disconnect requested by server",
				clienterrors.WithMetadata("client_id", c.id.String()))
		}
	}
}

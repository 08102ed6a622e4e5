package socketmode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/abdolence/slack-morphism-go/api"
)

var (
	// ErrClientNotFound is returned by RestartClient for an unknown or
	// already replaced id.
	ErrClientNotFound = errors.New("socket mode client not found")

	// ErrManagerStopped is returned when restarting after Shutdown.
	ErrManagerStopped = errors.New("socket mode manager stopped")
)

// managedClient is a client plus what is needed to recreate it.
type managedClient struct {
	client   *WssClient
	token    api.Token
	config   Config
	listener *listener

	// batchPos is the position within its token's batch; it sets the
	// initial stagger.
	batchPos int
}

// ClientsManager keeps Socket Mode connections open for registered tokens.
type ClientsManager struct {
	env    *ListenerEnvironment
	opener ConnectionOpener

	mu      sync.RWMutex
	clients []*managedClient
	tokens  uint32
	running bool
	stopped bool
	ctx     context.Context

	signals chan os.Signal
}

var _ restarter = (*ClientsManager)(nil)

// NewClientsManager creates a manager. Nothing connects until Start.
func NewClientsManager(env *ListenerEnvironment, opener ConnectionOpener) *ClientsManager {
	if env == nil {
		env = &ListenerEnvironment{}
	}
	return &ClientsManager{
		env:     env.withDefaults(),
		opener:  opener,
		signals: make(chan os.Signal, 1),
	}
}

// Environment returns the environment shared by all callbacks.
func (m *ClientsManager) Environment() *ListenerEnvironment {
	return m.env
}

// RegisterNewToken adds cfg.MaxConnectionsCount connections for token.
// They start immediately, staggered by InitialBackoff, when the manager is
// already running.
func (m *ClientsManager) RegisterNewToken(ctx context.Context, cfg Config, token api.Token, callbacks Callbacks) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	l := newListener(m.env, callbacks, m)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	base := uint32(len(m.clients))
	tokenIndex := m.tokens
	m.tokens++
	added := make([]*managedClient, 0, cfg.MaxConnectionsCount)
	for i := 0; i < cfg.MaxConnectionsCount; i++ {
		id := WssClientID{InitialIndex: base + uint32(i), TokenIndex: tokenIndex}
		mc := &managedClient{
			client:   newWssClient(id, token, cfg, m.opener, l),
			token:    token,
			config:   cfg,
			listener: l,
			batchPos: i,
		}
		added = append(added, mc)
	}
	m.clients = append(m.clients, added...)
	running, runCtx := m.running, m.ctx
	m.mu.Unlock()

	m.env.Logger.Info("socket mode token registered", map[string]interface{}{
		"token":       token.String(),
		"token_index": tokenIndex,
		"connections": cfg.MaxConnectionsCount,
	})

	if running {
		for _, mc := range added {
			mc.client.Start(runCtx, mc.stagger())
		}
	}
	return nil
}

func (mc *managedClient) stagger() time.Duration {
	return time.Duration(mc.batchPos) * mc.config.InitialBackoff
}

// Start connects every registered client. Clients keep running until
// Shutdown or until ctx ends.
func (m *ClientsManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ctx = ctx
	pending := append([]*managedClient(nil), m.clients...)
	m.mu.Unlock()

	for _, mc := range pending {
		mc.client.Start(ctx, mc.stagger())
	}
}

// RestartClient replaces the client with this exact id by a new one for the
// same slot with the next reconnect generation, started without delay.
func (m *ClientsManager) RestartClient(ctx context.Context, id WssClientID) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	idx := -1
	for i, mc := range m.clients {
		if mc.client.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	old := m.clients[idx]
	replacement := &managedClient{
		client:   newWssClient(id.NewReconnectedID(), old.token, old.config, m.opener, old.listener),
		token:    old.token,
		config:   old.config,
		listener: old.listener,
		batchPos: old.batchPos,
	}
	m.clients[idx] = replacement
	running, runCtx := m.running, m.ctx
	m.mu.Unlock()

	m.env.Logger.Info("restarting socket mode client", map[string]interface{}{
		"client_id":     id.String(),
		"new_client_id": replacement.client.id.String(),
	})

	old.client.Shutdown()
	if running {
		replacement.client.Start(runCtx, 0)
	}
	return nil
}

// RemoveClient drops the client with this exact id and shuts it down. The
// slot is not replaced.
func (m *ClientsManager) RemoveClient(id WssClientID) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	idx := -1
	for i, mc := range m.clients {
		if mc.client.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	old := m.clients[idx]
	m.clients = append(m.clients[:idx:idx], m.clients[idx+1:]...)
	m.mu.Unlock()

	m.env.Logger.Warn("socket mode client removed", map[string]interface{}{
		"client_id": id.String(),
		"token":     old.token.String(),
	})
	old.client.Shutdown()
	return nil
}

// Shutdown destroys every client. The manager cannot be restarted.
func (m *ClientsManager) Shutdown() {
	m.mu.Lock()
	clients := m.clients
	m.clients = nil
	m.running = false
	m.stopped = true
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, mc := range clients {
		wg.Add(1)
		go func(c *WssClient) {
			defer wg.Done()
			c.Shutdown()
		}(mc.client)
	}
	wg.Wait()

	m.env.Logger.Info("socket mode manager shut down", map[string]interface{}{"clients": len(clients)})
}

// AwaitTermSignals blocks until SIGINT or SIGTERM arrives or ctx ends.
func (m *ClientsManager) AwaitTermSignals(ctx context.Context) error {
	signal.Notify(m.signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(m.signals)

	select {
	case sig := <-m.signals:
		m.env.Logger.Info("termination signal received", map[string]interface{}{"signal": sig.String()})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve starts the manager, waits for a termination signal or ctx and
// shuts everything down.
func (m *ClientsManager) Serve(ctx context.Context) error {
	m.Start(ctx)
	err := m.AwaitTermSignals(ctx)
	m.Shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Clients returns the ids of the current clients.
func (m *ClientsManager) Clients() []WssClientID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]WssClientID, len(m.clients))
	for i, mc := range m.clients {
		ids[i] = mc.client.id
	}
	return ids
}

// client returns the current client for a slot.
func (m *ClientsManager) client(initialIndex uint32) *WssClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mc := range m.clients {
		if mc.client.id.InitialIndex == initialIndex {
			return mc.client
		}
	}
	return nil
}

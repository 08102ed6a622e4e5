// Package socketmode receives events over Socket Mode WebSocket connections.
//
// A ClientsManager keeps Config.MaxConnectionsCount connections open per
// registered app token. Each WssClient resolves a single-use URL through
// apps.connections.open, dials it and runs three goroutines: a writer that
// is the only goroutine touching the socket's write half, a pinger that
// detects dead connections, and a reader that dispatches envelopes to
// Callbacks in the order they arrive. When a connection ends for any reason
// other than Shutdown, the manager replaces the client with a fresh one for
// the same slot and an incremented reconnect generation.
//
// Envelopes are acknowledged only after their callback returns. A callback
// error is passed to the ErrorHandler, whose status decides whether the
// envelope is still acknowledged; without an ack the platform redelivers.
//
//	env := socketmode.NewListenerEnvironment(client)
//	manager := socketmode.NewClientsManager(env, client)
//
//	err := manager.RegisterNewToken(ctx, socketmode.DefaultConfig(), api.NewToken(appToken), socketmode.Callbacks{
//	    OnEvent: func(ctx context.Context, ev *events.EventCallback, env *socketmode.ListenerEnvironment) error {
//	        env.Logger.Info("event", map[string]interface{}{"type": ev.Event.Type})
//	        return nil
//	    },
//	})
//
//	manager.Serve(ctx) // blocks until SIGINT/SIGTERM or ctx ends
package socketmode

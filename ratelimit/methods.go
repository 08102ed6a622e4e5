package ratelimit

import (
	"sort"
	"sync"
)

// MethodRegistry maps API method names to their throttling configuration.
// It is built once at startup and handed to the connector. Safe for
// concurrent use.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]MethodRateControlConfig
}

// NewMethodRegistry returns an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]MethodRateControlConfig)}
}

// DefaultMethodRegistry returns a registry preloaded with the published
// limits of the methods this module calls and their common neighbours.
func DefaultMethodRegistry() *MethodRegistry {
	r := NewMethodRegistry()
	tiers := map[string]Tier{
		"api.test":              Tier4,
		"apps.connections.open": Tier1,
		"auth.test":             Tier4,
		"bots.info":             Tier3,
		"chat.delete":           Tier3,
		"chat.getPermalink":     Tier4,
		"chat.postEphemeral":    Tier4,
		"chat.update":           Tier3,
		"conversations.history": Tier3,
		"conversations.info":    Tier3,
		"conversations.join":    Tier3,
		"conversations.list":    Tier2,
		"conversations.members": Tier4,
		"conversations.open":    Tier3,
		"conversations.replies": Tier3,
		"emoji.list":            Tier2,
		"oauth.v2.access":       Tier4,
		"pins.add":              Tier2,
		"reactions.add":         Tier3,
		"reactions.remove":      Tier2,
		"team.info":             Tier3,
		"usergroups.list":       Tier2,
		"users.conversations":   Tier3,
		"users.info":            Tier4,
		"users.list":            Tier2,
		"users.lookupByEmail":   Tier3,
		"views.open":            Tier4,
		"views.publish":         Tier4,
		"views.push":            Tier4,
		"views.update":          Tier4,
	}
	for method, tier := range tiers {
		r.methods[method] = MethodRateControlConfig{Tier: tier}
	}

	// One message per second per channel; approximated per team.
	r.methods["chat.postMessage"] = MethodRateControlConfig{
		SpecialRateLimit: &SpecialRateLimit{
			Key:   "chat.postMessage",
			Limit: PerSecond(1),
		},
	}
	r.methods["chat.scheduleMessage"] = MethodRateControlConfig{
		Tier: Tier3,
		SpecialRateLimit: &SpecialRateLimit{
			Key:   "chat.scheduleMessage",
			Limit: PerMinute(30),
		},
	}
	return r
}

// Set registers or replaces the configuration for method.
func (r *MethodRegistry) Set(method string, cfg MethodRateControlConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = cfg
	return nil
}

// Lookup returns the configuration for method.
func (r *MethodRegistry) Lookup(method string) (MethodRateControlConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.methods[method]
	return cfg, ok
}

// Methods returns the registered method names, sorted.
func (r *MethodRegistry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered methods.
func (r *MethodRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods)
}

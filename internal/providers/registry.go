package providers

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pyqvault/pyqvault/internal/config"
)

// Registry holds the configured vision clients keyed by provider name.
type Registry struct {
	clients map[string]VisionClient
}

// NewRegistry builds clients for every enabled provider entry.
func NewRegistry(cfg *config.Config, log *slog.Logger) (*Registry, error) {
	r := &Registry{clients: map[string]VisionClient{}}

	for name := range cfg.Providers {
		pc, _ := cfg.Provider(name)
		if !pc.Enabled {
			continue
		}

		switch pc.Type {
		case "openai":
			r.clients[name] = NewOpenAI(name, pc, log)
		case "anthropic":
			r.clients[name] = NewAnthropic(name, pc, log)
		default:
			return nil, fmt.Errorf("unknown provider type %q for provider %q", pc.Type, name)
		}
	}

	if len(r.clients) == 0 {
		return nil, fmt.Errorf("no enabled providers configured")
	}
	return r, nil
}

// NewRegistryWith builds a registry from pre-built clients, used by tests.
func NewRegistryWith(clients ...VisionClient) *Registry {
	r := &Registry{clients: map[string]VisionClient{}}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Client returns the named client.
func (r *Registry) Client(name string) (VisionClient, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return c, nil
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

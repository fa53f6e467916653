package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/marciob/polywatch/internal/domain"
)

// Factory constructs a strategy from its merged configuration.
type Factory func(cfg Config, logger *slog.Logger) (Strategy, error)

// Registry maps strategy type names to constructors and default
// configurations. It is an explicit instance wired at startup, not a
// package-global. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

type registration struct {
	factory  Factory
	defaults Config
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// NewDefaultRegistry returns a registry with every built-in strategy
// registered under its type name.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("poll_buy", DefaultPollBuyConfig(), NewPollBuy)
	r.Register("mean_reversion", DefaultMeanReversionConfig(), NewMeanReversion)
	return r
}

// Register adds a strategy type. An existing registration under the same
// name is replaced.
func (r *Registry) Register(name string, defaults Config, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defaults.Type = name
	r.entries[name] = registration{factory: factory, defaults: defaults}
}

// Create builds a strategy instance, merging the override on top of the
// registered defaults.
func (r *Registry) Create(name string, override Config, logger *slog.Logger) (Strategy, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", name, domain.ErrNoStrategy)
	}
	return reg.factory(merge(reg.defaults, override), logger)
}

// Defaults returns the default configuration registered under name.
func (r *Registry) Defaults(name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	if !ok {
		return Config{}, fmt.Errorf("strategy %q: %w", name, domain.ErrNoStrategy)
	}
	return reg.defaults, nil
}

// List returns all registered type names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package llmguard

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/llmguard/config"
	"github.com/BaSui01/llmguard/internal/metrics"
)

// Registry manages one Guard per upstream dependency, building guards
// lazily from configuration and wiring them all to a shared metrics
// collector. It is safe for concurrent use.
type Registry struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector

	mu     sync.RWMutex
	guards map[string]*Guard
}

// NewRegistry creates a registry backed by cfg. Guards are created on
// first use via GetOrCreate with the per-guard settings cfg resolves for
// their name.
func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(cfg.MetricsNamespace, logger),
		guards:    make(map[string]*Guard),
	}
}

// GetOrCreate returns the guard for name, building it from configuration
// on first use. Concurrent callers for the same name get the same guard.
func (r *Registry) GetOrCreate(name string) (*Guard, error) {
	r.mu.RLock()
	g, ok := r.guards[name]
	r.mu.RUnlock()
	if ok {
		return g, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[name]; ok {
		return g, nil
	}

	g, err := newGuard(name, r.cfg.ForGuard(name), r.logger, r.collector)
	if err != nil {
		return nil, err
	}
	r.guards[name] = g
	return g, nil
}

// Get retrieves an already-created guard by name.
func (r *Registry) Get(name string) (*Guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guards[name]
	return g, ok
}

// List returns the sorted names of all created guards.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of created guards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guards)
}

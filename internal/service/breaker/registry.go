package breaker

import (
	"sort"
	"sync"
)

// Registry owns one breaker per provider, created lazily on first use.
type Registry struct {
	cfg       Config
	opts      []Option
	overrides map[string]Config

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{
		cfg:       cfg,
		opts:      opts,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*Breaker),
	}
}

// Configure sets a per-provider config. It only affects breakers created later.
func (r *Registry) Configure(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = cfg
}

func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.cfg
	if o, ok := r.overrides[name]; ok {
		cfg = o
	}
	b = New(name, cfg, r.opts...)
	r.breakers[name] = b
	return b
}

// Statuses returns every known breaker sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Status())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

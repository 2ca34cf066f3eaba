package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"QuoteHub/pkg/logger"
)

// Freshness of a cached entry relative to its TTL pair.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
	Expired
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "expired"
	}
}

// Outcome says how a Get was served.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeStale   Outcome = "stale"
	OutcomeShared  Outcome = "shared"
	OutcomeFetched Outcome = "fetched"
)

// EntryInfo describes the value returned by Get or Peek.
type EntryInfo struct {
	Freshness  Freshness
	Outcome    Outcome
	ProducedAt time.Time
	HardTTL    time.Duration
	StaleTTL   time.Duration
}

// Fetcher produces a value for a key. The context passed to it is detached
// from the caller so a shared fetch survives any single caller going away.
type Fetcher[V any] func(ctx context.Context) (V, error)

// EventRecorder receives cache events for metrics.
type EventRecorder interface {
	RecordCacheEvent(cache, event string)
}

type entry[V any] struct {
	value      V
	producedAt time.Time
	hard       time.Duration
	stale      time.Duration
}

func (e *entry[V]) freshness(now time.Time) Freshness {
	age := now.Sub(e.producedAt)
	switch {
	case age < e.hard:
		return Fresh
	case age < e.hard+e.stale:
		return Stale
	default:
		return Expired
	}
}

func (e *entry[V]) info(now time.Time, o Outcome) EntryInfo {
	return EntryInfo{
		Freshness:  e.freshness(now),
		Outcome:    o,
		ProducedAt: e.producedAt,
		HardTTL:    e.hard,
		StaleTTL:   e.stale,
	}
}

type intelligentConfig struct {
	now          func() time.Time
	log          *logger.Logger
	recorder     EventRecorder
	hardTTL      time.Duration
	staleTTL     time.Duration
	fetchTimeout time.Duration
}

type IntelligentOption func(*intelligentConfig)

func WithClock(now func() time.Time) IntelligentOption {
	return func(c *intelligentConfig) { c.now = now }
}

func WithLogger(l *logger.Logger) IntelligentOption {
	return func(c *intelligentConfig) { c.log = l }
}

func WithEventRecorder(r EventRecorder) IntelligentOption {
	return func(c *intelligentConfig) { c.recorder = r }
}

// WithDefaultTTL sets the TTL pair used when Get is not given one.
func WithDefaultTTL(hard, stale time.Duration) IntelligentOption {
	return func(c *intelligentConfig) {
		c.hardTTL = hard
		c.staleTTL = stale
	}
}

// WithFetchTimeout bounds each fetch, including background refreshes.
func WithFetchTimeout(d time.Duration) IntelligentOption {
	return func(c *intelligentConfig) { c.fetchTimeout = d }
}

type getOptions struct {
	force    bool
	hard     time.Duration
	stale    time.Duration
	ttlGiven bool
}

type GetOption func(*getOptions)

// ForceRefresh bypasses any cached entry.
func ForceRefresh() GetOption {
	return func(o *getOptions) { o.force = true }
}

// WithTTL sets the TTL pair stored with a freshly fetched value.
func WithTTL(hard, stale time.Duration) GetOption {
	return func(o *getOptions) {
		o.hard = hard
		o.stale = stale
		o.ttlGiven = true
	}
}

// Intelligent is a bounded LRU cache with stale-while-revalidate reads and
// single-flight fetches per key.
type Intelligent[V any] struct {
	name string
	cfg  intelligentConfig

	mu      sync.Mutex
	entries *lru.Cache[string, *entry[V]]
	keys    map[string]*keyState
	epoch   uint64

	group singleflight.Group
	stats counters
}

func NewIntelligent[V any](name string, capacity int, opts ...IntelligentOption) (*Intelligent[V], error) {
	cfg := intelligentConfig{
		now:          time.Now,
		log:          logger.Nop(),
		hardTTL:      5 * time.Second,
		staleTTL:     10 * time.Second,
		fetchTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	entries, err := lru.New[string, *entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	return &Intelligent[V]{
		name:    name,
		cfg:     cfg,
		entries: entries,
		keys:    make(map[string]*keyState),
	}, nil
}

// Get returns the value for key, following this order: forced refresh,
// fresh hit, join an in-flight fetch, serve stale and revalidate in the
// background, or fetch synchronously. Only a synchronous fetch can fail.
func (c *Intelligent[V]) Get(ctx context.Context, key string, fetch Fetcher[V], opts ...GetOption) (V, EntryInfo, error) {
	o := getOptions{hard: c.cfg.hardTTL, stale: c.cfg.staleTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stale < 0 {
		o.stale = 0
	}

	if o.force {
		return c.await(ctx, key, c.flight(ctx, key, fetch, o))
	}

	now := c.cfg.now()
	c.mu.Lock()
	e, ok := c.entries.Get(key)
	ks := c.keys[key]
	flying := ks != nil && ks.current
	c.mu.Unlock()

	if ok && e.freshness(now) == Fresh {
		c.record("hit")
		return e.value, e.info(now, OutcomeHit), nil
	}
	if flying {
		c.record("shared")
		return c.await(ctx, key, c.flight(ctx, key, fetch, o))
	}
	if ok && e.freshness(now) == Stale {
		c.record("stale")
		c.revalidate(ctx, key, fetch, o)
		return e.value, e.info(now, OutcomeStale), nil
	}
	c.record("miss")
	return c.await(ctx, key, c.flight(ctx, key, fetch, o))
}

// Peek returns the last stored value for key without promoting it, even if
// it has expired.
func (c *Intelligent[V]) Peek(key string) (V, EntryInfo, bool) {
	c.mu.Lock()
	e, ok := c.entries.Peek(key)
	c.mu.Unlock()
	if !ok {
		var zero V
		return zero, EntryInfo{}, false
	}
	return e.value, e.info(c.cfg.now(), OutcomeHit), true
}

// Set stores value, replacing any entry and superseding in-flight fetches.
func (c *Intelligent[V]) Set(key string, value V, hard, stale time.Duration) {
	if stale < 0 {
		stale = 0
	}
	e := &entry[V]{value: value, producedAt: c.cfg.now(), hard: hard, stale: stale}
	c.mu.Lock()
	c.supersede(key)
	if c.entries.Add(key, e) {
		c.record("eviction")
	}
	c.mu.Unlock()
}

// Delete drops key. A fetch that started before the call will not store its
// result and will not be joined by later callers.
func (c *Intelligent[V]) Delete(key string) {
	c.mu.Lock()
	c.entries.Remove(key)
	c.supersede(key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Intelligent[V]) Clear() {
	c.mu.Lock()
	c.entries.Purge()
	c.epoch++
	for _, ks := range c.keys {
		ks.current = false
	}
	c.mu.Unlock()
}

func (c *Intelligent[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Intelligent[V]) Stats() Stats { return c.stats.snapshot() }

type stamp struct {
	epoch uint64
	gen   uint64
}

// keyState exists only while at least one fetch for the key is running.
type keyState struct {
	gen     uint64
	pending int
	// current reports a running fetch of the current generation.
	current bool
}

// stampOf must be called with mu held.
func (c *Intelligent[V]) stampOf(key string) stamp {
	st := stamp{epoch: c.epoch}
	if ks := c.keys[key]; ks != nil {
		st.gen = ks.gen
	}
	return st
}

// supersede stops running fetches for key from storing or being joined.
// Must be called with mu held.
func (c *Intelligent[V]) supersede(key string) {
	if ks := c.keys[key]; ks != nil {
		ks.gen++
		ks.current = false
	}
}

// flight starts or joins the fetch of the key's current generation. A forced
// flight first supersedes whatever is running so it cannot be overwritten by
// an older result.
func (c *Intelligent[V]) flight(ctx context.Context, key string, fetch Fetcher[V], o getOptions) <-chan singleflight.Result {
	c.mu.Lock()
	if o.force {
		c.supersede(key)
	}
	pre := c.stampOf(key)
	c.mu.Unlock()

	sfKey := fmt.Sprintf("%s\x00%d.%d", key, pre.epoch, pre.gen)
	base := context.WithoutCancel(ctx)

	return c.group.DoChan(sfKey, func() (any, error) {
		c.mu.Lock()
		ks := c.keys[key]
		if ks == nil {
			ks = &keyState{}
			c.keys[key] = ks
		}
		ks.pending++
		ks.current = true
		st := c.stampOf(key)
		c.mu.Unlock()
		defer c.release(key, st)

		fctx, cancel := context.WithTimeout(base, c.cfg.fetchTimeout)
		defer cancel()
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		e := &entry[V]{value: v, producedAt: c.cfg.now(), hard: o.hard, stale: o.stale}

		c.mu.Lock()
		if c.stampOf(key) == st {
			if c.entries.Add(key, e) {
				c.record("eviction")
			}
		}
		c.mu.Unlock()
		return e, nil
	})
}

func (c *Intelligent[V]) release(key string, st stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks := c.keys[key]
	if ks == nil {
		return
	}
	if c.stampOf(key) == st {
		ks.current = false
	}
	if ks.pending--; ks.pending <= 0 {
		delete(c.keys, key)
	}
}

func (c *Intelligent[V]) await(ctx context.Context, key string, ch <-chan singleflight.Result) (V, EntryInfo, error) {
	var zero V
	select {
	case <-ctx.Done():
		return zero, EntryInfo{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			c.record("fetch_error")
			return zero, EntryInfo{}, r.Err
		}
		e := r.Val.(*entry[V])
		out := OutcomeFetched
		if r.Shared {
			out = OutcomeShared
		}
		return e.value, e.info(c.cfg.now(), out), nil
	}
}

func (c *Intelligent[V]) revalidate(ctx context.Context, key string, fetch Fetcher[V], o getOptions) {
	ch := c.flight(ctx, key, fetch, o)
	go func() {
		r := <-ch
		if r.Err != nil {
			c.record("refresh_error")
			c.cfg.log.Warn("background refresh failed",
				logger.String("cache", c.name),
				logger.String("key", key),
				logger.Error(r.Err),
			)
			return
		}
		c.record("refresh")
	}()
}

func (c *Intelligent[V]) record(event string) {
	c.stats.add(event)
	if c.cfg.recorder != nil {
		c.cfg.recorder.RecordCacheEvent(c.name, event)
	}
}

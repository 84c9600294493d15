package engine

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// ActionKey identifies one action computation.
type ActionKey struct {
	Kind   string
	Path   string
	Only   string
	Params string
}

func (k ActionKey) flight() string {
	return k.Kind + "\x00" + k.Path + "\x00" + k.Only + "\x00" + k.Params
}

// paramsKey hashes free-form action parameters into a short key.
func paramsKey(parts ...string) string {
	h := xxhash.New()
	for _, part := range parts {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 36)
}

type record struct {
	value any
	deps  []string
}

// partial is implemented by results computed around a cycle. They are
// returned to the caller but never stored.
type partial interface {
	partial() bool
}

// CacheStats counts cache traffic.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Records int   `json:"records"`
}

// ActionsCache memoizes successful actions for one session and joins
// concurrent requests for the same key.
type ActionsCache struct {
	mu      sync.Mutex
	records map[ActionKey]record
	epoch   uint64
	group   singleflight.Group
	// waits counts, per running action, the actions it is blocked on
	waits map[ActionKey]map[ActionKey]int

	hits   atomic.Int64
	misses atomic.Int64
}

// NewActionsCache creates an empty cache
func NewActionsCache() *ActionsCache {
	return &ActionsCache{
		records: make(map[ActionKey]record),
		waits:   make(map[ActionKey]map[ActionKey]int),
	}
}

// Get returns a stored result.
func (c *ActionsCache) Get(key ActionKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	return rec.value, ok
}

// Store records a successful result and the module paths it was computed from.
func (c *ActionsCache) Store(key ActionKey, value any, deps []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = record{value: value, deps: deps}
}

type flightKey struct{}

// withFlight marks ctx as running inside the action key.
func withFlight(ctx context.Context, key ActionKey) context.Context {
	return context.WithValue(ctx, flightKey{}, key)
}

func flightFrom(ctx context.Context) (ActionKey, bool) {
	key, ok := ctx.Value(flightKey{}).(ActionKey)
	return key, ok
}

// Do returns the cached result for key or runs fn once, sharing the
// outcome with concurrent callers of the same key. Failed runs are not
// stored, and neither are runs that overlapped an invalidation. A caller
// whose wait would close a loop of actions blocked on each other gets a
// CycleError instead.
func (c *ActionsCache) Do(ctx context.Context, key ActionKey, fn func() (any, []string, error)) (value any, hit bool, err error) {
	if value, ok := c.Get(key); ok {
		c.hits.Add(1)
		return value, true, nil
	}

	if parent, ok := flightFrom(ctx); ok {
		if !c.wait(parent, key) {
			return nil, false, &CycleError{Trail: append([]Frame{}, trailFrom(ctx)...)}
		}
		defer c.done(parent, key)
	}

	flight := key.flight()
	ch := c.group.DoChan(flight, func() (any, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		c.misses.Add(1)

		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()

		value, deps, err := fn()
		if err != nil {
			return nil, err
		}
		if p, ok := value.(partial); ok && p.partial() {
			return value, nil
		}

		c.mu.Lock()
		if c.epoch == epoch {
			c.records[key] = record{value: value, deps: deps}
		}
		c.mu.Unlock()
		return value, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		select {
		case res := <-ch:
			return res.Val, res.Shared, res.Err
		default:
			return nil, false, ctx.Err()
		}
	}
}

// wait records that parent blocks on key. It refuses when key already
// waits, directly or not, on parent.
func (c *ActionsCache) wait(parent, key ActionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parent == key || c.reaches(key, parent, make(map[ActionKey]bool)) {
		return false
	}
	if c.waits[parent] == nil {
		c.waits[parent] = make(map[ActionKey]int)
	}
	c.waits[parent][key]++
	return true
}

func (c *ActionsCache) done(parent, key ActionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waits[parent][key]--; c.waits[parent][key] <= 0 {
		delete(c.waits[parent], key)
	}
	if len(c.waits[parent]) == 0 {
		delete(c.waits, parent)
	}
}

func (c *ActionsCache) reaches(from, to ActionKey, seen map[ActionKey]bool) bool {
	if from == to {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for next := range c.waits[from] {
		if c.reaches(next, to, seen) {
			return true
		}
	}
	return false
}

// Invalidate drops every record whose path or dependencies intersect
// paths and returns how many were dropped.
func (c *ActionsCache) Invalidate(paths []string) int {
	dropped, _ := c.invalidate(paths)
	return dropped
}

// invalidate drops records to a fixpoint: once a record of a path is
// dropped, records depending on that path go too. It returns the count and
// every path whose records were affected, sorted.
func (c *ActionsCache) invalidate(paths []string) (int, []string) {
	set := make(map[string]bool, len(paths))
	for _, path := range paths {
		set[path] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	dropped := 0
	for grown := true; grown; {
		grown = false
		for key, rec := range c.records {
			if !set[key.Path] && !intersects(rec.deps, set) {
				continue
			}
			delete(c.records, key)
			c.group.Forget(key.flight())
			dropped++
			if !set[key.Path] {
				set[key.Path] = true
				grown = true
			}
		}
	}

	out := make([]string, 0, len(set))
	for path := range set {
		out = append(out, path)
	}
	sort.Strings(out)
	return dropped, out
}

// Stats returns counters since the cache was created.
func (c *ActionsCache) Stats() CacheStats {
	c.mu.Lock()
	records := len(c.records)
	c.mu.Unlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Records: records}
}

func intersects(values []string, set map[string]bool) bool {
	for _, value := range values {
		if set[value] {
			return true
		}
	}
	return false
}

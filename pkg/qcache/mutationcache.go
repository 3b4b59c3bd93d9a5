package qcache

import (
	"context"
	"sync"
	"sync/atomic"
)

// MutationCacheEventType enumerates the MutationCache event stream variants
// (spec §3, §6), the mutation-side analogue of QueryCacheEventType.
type MutationCacheEventType int

const (
	MutationEventAdded MutationCacheEventType = iota
	MutationEventRemoved
	MutationEventUpdated
)

func (t MutationCacheEventType) String() string {
	switch t {
	case MutationEventAdded:
		return "added"
	case MutationEventRemoved:
		return "removed"
	case MutationEventUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// MutationCacheEvent is one item on MutationCache's event stream.
type MutationCacheEvent struct {
	Type     MutationCacheEventType
	Mutation *Mutation
}

// MutationFilters selects a subset of a MutationCache's entries (spec §4.8,
// mirroring QueryFilters).
type MutationFilters struct {
	MutationKey MutationKey
	Status      *MutationStatus
	Predicate   func(*Mutation) bool
}

func (f MutationFilters) match(m *Mutation) bool {
	if f.MutationKey != nil {
		key := m.Options().MutationKey
		if CanonicalizeKey(QueryKey(f.MutationKey)) != CanonicalizeKey(QueryKey(key)) {
			return false
		}
	}
	if f.Status != nil && m.State().Status != *f.Status {
		return false
	}
	if f.Predicate != nil && !f.Predicate(m) {
		return false
	}
	return true
}

// MutationCacheConfig carries the cache-level default callbacks layer (spec
// §9's "cache" layer, folded together with the QueryClient's global mutation
// defaults by the client at construction time — see queryclient.go).
type MutationCacheConfig struct {
	Callbacks MutationCallbacks
}

// MutationCache is a set of Mutations grouped by optional scope (spec §3,
// §4.8). Exactly one MutationCache is owned by each QueryClient.
type MutationCache struct {
	mu         sync.Mutex
	mutations  []*Mutation
	scopes     map[string][]*Mutation
	nextID     int64
	config     MutationCacheConfig

	notifyManager *NotifyManager
	sub           *Subscribable[MutationCacheEvent]

	time      TimeSource
	isOnline  func() bool
	isFocused func() bool
}

// NewMutationCache returns an empty MutationCache wired to nm for batched
// event delivery.
func NewMutationCache(nm *NotifyManager, time TimeSource, isOnline, isFocused func() bool, config MutationCacheConfig) *MutationCache {
	return &MutationCache{
		scopes:        make(map[string][]*Mutation),
		notifyManager: nm,
		sub:           NewSubscribable[MutationCacheEvent](),
		config:        config,
		time:          time,
		isOnline:      isOnline,
		isFocused:     isFocused,
	}
}

func (c *MutationCache) callbacks() MutationCallbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Callbacks
}

// Build constructs and registers a new Mutation (spec §4.6: mutations are
// never looked up by key, so unlike QueryCache.Build this always creates a
// fresh entry).
func (c *MutationCache) Build(opts MutationOptions) *Mutation {
	resolved := resolveMutationOptions(opts)

	c.mu.Lock()
	id := atomic.AddInt64(&c.nextID, 1)
	m := newMutation(c, id, resolved, c.time, c.isOnline, c.isFocused)
	c.mutations = append(c.mutations, m)
	if resolved.Scope != nil {
		c.scopes[resolved.Scope.ID] = append(c.scopes[resolved.Scope.ID], m)
	}
	c.mu.Unlock()

	c.notify(MutationCacheEvent{Type: MutationEventAdded, Mutation: m})
	return m
}

// GetAll returns every registered Mutation, in insertion order.
func (c *MutationCache) GetAll() []*Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Mutation, len(c.mutations))
	copy(out, c.mutations)
	return out
}

// Find returns the first Mutation matching filters, if any.
func (c *MutationCache) Find(filters MutationFilters) *Mutation {
	for _, m := range c.GetAll() {
		if filters.match(m) {
			return m
		}
	}
	return nil
}

// FindAll returns every Mutation matching filters.
func (c *MutationCache) FindAll(filters MutationFilters) []*Mutation {
	var out []*Mutation
	for _, m := range c.GetAll() {
		if filters.match(m) {
			out = append(out, m)
		}
	}
	return out
}

// Remove unregisters m. Per an explicitly open design question (spec §9),
// this always emits MutationEventRemoved even if m was already absent — the
// engine treats double-removal as a benign idempotent no-op rather than an
// error, matching the source's flagged (undecided-upstream) behavior.
func (c *MutationCache) Remove(m *Mutation) {
	c.mu.Lock()
	for i, mm := range c.mutations {
		if mm == m {
			c.mutations = append(c.mutations[:i], c.mutations[i+1:]...)
			break
		}
	}
	if scope := m.Options().Scope; scope != nil {
		list := c.scopes[scope.ID]
		for i, mm := range list {
			if mm == m {
				c.scopes[scope.ID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	c.notify(MutationCacheEvent{Type: MutationEventRemoved, Mutation: m})
}

func (c *MutationCache) maybeRemove(m *Mutation) {
	if m.IsRemovable() {
		c.Remove(m)
	}
}

// canRun reports whether m may run now: unscoped mutations always may;
// scoped mutations may run only if no earlier mutation sharing their scope
// is still pending, or the earliest pending one is m itself (spec §4.8).
func (c *MutationCache) canRun(m *Mutation) bool {
	scope := m.Options().Scope
	if scope == nil {
		return true
	}

	c.mu.Lock()
	list := append([]*Mutation(nil), c.scopes[scope.ID]...)
	c.mu.Unlock()

	for _, other := range list {
		if other == m {
			return true
		}
		if other.State().Status == MutationStatusPending {
			return false
		}
	}
	return true
}

// runNext finds the next paused mutation after m in its scope and resumes
// it (spec §4.8).
func (c *MutationCache) runNext(m *Mutation) {
	scope := m.Options().Scope
	if scope == nil {
		return
	}

	c.mu.Lock()
	list := append([]*Mutation(nil), c.scopes[scope.ID]...)
	c.mu.Unlock()

	idx := -1
	for i, mm := range list {
		if mm == m {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for _, next := range list[idx+1:] {
		if next.IsPaused() {
			next.Continue()
			return
		}
	}
}

// ResumePausedMutations resolves once every currently-paused mutation has
// completed its continuation chain, swallowing per-mutation errors (spec
// §4.8).
func (c *MutationCache) ResumePausedMutations(ctx context.Context) {
	var paused []*Mutation
	for _, m := range c.GetAll() {
		if m.IsPaused() {
			paused = append(paused, m)
		}
	}

	var wg sync.WaitGroup
	for _, m := range paused {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Continue()
			m.waitDone(ctx)
		}()
	}
	wg.Wait()
}

// Clear removes every Mutation in a single batched transaction.
func (c *MutationCache) Clear() {
	c.notifyManager.Batch(func() {
		c.mu.Lock()
		all := append([]*Mutation(nil), c.mutations...)
		c.mutations = nil
		c.scopes = make(map[string][]*Mutation)
		c.mu.Unlock()

		for _, m := range all {
			c.notify(MutationCacheEvent{Type: MutationEventRemoved, Mutation: m})
		}
	})
}

func (c *MutationCache) notify(event MutationCacheEvent) {
	c.notifyManager.Batch(func() {
		c.sub.Emit(event)
	})
}

// Subscribe registers listener for every MutationCacheEvent.
func (c *MutationCache) Subscribe(listener func(MutationCacheEvent)) func() {
	return c.sub.Subscribe(listener)
}

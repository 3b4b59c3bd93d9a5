package qcache

import "sync"

// QueryCacheEventType enumerates the QueryCache event stream variants (spec
// §3, §6).
type QueryCacheEventType int

const (
	EventAdded QueryCacheEventType = iota
	EventRemoved
	EventUpdated
	EventObserverAdded
	EventObserverRemoved
	EventObserverResultsUpdated
	EventObserverOptionsUpdated
)

func (t QueryCacheEventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventUpdated:
		return "updated"
	case EventObserverAdded:
		return "observerAdded"
	case EventObserverRemoved:
		return "observerRemoved"
	case EventObserverResultsUpdated:
		return "observerResultsUpdated"
	case EventObserverOptionsUpdated:
		return "observerOptionsUpdated"
	default:
		return "unknown"
	}
}

// QueryCacheEvent is one item on QueryCache's event stream.
type QueryCacheEvent struct {
	Type     QueryCacheEventType
	Query    *Query
	Observer *QueryObserver
	Action   queryAction
}

// QueryFilters selects a subset of a QueryCache's entries for Find/FindAll,
// InvalidateQueries, and similar bulk operations (spec §4.7).
type QueryFilters struct {
	// QueryKey, if non-nil, restricts to queries whose key matches.
	QueryKey QueryKey
	// ExactKey requires QueryHash equality rather than a partial (prefix)
	// match against QueryKey.
	ExactKey bool

	FetchStatus *FetchStatus
	Status      *Status
	// Stale, if non-nil, requires IsStaleByTime(query's StaleTime) to equal
	// its value.
	Stale *bool
	// Active/Inactive filters on ObserverCount() > 0.
	Active   *bool
	Predicate func(*Query) bool
}

func (f QueryFilters) match(q *Query) bool {
	if f.QueryKey != nil {
		if f.ExactKey {
			if q.queryHash != CanonicalizeKey(f.QueryKey) {
				return false
			}
		} else if !PartialMatchKey(q.queryKey, f.QueryKey) {
			return false
		}
	}
	state := q.State()
	if f.FetchStatus != nil && state.FetchStatus != *f.FetchStatus {
		return false
	}
	if f.Status != nil && state.Status != *f.Status {
		return false
	}
	if f.Stale != nil && q.IsStaleByTime(q.Options().StaleTime) != *f.Stale {
		return false
	}
	if f.Active != nil && (q.IsActive() != *f.Active) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(q) {
		return false
	}
	return true
}

// QueryCache is a keyed store of Queries (spec §3, §4.7). Exactly one
// QueryCache is owned by each QueryClient.
type QueryCache struct {
	mu      sync.RWMutex
	queries map[string]*Query

	notifyManager *NotifyManager
	sub           *Subscribable[QueryCacheEvent]

	time      TimeSource
	isOnline  func() bool
	isFocused func() bool
}

// NewQueryCache returns an empty QueryCache wired to nm for batched event
// delivery.
func NewQueryCache(nm *NotifyManager, time TimeSource, isOnline, isFocused func() bool) *QueryCache {
	return &QueryCache{
		queries:       make(map[string]*Query),
		notifyManager: nm,
		sub:           NewSubscribable[QueryCacheEvent](),
		time:          time,
		isOnline:      isOnline,
		isFocused:     isFocused,
	}
}

// Build returns the existing Query for opts' resolved hash, or constructs
// and registers a new one (emitting EventAdded).
func (c *QueryCache) Build(opts QueryOptions) *Query {
	resolved := resolveQueryOptions(opts)
	hash := resolved.QueryKeyHashFn(resolved.QueryKey)

	c.mu.Lock()
	if q, ok := c.queries[hash]; ok {
		c.mu.Unlock()
		return q
	}
	q := newQuery(c, hash, resolved, c.time, c.isOnline, c.isFocused)
	c.queries[hash] = q
	c.mu.Unlock()

	// A freshly built Query starts with zero observers. Per spec §3,
	// "Queries created by direct setQueryData/prefetch without an observer
	// immediately enter gc" — arm the timer now; QueryObserver.Subscribe's
	// subsequent AddObserver call cancels it if one attaches right after.
	q.scheduleGC()

	c.notify(QueryCacheEvent{Type: EventAdded, Query: q})
	return q
}

// Get returns the Query registered under hash, if any.
func (c *QueryCache) Get(hash string) (*Query, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.queries[hash]
	return q, ok
}

// GetAll returns every registered Query, in no particular order.
func (c *QueryCache) GetAll() []*Query {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Query, 0, len(c.queries))
	for _, q := range c.queries {
		out = append(out, q)
	}
	return out
}

// Find returns the first Query matching filters, if any.
func (c *QueryCache) Find(filters QueryFilters) *Query {
	for _, q := range c.GetAll() {
		if filters.match(q) {
			return q
		}
	}
	return nil
}

// FindAll returns every Query matching filters.
func (c *QueryCache) FindAll(filters QueryFilters) []*Query {
	var out []*Query
	for _, q := range c.GetAll() {
		if filters.match(q) {
			out = append(out, q)
		}
	}
	return out
}

// remove unregisters q, destroys it, and emits EventRemoved. A no-op if q
// was already removed (e.g. a race between an expiring gc timer and an
// explicit Remove call).
func (c *QueryCache) remove(q *Query) {
	c.mu.Lock()
	_, existed := c.queries[q.queryHash]
	delete(c.queries, q.queryHash)
	c.mu.Unlock()
	if !existed {
		return
	}
	q.Destroy()
	c.notify(QueryCacheEvent{Type: EventRemoved, Query: q})
}

// Remove is the public entry point for removing a single Query.
func (c *QueryCache) Remove(q *Query) {
	c.remove(q)
}

// Clear removes every Query in a single batched transaction.
func (c *QueryCache) Clear() {
	c.notifyManager.Batch(func() {
		c.mu.Lock()
		all := make([]*Query, 0, len(c.queries))
		for _, q := range c.queries {
			all = append(all, q)
		}
		c.queries = make(map[string]*Query)
		c.mu.Unlock()

		for _, q := range all {
			q.Destroy()
			c.notify(QueryCacheEvent{Type: EventRemoved, Query: q})
		}
	})
}

// OnFocus broadcasts a focus transition to every registered Query.
func (c *QueryCache) OnFocus() {
	for _, q := range c.GetAll() {
		q.OnFocus()
	}
}

// OnOnline broadcasts a reconnect transition to every registered Query.
func (c *QueryCache) OnOnline() {
	for _, q := range c.GetAll() {
		q.OnOnline()
	}
}

// notify emits event to subscribers within a NotifyManager batch (spec §4.7:
// "Event emission is always wrapped in notifyManager.batch").
func (c *QueryCache) notify(event QueryCacheEvent) {
	c.notifyManager.Batch(func() {
		c.sub.Emit(event)
	})
}

// Subscribe registers listener for every QueryCacheEvent.
func (c *QueryCache) Subscribe(listener func(QueryCacheEvent)) func() {
	return c.sub.Subscribe(listener)
}

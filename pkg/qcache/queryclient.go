package qcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voedger/qcache/pkg/goutils/timeu"
)

// Persister is the persistence collaborator interface (spec §6): the engine
// treats it as best-effort and never blocks a public operation on it.
type Persister interface {
	PersistClient(ctx context.Context, snapshot DehydratedState) error
	RestoreClient(ctx context.Context) (DehydratedState, error)
	RemoveClient(ctx context.Context) error
}

type queryDefaultsEntry struct {
	prefix QueryKey
	opts   QueryOptions
}

type mutationDefaultsEntry struct {
	prefix MutationKey
	opts   MutationOptions
}

// QueryClientConfig is QueryClient's constructor parameter block, built up
// via functional options (matching the teacher's Params-struct + Provide
// convention).
type QueryClientConfig struct {
	QueryCache    *QueryCache
	MutationCache *MutationCache

	DefaultQueryOptions    QueryOptions
	DefaultMutationOptions MutationOptions

	FocusManager  *FocusManager
	OnlineManager *OnlineManager
	NotifyManager *NotifyManager

	Time timeu.ITime

	Persister Persister
}

// QueryClientOption mutates a QueryClientConfig during construction.
type QueryClientOption func(*QueryClientConfig)

func WithQueryCache(c *QueryCache) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.QueryCache = c }
}

func WithMutationCache(c *MutationCache) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.MutationCache = c }
}

func WithDefaultQueryOptions(opts QueryOptions) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.DefaultQueryOptions = opts }
}

func WithDefaultMutationOptions(opts MutationOptions) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.DefaultMutationOptions = opts }
}

func WithFocusManager(fm *FocusManager) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.FocusManager = fm }
}

func WithOnlineManager(om *OnlineManager) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.OnlineManager = om }
}

func WithNotifyManager(nm *NotifyManager) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.NotifyManager = nm }
}

func WithTime(t timeu.ITime) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.Time = t }
}

// WithPersister attaches a Persister collaborator. Per spec §4.11, if
// NetworkMode is left unset a Persister being configured tips the client's
// default NetworkMode to offlineFirst.
func WithPersister(p Persister) QueryClientOption {
	return func(cfg *QueryClientConfig) { cfg.Persister = p }
}

// QueryClient binds a QueryCache and MutationCache, per-key and global
// default options, and the public operations UI adapters and application
// code call (spec §4.11).
type QueryClient struct {
	queryCache    *QueryCache
	mutationCache *MutationCache
	notifyManager *NotifyManager
	focusManager  *FocusManager
	onlineManager *OnlineManager
	time          TimeSource
	persister     Persister

	mu                     sync.Mutex
	defaultQueryOptions    QueryOptions
	defaultMutationOptions MutationOptions
	queryDefaults          []queryDefaultsEntry
	mutationDefaults       []mutationDefaultsEntry

	mountRefCount int32
	unsubFocus    func()
	unsubOnline   func()
}

// NewQueryClient constructs a QueryClient, building a QueryCache/
// MutationCache/NotifyManager/FocusManager/OnlineManager from defaults for
// any not supplied via options.
func NewQueryClient(opts ...QueryClientOption) *QueryClient {
	cfg := QueryClientConfig{
		FocusManager:  NewFocusManager(NoopFocusEventSource),
		OnlineManager: NewOnlineManager(NoopOnlineEventSource),
		NotifyManager: NewNotifyManager(),
		Time:          timeu.NewITime(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	defaultQueryOptions := cfg.DefaultQueryOptions
	if cfg.Persister != nil && defaultQueryOptions.NetworkMode == NetworkModeOnline {
		defaultQueryOptions.NetworkMode = NetworkModeOfflineFirst
	}

	c := &QueryClient{
		notifyManager:          cfg.NotifyManager,
		focusManager:           cfg.FocusManager,
		onlineManager:          cfg.OnlineManager,
		time:                   cfg.Time,
		persister:              cfg.Persister,
		defaultQueryOptions:    defaultQueryOptions,
		defaultMutationOptions: cfg.DefaultMutationOptions,
	}

	if cfg.QueryCache != nil {
		c.queryCache = cfg.QueryCache
	} else {
		c.queryCache = NewQueryCache(c.notifyManager, c.time, c.isOnline, c.isFocused)
	}

	if cfg.MutationCache != nil {
		c.mutationCache = cfg.MutationCache
	} else {
		c.mutationCache = NewMutationCache(c.notifyManager, c.time, c.isOnline, c.isFocused, MutationCacheConfig{
			Callbacks: cfg.DefaultMutationOptions.Callbacks,
		})
	}

	return c
}

func (c *QueryClient) isOnline() bool  { return c.onlineManager.IsOnline() }
func (c *QueryClient) isFocused() bool { return c.focusManager.IsFocused() }

// QueryCache returns the client's QueryCache.
func (c *QueryClient) QueryCache() *QueryCache { return c.queryCache }

// MutationCache returns the client's MutationCache.
func (c *QueryClient) MutationCache() *MutationCache { return c.mutationCache }

// NotifyManager returns the client's NotifyManager.
func (c *QueryClient) NotifyManager() *NotifyManager { return c.notifyManager }

// FocusManager returns the client's FocusManager.
func (c *QueryClient) FocusManager() *FocusManager { return c.focusManager }

// OnlineManager returns the client's OnlineManager.
func (c *QueryClient) OnlineManager() *OnlineManager { return c.onlineManager }

// SetQueryDefaults registers partial-key-matched default QueryOptions,
// applied to any query whose key has keyPrefix as a leading subsequence
// (spec §4.11).
func (c *QueryClient) SetQueryDefaults(keyPrefix QueryKey, opts QueryOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryDefaults = append(c.queryDefaults, queryDefaultsEntry{prefix: keyPrefix, opts: opts})
}

// SetMutationDefaults is SetQueryDefaults' mutation analogue.
func (c *QueryClient) SetMutationDefaults(keyPrefix MutationKey, opts MutationOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutationDefaults = append(c.mutationDefaults, mutationDefaultsEntry{prefix: keyPrefix, opts: opts})
}

// resolveQuery layers global defaults, matching per-key defaults (in
// registration order), and call-site opts (highest precedence), then
// resolves the result (spec §4.11).
func (c *QueryClient) resolveQuery(opts QueryOptions) QueryOptions {
	c.mu.Lock()
	merged := c.defaultQueryOptions
	for _, d := range c.queryDefaults {
		if PartialMatchKey(opts.QueryKey, d.prefix) {
			merged = mergeStructs(merged, d.opts)
		}
	}
	c.mu.Unlock()

	merged = mergeStructs(merged, opts)
	return resolveQueryOptions(merged)
}

func (c *QueryClient) resolveQueryObserverOptions(opts QueryObserverOptions) QueryObserverOptions {
	resolved := opts
	resolved.QueryOptions = c.resolveQuery(opts.QueryOptions)
	return resolveObserverOptions(resolved)
}

func (c *QueryClient) resolveMutation(opts MutationOptions) MutationOptions {
	c.mu.Lock()
	merged := c.defaultMutationOptions
	for _, d := range c.mutationDefaults {
		if PartialMatchKey(QueryKey(opts.MutationKey), QueryKey(d.prefix)) {
			merged = mergeStructs(merged, d.opts)
		}
	}
	c.mu.Unlock()

	merged = mergeStructs(merged, opts)
	return resolveMutationOptions(merged)
}

func (c *QueryClient) resolveMutationObserverOptions(opts MutationObserverOptions) MutationObserverOptions {
	return MutationObserverOptions{MutationOptions: c.resolveMutation(opts.MutationOptions)}
}

// FetchQuery ensures fresh data for opts' query, awaiting an in-flight or
// newly-started fetch if the current data is missing or stale, and
// returning cached data otherwise (spec §4.11).
func (c *QueryClient) FetchQuery(ctx context.Context, opts QueryOptions) (any, error) {
	resolved := c.resolveQuery(opts)
	q := c.queryCache.Build(resolved)

	state := q.State()
	if state.HasData() && !q.IsStaleByTime(resolved.StaleTime) {
		return state.Data, nil
	}

	promise := q.Fetch(ctx, &resolved, FetchOptions{})
	return promise.Wait(ctx)
}

// PrefetchQuery is FetchQuery but speculative: errors are swallowed (spec
// §7 "prefetch* swallow errors").
func (c *QueryClient) PrefetchQuery(ctx context.Context, opts QueryOptions) {
	_, _ = c.FetchQuery(ctx, opts)
}

// EnsureQueryData returns cached data immediately if present regardless of
// staleness, otherwise behaves like FetchQuery (spec §4.11).
func (c *QueryClient) EnsureQueryData(ctx context.Context, opts QueryOptions) (any, error) {
	resolved := c.resolveQuery(opts)
	q := c.queryCache.Build(resolved)
	if state := q.State(); state.HasData() {
		return state.Data, nil
	}
	return c.FetchQuery(ctx, opts)
}

// FetchInfiniteQuery/PrefetchInfiniteQuery/EnsureInfiniteQueryData delegate
// to their single-page counterparts. No paginating QueryBehavior ships in
// this engine (see DESIGN.md's Open Question resolution); callers that need
// page accumulation supply a QueryOptions.Behavior that wraps QueryFn to
// merge pages, using FetchContext as the composition seam (spec §4.5, §9).
func (c *QueryClient) FetchInfiniteQuery(ctx context.Context, opts QueryOptions) (any, error) {
	return c.FetchQuery(ctx, opts)
}

func (c *QueryClient) PrefetchInfiniteQuery(ctx context.Context, opts QueryOptions) {
	c.PrefetchQuery(ctx, opts)
}

func (c *QueryClient) EnsureInfiniteQueryData(ctx context.Context, opts QueryOptions) (any, error) {
	return c.EnsureQueryData(ctx, opts)
}

// GetQueryData returns the cached data for key, if any query is registered
// under its default-hashed hash.
func (c *QueryClient) GetQueryData(key QueryKey) (any, bool) {
	q, ok := c.queryCache.Get(CanonicalizeKey(key))
	if !ok {
		return nil, false
	}
	state := q.State()
	return state.Data, state.HasData()
}

// SetQueryData applies updater(oldData) (or, if updater is not a func(any)
// any, updater itself) as the new data for key, building the query if it
// does not exist yet (spec §4.11).
func (c *QueryClient) SetQueryData(key QueryKey, updater any) any {
	q := c.queryCache.Build(c.resolveQuery(QueryOptions{QueryKey: key}))
	old := q.State().Data

	var next any
	if fn, ok := updater.(func(any) any); ok {
		next = fn(old)
	} else {
		next = updater
	}
	return q.SetData(next, time.Time{})
}

// GetQueriesData returns a queryHash -> Data map for every query matching
// filters.
func (c *QueryClient) GetQueriesData(filters QueryFilters) map[string]any {
	out := make(map[string]any)
	for _, q := range c.queryCache.FindAll(filters) {
		out[q.QueryHash()] = q.State().Data
	}
	return out
}

// SetQueriesData applies updater across every query matching filters within
// a single notification batch (spec §5).
func (c *QueryClient) SetQueriesData(filters QueryFilters, updater any) {
	c.notifyManager.Batch(func() {
		for _, q := range c.queryCache.FindAll(filters) {
			old := q.State().Data
			var next any
			if fn, ok := updater.(func(any) any); ok {
				next = fn(old)
			} else {
				next = updater
			}
			q.SetData(next, time.Time{})
		}
	})
}

// GetQueryState returns the full state for key's query, if registered.
func (c *QueryClient) GetQueryState(key QueryKey) (QueryState, bool) {
	q, ok := c.queryCache.Get(CanonicalizeKey(key))
	if !ok {
		return QueryState{}, false
	}
	return q.State(), true
}

// InvalidateQueries marks every match stale; active (observed) matches are
// refetched immediately, inactive ones only on their next observation (spec
// §4.11, E2E scenario 2).
func (c *QueryClient) InvalidateQueries(ctx context.Context, filters QueryFilters) {
	c.notifyManager.Batch(func() {
		for _, q := range c.queryCache.FindAll(filters) {
			q.Invalidate()
			if q.IsActive() {
				q.Fetch(ctx, nil, FetchOptions{CancelRefetch: true})
			}
		}
	})
}

// RefetchQueries force-refetches every match regardless of staleness,
// waiting for all of them and joining their errors.
func (c *QueryClient) RefetchQueries(ctx context.Context, filters QueryFilters) error {
	var promises []*Promise[any]
	c.notifyManager.Batch(func() {
		for _, q := range c.queryCache.FindAll(filters) {
			promises = append(promises, q.Fetch(ctx, nil, FetchOptions{CancelRefetch: true}))
		}
	})

	var errs []error
	for _, p := range promises {
		if _, err := p.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetQueries resets every match to a fresh state.
func (c *QueryClient) ResetQueries(filters QueryFilters) {
	c.notifyManager.Batch(func() {
		for _, q := range c.queryCache.FindAll(filters) {
			q.Reset()
		}
	})
}

// RemoveQueries removes every match from the cache.
func (c *QueryClient) RemoveQueries(filters QueryFilters) {
	c.notifyManager.Batch(func() {
		for _, q := range c.queryCache.FindAll(filters) {
			c.queryCache.Remove(q)
		}
	})
}

// CancelQueries cancels the active fetch, if any, on every match.
func (c *QueryClient) CancelQueries(filters QueryFilters, opts CancelOptions) {
	c.notifyManager.Batch(func() {
		for _, q := range c.queryCache.FindAll(filters) {
			q.Cancel(opts)
		}
	})
}

// IsFetching counts matches currently fetching.
func (c *QueryClient) IsFetching(filters QueryFilters) int {
	fetching := FetchStatusFetching
	f := filters
	f.FetchStatus = &fetching
	return len(c.queryCache.FindAll(f))
}

// IsMutating counts mutations currently pending.
func (c *QueryClient) IsMutating(filters MutationFilters) int {
	pending := MutationStatusPending
	f := filters
	f.Status = &pending
	return len(c.mutationCache.FindAll(f))
}

// ResumePausedMutations resumes every paused mutation and waits for them
// all to settle, swallowing per-mutation errors (spec §4.8, §4.11).
func (c *QueryClient) ResumePausedMutations(ctx context.Context) {
	c.mutationCache.ResumePausedMutations(ctx)
}

// Mount reference-counts a subscription to the process-wide FocusManager/
// OnlineManager: the first Mount call installs listeners that broadcast
// focus/online transitions to the QueryCache and resume paused mutations;
// the matching Unmount call after the last outstanding Mount tears them down
// (spec §4.11).
func (c *QueryClient) Mount() (unmount func()) {
	if atomic.AddInt32(&c.mountRefCount, 1) == 1 {
		c.mu.Lock()
		c.unsubFocus = c.focusManager.Subscribe(func(focused bool) {
			if focused {
				c.queryCache.OnFocus()
				c.mutationCache.ResumePausedMutations(context.Background())
			}
		})
		c.unsubOnline = c.onlineManager.Subscribe(func(online bool) {
			if online {
				c.queryCache.OnOnline()
				c.mutationCache.ResumePausedMutations(context.Background())
			}
		})
		c.mu.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if atomic.AddInt32(&c.mountRefCount, -1) == 0 {
				c.mu.Lock()
				if c.unsubFocus != nil {
					c.unsubFocus()
					c.unsubFocus = nil
				}
				if c.unsubOnline != nil {
					c.unsubOnline()
					c.unsubOnline = nil
				}
				c.mu.Unlock()
			}
		})
	}
}

// Clear removes every query and mutation from both caches.
func (c *QueryClient) Clear() {
	c.queryCache.Clear()
	c.mutationCache.Clear()
}

// Persister returns the configured Persister collaborator, or nil.
func (c *QueryClient) Persister() Persister { return c.persister }

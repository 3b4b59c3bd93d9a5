package qcache

import (
	"context"
	"sync"
	"time"
)

// FetchOptions parameterizes Query.Fetch (spec §4.5's `fetchOptions`).
type FetchOptions struct {
	// CancelRefetch, when true, cancels an in-flight fetch (silently) and
	// starts a new one instead of returning the active promise.
	CancelRefetch bool
	Meta          any
}

// Query is one cached entry: state, fetch orchestration via Retryer,
// observer fan-out, gc timer (spec §3, §4.5). Queries are owned by exactly
// one QueryCache and never constructed directly by callers.
type Query struct {
	queryKey  QueryKey
	queryHash string

	cache     *QueryCache
	time      TimeSource
	isOnline  func() bool
	isFocused func() bool

	mu        sync.Mutex
	opts      QueryOptions
	state     QueryState
	observers map[*QueryObserver]struct{}
	retryer   *Retryer[any]
	gcCancel  func() bool
}

func newQuery(cache *QueryCache, queryHash string, opts QueryOptions, time TimeSource, isOnline, isFocused func() bool) *Query {
	resolved := resolveQueryOptions(opts)
	q := &Query{
		queryKey:  resolved.QueryKey,
		queryHash: queryHash,
		cache:     cache,
		time:      time,
		isOnline:  isOnline,
		isFocused: isFocused,
		opts:      resolved,
		observers: make(map[*QueryObserver]struct{}),
	}
	q.state = newQueryState(resolved, time)
	return q
}

// QueryHash returns the cache lookup key for this Query.
func (q *Query) QueryHash() string { return q.queryHash }

// QueryKey returns the key this Query was built from.
func (q *Query) QueryKey() QueryKey { return q.queryKey }

// State returns a snapshot of the current reducer state.
func (q *Query) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Options returns a snapshot of the current resolved options.
func (q *Query) Options() QueryOptions {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.opts
}

// SetOptions replaces the resolved options driving this Query. Called when
// an observer's setOptions resolves to the same queryHash with different
// option values (spec §4.9); reconfigures the gc timer if needed.
func (q *Query) SetOptions(opts QueryOptions) {
	resolved := resolveQueryOptions(opts)
	q.mu.Lock()
	q.opts = resolved
	hasObservers := len(q.observers) > 0
	q.mu.Unlock()

	if !hasObservers {
		q.scheduleGC()
	}
}

// hasObserver reports whether obs is currently registered on this Query.
func (q *Query) hasObserver(obs *QueryObserver) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.observers[obs]
	return ok
}

// ObserverCount reports the number of subscribed observers.
func (q *Query) ObserverCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.observers)
}

// AddObserver registers obs and cancels any pending gc timeout (spec §3, §4.5
// GC: "any observer addition clears the timer").
func (q *Query) AddObserver(obs *QueryObserver) {
	q.mu.Lock()
	q.observers[obs] = struct{}{}
	q.cancelGCLocked()
	q.mu.Unlock()
	if q.cache != nil {
		q.cache.notify(QueryCacheEvent{Type: EventObserverAdded, Query: q, Observer: obs})
	}
}

// RemoveObserver deregisters obs. If it was the last observer, a gc timeout
// is scheduled (spec §3, §4.5).
func (q *Query) RemoveObserver(obs *QueryObserver) {
	q.mu.Lock()
	delete(q.observers, obs)
	empty := len(q.observers) == 0
	q.mu.Unlock()
	if q.cache != nil {
		q.cache.notify(QueryCacheEvent{Type: EventObserverRemoved, Query: q, Observer: obs})
	}
	if empty {
		q.scheduleGC()
	}
}

func (q *Query) cancelGCLocked() {
	if q.gcCancel != nil {
		q.gcCancel()
		q.gcCancel = nil
	}
}

func (q *Query) scheduleGC() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelGCLocked()
	if *q.opts.GCTime == GCTimeInfinite {
		return
	}
	gcTime := *q.opts.GCTime
	cache := q.cache
	q.gcCancel = q.time.AfterFunc(gcTime, func() {
		if cache != nil {
			cache.remove(q)
		}
	})
}

// IsStaleByTime reports whether this Query's data is stale under staleTime
// (spec §4.5).
func (q *Query) IsStaleByTime(staleTime time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isStaleByTimeLocked(staleTime)
}

func (q *Query) isStaleByTimeLocked(staleTime time.Duration) bool {
	if q.state.IsInvalidated {
		return true
	}
	if q.state.DataUpdatedAt.IsZero() {
		return true
	}
	return q.time.Now().Sub(q.state.DataUpdatedAt) >= staleTime
}

// Invalidate marks this Query stale without fetching (spec §4.5).
func (q *Query) Invalidate() {
	q.mu.Lock()
	already := q.state.IsInvalidated
	q.mu.Unlock()
	if already {
		return
	}
	q.dispatch(queryAction{Kind: actionInvalidate})
}

// IsActive reports whether any observer currently holds this Query.
func (q *Query) IsActive() bool {
	return q.ObserverCount() > 0
}

// IsFetching reports whether a Retryer is currently active.
func (q *Query) IsFetching() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retryer != nil
}

// Cancel cancels the active Retryer, if any.
func (q *Query) Cancel(opts CancelOptions) {
	q.mu.Lock()
	retryer := q.retryer
	q.mu.Unlock()
	if retryer != nil {
		retryer.Cancel(opts)
	}
}

// Reset cancels any active fetch and returns the Query to a fresh state
// (using InitialData if configured), per spec §4.5.
func (q *Query) Reset() {
	q.Cancel(CancelOptions{})
	q.mu.Lock()
	fresh := newQueryState(q.opts, q.time)
	q.mu.Unlock()
	q.dispatch(queryAction{Kind: actionSetState, SetState: &fresh})
}

// Destroy cancels any active fetch and clears timers; called by the owning
// cache when this Query is removed.
func (q *Query) Destroy() {
	q.mu.Lock()
	q.cancelGCLocked()
	retryer := q.retryer
	q.mu.Unlock()
	if retryer != nil {
		retryer.Cancel(CancelOptions{Silent: true})
	}
}

// OnFocus resumes a paused fetch, or triggers a refetch if any observer
// requests refetch-on-window-focus and the query is stale (spec §4.5).
// Observer-less queries ignore focus events.
func (q *Query) OnFocus() {
	q.mu.Lock()
	if len(q.observers) == 0 {
		q.mu.Unlock()
		return
	}
	retryer := q.retryer
	wantRefetch := false
	for obs := range q.observers {
		if obs.shouldRefetchOnWindowFocus() {
			wantRefetch = true
			break
		}
	}
	stale := q.isStaleByTimeLocked(q.opts.StaleTime)
	q.mu.Unlock()

	if retryer != nil {
		retryer.Continue()
		return
	}
	if wantRefetch && stale {
		q.Fetch(context.Background(), nil, FetchOptions{})
	}
}

// OnOnline is OnFocus's reconnect analogue (spec §4.5).
func (q *Query) OnOnline() {
	q.mu.Lock()
	if len(q.observers) == 0 {
		q.mu.Unlock()
		return
	}
	retryer := q.retryer
	wantRefetch := false
	for obs := range q.observers {
		if obs.shouldRefetchOnReconnect() {
			wantRefetch = true
			break
		}
	}
	stale := q.isStaleByTimeLocked(q.opts.StaleTime)
	q.mu.Unlock()

	if retryer != nil {
		retryer.Continue()
		return
	}
	if wantRefetch && stale {
		q.Fetch(context.Background(), nil, FetchOptions{})
	}
}

// SetData applies data directly (the QueryClient.setQueryData path), running
// structural sharing and marking the query fresh, without going through a
// Retryer.
func (q *Query) SetData(data any, updatedAt time.Time) any {
	q.mu.Lock()
	old := q.state.Data
	sharing := q.opts.StructuralSharing
	q.mu.Unlock()

	shared := data
	if sharing != nil {
		shared = sharing(old, data)
	}
	if updatedAt.IsZero() {
		updatedAt = q.time.Now()
	}
	q.dispatch(queryAction{Kind: actionSuccess, Data: shared, DataUpdatedAt: updatedAt})
	return shared
}

// Hydrate applies state directly, bypassing the reducer's notion of a fetch
// attempt entirely — used by Hydrate(client, snapshot) to restore persisted
// state without triggering a fetch (spec §6).
func (q *Query) Hydrate(state QueryState) {
	q.dispatch(queryAction{Kind: actionSetState, SetState: &state})
}

// canFetchNowLocked reports whether the configured NetworkMode allows an
// immediate attempt given current connectivity. Assumes q.mu is held.
func (q *Query) canFetchNowLocked() bool {
	if q.opts.NetworkMode == NetworkModeAlways || q.opts.NetworkMode == NetworkModeOfflineFirst {
		return true
	}
	return q.isOnline()
}

// Fetch runs the six-step fetch algorithm of spec §4.5 and returns the
// resulting Retryer's promise.
func (q *Query) Fetch(ctx context.Context, optsOverride *QueryOptions, fetchOpts FetchOptions) *Promise[any] {
	q.mu.Lock()
	if optsOverride != nil {
		q.opts = resolveQueryOptions(*optsOverride)
	}
	opts := q.opts
	activeRetryer := q.retryer
	hasData := q.state.HasData()
	snapshotData := q.state.Data
	snapshotUpdatedAt := q.state.DataUpdatedAt
	q.mu.Unlock()

	// Step 1: single-flight.
	if activeRetryer != nil && !fetchOpts.CancelRefetch && hasData {
		return activeRetryer.Promise()
	}
	// Step 2: replace an active retryer silently.
	if activeRetryer != nil {
		activeRetryer.Cancel(CancelOptions{Silent: true})
	}

	if opts.QueryFn == nil {
		p := NewPromise[any]()
		p.reject(ErrNoQueryFn)
		return p
	}

	// Step 4: transition to fetching/paused and notify.
	q.mu.Lock()
	canFetchNow := q.canFetchNowLocked()
	q.mu.Unlock()
	if canFetchNow {
		q.dispatch(queryAction{Kind: actionFetch, FetchMeta: fetchOpts.Meta})
	} else {
		q.dispatch(queryAction{Kind: actionPause})
	}

	// Step 5: behavior hook.
	fctx := &FetchContext{QueryKey: q.queryKey, Meta: fetchOpts.Meta, FetchFn: opts.QueryFn}
	if opts.Behavior != nil {
		opts.Behavior.OnFetch(fctx)
	}
	fetchFn := fctx.FetchFn

	// Step 6: build the Retryer.
	retryer := NewRetryer(RetryerConfig[any]{
		Fn:          fetchFn,
		NetworkMode: opts.NetworkMode,
		Retry:       opts.Retry,
		RetryDelay:  opts.RetryDelay,
		IsOnline:    q.isOnline,
		IsFocused:   q.isFocused,
		Time:        q.time,
		OnSuccess: func(data any) {
			shared := opts.StructuralSharing(snapshotData, data)
			q.dispatch(queryAction{Kind: actionSuccess, Data: shared, DataUpdatedAt: q.time.Now()})
		},
		OnFail: func(fc int, err error) {
			q.dispatch(queryAction{Kind: actionFailed, FailureCount: fc, Err: err})
		},
		OnPause:    func() { q.dispatch(queryAction{Kind: actionPause}) },
		OnContinue: func() { q.dispatch(queryAction{Kind: actionContinue}) },
	})

	q.mu.Lock()
	q.retryer = retryer
	q.mu.Unlock()

	promise := retryer.Start(ctx)

	go q.awaitFetch(retryer, promise, snapshotData, snapshotUpdatedAt)

	return promise
}

func (q *Query) awaitFetch(retryer *Retryer[any], promise *Promise[any], snapshotData any, snapshotUpdatedAt time.Time) {
	_, err := promise.Wait(context.Background())

	q.mu.Lock()
	if q.retryer == retryer {
		q.retryer = nil
	}
	q.mu.Unlock()

	if err == nil {
		return
	}

	if ce, ok := IsCancelledError(err); ok {
		if ce.Silent {
			return
		}
		q.mu.Lock()
		next := q.state
		next.FetchStatus = FetchStatusIdle
		if ce.Revert {
			next.Data = snapshotData
			next.DataUpdatedAt = snapshotUpdatedAt
		}
		q.mu.Unlock()
		q.dispatch(queryAction{Kind: actionSetState, SetState: &next})
		return
	}

	q.dispatch(queryAction{Kind: actionError, Err: err, FailureCount: retryer.FailureCount(), ErrorUpdatedAt: q.time.Now()})
}

func (q *Query) dispatch(action queryAction) {
	q.mu.Lock()
	q.state = queryReducer(q.state, action)
	q.mu.Unlock()

	q.notifyObservers(action)
	if q.cache != nil {
		q.cache.notify(QueryCacheEvent{Type: EventUpdated, Query: q, Action: action})
	}
}

func (q *Query) notifyObservers(action queryAction) {
	q.mu.Lock()
	snapshot := make([]*QueryObserver, 0, len(q.observers))
	for obs := range q.observers {
		snapshot = append(snapshot, obs)
	}
	q.mu.Unlock()

	for _, obs := range snapshot {
		obs.onQueryUpdate(action)
	}
}

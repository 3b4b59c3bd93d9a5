package qcache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"
)

// QueryObserverOptions layers observer-only concerns over QueryOptions (spec
// §4.9).
type QueryObserverOptions struct {
	QueryOptions

	// Select projects Data before it reaches the observer's result. Errors
	// returned by Select surface as the observer result's Error.
	Select func(data any) (any, error)

	// NotifyOnChangeProps restricts notification to the named result
	// fields (see resultFieldNames for the recognized set). Empty means
	// full notification on any change — per spec §9's non-reflective
	// resolution of the source's tracked-property interception, this is
	// the default rather than an opt-out.
	NotifyOnChangeProps []string

	// KeepPreviousData keeps exposing the previous query's Data (flagged
	// via IsPlaceholderData) across a queryHash change until the new
	// query's first successful fetch lands.
	KeepPreviousData bool

	RefetchInterval             time.Duration
	RefetchIntervalInBackground bool
}

func resolveObserverOptions(opts QueryObserverOptions) QueryObserverOptions {
	resolved := opts
	resolved.QueryOptions = resolveQueryOptions(opts.QueryOptions)
	if resolved.RefetchOnReconnect == nil {
		v := resolved.NetworkMode != NetworkModeAlways
		resolved.RefetchOnReconnect = &v
	}
	if resolved.RefetchOnWindowFocus == nil {
		v := true
		resolved.RefetchOnWindowFocus = &v
	}
	return resolved
}

// QueryObserverResult is the derived, per-subscription view over a Query
// (spec §4.9, §6).
type QueryObserverResult struct {
	Data  any
	Error error

	Status      Status
	FetchStatus FetchStatus

	IsPending bool
	IsLoading bool
	IsFetching bool
	IsSuccess  bool
	IsError    bool

	IsStale           bool
	IsPlaceholderData bool

	DataUpdatedAt  time.Time
	ErrorUpdatedAt time.Time

	FailureCount  int
	FailureReason error
}

// QueryObserver is a per-subscription view over a Query: it computes a
// derived result, tracks which result fields matter for notification, and
// emits diffs (spec §4.9). It is owned by a UI adapter, not by the Query or
// QueryCache.
type QueryObserver struct {
	client    *QueryClient
	cache     *QueryCache
	time      TimeSource
	isOnline  func() bool
	isFocused func() bool
	nm        *NotifyManager

	mu     sync.Mutex
	opts   QueryObserverOptions
	query  *Query
	result QueryObserverResult

	hasPreviousData bool
	previousData    any

	sub                   *Subscribable[QueryObserverResult]
	refetchIntervalCancel func() bool
}

// NewQueryObserver builds an observer over the query resolved from opts,
// building or finding its backing Query in client's QueryCache. It does not
// yet register as an observer of that Query; call Subscribe for that (spec
// §4.9).
func NewQueryObserver(client *QueryClient, opts QueryObserverOptions) *QueryObserver {
	resolved := client.resolveQueryObserverOptions(opts)
	query := client.queryCache.Build(resolved.QueryOptions)

	obs := &QueryObserver{
		client:    client,
		cache:     client.queryCache,
		time:      client.time,
		isOnline:  client.isOnline,
		isFocused: client.isFocused,
		nm:        client.notifyManager,
		opts:      resolved,
		query:     query,
		sub:       NewSubscribable[QueryObserverResult](),
	}
	obs.result = obs.computeResult(query.State())
	return obs
}

// Subscribe registers listener, attaches this observer to its current Query
// (incrementing its observer count and cancelling any pending gc), schedules
// a mount-time refetch if data is stale, and arms the refetch-interval timer
// (spec §4.9).
func (o *QueryObserver) Subscribe(listener Listener[QueryObserverResult]) func() {
	unsubListener := o.sub.Subscribe(listener)

	o.mu.Lock()
	query := o.query
	o.mu.Unlock()

	query.AddObserver(o)
	o.maybeFetchOnMount()
	o.startRefetchInterval()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubListener()
			o.stopRefetchInterval()
			o.mu.Lock()
			q := o.query
			o.mu.Unlock()
			q.RemoveObserver(o)
		})
	}
}

func (o *QueryObserver) maybeFetchOnMount() {
	o.mu.Lock()
	query := o.query
	enabled := o.opts.Enabled
	staleTime := o.opts.StaleTime
	o.mu.Unlock()

	if enabled && query.IsStaleByTime(staleTime) {
		query.Fetch(context.Background(), nil, FetchOptions{})
	}
}

// SetOptions re-resolves options and, if the resolved queryHash changed,
// swaps to the (possibly new) Query, unsubscribing from the old one (spec
// §4.9).
func (o *QueryObserver) SetOptions(opts QueryObserverOptions) {
	resolved := o.client.resolveQueryObserverOptions(opts)
	newHash := resolved.QueryKeyHashFn(resolved.QueryKey)

	o.mu.Lock()
	oldQuery := o.query
	oldHash := oldQuery.QueryHash()
	o.opts = resolved
	o.mu.Unlock()

	if newHash != oldHash {
		newQuery := o.cache.Build(resolved.QueryOptions)
		wasSubscribed := oldQuery.hasObserver(o)
		if wasSubscribed {
			oldQuery.RemoveObserver(o)
		}
		o.mu.Lock()
		if o.hasPreviousData {
			// already carrying previous data forward
		} else if oldQuery.State().HasData() {
			o.hasPreviousData = true
			o.previousData = oldQuery.State().Data
		}
		o.query = newQuery
		o.mu.Unlock()
		if wasSubscribed {
			newQuery.AddObserver(o)
		}
		o.maybeFetchOnMount()
	} else {
		oldQuery.SetOptions(resolved.QueryOptions)
	}

	o.updateResult()
	o.reconfigureRefetchInterval()

	o.mu.Lock()
	query := o.query
	o.mu.Unlock()
	if o.cache != nil {
		o.cache.notify(QueryCacheEvent{Type: EventObserverOptionsUpdated, Query: query, Observer: o})
	}
}

// GetCurrentResult returns a snapshot of the derived result.
func (o *QueryObserver) GetCurrentResult() QueryObserverResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Refetch triggers a fresh fetch on the current Query, cancelling any
// in-flight attempt (spec §6's Observer interface).
func (o *QueryObserver) Refetch(ctx context.Context) *Promise[any] {
	o.mu.Lock()
	query := o.query
	o.mu.Unlock()
	return query.Fetch(ctx, nil, FetchOptions{CancelRefetch: true})
}

func (o *QueryObserver) shouldRefetchOnWindowFocus() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts.RefetchOnWindowFocus != nil && *o.opts.RefetchOnWindowFocus
}

func (o *QueryObserver) shouldRefetchOnReconnect() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts.RefetchOnReconnect != nil && *o.opts.RefetchOnReconnect
}

// onQueryUpdate is called by Query.notifyObservers on every state
// transition.
func (o *QueryObserver) onQueryUpdate(_ queryAction) {
	o.updateResult()
}

func (o *QueryObserver) updateResult() {
	o.mu.Lock()
	query := o.query
	if query == nil {
		o.mu.Unlock()
		return
	}
	state := query.State()
	old := o.result
	props := o.opts.NotifyOnChangeProps
	o.mu.Unlock()

	next := o.computeResult(state)

	if state.HasData() {
		o.mu.Lock()
		o.hasPreviousData = false
		o.previousData = nil
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.result = next
	o.mu.Unlock()

	if resultChanged(old, next, props) {
		o.nm.Batch(func() {
			o.sub.Emit(next)
		})
		if o.cache != nil {
			o.cache.notify(QueryCacheEvent{Type: EventObserverResultsUpdated, Query: query, Observer: o})
		}
	}
}

func (o *QueryObserver) computeResult(state QueryState) QueryObserverResult {
	o.mu.Lock()
	opts := o.opts
	query := o.query
	hasPreviousData := o.hasPreviousData
	previousData := o.previousData
	o.mu.Unlock()

	data := state.Data
	isPlaceholder := false

	if !state.HasData() {
		if opts.KeepPreviousData && hasPreviousData {
			data = previousData
			isPlaceholder = true
		} else if opts.PlaceholderData != nil {
			data = opts.PlaceholderData
			isPlaceholder = true
		}
	}

	resultErr := state.Error
	if opts.Select != nil && data != nil && !isPlaceholder {
		selected, err := opts.Select(data)
		if err != nil {
			resultErr = err
		} else {
			data = selected
		}
	}

	fetching := state.FetchStatus == FetchStatusFetching

	return QueryObserverResult{
		Data:              data,
		Error:             resultErr,
		Status:            state.Status,
		FetchStatus:       state.FetchStatus,
		IsPending:         state.Status == StatusPending,
		IsLoading:         state.Status == StatusPending && fetching,
		IsFetching:        fetching,
		IsSuccess:         state.Status == StatusSuccess,
		IsError:           state.Status == StatusError,
		IsStale:           query.IsStaleByTime(opts.StaleTime),
		IsPlaceholderData: isPlaceholder,
		DataUpdatedAt:     state.DataUpdatedAt,
		ErrorUpdatedAt:    state.ErrorUpdatedAt,
		FailureCount:      state.FetchFailureCount,
		FailureReason:     state.FetchFailureReason,
	}
}

func (o *QueryObserver) startRefetchInterval() {
	o.mu.Lock()
	interval := o.opts.RefetchInterval
	o.mu.Unlock()
	if interval <= 0 {
		return
	}
	o.scheduleRefetchTick(interval)
}

func (o *QueryObserver) scheduleRefetchTick(interval time.Duration) {
	cancel := o.time.AfterFunc(interval, func() {
		o.mu.Lock()
		stillArmed := o.opts.RefetchInterval == interval
		inBackground := o.opts.RefetchIntervalInBackground
		query := o.query
		o.mu.Unlock()
		if !stillArmed {
			return
		}
		if inBackground || o.isFocused() {
			if o.opts.NetworkMode == NetworkModeAlways || o.isOnline() {
				query.Fetch(context.Background(), nil, FetchOptions{})
			}
		}
		o.scheduleRefetchTick(interval)
	})
	o.mu.Lock()
	o.refetchIntervalCancel = cancel
	o.mu.Unlock()
}

func (o *QueryObserver) stopRefetchInterval() {
	o.mu.Lock()
	cancel := o.refetchIntervalCancel
	o.refetchIntervalCancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *QueryObserver) reconfigureRefetchInterval() {
	o.stopRefetchInterval()
	o.startRefetchInterval()
}

// resultChanged reports whether any of the named result fields differ
// between old and next; an empty fields list means "any field" (full
// notification, the safe default per spec §9).
func resultChanged(old, next QueryObserverResult, fields []string) bool {
	if len(fields) == 0 {
		for _, f := range resultFieldNames {
			if resultFieldDiffers(old, next, f) {
				return true
			}
		}
		return false
	}
	for _, f := range fields {
		if resultFieldDiffers(old, next, f) {
			return true
		}
	}
	return false
}

var resultFieldNames = []string{
	"data", "error", "status", "fetchStatus", "isStale", "isPlaceholderData",
	"dataUpdatedAt", "errorUpdatedAt", "failureCount", "failureReason",
}

func resultFieldDiffers(old, next QueryObserverResult, field string) bool {
	switch field {
	case "data":
		return !reflect.DeepEqual(old.Data, next.Data)
	case "error":
		return !errorsEqual(old.Error, next.Error)
	case "status":
		return old.Status != next.Status
	case "fetchStatus":
		return old.FetchStatus != next.FetchStatus
	case "isStale":
		return old.IsStale != next.IsStale
	case "isPlaceholderData":
		return old.IsPlaceholderData != next.IsPlaceholderData
	case "dataUpdatedAt":
		return !old.DataUpdatedAt.Equal(next.DataUpdatedAt)
	case "errorUpdatedAt":
		return !old.ErrorUpdatedAt.Equal(next.ErrorUpdatedAt)
	case "failureCount":
		return old.FailureCount != next.FailureCount
	case "failureReason":
		return !errorsEqual(old.FailureReason, next.FailureReason)
	default:
		return false
	}
}

func errorsEqual(a, b error) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return errors.Is(a, b) || a.Error() == b.Error()
}

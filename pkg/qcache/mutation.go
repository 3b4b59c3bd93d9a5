package qcache

import (
	"context"
	"sync"

	"github.com/voedger/qcache/pkg/goutils/logger"
)

// Mutation is one write operation: a state machine, lifecycle callbacks, and
// pausing under offline (spec §3, §4.6). Mutations are owned by exactly one
// MutationCache and are never looked up by key, only optionally serialized
// by MutationScope.
type Mutation struct {
	mutationID int64
	cache      *MutationCache
	time       TimeSource
	isOnline   func() bool
	isFocused  func() bool

	mu        sync.Mutex
	opts      MutationOptions
	state     MutationState
	observers map[*MutationObserver]struct{}
	retryer   *Retryer[any]
	promise   *Promise[any]
}

func newMutation(cache *MutationCache, id int64, opts MutationOptions, time TimeSource, isOnline, isFocused func() bool) *Mutation {
	return &Mutation{
		mutationID: id,
		cache:      cache,
		time:       time,
		isOnline:   isOnline,
		isFocused:  isFocused,
		opts:       opts,
		state:      newMutationState(),
		observers:  make(map[*MutationObserver]struct{}),
	}
}

// MutationID returns this Mutation's monotonic identifier.
func (m *Mutation) MutationID() int64 { return m.mutationID }

// Options returns a snapshot of the resolved options driving this Mutation.
func (m *Mutation) Options() MutationOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// State returns a snapshot of the current state.
func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsPaused reports whether the active Retryer is currently paused.
func (m *Mutation) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsPaused
}

// IsRemovable reports whether this Mutation has reached a terminal state and
// has no observers left (spec §3 invariant: "an observer-less mutation whose
// terminal state is reached is removable").
func (m *Mutation) IsRemovable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsTerminal() && len(m.observers) == 0
}

// AddObserver registers obs.
func (m *Mutation) AddObserver(obs *MutationObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers[obs] = struct{}{}
}

// RemoveObserver deregisters obs.
func (m *Mutation) RemoveObserver(obs *MutationObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, obs)
}

func (m *Mutation) canFetchNowLocked() bool {
	if m.opts.NetworkMode == NetworkModeAlways || m.opts.NetworkMode == NetworkModeOfflineFirst {
		return true
	}
	return m.isOnline()
}

// Execute runs the mutation's onMutate/attempt/onSuccess-or-onError/
// onSettled sequence (spec §4.6) and returns a Promise resolving with the
// MutationFn's data.
func (m *Mutation) Execute(ctx context.Context, variables any) *Promise[any] {
	m.mu.Lock()
	canFetch := m.canFetchNowLocked()
	m.mu.Unlock()
	// canRun reads m.Options(), which takes m.mu, so it runs unlocked.
	canStart := canFetch && m.cache.canRun(m)
	m.mu.Lock()
	m.state = mutationReducer(m.state, mutationAction{
		Kind:        mutActionPending,
		Variables:   variables,
		SubmittedAt: m.time.Now(),
		IsPaused:    !canStart,
	})
	opts := m.opts
	m.mu.Unlock()

	m.notify()
	m.cache.notify(MutationCacheEvent{Type: MutationEventUpdated, Mutation: m})

	callbacks := composeMutationCallbacks(m.cache.callbacks(), opts.Callbacks)

	mutContext, err := callbacks.OnMutate(ctx, variables)
	if err != nil {
		logger.Error("qcache: mutation onMutate callback returned an error: " + err.Error())
		// Surfaced via the owning mutation's error path (spec §7), not
		// retried and not aborting the attempt already under way.
		m.dispatch(mutationAction{Kind: mutActionFailed, Err: err})
	}
	if mutContext != nil {
		m.mu.Lock()
		m.state.Context = mutContext
		m.mu.Unlock()
	}

	retryer := NewRetryer(RetryerConfig[any]{
		Fn: func(ctx context.Context) (any, error) {
			return opts.MutationFn(ctx, variables)
		},
		NetworkMode: opts.NetworkMode,
		Retry:       opts.Retry,
		RetryDelay:  opts.RetryDelay,
		IsOnline:    m.isOnline,
		IsFocused:   m.isFocused,
		Time:        m.time,
		CanRun:      func() bool { return m.cache.canRun(m) },
		OnFail: func(fc int, err error) {
			m.dispatch(mutationAction{Kind: mutActionFailed, FailureCount: fc, Err: err})
		},
		OnPause:    func() { m.dispatch(mutationAction{Kind: mutActionPause}) },
		OnContinue: func() { m.dispatch(mutationAction{Kind: mutActionContinue}) },
	})

	m.mu.Lock()
	m.retryer = retryer
	m.mu.Unlock()

	promise := retryer.Start(ctx)
	external := NewPromise[any]()

	m.mu.Lock()
	m.promise = external
	m.mu.Unlock()

	go m.await(ctx, promise, external, callbacks, variables)

	return external
}

func (m *Mutation) await(ctx context.Context, promise *Promise[any], external *Promise[any], callbacks MutationCallbacks, variables any) {
	data, err := promise.Wait(context.Background())

	m.mu.Lock()
	mutContext := m.state.Context
	m.mu.Unlock()

	if err == nil {
		m.dispatch(mutationAction{Kind: mutActionSuccess, Data: data})
		callbacks.OnSuccess(ctx, data, variables, mutContext)
		callbacks.OnSettled(ctx, data, nil, variables, mutContext)
		external.resolve(data)
	} else {
		m.dispatch(mutationAction{Kind: mutActionError, Err: err})
		callbacks.OnError(ctx, err, variables, mutContext)
		callbacks.OnSettled(ctx, nil, err, variables, mutContext)
		external.reject(err)
	}

	m.mu.Lock()
	m.retryer = nil
	m.mu.Unlock()

	m.cache.runNext(m)
	m.cache.maybeRemove(m)
}

// Continue resumes a paused Retryer, preserving its failureCount and
// captured mutContext since it is the same attempt sequence, just unpaused
// (spec §4.6). Returns false if there was nothing to resume.
func (m *Mutation) Continue() bool {
	m.mu.Lock()
	retryer := m.retryer
	m.mu.Unlock()
	if retryer == nil {
		return false
	}
	return retryer.Continue()
}

func (m *Mutation) dispatch(action mutationAction) {
	m.mu.Lock()
	m.state = mutationReducer(m.state, action)
	m.mu.Unlock()

	m.notify()
	m.cache.notify(MutationCacheEvent{Type: MutationEventUpdated, Mutation: m})
}

func (m *Mutation) notify() {
	m.mu.Lock()
	snapshot := make([]*MutationObserver, 0, len(m.observers))
	for obs := range m.observers {
		snapshot = append(snapshot, obs)
	}
	m.mu.Unlock()

	for _, obs := range snapshot {
		obs.onMutationUpdate()
	}
}

// waitDone blocks until this Mutation's current execution settles, ignoring
// the result (used by MutationCache.ResumePausedMutations, which swallows
// per-mutation errors per spec §4.8).
func (m *Mutation) waitDone(ctx context.Context) {
	m.mu.Lock()
	p := m.promise
	m.mu.Unlock()
	if p == nil {
		return
	}
	_, _ = p.Wait(ctx)
}

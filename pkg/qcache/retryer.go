package qcache

import (
	"context"
	"sync"

	"github.com/voedger/qcache/pkg/goutils/timeu"
)

// NetworkMode controls how a Retryer reacts to OnlineManager state (spec
// GLOSSARY "Network mode").
type NetworkMode int

const (
	// NetworkModeOnline gates fetching/retrying on connectivity. Default.
	NetworkModeOnline NetworkMode = iota
	// NetworkModeAlways ignores connectivity entirely.
	NetworkModeAlways
	// NetworkModeOfflineFirst runs the first attempt regardless of
	// connectivity, then behaves like NetworkModeOnline for retries.
	NetworkModeOfflineFirst
)

// RetryDecision decides whether a given failure should be retried. It
// generalizes spec §4.4's "boolean | non-negative integer | predicate" union
// without reflection (spec §9's tracked-property-optimization rationale
// applies equally here: prefer an explicit function value).
type RetryDecision func(failureCount int, err error) bool

// RetryNever never retries (the spec's `retry: false`).
func RetryNever() RetryDecision { return func(int, error) bool { return false } }

// RetryAlways always retries (the spec's `retry: true`).
func RetryAlways() RetryDecision { return func(int, error) bool { return true } }

// RetryTimes retries while failureCount < n (the spec's `retry: <integer>`;
// DefaultRetryCount uses RetryTimes(3)).
func RetryTimes(n int) RetryDecision {
	return func(failureCount int, _ error) bool { return failureCount < n }
}

// Promise is the Go stand-in for the source's fetch/mutate promise: a single
// value that resolves or rejects exactly once and can be waited on from any
// number of goroutines.
type Promise[T any] struct {
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

// NewPromise returns an unresolved Promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

func (p *Promise[T]) resolve(v T) {
	p.once.Do(func() {
		p.result = v
		close(p.done)
	})
}

func (p *Promise[T]) reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the promise has settled, without blocking.
func (p *Promise[T]) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// CancelOptions parameterizes Retryer.Cancel. Revert asks the owner (Query)
// to restore its pre-fetch data snapshot; Silent asks it to suppress the
// intermediate observer notification for the cancelled attempt.
type CancelOptions struct {
	Revert bool
	Silent bool
}

// RetryerConfig configures a single-flight attempt sequence (spec §4.4).
type RetryerConfig[T any] struct {
	// Fn performs one attempt. Must observe ctx cancellation promptly.
	Fn func(ctx context.Context) (T, error)

	// InitialPromise, if set, is awaited instead of calling Fn on the very
	// first attempt — the "continuation" case where a fetch was already
	// in flight and a new Retryer is single-flighting onto it.
	InitialPromise *Promise[T]

	// Abort is invoked (in addition to context cancellation) when Cancel is
	// called, for user-supplied fetch APIs that take an explicit abort
	// signal rather than a context.
	Abort func()

	OnError   func(err error)
	OnSuccess func(data T)
	OnFail    func(failureCount int, err error)
	OnPause   func()
	OnContinue func()

	// Retry defaults to RetryTimes(DefaultRetryCount).
	Retry RetryDecision
	// RetryDelay defaults to DefaultRetryDelay.
	RetryDelay RetryDelayFn

	NetworkMode NetworkMode

	// CanRun is supplied by the owner to gate execution for scope
	// serialization (MutationCache) or similar external constraints.
	// Defaults to always-true.
	CanRun func() bool

	// IsOnline/IsFocused are read from the owning FocusManager/OnlineManager.
	// Default to always-true so a Retryer built without managers behaves
	// like NetworkModeAlways with permanent focus.
	IsOnline  func() bool
	IsFocused func() bool

	Time timeu.ITime
}

func (cfg *RetryerConfig[T]) setDefaults() {
	if cfg.Retry == nil {
		cfg.Retry = RetryTimes(DefaultRetryCount)
	}
	if cfg.RetryDelay == nil {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CanRun == nil {
		cfg.CanRun = func() bool { return true }
	}
	if cfg.IsOnline == nil {
		cfg.IsOnline = func() bool { return true }
	}
	if cfg.IsFocused == nil {
		cfg.IsFocused = func() bool { return true }
	}
	if cfg.Time == nil {
		cfg.Time = timeu.NewITime()
	}
}

// Retryer is the single-flight executor for one attempt sequence (spec
// §4.4): it runs Fn, retries transient failures with backoff, and pauses
// awaiting focus/online transitions instead of retrying while the owner
// judges the environment unable to succeed.
type Retryer[T any] struct {
	cfg RetryerConfig[T]

	mu               sync.Mutex
	failureCount     int
	isResolved       bool
	isRetryCancelled bool
	continueCh       chan struct{}
	started          bool

	promise *Promise[T]
	cancel  context.CancelFunc
}

// NewRetryer builds a Retryer from cfg, applying defaults.
func NewRetryer[T any](cfg RetryerConfig[T]) *Retryer[T] {
	cfg.setDefaults()
	return &Retryer[T]{cfg: cfg}
}

// Start begins the attempt sequence and returns its promise. Start must be
// called at most once per Retryer (mirrors spec invariant 1: at most one
// active Retryer per owner — the owner is responsible for that invariant at
// the Query/Mutation level; Retryer itself panics on reuse as a programmer
// error).
func (r *Retryer[T]) Start(parent context.Context) *Promise[T] {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		panic(ErrRetryerActive)
	}
	r.started = true
	r.promise = NewPromise[T]()
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(ctx)
	return r.promise
}

// Promise returns the promise created by Start, or nil if Start has not been
// called yet.
func (r *Retryer[T]) Promise() *Promise[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promise
}

// FailureCount returns the current consecutive-failure count.
func (r *Retryer[T]) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failureCount
}

func (r *Retryer[T]) canFetch() bool {
	if r.cfg.NetworkMode == NetworkModeAlways || r.cfg.NetworkMode == NetworkModeOfflineFirst {
		return true
	}
	return r.cfg.IsOnline()
}

func (r *Retryer[T]) canContinue() bool {
	if !r.cfg.IsFocused() {
		return false
	}
	if r.cfg.NetworkMode != NetworkModeAlways && !r.cfg.IsOnline() {
		return false
	}
	return r.cfg.CanRun()
}

func (r *Retryer[T]) loop(ctx context.Context) {
	if r.canFetch() && r.cfg.CanRun() {
		r.run(ctx, true)
	} else {
		r.pause(ctx, true)
	}
}

func (r *Retryer[T]) run(ctx context.Context, firstAttempt bool) {
	var (
		result T
		err    error
	)
	if firstAttempt && r.cfg.InitialPromise != nil {
		result, err = r.cfg.InitialPromise.Wait(ctx)
	} else {
		result, err = r.cfg.Fn(ctx)
	}

	r.mu.Lock()
	if r.isResolved {
		r.mu.Unlock()
		return
	}

	if err == nil {
		r.isResolved = true
		r.mu.Unlock()
		if r.cfg.OnSuccess != nil {
			r.cfg.OnSuccess(result)
		}
		r.promise.resolve(result)
		return
	}

	retryCancelled := r.isRetryCancelled
	failureCount := r.failureCount
	r.mu.Unlock()

	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}

	_, isCancelled := IsCancelledError(err)
	shouldRetry := !isCancelled && !retryCancelled && r.cfg.Retry(failureCount, err)

	if !shouldRetry {
		r.mu.Lock()
		r.isResolved = true
		r.mu.Unlock()
		r.promise.reject(err)
		return
	}

	r.mu.Lock()
	r.failureCount++
	fc := r.failureCount
	r.mu.Unlock()

	if r.cfg.OnFail != nil {
		r.cfg.OnFail(fc, err)
	}

	delay := r.cfg.RetryDelay(fc, err)
	select {
	case <-r.cfg.Time.NewTimerChan(delay):
	case <-ctx.Done():
		r.rejectIfUnresolved(ctx.Err())
		return
	}

	if r.canContinue() {
		r.run(ctx, false)
	} else {
		r.pause(ctx, false)
	}
}

func (r *Retryer[T]) pause(ctx context.Context, firstAttempt bool) {
	if r.cfg.OnPause != nil {
		r.cfg.OnPause()
	}

	ch := make(chan struct{})
	r.mu.Lock()
	r.continueCh = ch
	r.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		r.rejectIfUnresolved(ctx.Err())
		return
	}

	if r.cfg.OnContinue != nil {
		r.cfg.OnContinue()
	}
	r.run(ctx, firstAttempt)
}

func (r *Retryer[T]) rejectIfUnresolved(err error) {
	r.mu.Lock()
	if r.isResolved {
		r.mu.Unlock()
		return
	}
	r.isResolved = true
	r.mu.Unlock()
	r.promise.reject(err)
}

// Continue resolves the current pause, if any and if it is still the first
// valid continuation for that pause. Returns false if the Retryer was not
// paused or a continuation was already delivered. The owner (Query/Mutation)
// calls this from its onFocus/onOnline handlers.
func (r *Retryer[T]) Continue() bool {
	r.mu.Lock()
	ch := r.continueCh
	r.continueCh = nil
	r.mu.Unlock()
	if ch == nil {
		return false
	}
	close(ch)
	return true
}

// IsPaused reports whether the Retryer is currently paused awaiting a
// continuation.
func (r *Retryer[T]) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.continueCh != nil
}

// Cancel rejects the external promise with a *CancelledError unless already
// resolved, and invokes the Abort hook and context cancellation.
func (r *Retryer[T]) Cancel(opts CancelOptions) {
	r.mu.Lock()
	if r.isResolved {
		r.mu.Unlock()
		return
	}
	r.isResolved = true
	r.mu.Unlock()

	if r.cfg.Abort != nil {
		r.cfg.Abort()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.promise.reject(&CancelledError{Revert: opts.Revert, Silent: opts.Silent})
}

// CancelRetry sets the retry-only cancellation flag: the current or next
// failure will not be retried, but this does not itself reject the promise
// the way Cancel does. Query.Fetch does not call it: replacing an active
// fetch goes through Cancel with Silent set.
func (r *Retryer[T]) CancelRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isRetryCancelled = true
}

// ContinueRetry clears the retry-only cancellation flag.
func (r *Retryer[T]) ContinueRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isRetryCancelled = false
}

// CanStart reports whether starting now would run immediately rather than
// pause.
func (r *Retryer[T]) CanStart() bool {
	return r.canFetch() && r.cfg.CanRun()
}

package qcache

import (
	"context"
	"sync"
	"time"
)

// MutationObserverOptions layers the observer's own callbacks over
// MutationOptions (spec §4.10).
type MutationObserverOptions struct {
	MutationOptions
}

// MutationObserverResult is the derived view over a Mutation (spec §4.10,
// §6).
type MutationObserverResult struct {
	Data      any
	Error     error
	Variables any

	Status MutationStatus

	IsIdle    bool
	IsPending bool
	IsSuccess bool
	IsError   bool

	FailureCount  int
	FailureReason error
	SubmittedAt   time.Time
}

// MutationObserver is a per-subscription view over a Mutation; it exposes
// Mutate/Reset and forwards state transitions to subscribers with the same
// batched notification discipline QueryObserver uses (spec §4.10).
type MutationObserver struct {
	client *QueryClient
	cache  *MutationCache
	nm     *NotifyManager

	mu       sync.Mutex
	opts     MutationObserverOptions
	mutation *Mutation
	result   MutationObserverResult
	sub      *Subscribable[MutationObserverResult]
}

// NewMutationObserver builds an idle observer bound to no Mutation yet;
// Mutate builds one on demand (spec §4.10: mutations are not looked up by
// key, so there is nothing to attach to until the first call).
func NewMutationObserver(client *QueryClient, opts MutationObserverOptions) *MutationObserver {
	resolved := client.resolveMutationObserverOptions(opts)
	return &MutationObserver{
		client: client,
		cache:  client.mutationCache,
		nm:     client.notifyManager,
		opts:   resolved,
		result: MutationObserverResult{Status: MutationStatusIdle, IsIdle: true},
		sub:    NewSubscribable[MutationObserverResult](),
	}
}

// SetOptions re-resolves options for future Mutate calls.
func (o *MutationObserver) SetOptions(opts MutationObserverOptions) {
	resolved := o.client.resolveMutationObserverOptions(opts)
	o.mu.Lock()
	o.opts = resolved
	o.mu.Unlock()
}

// Subscribe registers listener for result transitions.
func (o *MutationObserver) Subscribe(listener Listener[MutationObserverResult]) func() {
	return o.sub.Subscribe(listener)
}

// GetCurrentResult returns a snapshot of the derived result.
func (o *MutationObserver) GetCurrentResult() MutationObserverResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Mutate builds a fresh Mutation via the client's MutationCache, attaches
// this observer to it, and executes it, layering callSite callbacks over
// this observer's own options (spec §4.10). Callers may pass a nil
// callSite.
func (o *MutationObserver) Mutate(ctx context.Context, variables any, callSite *MutationCallbacks) *Promise[any] {
	o.mu.Lock()
	opts := o.opts.MutationOptions
	o.mu.Unlock()

	layered := opts.Callbacks
	if callSite != nil {
		layered = composeMutationCallbacks(opts.Callbacks, *callSite)
	}
	opts.Callbacks = layered

	mutation := o.cache.Build(opts)
	mutation.AddObserver(o)

	o.mu.Lock()
	o.mutation = mutation
	o.mu.Unlock()

	o.updateResult()

	return mutation.Execute(ctx, variables)
}

// Reset detaches from the current Mutation (if any) and returns to the idle
// result (spec §4.10).
func (o *MutationObserver) Reset() {
	o.mu.Lock()
	mutation := o.mutation
	o.mutation = nil
	o.mu.Unlock()

	if mutation != nil {
		mutation.RemoveObserver(o)
	}

	idle := MutationObserverResult{Status: MutationStatusIdle, IsIdle: true}
	o.mu.Lock()
	o.result = idle
	o.mu.Unlock()

	o.nm.Batch(func() {
		o.sub.Emit(idle)
	})
}

// onMutationUpdate is called by Mutation.notify on every state transition.
func (o *MutationObserver) onMutationUpdate() {
	o.updateResult()
}

func (o *MutationObserver) updateResult() {
	o.mu.Lock()
	mutation := o.mutation
	o.mu.Unlock()
	if mutation == nil {
		return
	}
	state := mutation.State()
	next := MutationObserverResult{
		Data:          state.Data,
		Error:         state.Error,
		Variables:     state.Variables,
		Status:        state.Status,
		IsIdle:        state.Status == MutationStatusIdle,
		IsPending:     state.Status == MutationStatusPending,
		IsSuccess:     state.Status == MutationStatusSuccess,
		IsError:       state.Status == MutationStatusError,
		FailureCount:  state.FailureCount,
		FailureReason: state.FailureReason,
		SubmittedAt:   state.SubmittedAt,
	}

	o.mu.Lock()
	o.result = next
	o.mu.Unlock()

	o.nm.Batch(func() {
		o.sub.Emit(next)
	})
}

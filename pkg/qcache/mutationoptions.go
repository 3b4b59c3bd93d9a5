package qcache

import "context"

// MutationFn performs one mutation attempt (spec §4.6).
type MutationFn func(ctx context.Context, variables any) (any, error)

// MutationScope groups mutations for strict serial execution: at most one
// mutation sharing an ID may be MutationStatusPending at a time (spec §3,
// §4.8).
type MutationScope struct {
	ID string
}

// MutationCallbacks is one layer of a Mutation's lifecycle hooks. The engine
// composes a cache-level, client-defaults, observer, and call-site layer
// into a single MutationCallbacks and invokes each non-nil hook across every
// layer in that order (spec §9 "Callback-heavy configuration").
type MutationCallbacks struct {
	// OnMutate runs before the MutationFn attempt; its return value is
	// threaded through as MutationState.Context to OnSuccess/OnError/
	// OnSettled. A non-nil return from a later layer overrides an earlier
	// layer's context, matching call-site-most-specific precedence.
	OnMutate func(ctx context.Context, variables any) (mutationContext any, err error)

	OnSuccess func(ctx context.Context, data, variables, mutationContext any)
	OnError   func(ctx context.Context, err error, variables, mutationContext any)
	OnSettled func(ctx context.Context, data any, err error, variables, mutationContext any)
}

// composeMutationCallbacks resolves N layers into one, running every
// non-nil hook across all layers in argument order. An error returned by one
// layer's OnMutate does not prevent later layers from running; the first such
// error is returned. A panic in any hook is not recovered and stops the
// remaining layers.
func composeMutationCallbacks(layers ...MutationCallbacks) MutationCallbacks {
	return MutationCallbacks{
		OnMutate: func(ctx context.Context, variables any) (any, error) {
			var (
				result   any
				firstErr error
			)
			for _, l := range layers {
				if l.OnMutate == nil {
					continue
				}
				ctxVal, err := l.OnMutate(ctx, variables)
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if ctxVal != nil {
					result = ctxVal
				}
			}
			return result, firstErr
		},
		OnSuccess: func(ctx context.Context, data, variables, mutationContext any) {
			for _, l := range layers {
				if l.OnSuccess != nil {
					l.OnSuccess(ctx, data, variables, mutationContext)
				}
			}
		},
		OnError: func(ctx context.Context, err error, variables, mutationContext any) {
			for _, l := range layers {
				if l.OnError != nil {
					l.OnError(ctx, err, variables, mutationContext)
				}
			}
		},
		OnSettled: func(ctx context.Context, data any, err error, variables, mutationContext any) {
			for _, l := range layers {
				if l.OnSettled != nil {
					l.OnSettled(ctx, data, err, variables, mutationContext)
				}
			}
		},
	}
}

// MutationOptions configures one Mutation (spec §4.6).
type MutationOptions struct {
	MutationKey MutationKey
	MutationFn  MutationFn
	Scope       *MutationScope

	NetworkMode NetworkMode
	Retry       RetryDecision
	RetryDelay  RetryDelayFn

	Callbacks MutationCallbacks

	Meta any

	Time TimeSource
}

func resolveMutationOptions(opts MutationOptions) MutationOptions {
	resolved := opts
	if resolved.Retry == nil {
		// Mutations default to no retry: retrying a write is only safe if
		// the caller's MutationFn is idempotent, which the engine cannot
		// assume (unlike a read-only QueryFn).
		resolved.Retry = RetryNever()
	}
	if resolved.RetryDelay == nil {
		resolved.RetryDelay = DefaultRetryDelay
	}
	return resolved
}

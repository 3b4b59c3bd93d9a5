package qcache

import (
	"context"
	"time"
)

// QueryFn fetches the data for one Query attempt. A nil QueryFn is the Go
// analogue of the source's skipToken: resolveQueryOptions forces
// Enabled=false when QueryFn is nil.
type QueryFn func(ctx context.Context) (any, error)

// QueryBehavior lets a caller wrap the base fetch function before a Retryer
// is built over it — the extension point the source reserves for
// infinite-query pagination (spec §4.5, §9). No behavior implementation
// ships in this engine; the hook exists so callers can compose their own.
type QueryBehavior interface {
	OnFetch(fctx *FetchContext)
}

// FetchContext is threaded through QueryBehavior.OnFetch: behaviors read
// FetchFn and replace it with a wrapping closure.
type FetchContext struct {
	QueryKey QueryKey
	Meta     any
	FetchFn  QueryFn
}

// QueryOptions configures one Query (spec §4.5's "Options resolution").
type QueryOptions struct {
	QueryKey       QueryKey
	QueryKeyHashFn QueryHasher
	QueryFn        QueryFn

	StaleTime time.Duration
	// GCTime is nil-vs-zero significant: nil means "not configured, use
	// DefaultGCTime"; a non-nil zero explicitly requests removal on the next
	// flush once observer-less (spec §8). GCTimeInfinite disables gc
	// entirely. Use GCTimeOf to set an explicit value, including zero.
	GCTime *time.Duration

	NetworkMode NetworkMode
	Retry       RetryDecision
	RetryDelay  RetryDelayFn

	// Enabled gates whether the observer schedules fetches at all. Forced
	// false when QueryFn is nil (the Go analogue of skipToken: rather than
	// a sentinel function value, a nil QueryFn means "skipped").
	Enabled bool

	Behavior QueryBehavior

	// StructuralSharing defaults to ReplaceEqualDeep; set to a no-op to
	// disable (large payloads where the deep walk is not worth its cost).
	StructuralSharing func(oldVal, newVal any) any

	InitialData          any
	InitialDataUpdatedAt time.Time

	PlaceholderData any

	Meta any

	// RefetchOnWindowFocus/RefetchOnReconnect mirror the source's
	// per-query overrides of the observer defaults.
	RefetchOnWindowFocus *bool
	RefetchOnReconnect   *bool

	// Suspense marks this query for a suspending adapter (spec §4.11): if
	// set, ThrowOnError defaults to true unless explicitly overridden.
	Suspense bool
	// ThrowOnError is resolved and carried on the options, but nothing in
	// this package acts on it: QueryObserver still reports the query's error
	// in the result's Error field and never panics with it.
	ThrowOnError *bool

	Time TimeSource
}

// TimeSource is the subset of timeu.ITime a Query/Mutation actually needs;
// declared locally so this file does not import timeu directly
// (queryclient.go wires the concrete timeu.ITime in).
type TimeSource interface {
	Now() time.Time
	NewTimerChan(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
	AfterFunc(d time.Duration, f func()) (cancel func() bool)
}

// GCTimeInfinite, when used as QueryOptions.GCTime, disables the gc timer
// entirely (spec §4.5 "GCTime=Infinity disables"). Modeled as a sentinel
// duration rather than a separate bool flag to keep GCTime the single
// source of truth.
const GCTimeInfinite = time.Duration(1<<63 - 1)

// GCTimeOf pins d as an explicit QueryOptions.GCTime, distinguishing it from
// the field's nil "not configured" default — the Go analogue of the source
// telling "gcTime: 0" apart from an omitted option.
func GCTimeOf(d time.Duration) *time.Duration { return &d }

func resolveQueryOptions(opts QueryOptions) QueryOptions {
	resolved := opts
	if resolved.QueryKeyHashFn == nil {
		resolved.QueryKeyHashFn = CanonicalizeKey
	}
	if resolved.GCTime == nil {
		resolved.GCTime = GCTimeOf(DefaultGCTime)
	}
	if resolved.Retry == nil {
		resolved.Retry = RetryTimes(DefaultRetryCount)
	}
	if resolved.RetryDelay == nil {
		resolved.RetryDelay = DefaultRetryDelay
	}
	if resolved.StructuralSharing == nil {
		resolved.StructuralSharing = ReplaceEqualDeep
	}
	if resolved.QueryFn == nil {
		resolved.Enabled = false
	}
	if resolved.Suspense && resolved.ThrowOnError == nil {
		v := true
		resolved.ThrowOnError = &v
	}
	return resolved
}

package qcache

// DehydratedQuery is one Query's exported snapshot (spec §6).
type DehydratedQuery struct {
	QueryHash string
	QueryKey  QueryKey
	State     QueryState
}

// DehydratedMutation is one Mutation's exported snapshot (spec §6). Only
// mutations still paused are worth persisting in practice (a Persister is
// typically asked to resume writes interrupted by a reload), but Dehydrate
// exports every mutation matching its filter, leaving the decision to the
// caller.
type DehydratedMutation struct {
	MutationID int64
	State      MutationState
}

// DehydratedState is the serializable snapshot produced by Dehydrate and
// consumed by Hydrate (spec §6).
type DehydratedState struct {
	Queries   []DehydratedQuery
	Mutations []DehydratedMutation
}

// DehydrateOptions filters what Dehydrate exports.
type DehydrateOptions struct {
	// ShouldDehydrateQuery, if set, restricts exported queries to those for
	// which it returns true. Defaults to exporting every query with data.
	ShouldDehydrateQuery func(*Query) bool
	// ShouldDehydrateMutation is ShouldDehydrateQuery's mutation analogue.
	// Defaults to exporting every paused mutation.
	ShouldDehydrateMutation func(*Mutation) bool
}

// Dehydrate produces a serializable snapshot of client's caches (spec §6,
// §8 "Round-trips").
func Dehydrate(client *QueryClient, opts DehydrateOptions) DehydratedState {
	shouldQuery := opts.ShouldDehydrateQuery
	if shouldQuery == nil {
		shouldQuery = func(q *Query) bool { return q.State().HasData() }
	}
	shouldMutation := opts.ShouldDehydrateMutation
	if shouldMutation == nil {
		shouldMutation = func(m *Mutation) bool { return m.State().IsPaused }
	}

	var snapshot DehydratedState
	for _, q := range client.QueryCache().GetAll() {
		if !shouldQuery(q) {
			continue
		}
		snapshot.Queries = append(snapshot.Queries, DehydratedQuery{
			QueryHash: q.QueryHash(),
			QueryKey:  q.QueryKey(),
			State:     q.State(),
		})
	}
	for _, m := range client.MutationCache().GetAll() {
		if !shouldMutation(m) {
			continue
		}
		snapshot.Mutations = append(snapshot.Mutations, DehydratedMutation{
			MutationID: m.MutationID(),
			State:      m.State(),
		})
	}
	return snapshot
}

// Hydrate rebuilds cache entries from snapshot via QueryCache.Build and
// applies their state without triggering fetches (spec §6, §8
// "Round-trips": "subsequent observer attachment does not trigger a fetch
// when data is fresh").
func Hydrate(client *QueryClient, snapshot DehydratedState) {
	for _, dq := range snapshot.Queries {
		q := client.QueryCache().Build(client.resolveQuery(QueryOptions{QueryKey: dq.QueryKey}))
		q.Hydrate(dq.State)
	}
	// Mutations are not keyed for lookup and their MutationFn cannot be
	// serialized (spec §1 Non-goals: no persistence encoding), so hydrating
	// one back into a runnable state is outside this engine's scope. Callers
	// that persist paused mutations are expected to re-issue them through a
	// MutationObserver once their MutationFn is available again.
}

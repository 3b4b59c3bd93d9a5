package qcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voedger/qcache/pkg/goutils/timeu"
)

func newTestQueryCache() (*QueryCache, *timeu.Mock) {
	clock := timeu.NewMock(time.Unix(0, 0))
	nm := NewNotifyManager()
	return NewQueryCache(nm, clock, func() bool { return true }, func() bool { return true }), clock
}

func Test_QueryCache_BuildReturnsSameQueryForSameKey(t *testing.T) {
	cache, _ := newTestQueryCache()
	a := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}})
	b := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}})
	assert.Same(t, a, b)
}

func Test_QueryCache_BuildDifferentKeysAreDistinct(t *testing.T) {
	cache, _ := newTestQueryCache()
	a := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}})
	b := cache.Build(QueryOptions{QueryKey: QueryKey{"todos", "done"}})
	assert.NotSame(t, a, b)
}

func Test_QueryCache_ObserverlessQueryGCsAfterGCTime(t *testing.T) {
	cache, clock := newTestQueryCache()
	q := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}, GCTime: GCTimeOf(time.Minute)})

	_, ok := cache.Get(q.QueryHash())
	require.True(t, ok)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		_, ok := cache.Get(q.QueryHash())
		return !ok
	}, time.Second, time.Millisecond)
}

func Test_QueryCache_ExplicitZeroGCTimeRemovesOnNextFlush(t *testing.T) {
	cache, clock := newTestQueryCache()
	q := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}, GCTime: GCTimeOf(0)})

	_, ok := cache.Get(q.QueryHash())
	require.True(t, ok)

	clock.Advance(0)
	require.Eventually(t, func() bool {
		_, ok := cache.Get(q.QueryHash())
		return !ok
	}, time.Second, time.Millisecond)
}

func Test_QueryCache_AddObserverCancelsGC(t *testing.T) {
	cache, clock := newTestQueryCache()
	q := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}, GCTime: GCTimeOf(time.Minute)})

	obs := &QueryObserver{}
	q.AddObserver(obs)

	clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	_, ok := cache.Get(q.QueryHash())
	assert.True(t, ok, "an observed query must not be gc'd")
}

func Test_QueryCache_DedupScenarioEmitsExactEventSequence(t *testing.T) {
	cache, _ := newTestQueryCache()

	var events []QueryCacheEventType
	unsubscribe := cache.Subscribe(func(e QueryCacheEvent) { events = append(events, e.Type) })
	defer unsubscribe()

	q := cache.Build(QueryOptions{
		QueryKey: QueryKey{"u", 1},
		QueryFn:  func(context.Context) (any, error) { return map[string]any{"id": 1}, nil },
	})

	obsA, obsB := &QueryObserver{}, &QueryObserver{}
	q.AddObserver(obsA)
	q.AddObserver(obsB)

	_, err := q.Fetch(context.Background(), nil, FetchOptions{}).Wait(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(events) >= 5 }, time.Second, time.Millisecond)
	assert.Equal(t, []QueryCacheEventType{
		EventAdded,
		EventObserverAdded,
		EventObserverAdded,
		EventUpdated, // fetch
		EventUpdated, // success
	}, events)
}

func Test_QueryCache_FindAllFiltersByStatus(t *testing.T) {
	cache, _ := newTestQueryCache()
	a := cache.Build(QueryOptions{QueryKey: QueryKey{"a"}, QueryFn: func(context.Context) (any, error) { return "a", nil }})
	cache.Build(QueryOptions{QueryKey: QueryKey{"b"}})

	_, err := a.Fetch(context.Background(), nil, FetchOptions{}).Wait(context.Background())
	require.NoError(t, err)

	success := StatusSuccess
	found := cache.FindAll(QueryFilters{Status: &success})
	require.Len(t, found, 1)
	assert.Equal(t, a, found[0])
}

func Test_QueryCache_RemoveDestroysAndEmitsEvent(t *testing.T) {
	cache, _ := newTestQueryCache()
	q := cache.Build(QueryOptions{QueryKey: QueryKey{"todos"}})

	var events []QueryCacheEventType
	unsubscribe := cache.Subscribe(func(e QueryCacheEvent) { events = append(events, e.Type) })
	defer unsubscribe()

	cache.Remove(q)
	require.Eventually(t, func() bool { return len(events) > 0 }, time.Second, time.Millisecond)
	assert.Contains(t, events, EventRemoved)

	_, ok := cache.Get(q.QueryHash())
	assert.False(t, ok)
}

func Test_QueryCache_Clear(t *testing.T) {
	cache, _ := newTestQueryCache()
	cache.Build(QueryOptions{QueryKey: QueryKey{"a"}})
	cache.Build(QueryOptions{QueryKey: QueryKey{"b"}})
	require.Len(t, cache.GetAll(), 2)

	cache.Clear()
	assert.Empty(t, cache.GetAll())
}

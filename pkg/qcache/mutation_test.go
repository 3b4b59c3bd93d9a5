package qcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voedger/qcache/pkg/goutils/timeu"
)

func newTestMutationCache() *MutationCache {
	nm := NewNotifyManager()
	clock := timeu.NewMock(time.Unix(0, 0))
	return NewMutationCache(nm, clock, func() bool { return true }, func() bool { return true }, MutationCacheConfig{})
}

func Test_Mutation_ExecuteSucceeds(t *testing.T) {
	cache := newTestMutationCache()
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) { return variables, nil },
	})

	promise := m.Execute(context.Background(), "payload")
	data, err := promise.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", data)

	require.Eventually(t, func() bool { return m.State().Status == MutationStatusSuccess }, time.Second, time.Millisecond)
}

func Test_Mutation_ExecuteFails(t *testing.T) {
	cache := newTestMutationCache()
	wantErr := errors.New("write rejected")
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) { return nil, wantErr },
	})

	_, err := m.Execute(context.Background(), nil).Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	require.Eventually(t, func() bool { return m.State().Status == MutationStatusError }, time.Second, time.Millisecond)
}

func Test_Mutation_CallbacksRunInLayerOrder(t *testing.T) {
	var order []string
	cache := NewMutationCache(NewNotifyManager(), timeu.NewMock(time.Unix(0, 0)), func() bool { return true }, func() bool { return true }, MutationCacheConfig{
		Callbacks: MutationCallbacks{
			OnSuccess: func(context.Context, any, any, any) { order = append(order, "cache") },
		},
	})
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) { return "ok", nil },
		Callbacks: MutationCallbacks{
			OnSuccess: func(context.Context, any, any, any) { order = append(order, "callsite") },
		},
	})

	_, err := m.Execute(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "callsite"}, order)
}

func Test_Mutation_OnMutateContextFlowsToOnSuccess(t *testing.T) {
	cache := newTestMutationCache()
	var seenContext any
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) { return "ok", nil },
		Callbacks: MutationCallbacks{
			OnMutate:  func(context.Context, any) (any, error) { return "rollback-token", nil },
			OnSuccess: func(_ context.Context, _, _, mutationContext any) { seenContext = mutationContext },
		},
	})

	_, err := m.Execute(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rollback-token", seenContext)
}

func Test_Mutation_OnMutateErrorSurfacesWithoutAbortingAttempt(t *testing.T) {
	cache := newTestMutationCache()
	wantErr := errors.New("optimistic update failed")
	attempts := 0
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) { attempts++; return "ok", nil },
		Callbacks: MutationCallbacks{
			OnMutate: func(context.Context, any) (any, error) { return nil, wantErr },
		},
	})

	data, err := m.Execute(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err, "onMutate failing must not abort or fail the attempt")
	assert.Equal(t, "ok", data)
	assert.Equal(t, 1, attempts)

	require.Eventually(t, func() bool { return m.State().FailureReason != nil }, time.Second, time.Millisecond)
	state := m.State()
	assert.ErrorIs(t, state.FailureReason, wantErr)
	assert.Equal(t, MutationStatusSuccess, state.Status, "onMutate error must not change Status")
}

func Test_Mutation_OfflineMutationPausesUntilOnline(t *testing.T) {
	online := false
	nm := NewNotifyManager()
	cache := NewMutationCache(nm, timeu.NewMock(time.Unix(0, 0)), func() bool { return online }, func() bool { return true }, MutationCacheConfig{})

	attempts := 0
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) {
			attempts++
			return "ok", nil
		},
	})

	promise := m.Execute(context.Background(), nil)
	require.Eventually(t, m.IsPaused, time.Second, time.Millisecond)
	assert.Equal(t, 0, attempts)

	online = true
	require.True(t, m.Continue())

	data, err := promise.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", data)
	assert.Equal(t, 1, attempts)
}

func Test_Mutation_IsRemovable(t *testing.T) {
	cache := newTestMutationCache()
	m := cache.Build(MutationOptions{
		MutationFn: func(ctx context.Context, variables any) (any, error) { return "ok", nil },
	})
	assert.False(t, m.IsRemovable(), "still idle, not terminal")

	_, err := m.Execute(context.Background(), nil).Wait(context.Background())
	require.NoError(t, err)
	require.Eventually(t, m.IsRemovable, time.Second, time.Millisecond)
}

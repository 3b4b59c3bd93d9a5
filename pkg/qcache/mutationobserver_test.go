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

func Test_MutationObserver_StartsIdle(t *testing.T) {
	client := newTestClient(timeu.NewMock(time.Unix(0, 0)))
	obs := NewMutationObserver(client, MutationObserverOptions{})
	result := obs.GetCurrentResult()
	assert.True(t, result.IsIdle)
	assert.Equal(t, MutationStatusIdle, result.Status)
}

func Test_MutationObserver_MutateSucceeds(t *testing.T) {
	client := newTestClient(timeu.NewMock(time.Unix(0, 0)))
	obs := NewMutationObserver(client, MutationObserverOptions{
		MutationOptions: MutationOptions{
			MutationFn: func(ctx context.Context, variables any) (any, error) { return variables, nil },
		},
	})

	var results []MutationObserverResult
	unsubscribe := obs.Subscribe(func(r MutationObserverResult) { results = append(results, r) })
	defer unsubscribe()

	data, err := obs.Mutate(context.Background(), "payload", nil).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", data)

	require.Eventually(t, func() bool { return obs.GetCurrentResult().IsSuccess }, time.Second, time.Millisecond)
	assert.Equal(t, "payload", obs.GetCurrentResult().Data)
}

func Test_MutationObserver_CallSiteCallbacksLayerOverObserverOptions(t *testing.T) {
	client := newTestClient(timeu.NewMock(time.Unix(0, 0)))
	var order []string
	obs := NewMutationObserver(client, MutationObserverOptions{
		MutationOptions: MutationOptions{
			MutationFn: func(ctx context.Context, variables any) (any, error) { return "ok", nil },
			Callbacks: MutationCallbacks{
				OnSuccess: func(context.Context, any, any, any) { order = append(order, "observer") },
			},
		},
	})

	_, err := obs.Mutate(context.Background(), nil, &MutationCallbacks{
		OnSuccess: func(context.Context, any, any, any) { order = append(order, "callsite") },
	}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"observer", "callsite"}, order)
}

func Test_MutationObserver_MutateFailure(t *testing.T) {
	client := newTestClient(timeu.NewMock(time.Unix(0, 0)))
	wantErr := errors.New("rejected")
	obs := NewMutationObserver(client, MutationObserverOptions{
		MutationOptions: MutationOptions{
			MutationFn: func(ctx context.Context, variables any) (any, error) { return nil, wantErr },
		},
	})

	_, err := obs.Mutate(context.Background(), nil, nil).Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	require.Eventually(t, func() bool { return obs.GetCurrentResult().IsError }, time.Second, time.Millisecond)
}

func Test_MutationObserver_ResetReturnsToIdle(t *testing.T) {
	client := newTestClient(timeu.NewMock(time.Unix(0, 0)))
	obs := NewMutationObserver(client, MutationObserverOptions{
		MutationOptions: MutationOptions{
			MutationFn: func(ctx context.Context, variables any) (any, error) { return "ok", nil },
		},
	})
	_, err := obs.Mutate(context.Background(), nil, nil).Wait(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return obs.GetCurrentResult().IsSuccess }, time.Second, time.Millisecond)

	obs.Reset()
	result := obs.GetCurrentResult()
	assert.True(t, result.IsIdle)
}

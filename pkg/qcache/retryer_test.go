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

func Test_Retryer_SucceedsFirstTry(t *testing.T) {
	r := NewRetryer(RetryerConfig[int]{
		Fn: func(context.Context) (int, error) { return 42, nil },
	})
	p := r.Start(context.Background())
	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func Test_Retryer_RetriesThenSucceeds(t *testing.T) {
	clock := timeu.NewMock(time.Unix(0, 0))
	attempts := 0
	r := NewRetryer(RetryerConfig[int]{
		Fn: func(context.Context) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("transient")
			}
			return 7, nil
		},
		Retry: RetryTimes(5),
		RetryDelay: func(int, error) time.Duration { return time.Second },
		Time:       clock,
	})
	p := r.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for !p.Done() {
		select {
		case <-deadline:
			t.Fatal("retryer did not settle")
		default:
			clock.Advance(time.Second)
		}
	}

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, attempts)
}

func Test_Retryer_ExhaustsRetriesAndRejects(t *testing.T) {
	clock := timeu.NewMock(time.Unix(0, 0))
	wantErr := errors.New("permanent")
	var failCalls []int
	r := NewRetryer(RetryerConfig[int]{
		Fn:         func(context.Context) (int, error) { return 0, wantErr },
		Retry:      RetryTimes(2),
		RetryDelay: func(int, error) time.Duration { return time.Millisecond },
		OnFail:     func(fc int, _ error) { failCalls = append(failCalls, fc) },
		Time:       clock,
	})
	p := r.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for !p.Done() {
		select {
		case <-deadline:
			t.Fatal("retryer did not settle")
		default:
			clock.Advance(time.Millisecond)
		}
	}

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, []int{1, 2}, failCalls)
}

func Test_Retryer_RetryNever(t *testing.T) {
	wantErr := errors.New("boom")
	r := NewRetryer(RetryerConfig[int]{
		Fn:    func(context.Context) (int, error) { return 0, wantErr },
		Retry: RetryNever(),
	})
	p := r.Start(context.Background())
	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func Test_Retryer_CancelRejectsWithCancelledError(t *testing.T) {
	started := make(chan struct{})
	blockCh := make(chan struct{})
	r := NewRetryer(RetryerConfig[int]{
		Fn: func(ctx context.Context) (int, error) {
			close(started)
			select {
			case <-blockCh:
				return 1, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
	})
	p := r.Start(context.Background())
	<-started
	r.Cancel(CancelOptions{Revert: true})

	_, err := p.Wait(context.Background())
	ce, ok := IsCancelledError(err)
	require.True(t, ok)
	assert.True(t, ce.Revert)
}

func Test_Retryer_PausesWhenOffline(t *testing.T) {
	online := false
	attempts := 0
	r := NewRetryer(RetryerConfig[int]{
		Fn: func(context.Context) (int, error) {
			attempts++
			return 5, nil
		},
		IsOnline: func() bool { return online },
	})
	p := r.Start(context.Background())

	require.Eventually(t, r.IsPaused, time.Second, time.Millisecond)
	assert.Equal(t, 0, attempts)

	online = true
	require.True(t, r.Continue())

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, attempts)
}

func Test_Retryer_AlwaysNetworkModeIgnoresOffline(t *testing.T) {
	r := NewRetryer(RetryerConfig[int]{
		Fn:          func(context.Context) (int, error) { return 9, nil },
		NetworkMode: NetworkModeAlways,
		IsOnline:    func() bool { return false },
	})
	p := r.Start(context.Background())
	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func Test_Retryer_SecondContinueIsNoop(t *testing.T) {
	r := NewRetryer(RetryerConfig[int]{
		Fn:       func(context.Context) (int, error) { return 1, nil },
		IsOnline: func() bool { return false },
	})
	_ = r.Start(context.Background())
	require.Eventually(t, r.IsPaused, time.Second, time.Millisecond)
	assert.True(t, r.Continue())
	assert.False(t, r.Continue())
}

package qcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Subscribable_EmitInvokesAllListeners(t *testing.T) {
	sub := NewSubscribable[int]()
	var got []int
	unsubA := sub.Subscribe(func(v int) { got = append(got, v) })
	unsubB := sub.Subscribe(func(v int) { got = append(got, v*10) })
	defer unsubA()
	defer unsubB()

	sub.Emit(1)
	assert.ElementsMatch(t, []int{1, 10}, got)
}

func Test_Subscribable_UnsubscribeIsIdempotent(t *testing.T) {
	sub := NewSubscribable[int]()
	calls := 0
	unsubscribeCalls := 0
	sub.OnUnsubscribe = func() { unsubscribeCalls++ }
	unsubscribe := sub.Subscribe(func(int) { calls++ })

	unsubscribe()
	unsubscribe()

	sub.Emit(1)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, unsubscribeCalls)
}

func Test_Subscribable_OnSubscribeAndOnUnsubscribeHooks(t *testing.T) {
	sub := NewSubscribable[int]()
	subscribeCount := 0
	unsubscribeCount := 0
	sub.OnSubscribe = func() { subscribeCount++ }
	sub.OnUnsubscribe = func() { unsubscribeCount++ }

	unsub1 := sub.Subscribe(func(int) {})
	unsub2 := sub.Subscribe(func(int) {})
	assert.Equal(t, 2, subscribeCount)
	assert.True(t, sub.HasListeners())
	assert.Equal(t, 2, sub.ListenerCount())

	unsub1()
	assert.Equal(t, 1, unsubscribeCount)
	unsub2()
	assert.Equal(t, 2, unsubscribeCount)
	assert.False(t, sub.HasListeners())
}

func Test_Subscribable_HasListenersReflectsCurrentState(t *testing.T) {
	sub := NewSubscribable[string]()
	assert.False(t, sub.HasListeners())
	unsubscribe := sub.Subscribe(func(string) {})
	assert.True(t, sub.HasListeners())
	unsubscribe()
	assert.False(t, sub.HasListeners())
}

package qcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_OnlineManager_DefaultsToOnlineWithNoopSource(t *testing.T) {
	om := NewOnlineManager(NoopOnlineEventSource)
	assert.True(t, om.IsOnline())
}

func Test_OnlineManager_SetOnlineEmitsOnlyOnTransition(t *testing.T) {
	om := NewOnlineManager(NoopOnlineEventSource)
	var events []bool
	unsubscribe := om.Subscribe(func(v bool) { events = append(events, v) })
	defer unsubscribe()

	om.SetOnline(true) // already online
	assert.Empty(t, events)

	om.SetOnline(false)
	require.Len(t, events, 1)
	assert.False(t, events[0])

	om.SetOnline(true)
	require.Len(t, events, 2)
	assert.True(t, events[1])
}

func Test_OnlineManager_EventSourceLifecycleFollowsSubscriberCount(t *testing.T) {
	installed := 0
	torndown := 0
	source := func(setOnline func(bool)) func() {
		installed++
		return func() { torndown++ }
	}
	om := NewOnlineManager(source)

	unsubA := om.Subscribe(func(bool) {})
	unsubB := om.Subscribe(func(bool) {})
	assert.Equal(t, 1, installed)

	unsubA()
	assert.Equal(t, 0, torndown)
	unsubB()
	assert.Equal(t, 1, torndown)
}

func Test_OnlineManager_SetEventListenerSwapsSource(t *testing.T) {
	oldTorndown := 0
	oldSource := func(setOnline func(bool)) func() {
		return func() { oldTorndown++ }
	}
	newInstalled := 0
	newSource := func(setOnline func(bool)) func() {
		newInstalled++
		return func() {}
	}

	om := NewOnlineManager(oldSource)
	unsubscribe := om.Subscribe(func(bool) {})
	defer unsubscribe()

	om.SetEventListener(newSource)
	assert.Equal(t, 1, oldTorndown)
	assert.Equal(t, 1, newInstalled)
}

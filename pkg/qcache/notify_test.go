package qcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NotifyManager_ScheduleOutsideBatchRunsAsync(t *testing.T) {
	nm := NewNotifyManager()
	defer nm.Close()

	done := make(chan struct{})
	nm.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback never ran")
	}
}

func Test_NotifyManager_BatchCoalescesQueueIntoOneFlush(t *testing.T) {
	nm := NewNotifyManager()
	defer nm.Close()

	var order []int
	nm.Batch(func() {
		nm.Schedule(func() { order = append(order, 1) })
		nm.Schedule(func() { order = append(order, 2) })
		nm.Schedule(func() { order = append(order, 3) })
	})

	require.Eventually(t, func() bool { return len(order) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func Test_NotifyManager_NestedBatchFlushesOnlyAtOuterDepth(t *testing.T) {
	nm := NewNotifyManager()
	defer nm.Close()

	flushed := 0
	nm.SetBatchNotifyFunction(func(run func()) { flushed++; run() })

	nm.Batch(func() {
		nm.Batch(func() {
			nm.Schedule(func() {})
		})
		nm.Schedule(func() {})
	})

	require.Eventually(t, func() bool { return flushed == 1 }, time.Second, time.Millisecond)
}

func Test_NotifyManager_SetNotifyFunctionWrapsEachCallback(t *testing.T) {
	nm := NewNotifyManager()
	defer nm.Close()

	var wrapped []string
	nm.SetNotifyFunction(func(cb func()) {
		wrapped = append(wrapped, "before")
		cb()
		wrapped = append(wrapped, "after")
	})

	nm.Schedule(func() {})
	require.Eventually(t, func() bool { return len(wrapped) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"before", "after"}, wrapped)
}

func Test_BatchCalls_SchedulesThroughManager(t *testing.T) {
	nm := NewNotifyManager()
	defer nm.Close()

	received := make(chan int, 1)
	fn := BatchCalls(nm, func(v int) { received <- v })

	fn(42)
	select {
	case v := <-received:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("batched call never ran")
	}
}

package qcache

import "sync"

// NotifyManager batches listener invocations across nested transactions and
// schedules flushes (spec §4.3). It coalesces many state changes — e.g. a
// cascade of invalidations touching a dozen queries — into a single flush so
// adapters render once.
//
// Go has no single event-loop thread, so unlike the source's microtask
// scheduling this dispatches scheduled work on a dedicated goroutine reading
// a channel: relative ordering between scheduled flushes is preserved (a
// "one task" semantics) without serializing callers on the scheduling
// goroutine itself.
type NotifyManager struct {
	mu    sync.Mutex
	depth int
	queue []func()

	notifyFn      func(func())
	batchNotifyFn func(func())
	scheduleFn    func(func())

	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewNotifyManager returns a NotifyManager with pass-through notify/batch
// functions and a channel-backed default scheduler.
func NewNotifyManager() *NotifyManager {
	nm := &NotifyManager{
		notifyFn:      func(cb func()) { cb() },
		batchNotifyFn: func(cb func()) { cb() },
		tasks:         make(chan func(), 256),
		done:          make(chan struct{}),
	}
	nm.scheduleFn = func(cb func()) { nm.tasks <- cb }
	go nm.dispatch()
	return nm
}

func (nm *NotifyManager) dispatch() {
	for {
		select {
		case cb := <-nm.tasks:
			cb()
		case <-nm.done:
			return
		}
	}
}

// Close stops the default scheduler's dispatch goroutine. Safe to call
// multiple times; it stops the goroutine whether or not a custom ScheduleFn
// was installed.
func (nm *NotifyManager) Close() {
	nm.once.Do(func() { close(nm.done) })
}

// Batch runs fn with the transaction depth incremented; when depth returns to
// zero the accumulated queue is flushed via one scheduleFn call wrapping one
// batchNotifyFn call, inside which notifyFn runs once per queued callback. A panic inside fn still decrements
// the depth and flushes before propagating.
func (nm *NotifyManager) Batch(fn func()) {
	nm.mu.Lock()
	nm.depth++
	nm.mu.Unlock()

	defer func() {
		nm.mu.Lock()
		nm.depth--
		depth := nm.depth
		var queue []func()
		if depth == 0 {
			queue = nm.queue
			nm.queue = nil
		}
		nm.mu.Unlock()
		if depth == 0 {
			nm.flush(queue)
		}
	}()

	fn()
}

func (nm *NotifyManager) flush(queue []func()) {
	if len(queue) == 0 {
		return
	}
	nm.scheduleFn(func() {
		nm.batchNotifyFn(func() {
			for _, cb := range queue {
				nm.notifyFn(cb)
			}
		})
	})
}

// Schedule enqueues cb if a transaction is in progress; otherwise it
// schedules notifyFn(cb) directly (outside any batchNotifyFn wrapper, since
// there is no transaction to coalesce with).
func (nm *NotifyManager) Schedule(cb func()) {
	nm.mu.Lock()
	inTransaction := nm.depth > 0
	if inTransaction {
		nm.queue = append(nm.queue, cb)
	}
	nm.mu.Unlock()

	if !inTransaction {
		nm.scheduleFn(func() { nm.notifyFn(cb) })
	}
}

// SetNotifyFunction overrides how an individual queued callback is invoked.
func (nm *NotifyManager) SetNotifyFunction(fn func(func())) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.notifyFn = fn
}

// SetBatchNotifyFunction lets an adapter wrap a flush's whole callback batch
// in its own batching primitive (e.g. a UI framework's update coalescer).
func (nm *NotifyManager) SetBatchNotifyFunction(fn func(func())) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.batchNotifyFn = fn
}

// SetScheduleFunction overrides how a flush (or an out-of-transaction
// Schedule call) is scheduled. The default runs it on NotifyManager's
// dispatch goroutine.
func (nm *NotifyManager) SetScheduleFunction(fn func(func())) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.scheduleFn = fn
}

// BatchCalls returns a wrapper around fn that schedules each invocation
// through nm instead of calling fn synchronously.
func BatchCalls[T any](nm *NotifyManager, fn func(T)) func(T) {
	return func(v T) {
		nm.Schedule(func() { fn(v) })
	}
}

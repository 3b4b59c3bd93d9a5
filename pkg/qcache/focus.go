package qcache

import "sync"

// FocusEventSource installs a platform listener that calls setFocused
// whenever the environment's focus/visibility state changes, and returns a
// teardown function. In a non-browser environment there is no such source;
// NoopFocusEventSource is used and the manager reports focused, per spec §9's
// open-question resolution: "in environments without a document, default to
// focused".
type FocusEventSource func(setFocused func(focused bool)) (teardown func())

// NoopFocusEventSource never calls setFocused and has nothing to tear down.
func NoopFocusEventSource(func(bool)) func() { return func() {} }

// FocusManager publishes boolean focus transitions (spec §4.2). The first
// subscriber triggers the event source's setup; the last unsubscribe runs its
// teardown. State changes are only emitted when the resolved boolean value
// actually flips (transitions only).
type FocusManager struct {
	sub *Subscribable[bool]

	mu       sync.Mutex
	focused  *bool // nil means "derive from platform", matching setFocused(undefined)
	setup    FocusEventSource
	teardown func()
}

// NewFocusManager returns a FocusManager with the given event source. Pass
// NoopFocusEventSource for non-browser environments.
func NewFocusManager(setup FocusEventSource) *FocusManager {
	fm := &FocusManager{sub: NewSubscribable[bool](), setup: setup}
	fm.sub.OnSubscribe = fm.onSubscribe
	fm.sub.OnUnsubscribe = fm.onUnsubscribe
	return fm
}

func (fm *FocusManager) onSubscribe() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.teardown != nil {
		return
	}
	if !fm.sub.HasListeners() {
		return
	}
	fm.teardown = fm.setup(fm.setFocusedLocked)
}

func (fm *FocusManager) onUnsubscribe() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.sub.HasListeners() {
		return
	}
	if fm.teardown != nil {
		fm.teardown()
		fm.teardown = nil
	}
}

// setFocusedLocked is the setFocused callback handed to the event source; it
// takes fm.mu itself because it's invoked asynchronously by the platform, not
// while onSubscribe/onUnsubscribe already hold the lock.
func (fm *FocusManager) setFocusedLocked(focused bool) {
	fm.SetFocused(&focused)
}

// SetEventListener swaps the event source, tearing down the previous one
// first if it was installed.
func (fm *FocusManager) SetEventListener(setup FocusEventSource) {
	fm.mu.Lock()
	if fm.teardown != nil {
		fm.teardown()
		fm.teardown = nil
	}
	fm.setup = setup
	hasListeners := fm.sub.HasListeners()
	fm.mu.Unlock()
	if hasListeners {
		fm.mu.Lock()
		fm.teardown = fm.setup(fm.setFocusedLocked)
		fm.mu.Unlock()
	}
}

// SetFocused sets the focus state explicitly. Passing nil re-derives from the
// platform (falls back to focused, since this package has no document/window
// to consult) — the Go analogue of the source's setFocused(undefined).
func (fm *FocusManager) SetFocused(focused *bool) {
	fm.mu.Lock()
	resolved := true
	if focused != nil {
		resolved = *focused
	}
	prev := fm.IsFocusedLocked()
	fm.focused = focused
	changed := resolved != prev
	fm.mu.Unlock()

	if changed {
		fm.sub.Emit(resolved)
	}
}

// IsFocused reports the current resolved focus state.
func (fm *FocusManager) IsFocused() bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.IsFocusedLocked()
}

// IsFocusedLocked assumes fm.mu is already held.
func (fm *FocusManager) IsFocusedLocked() bool {
	if fm.focused != nil {
		return *fm.focused
	}
	return true
}

// Subscribe registers a listener invoked on every focus transition.
func (fm *FocusManager) Subscribe(listener Listener[bool]) func() {
	return fm.sub.Subscribe(listener)
}

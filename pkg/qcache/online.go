package qcache

import "sync"

// OnlineEventSource installs a platform listener that calls setOnline
// whenever connectivity changes, and returns a teardown function.
type OnlineEventSource func(setOnline func(online bool)) (teardown func())

// NoopOnlineEventSource never calls setOnline; OnlineManager then stays at
// its default of true.
func NoopOnlineEventSource(func(bool)) func() { return func() {} }

// OnlineManager publishes boolean online transitions (spec §4.2). Default
// online state is true. Structurally identical to FocusManager but keeps its
// own type since the two are independent process-wide singletons with
// different defaults and different platform sources.
type OnlineManager struct {
	sub *Subscribable[bool]

	mu       sync.Mutex
	online   bool
	setup    OnlineEventSource
	teardown func()
}

// NewOnlineManager returns an OnlineManager defaulting to online=true.
func NewOnlineManager(setup OnlineEventSource) *OnlineManager {
	om := &OnlineManager{sub: NewSubscribable[bool](), setup: setup, online: true}
	om.sub.OnSubscribe = om.onSubscribe
	om.sub.OnUnsubscribe = om.onUnsubscribe
	return om
}

func (om *OnlineManager) onSubscribe() {
	om.mu.Lock()
	defer om.mu.Unlock()
	if om.teardown != nil || !om.sub.HasListeners() {
		return
	}
	om.teardown = om.setup(om.SetOnline)
}

func (om *OnlineManager) onUnsubscribe() {
	om.mu.Lock()
	defer om.mu.Unlock()
	if om.sub.HasListeners() {
		return
	}
	if om.teardown != nil {
		om.teardown()
		om.teardown = nil
	}
}

// SetEventListener swaps the event source, tearing down the previous one.
func (om *OnlineManager) SetEventListener(setup OnlineEventSource) {
	om.mu.Lock()
	if om.teardown != nil {
		om.teardown()
		om.teardown = nil
	}
	om.setup = setup
	hasListeners := om.sub.HasListeners()
	om.mu.Unlock()
	if hasListeners {
		om.mu.Lock()
		om.teardown = om.setup(om.SetOnline)
		om.mu.Unlock()
	}
}

// SetOnline sets the online state, emitting to subscribers only on a
// transition.
func (om *OnlineManager) SetOnline(online bool) {
	om.mu.Lock()
	changed := online != om.online
	om.online = online
	om.mu.Unlock()
	if changed {
		om.sub.Emit(online)
	}
}

// IsOnline reports the current online state.
func (om *OnlineManager) IsOnline() bool {
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.online
}

// Subscribe registers a listener invoked on every online transition.
func (om *OnlineManager) Subscribe(listener Listener[bool]) func() {
	return om.sub.Subscribe(listener)
}

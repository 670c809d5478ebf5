package config

import (
	"sync"

	"logcore/internal/settings"
)

// Manager owns the live settings.Store and every Proxy issued against
// it. A reload builds a fresh Store from the document on disk and
// retargets every issued Proxy onto it in one pass, so a stage that
// registered a setting before the reload keeps working afterward
// without re-registering.
type Manager struct {
	mu      sync.Mutex
	store   *settings.Store
	proxies []*settings.Proxy

	changedMu sync.Mutex
	changed   []func()
}

// NewManager wraps an already-populated store.
func NewManager(store *settings.Store) *Manager {
	return &Manager{store: store}
}

// Register delegates to the current store's Register and remembers the
// returned Proxy so a future Reload can retarget it.
func (m *Manager) Register(stage, name string, defaultValue any, conv settings.Converter) *settings.Proxy {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()

	p := store.Register(stage, name, defaultValue, conv)

	m.mu.Lock()
	m.proxies = append(m.proxies, p)
	m.mu.Unlock()
	return p
}

// Store returns the currently live store, for callers that only need
// to read a value once (e.g. a one-shot CLI flag dump) rather than
// hold a live Proxy.
func (m *Manager) Store() *settings.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// OnChanged registers fn to run, synchronously, after every successful
// Reload. It is a coarser signal than settings.Store's per-setting
// subscriptions: components that need to react to "something in the
// configuration changed" without caring which setting use this instead
// of subscribing to every individual proxy.
func (m *Manager) OnChanged(fn func()) {
	m.changedMu.Lock()
	m.changed = append(m.changed, fn)
	m.changedMu.Unlock()
}

// Reload replaces the live store with next, retargets every previously
// issued Proxy onto it, and fires every OnChanged callback. Reload is
// atomic from a reader's perspective: Get calls through any Proxy see
// either the old or the new store, never a half-swapped state.
func (m *Manager) Reload(next *settings.Store) {
	m.mu.Lock()
	m.store = next
	proxies := append([]*settings.Proxy(nil), m.proxies...)
	m.mu.Unlock()

	for _, p := range proxies {
		p.Retarget(next)
	}

	m.changedMu.Lock()
	callbacks := append([]func(){}, m.changed...)
	m.changedMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

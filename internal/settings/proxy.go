package settings

import (
	"sync"
	"sync/atomic"
)

// Proxy is what a stage actually holds. It never caches a concrete
// value: Get and Set are forwarded to whichever Store is currently
// installed via Retarget, so swapping the pipeline's configuration
// atomically redirects every proxy at once without each stage needing
// to look anything up again (spec §4.D: "a stage must never cache a
// concrete setting backing; it only holds its proxy").
type Proxy struct {
	stage string
	name  string
	store *Store

	target atomic.Pointer[Store]

	mu struct {
		sync.Mutex
		subs []subscription
	}
}

func (p *Proxy) resolve() *Store {
	if t := p.target.Load(); t != nil {
		return t
	}
	return p.store
}

// Get returns the current value through whichever store is live.
func (p *Proxy) Get() (any, bool) {
	return p.resolve().Get(p.stage, p.name)
}

// Set upserts the value on the currently targeted store.
func (p *Proxy) Set(raw string) error {
	return p.resolve().Set(p.stage, p.name, raw)
}

// Subscribe registers fn against the currently targeted store,
// running it through executor on change. The subscription follows
// future Retarget calls on this proxy: Retarget re-subscribes fn
// against the new store so a swap never silently drops a listener.
func (p *Proxy) Subscribe(executor Executor, fn func(any)) func() {
	if executor == nil {
		executor = DirectExecutor{}
	}
	store := p.resolve()
	unsub := store.subscribe(p.stage, p.name, executor, fn)

	p.mu.Lock()
	p.mu.subs = append(p.mu.subs, subscription{executor: executor, fn: fn})
	p.mu.Unlock()
	return unsub
}

type subscription struct {
	executor Executor
	fn       func(any)
}

// Retarget atomically redirects the proxy at a new store, replaying
// every subscription registered through this proxy against it so a
// configuration swap carries subscribers across (spec §4.D).
func (p *Proxy) Retarget(newStore *Store) {
	p.mu.Lock()
	subs := append([]subscription(nil), p.mu.subs...)
	p.mu.Unlock()

	for _, s := range subs {
		newStore.subscribe(p.stage, p.name, s.executor, s.fn)
	}
	p.target.Store(newStore)
}

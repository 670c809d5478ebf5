// Package settings implements the stage-settings registry (spec
// §4.D): a map from (stage name, setting name) to a typed value,
// accessed through per-caller proxies so a configuration swap can
// retarget every proxy at once without each stage re-looking anything
// up.
package settings

import (
	"sync"

	"logcore/pkg/errors"
)

// Converter parses a setting's external string form into its typed
// value and back. Stages register one converter per setting; the
// registry never assumes a type beyond what the converter enforces.
type Converter interface {
	Parse(raw string) (any, error)
	Format(value any) string
}

type entry struct {
	value     any
	raw       string
	converter Converter
	subs      []func(any)
}

// Store holds every (stage, name) -> entry pair for one configuration
// generation. A Store is produced by the config loader (component L)
// each time the configuration file is parsed, and is never mutated
// concurrently by more than one writer: callers other than the loader
// only call Set, which the store itself serialises.
type Store struct {
	mu      sync.RWMutex
	entries map[key]*entry
}

type key struct {
	stage string
	name  string
}

func NewStore() *Store {
	return &Store{entries: make(map[key]*entry)}
}

// Register returns a Proxy bound to (stage, name). If the pair is
// absent it is inserted with defaultValue; if present with a
// different default, the existing value is preserved — register never
// clobbers a value a prior configuration load already produced.
func (s *Store) Register(stage, name string, defaultValue any, conv Converter) *Proxy {
	s.mu.Lock()
	k := key{stage, name}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{value: defaultValue, converter: conv}
		s.entries[k] = e
	} else if e.converter == nil {
		e.converter = conv
		// The entry may have been populated with a raw string before
		// any converter was registered (the config loader parses the
		// file before stages attach their typed converters) — convert
		// it now rather than leaving a raw string behind a typed proxy.
		if conv != nil && e.raw != "" {
			if v, err := conv.Parse(e.raw); err == nil {
				e.value = v
			}
		}
	}
	s.mu.Unlock()
	return &Proxy{stage: stage, name: name, store: s}
}

// Get returns the current value and whether (stage, name) is present.
// Get never mutates the store.
func (s *Store) Get(stage, name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key{stage, name}]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set upserts a value by parsing its raw string form through the
// entry's converter, without touching the registered default for an
// absent entry (an absent entry simply has no default to preserve).
// Every subscriber registered against (stage, name) is invoked
// synchronously, in registration order, after the store lock is
// released — a subscriber that calls back into this store (Get, Set,
// Subscribe) never deadlocks on its own notification.
func (s *Store) Set(stage, name, raw string) error {
	s.mu.Lock()

	k := key{stage, name}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	if e.converter != nil {
		v, err := e.converter.Parse(raw)
		if err != nil {
			s.mu.Unlock()
			return errors.ConfigError("invalid value for setting").WithIdentifier(stage + "." + name).WithCause(err)
		}
		e.value = v
	} else {
		e.value = raw
	}
	e.raw = raw
	value := e.value
	subs := append([]func(any){}, e.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(value)
	}
	return nil
}

// subscribe registers fn to be called, through executor, whenever
// (stage, name) changes. Returns an unsubscribe function.
func (s *Store) subscribe(stage, name string, executor Executor, fn func(any)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{stage, name}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	wrapped := func(v any) { executor.Run(func() { fn(v) }) }
	e.subs = append(e.subs, wrapped)
	idx := len(e.subs) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(e.subs) {
			e.subs[idx] = func(any) {}
		}
	}
}

// Executor runs a changed-setting callback in the context the
// subscriber asked for. The production default runs inline; a UI
// layer would supply an Executor that marshals back onto its own
// thread, which is the Go equivalent of spec §4.D's "thread-affinity
// context of the subscriber's registration thread".
type Executor interface {
	Run(fn func())
}

// DirectExecutor runs fn on the calling goroutine.
type DirectExecutor struct{}

func (DirectExecutor) Run(fn func()) { fn() }

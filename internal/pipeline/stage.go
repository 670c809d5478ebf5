// Package pipeline builds and runs the stage graph a record is
// dispatched through (spec §4.E–§4.G): construction, lifecycle, sync
// dispatch and the async worker runtime all live here; concrete stage
// implementations (console, file, store, forwarders) live under
// internal/stage and plug into this package through the Stage,
// SyncProcessor and AsyncProcessor interfaces.
package pipeline

import (
	"context"
	"sync/atomic"

	"logcore/internal/record"
)

// State is a stage's position in its lifecycle. Transitions are
// serialised by the owning Graph — a stage never moves itself between
// states.
type State int32

const (
	Detached State = iota
	Initializing
	Attached
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Initializing:
		return "initializing"
	case Attached:
		return "attached"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Stage is the minimal contract every node in the graph satisfies.
// Concrete stages additionally implement SyncProcessor or wrap an
// AsyncProcessor behind Async (see async.go) — a stage cannot be both.
type Stage interface {
	Name() string
	state() *atomic.Int32
	OnInitialize(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}

// SyncProcessor is implemented by stages that run inline on the
// producer's goroutine. Returning false stops the record from being
// handed to this stage's downstream.
type SyncProcessor interface {
	Stage
	ProcessSync(rec *record.Record) bool
}

// Base gives a concrete stage its state field and the default
// OnInitialize/OnShutdown no-ops; embed it and override what's needed.
type Base struct {
	name string
	st   atomic.Int32
}

func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string         { return b.name }
func (b *Base) state() *atomic.Int32 { return &b.st }
func (b *Base) State() State         { return State(b.st.Load()) }

func (b *Base) OnInitialize(ctx context.Context) error { return nil }
func (b *Base) OnShutdown(ctx context.Context) error   { return nil }

// ErrStageBusy-style checks belong to the owning stage implementation:
// a fluent configuration method must call RequireDetached before
// mutating any setting.
func (b *Base) RequireDetached(stageName string) error {
	if State(b.st.Load()) != Detached {
		return stageBusyError(stageName)
	}
	return nil
}

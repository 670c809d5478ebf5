package record

import (
	"sync"
	"sync/atomic"
	"time"

	"logcore/internal/intern"
	"logcore/internal/level"
)

// Pool hands out records initialised with the caller's fields and a
// reference count of 1. A record obtained from one pool must never be
// released back to another — Release always returns to the pool that
// created it, so this invariant holds automatically as long as callers
// only ever call Release on records they were handed.
type Pool struct {
	intern *intern.Table
	raw    sync.Pool
	clock  atomic.Int64 // monotonically increasing nanosecond counter

	levelsMu sync.RWMutex
	levels   []level.Level // ascending by severity (most severe first); owned by the external level registry
}

// SetRegularLevels installs the ordered, non-sentinel level set the
// pool folds the None/All sentinels into when a producer publishes a
// record carrying one (spec §9). Ascending must be sorted most-severe
// first. Safe to call at any time; takes effect for records obtained
// afterward.
func (p *Pool) SetRegularLevels(ascending []level.Level) {
	p.levelsMu.Lock()
	p.levels = ascending
	p.levelsMu.Unlock()
}

// NewPool returns a Pool whose records intern their name fields through
// table. Passing a nil table disables interning (each record keeps its
// own string copies) — useful in tests that don't care about dedup.
func NewPool(table *intern.Table) *Pool {
	p := &Pool{intern: table}
	p.raw.New = func() any { return &Record{} }
	p.clock.Store(time.Now().UnixNano())
	return p
}

func (p *Pool) put(r *Record) {
	p.raw.Put(r)
}

func (p *Pool) intern1(s string) string {
	if p.intern == nil || s == "" {
		return s
	}
	return p.intern.Intern(s)
}

// foldLevel maps the None/All filter sentinels to the highest-severity
// regular level before a record is published, so a store file or a
// forwarded frame never carries a sentinel value. Names that aren't a
// sentinel, and sentinels when no regular level set has been
// installed, pass through unchanged.
func (p *Pool) foldLevel(name string) string {
	p.levelsMu.RLock()
	levels := p.levels
	p.levelsMu.RUnlock()
	return level.Fold(level.Level{Name: name}, levels).Name
}

// nextHighPrecision returns a strictly increasing nanosecond value used
// to order records produced through this pool even when two records
// share a coarser wall-clock timestamp.
func (p *Pool) nextHighPrecision() int64 {
	return p.clock.Add(1)
}

// Get returns a new record with reference count 1, initialised from
// fields. WallTime defaults to time.Now() if zero.
func (p *Pool) Get(fields Fields) *Record {
	r := p.raw.Get().(*Record)
	r.pool = p
	r.refs = 1
	r.published.Store(false)

	wall := fields.WallTime
	if wall.IsZero() {
		wall = time.Now()
	}
	r.wallTime = wall
	r.wallOffset = fields.WallOffset
	r.highPrecision = p.nextHighPrecision()
	r.writer = p.intern1(fields.Writer)
	r.levelName = p.intern1(p.foldLevel(fields.Level))
	r.tags = fields.Tags
	r.application = p.intern1(fields.Application)
	r.process = p.intern1(fields.Process)
	r.processID = fields.ProcessID
	r.text = fields.Text
	r.lost = 0
	return r
}

// Package record defines the pooled, reference-counted log record that
// flows through the processing pipeline (spec §3, §4.A).
package record

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Record is an in-flight log record. A record's fields are set once,
// by the Pool that constructs it from the producer's Fields; once
// handed out it is read-only and shared across every stage it reaches,
// with the single exception of lost-message-count stamping by an
// async stage (SetLostMessageCount).
type Record struct {
	pool *Pool

	// refs starts at 1 when the pool hands the record out. Retain
	// increments it, Release decrements it; reaching zero returns the
	// record to its pool. Must reach zero exactly once.
	refs int32

	published atomic.Bool

	wallTime      time.Time
	wallOffset    time.Duration
	highPrecision int64 // monotonic nanoseconds, for intra-process ordering only

	writer      string
	levelName   string
	tags        TagSet
	application string
	process     string
	processID   int
	text        string
	lost        int64
}

// ErrUnderRelease is the panic value raised by Release when the
// reference count would go negative — an under-release is a fatal
// usage error (spec §4.A), not a recoverable condition.
var ErrUnderRelease = fmt.Errorf("record: released more times than retained")

// Fields carries the producer-supplied content for a new record. Name
// fields are interned by the owning Pool before the record is handed
// out.
type Fields struct {
	WallTime    time.Time
	WallOffset  time.Duration
	Writer      string
	Level       string
	Tags        TagSet
	Application string
	Process     string
	ProcessID   int
	Text        string
}

func (r *Record) reset() {
	r.refs = 0
	r.published.Store(false)
	r.wallTime = time.Time{}
	r.wallOffset = 0
	r.highPrecision = 0
	r.writer = ""
	r.levelName = ""
	r.tags = Empty()
	r.application = ""
	r.process = ""
	r.processID = 0
	r.text = ""
	r.lost = 0
}

// Publish marks the record as handed off to the pipeline: from this
// point it is shared and read-only except for lost-message-count
// stamping. Idempotent.
func (r *Record) Publish() { r.published.Store(true) }

// Published reports whether Publish has been called.
func (r *Record) Published() bool { return r.published.Load() }

// Retain increments the reference count. Callers that need to hold a
// record past the return of the processing call that handed it to them
// must Retain before returning and Release when done.
func (r *Record) Retain() {
	atomic.AddInt32(&r.refs, 1)
}

// Release decrements the reference count, returning the record to its
// pool when it reaches zero. Panics with ErrUnderRelease if called more
// times than the record was retained.
func (r *Record) Release() {
	n := atomic.AddInt32(&r.refs, -1)
	switch {
	case n > 0:
		return
	case n == 0:
		pool := r.pool
		r.reset()
		pool.put(r)
	default:
		panic(ErrUnderRelease)
	}
}

// RefCount reports the current reference count. Intended for tests and
// diagnostics only.
func (r *Record) RefCount() int32 { return atomic.LoadInt32(&r.refs) }

// Accessors — safe to call at any time, published or not.

func (r *Record) WallTime() time.Time       { return r.wallTime }
func (r *Record) WallOffset() time.Duration { return r.wallOffset }
func (r *Record) HighPrecisionNanos() int64 { return r.highPrecision }
func (r *Record) Writer() string            { return r.writer }
func (r *Record) LevelName() string         { return r.levelName }
func (r *Record) Tags() TagSet              { return r.tags }
func (r *Record) Application() string       { return r.application }
func (r *Record) Process() string           { return r.process }
func (r *Record) ProcessID() int            { return r.processID }
func (r *Record) Text() string              { return r.text }
func (r *Record) LostMessageCount() int64   { return atomic.LoadInt64(&r.lost) }

// SetLostMessageCount records how many records were dropped
// immediately before this one on the same async stage queue. Unlike
// every other field, it is set by the async stage runtime itself, at
// the moment of a successful enqueue — which is always after the
// producer has published the record — so it is the one field that
// changes after publication; Record has no setter for any other field.
func (r *Record) SetLostMessageCount(n int64) {
	atomic.StoreInt64(&r.lost, n)
}

package stage

import (
	"logcore/internal/pipeline"
	"logcore/internal/record"
)

// Splitter is a trivial pass-through stage used purely as an explicit
// fan-out point: it never filters a record, it only exists so a
// configuration can name a single node with several downstream
// connections without attaching any real processing to it. Fan-out
// itself is a property of the graph (every stage with more than one
// downstream edge fans out), so Splitter's ProcessSync always returns
// true.
type Splitter struct {
	pipeline.Base
}

func NewSplitter(name string) *Splitter {
	return &Splitter{Base: pipeline.NewBase(name)}
}

func (s *Splitter) ProcessSync(rec *record.Record) bool { return true }

var _ pipeline.SyncProcessor = (*Splitter)(nil)

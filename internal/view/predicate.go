// Package view implements the filtered, observable projection over a
// record store (spec §4.K): a predicate combining a timestamp
// interval, per-field include-by-selection filters and a substring
// text match, plus six overview multisets that track how many records
// currently match each candidate filter value.
package view

import (
	"strings"
	"time"

	"logcore/internal/store"
)

// Predicate is the composed filter a View applies to every row. The
// zero value matches everything.
type Predicate struct {
	From, To time.Time // zero time on either side disables that bound

	Writers      *FieldFilter
	Levels       *FieldFilter
	Tags         *FieldFilter
	Applications *FieldFilter
	ProcessNames *FieldFilter
	ProcessIDs   *FieldFilter

	// Substring is matched case-sensitively against row text. Matching
	// happens in Go, never by splicing this value into a query
	// language — there is nothing here for an attacker to break out
	// of.
	Substring string
}

func (p *Predicate) Matches(row store.Row) bool {
	if !p.From.IsZero() && row.WallTime.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && row.WallTime.After(p.To) {
		return false
	}
	if p.Writers != nil && !p.Writers.passes(row.Writer) {
		return false
	}
	if p.Levels != nil && !p.Levels.passes(row.LevelName) {
		return false
	}
	if p.Applications != nil && !p.Applications.passes(row.Application) {
		return false
	}
	if p.ProcessNames != nil && !p.ProcessNames.passes(row.Process) {
		return false
	}
	if p.ProcessIDs != nil && !p.ProcessIDs.passes(processIDKey(row.ProcessID)) {
		return false
	}
	if p.Tags != nil && !p.Tags.passesAny(row.Tags) {
		return false
	}
	if p.Substring != "" && !strings.Contains(row.Text, p.Substring) {
		return false
	}
	return true
}

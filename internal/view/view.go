package view

import (
	"context"
	"sync"

	"logcore/internal/store"
)

// Source is the store.Engine subset a View reads through.
type Source interface {
	Bounds() (oldest, newest int64, hasRows bool)
	ReadRange(ctx context.Context, fromID int64, count int, callback func(store.Row) error) error
}

// Change is what a View hands to its observers. Kind is Added or
// Removed; for Removed, Rows is populated only when the view is not
// configured to emit placeholders.
type Change struct {
	Kind        ChangeKind
	FromID, ToID int64
	Rows        []store.Row
}

type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
)

// Observer receives batched Change notifications.
type Observer func(Change)

// View projects a Source through a Predicate, maintaining the six
// overview multisets and notifying observers in batches as the
// underlying collection changes.
type View struct {
	source    Source
	predicate *Predicate

	// PlaceholderOnPrune controls whether a Removed change carries the
	// pruned rows' real content (false, and only when OnPruned was given
	// the rows) or no rows at all (true) — in that case the change holds
	// just the FromID/ToID range and no per-row placeholder records are
	// built, which avoids fetching the payload of records the consumer
	// is about to discard anyway. Defaults to true.
	PlaceholderOnPrune bool

	mu        sync.Mutex
	observers []Observer

	writers      map[string]int64
	levels       map[string]int64
	tags         map[string]int64
	applications map[string]int64
	processNames map[string]int64
	processIDs   map[string]int64
}

func New(source Source, predicate *Predicate) *View {
	if predicate == nil {
		predicate = &Predicate{}
	}
	return &View{
		source:             source,
		predicate:          predicate,
		PlaceholderOnPrune: true,
		writers:            make(map[string]int64),
		levels:             make(map[string]int64),
		tags:               make(map[string]int64),
		applications:       make(map[string]int64),
		processNames:       make(map[string]int64),
		processIDs:         make(map[string]int64),
	}
}

func (v *View) Subscribe(obs Observer) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, obs)
	idx := len(v.observers) - 1
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.observers[idx] = func(Change) {}
	}
}

func (v *View) notify(c Change) {
	v.mu.Lock()
	observers := append([]Observer(nil), v.observers...)
	v.mu.Unlock()
	for _, obs := range observers {
		obs(c)
	}
}

// OnAdded is called by the pipeline's store-writer stage (or test
// code) after new rows have landed in the source, covering
// [fromID, toID] inclusive. It updates the overview multisets with the
// newly visible rows, refreshes ValueUsed against the full running
// unfiltered set (not just this batch), and emits one batched Added
// change.
func (v *View) OnAdded(ctx context.Context, fromID, toID int64) error {
	var matched []store.Row

	err := v.source.ReadRange(ctx, fromID, int(toID-fromID+1), func(row store.Row) error {
		v.accumulate(row)
		if v.predicate.Matches(row) {
			matched = append(matched, row)
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.refreshFilterItems()

	if len(matched) == 0 {
		return nil
	}
	v.notify(Change{Kind: Added, FromID: matched[0].ID, ToID: matched[len(matched)-1].ID, Rows: matched})
	return nil
}

func (v *View) accumulate(row store.Row) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writers[row.Writer]++
	v.levels[row.LevelName]++
	v.applications[row.Application]++
	v.processNames[row.Process]++
	v.processIDs[processIDKey(row.ProcessID)]++
	for _, tag := range row.Tags {
		v.tags[tag]++
	}
}

// unaccumulate reverses accumulate for a row that has just been
// pruned, deleting a field's count entry entirely once it reaches
// zero so presentKeys (and therefore ValueUsed) reports it absent.
func (v *View) unaccumulate(row store.Row) {
	v.mu.Lock()
	defer v.mu.Unlock()
	decrement(v.writers, row.Writer)
	decrement(v.levels, row.LevelName)
	decrement(v.applications, row.Application)
	decrement(v.processNames, row.Process)
	decrement(v.processIDs, processIDKey(row.ProcessID))
	for _, tag := range row.Tags {
		decrement(v.tags, tag)
	}
}

func decrement(m map[string]int64, key string) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}

// presentKeys returns the set of values currently carrying a non-zero
// count in m — the authoritative "appears in at least one record in
// the unfiltered set" test (spec §4.K), since accumulate/unaccumulate
// keep these counts in sync with every add and prune.
func presentKeys(m map[string]int64) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// refreshFilterItems recomputes every FieldFilter's ValueUsed against
// the current running multisets, not against any single batch, so a
// value dropping out of one small batch never hides an item still
// carried by thousands of older rows.
func (v *View) refreshFilterItems() {
	v.mu.Lock()
	present := map[string]map[string]struct{}{
		"writer":      presentKeys(v.writers),
		"level":       presentKeys(v.levels),
		"tag":         presentKeys(v.tags),
		"application": presentKeys(v.applications),
		"process":     presentKeys(v.processNames),
		"pid":         presentKeys(v.processIDs),
	}
	v.mu.Unlock()

	if v.predicate.Writers != nil {
		v.predicate.Writers.accumulateItems(present["writer"], nil)
	}
	if v.predicate.Levels != nil {
		v.predicate.Levels.accumulateItems(present["level"], nil)
	}
	if v.predicate.Applications != nil {
		v.predicate.Applications.accumulateItems(present["application"], nil)
	}
	if v.predicate.ProcessNames != nil {
		v.predicate.ProcessNames.accumulateItems(present["process"], nil)
	}
	if v.predicate.ProcessIDs != nil {
		v.predicate.ProcessIDs.accumulateItems(present["pid"], nil)
	}
	if v.predicate.Tags != nil {
		v.predicate.Tags.accumulateItems(present["tag"], nil)
	}
}

// OnPruned is called after a prune removes [fromID, toID] inclusive.
// It reverses the overview multisets' counts for the pruned rows
// before emitting a single Removed change; per PlaceholderOnPrune,
// Rows either carries the real pruned content or is left empty.
//
// When the caller already has the pruned rows (read before deleting
// them), pass them in rows and they're used directly. When rows is
// nil — the retention scheduler deletes in one transaction without
// reading the victims first — the six multisets are instead rebuilt
// from a full scan of whatever the source still holds, which is
// strictly slower but always correct.
func (v *View) OnPruned(ctx context.Context, fromID, toID int64, rows []store.Row) error {
	if rows != nil {
		for _, row := range rows {
			v.unaccumulate(row)
		}
	} else if err := v.recomputeMultisets(ctx); err != nil {
		return err
	}
	v.refreshFilterItems()

	change := Change{Kind: Removed, FromID: fromID, ToID: toID}
	if !v.PlaceholderOnPrune {
		change.Rows = rows
	}
	v.notify(change)
	return nil
}

// recomputeMultisets clears and rebuilds the six overview multisets
// from a full read of the source's surviving rows.
func (v *View) recomputeMultisets(ctx context.Context) error {
	v.mu.Lock()
	v.writers = make(map[string]int64)
	v.levels = make(map[string]int64)
	v.tags = make(map[string]int64)
	v.applications = make(map[string]int64)
	v.processNames = make(map[string]int64)
	v.processIDs = make(map[string]int64)
	v.mu.Unlock()

	oldest, newest, hasRows := v.source.Bounds()
	if !hasRows {
		return nil
	}
	return v.source.ReadRange(ctx, oldest, int(newest-oldest+1), func(row store.Row) error {
		v.accumulate(row)
		return nil
	})
}

// OverviewCounts returns a snapshot of one of the six overview
// multisets: "writer", "level", "tag", "application", "process", "pid".
func (v *View) OverviewCounts(field string) map[string]int64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	var src map[string]int64
	switch field {
	case "writer":
		src = v.writers
	case "level":
		src = v.levels
	case "tag":
		src = v.tags
	case "application":
		src = v.applications
	case "process":
		src = v.processNames
	case "pid":
		src = v.processIDs
	default:
		return nil
	}
	out := make(map[string]int64, len(src))
	for k, val := range src {
		out[k] = val
	}
	return out
}

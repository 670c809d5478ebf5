package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/store"
)

type fakeSource struct {
	rows map[int64]store.Row
}

func (f *fakeSource) Bounds() (int64, int64, bool) {
	if len(f.rows) == 0 {
		return 0, 0, false
	}
	oldest, newest := int64(-1), int64(-1)
	for id := range f.rows {
		if oldest == -1 || id < oldest {
			oldest = id
		}
		if id > newest {
			newest = id
		}
	}
	return oldest, newest, true
}

func (f *fakeSource) ReadRange(ctx context.Context, fromID int64, count int, callback func(store.Row) error) error {
	for id := fromID; id < fromID+int64(count); id++ {
		r, ok := f.rows[id]
		if !ok {
			break
		}
		if err := callback(r); err != nil {
			return err
		}
	}
	return nil
}

func TestOnAddedEmitsBatchedChangeForMatchingRows(t *testing.T) {
	src := &fakeSource{rows: map[int64]store.Row{
		0: {ID: 0, Writer: "console", Text: "hello"},
		1: {ID: 1, Writer: "file", Text: "world"},
	}}
	pred := &Predicate{Substring: "hello"}
	v := New(src, pred)

	var got []Change
	v.Subscribe(func(c Change) { got = append(got, c) })

	require.NoError(t, v.OnAdded(context.Background(), 0, 1))
	require.Len(t, got, 1)
	assert.Equal(t, Added, got[0].Kind)
	require.Len(t, got[0].Rows, 1)
	assert.Equal(t, "hello", got[0].Rows[0].Text)
}

func TestFieldFilterSelectionNarrowsMatches(t *testing.T) {
	src := &fakeSource{rows: map[int64]store.Row{
		0: {ID: 0, Writer: "console", Text: "a"},
		1: {ID: 1, Writer: "file", Text: "b"},
	}}
	writers := NewFieldFilter()
	pred := &Predicate{Writers: writers}
	v := New(src, pred)

	var got []Change
	v.Subscribe(func(c Change) { got = append(got, c) })
	require.NoError(t, v.OnAdded(context.Background(), 0, 1))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Rows, 2) // no selection yet: inert filter

	writers.Select("console", true)
	assert.True(t, pred.Matches(store.Row{Writer: "console"}))
	assert.False(t, pred.Matches(store.Row{Writer: "file"}))
}

func TestAccumulateItemsSurvivesPrune(t *testing.T) {
	f := NewFieldFilter()
	f.accumulateItems(map[string]struct{}{"console": {}}, nil)
	require.Len(t, f.Items(), 1)

	// Simulate the value no longer present in the unfiltered set.
	f.accumulateItems(map[string]struct{}{}, nil)
	items := f.Items()
	require.Len(t, items, 1)
	assert.False(t, items[0].ValueUsed)
}

func TestOverviewCountsAggregatePerField(t *testing.T) {
	src := &fakeSource{rows: map[int64]store.Row{
		0: {ID: 0, Writer: "console"},
		1: {ID: 1, Writer: "console"},
		2: {ID: 2, Writer: "file"},
	}}
	v := New(src, nil)
	require.NoError(t, v.OnAdded(context.Background(), 0, 2))

	counts := v.OverviewCounts("writer")
	assert.EqualValues(t, 2, counts["console"])
	assert.EqualValues(t, 1, counts["file"])
}

func TestPlaceholderOnPruneOmitsRowsByDefault(t *testing.T) {
	v := New(&fakeSource{rows: map[int64]store.Row{}}, nil)

	var got Change
	v.Subscribe(func(c Change) { got = c })
	require.NoError(t, v.OnPruned(context.Background(), 0, 2, []store.Row{{ID: 0}, {ID: 1}, {ID: 2}}))

	assert.Equal(t, Removed, got.Kind)
	assert.Nil(t, got.Rows)
}

func TestOnPrunedDecrementsOverviewCountsWithSuppliedRows(t *testing.T) {
	src := &fakeSource{rows: map[int64]store.Row{
		0: {ID: 0, Writer: "console"},
		1: {ID: 1, Writer: "console"},
		2: {ID: 2, Writer: "file"},
	}}
	v := New(src, nil)
	require.NoError(t, v.OnAdded(context.Background(), 0, 2))

	require.NoError(t, v.OnPruned(context.Background(), 0, 0, []store.Row{{ID: 0, Writer: "console"}}))

	counts := v.OverviewCounts("writer")
	assert.EqualValues(t, 1, counts["console"])
	assert.EqualValues(t, 1, counts["file"])
}

func TestOnPrunedRecomputesFromSourceWhenRowsUnavailable(t *testing.T) {
	src := &fakeSource{rows: map[int64]store.Row{
		0: {ID: 0, Writer: "console"},
		1: {ID: 1, Writer: "console"},
		2: {ID: 2, Writer: "file"},
	}}
	v := New(src, nil)
	require.NoError(t, v.OnAdded(context.Background(), 0, 2))

	// Simulate the scheduler having already deleted id 0 from the
	// source before notifying the view, without supplying rows.
	delete(src.rows, 0)
	require.NoError(t, v.OnPruned(context.Background(), 0, 0, nil))

	counts := v.OverviewCounts("writer")
	assert.EqualValues(t, 1, counts["console"])
	assert.EqualValues(t, 1, counts["file"])
}

func TestValueUsedTracksFullRunningSetNotJustLatestBatch(t *testing.T) {
	src := &fakeSource{rows: map[int64]store.Row{
		0: {ID: 0, Writer: "console"},
	}}
	writers := NewFieldFilter()
	v := New(src, &Predicate{Writers: writers})
	require.NoError(t, v.OnAdded(context.Background(), 0, 0))

	items := writers.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].ValueUsed)

	// A second batch that never mentions "console" again must not mark
	// it unused — thousands of earlier rows still carry it.
	src.rows[1] = store.Row{ID: 1, Writer: "file"}
	require.NoError(t, v.OnAdded(context.Background(), 1, 1))

	items = writers.Items()
	require.Len(t, items, 2)
	for _, it := range items {
		assert.True(t, it.ValueUsed, "value %q should still be used", it.Value)
	}
}

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/store"
)

type fakeSource struct {
	oldest, newest int64
	hasRows        bool
	rows           map[int64]store.Row
}

func (f *fakeSource) Bounds() (int64, int64, bool) { return f.oldest, f.newest, f.hasRows }

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

func newFakeSource(n int) *fakeSource {
	rows := make(map[int64]store.Row, n)
	for i := 0; i < n; i++ {
		rows[int64(i)] = store.Row{ID: int64(i), Text: "row"}
	}
	return &fakeSource{oldest: 0, newest: int64(n - 1), hasRows: n > 0, rows: rows}
}

func TestGetReadsThroughAndCaches(t *testing.T) {
	src := newFakeSource(10)
	c, err := New(src, 4, 4)
	require.NoError(t, err)

	row, ok, err := c.Get(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 5, row.ID)

	c.mu.Lock()
	_, cached := c.pages.Peek(int64(4))
	c.mu.Unlock()
	assert.True(t, cached)
}

func TestPruneNotificationEvictsOverlappingPages(t *testing.T) {
	src := newFakeSource(10)
	c, err := New(src, 4, 4)
	require.NoError(t, err)

	_, _, _ = c.Get(context.Background(), 1)
	c.PruneNotification(0, 3)

	c.mu.Lock()
	_, ok := c.pages.Peek(int64(0))
	c.mu.Unlock()
	assert.False(t, ok)
}

func TestEmptySourceReturnsNotFound(t *testing.T) {
	src := &fakeSource{hasRows: false}
	c, err := New(src, 2, 4)
	require.NoError(t, err)

	_, ok, err := c.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

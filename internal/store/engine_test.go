package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/intern"
	"logcore/internal/record"
)

func newTestRecord(t *testing.T, pool *record.Pool, text string) *record.Record {
	t.Helper()
	r := pool.Get(record.Fields{
		Writer:      "console",
		Level:       "Info",
		Application: "svc",
		Process:     "worker",
		ProcessID:   42,
		Text:        text,
	})
	r.Publish()
	return r
}

func openTestEngine(t *testing.T, schema Schema) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	e, err := Open(path, Options{Schema: schema, Durability: Fast, AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestAppendAssignsDenseIncreasingIDs(t *testing.T) {
	for _, schema := range []Schema{Recording, Analysis} {
		e := openTestEngine(t, schema)
		pool := record.NewPool(intern.New())
		ctx := context.Background()

		id0, err := e.Append(ctx, newTestRecord(t, pool, "first"))
		require.NoError(t, err)
		assert.EqualValues(t, 0, id0)

		id1, err := e.Append(ctx, newTestRecord(t, pool, "second"))
		require.NoError(t, err)
		assert.EqualValues(t, 1, id1)

		_, newest, hasRows := e.Bounds()
		assert.True(t, hasRows)
		assert.EqualValues(t, 1, newest)
	}
}

func TestReadRangeJoinsTextAndDictionaries(t *testing.T) {
	e := openTestEngine(t, Analysis)
	pool := record.NewPool(intern.New())
	ctx := context.Background()

	_, err := e.Append(ctx, newTestRecord(t, pool, "hello"))
	require.NoError(t, err)

	var rows []Row
	err = e.ReadRange(ctx, 0, 10, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0].Text)
	assert.Equal(t, "console", rows[0].Writer)
	assert.Equal(t, 42, rows[0].ProcessID)
}

func TestPruneByCount(t *testing.T) {
	e := openTestEngine(t, Recording)
	pool := record.NewPool(intern.New())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.Append(ctx, newTestRecord(t, pool, "x"))
		require.NoError(t, err)
	}

	cut, pruned, err := e.Prune(ctx, 2, 0)
	require.NoError(t, err)
	assert.True(t, pruned)
	assert.EqualValues(t, 2, cut) // ids 0,1,2 removed, leaving 3,4

	oldest, newest, hasRows := e.Bounds()
	assert.True(t, hasRows)
	assert.EqualValues(t, 3, oldest)
	assert.EqualValues(t, 4, newest)
}

func TestPruneByAge(t *testing.T) {
	e := openTestEngine(t, Recording)
	pool := record.NewPool(intern.New())
	ctx := context.Background()

	_, err := e.Append(ctx, newTestRecord(t, pool, "old"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = e.Append(ctx, newTestRecord(t, pool, "new"))
	require.NoError(t, err)

	_, pruned, err := e.Prune(ctx, -1, 2*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, pruned)

	oldest, _, hasRows := e.Bounds()
	assert.True(t, hasRows)
	assert.EqualValues(t, 1, oldest)
}

func TestClearMessagesOnlyPreservesDictionaries(t *testing.T) {
	e := openTestEngine(t, Analysis)
	pool := record.NewPool(intern.New())
	ctx := context.Background()

	_, err := e.Append(ctx, newTestRecord(t, pool, "x"))
	require.NoError(t, err)

	require.NoError(t, e.Clear(ctx, true))

	var count int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM writers").Scan(&count))
	assert.Equal(t, 1, count)

	_, _, hasRows := e.Bounds()
	assert.False(t, hasRows)
}

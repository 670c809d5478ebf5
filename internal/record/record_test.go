package record

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/intern"
	"logcore/internal/level"
)

func newTestPool() *Pool {
	return NewPool(intern.New())
}

func TestPoolGetInitialRefCountIsOne(t *testing.T) {
	pool := newTestPool()
	r := pool.Get(Fields{Text: "hello"})
	assert.EqualValues(t, 1, r.RefCount())
	assert.Equal(t, "hello", r.Text())
}

func TestRetainReleaseReturnsToPool(t *testing.T) {
	pool := newTestPool()
	r := pool.Get(Fields{Text: "hello"})

	r.Retain()
	assert.EqualValues(t, 2, r.RefCount())

	r.Release()
	assert.EqualValues(t, 1, r.RefCount())

	r.Release()
	assert.EqualValues(t, 0, r.RefCount())
}

func TestUnderReleasePanics(t *testing.T) {
	pool := newTestPool()
	r := pool.Get(Fields{Text: "hello"})
	r.Release()

	assert.PanicsWithValue(t, ErrUnderRelease, func() {
		r.Release()
	})
}

func TestLostMessageCountIsSettableAfterPublish(t *testing.T) {
	pool := newTestPool()
	r := pool.Get(Fields{Text: "hello"})
	r.Publish()

	r.SetLostMessageCount(3)
	assert.EqualValues(t, 3, r.LostMessageCount())
}

func TestNamesAreInterned(t *testing.T) {
	table := intern.New()
	pool := NewPool(table)

	a := pool.Get(Fields{Writer: "console", Application: "svc"})
	b := pool.Get(Fields{Writer: "console", Application: "svc"})

	assert.Equal(t, a.Writer(), b.Writer())
	// Two distinct names (writer, application), each seen twice: the
	// table should still hold exactly two distinct strings.
	assert.Equal(t, 2, table.Len())
}

func TestHighPrecisionTimestampsAreStrictlyIncreasing(t *testing.T) {
	pool := newTestPool()
	prev := int64(-1)
	for i := 0; i < 1000; i++ {
		r := pool.Get(Fields{})
		assert.Greater(t, r.HighPrecisionNanos(), prev)
		prev = r.HighPrecisionNanos()
	}
}

func TestConcurrentRetainReleaseIsRaceFree(t *testing.T) {
	pool := newTestPool()
	r := pool.Get(Fields{Text: "x"})

	const n = 100
	r.Retain() // hold one extra so the pool can't recycle mid-test
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			r.Retain()
			time.Sleep(time.Microsecond)
			r.Release()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 2, r.RefCount())
	r.Release()
	r.Release()
}

func TestTagSetValidation(t *testing.T) {
	_, err := NewTagSet("bad tag")
	require.Error(t, err)

	_, err = NewTagSet("has\nnewline")
	require.Error(t, err)

	ts, err := NewTagSet("a.b-c_d", "a.b-c_d", "other")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Len())
}

func TestTagSetUnionDifferenceEqual(t *testing.T) {
	a, _ := NewTagSet("x", "y")
	b, _ := NewTagSet("y", "z")

	union := a.Union(b)
	assert.Equal(t, []string{"x", "y", "z"}, union.Items())

	diff := a.Difference(b)
	assert.Equal(t, []string{"x"}, diff.Items())

	assert.True(t, Empty().Equal(Empty()))
	assert.False(t, a.Equal(b))
}

func TestSentinelLevelFoldsToMostSevereRegularLevel(t *testing.T) {
	pool := newTestPool()
	pool.SetRegularLevels([]level.Level{{ID: 0, Name: "Critical"}, {ID: 1, Name: "Error"}, {ID: 2, Name: "Info"}})

	r := pool.Get(Fields{Level: level.SentinelAll, Text: "hello"})
	assert.Equal(t, "Critical", r.LevelName())

	r2 := pool.Get(Fields{Level: level.SentinelNone, Text: "hello"})
	assert.Equal(t, "Critical", r2.LevelName())

	r3 := pool.Get(Fields{Level: "Info", Text: "hello"})
	assert.Equal(t, "Info", r3.LevelName())
}

func TestSentinelLevelPassesThroughWithoutRegisteredLevels(t *testing.T) {
	pool := newTestPool()
	r := pool.Get(Fields{Level: level.SentinelAll, Text: "hello"})
	assert.Equal(t, level.SentinelAll, r.LevelName())
}

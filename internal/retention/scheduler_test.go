package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/intern"
	"logcore/internal/record"
	"logcore/internal/settings"
	"logcore/internal/store"
)

func openTestEngine(t *testing.T) *store.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	e, err := store.Open(path, store.Options{Schema: store.Recording, Durability: store.Fast, AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func appendRecords(t *testing.T, e *store.Engine, n int) {
	t.Helper()
	pool := record.NewPool(intern.New())
	ctx := context.Background()
	for i := 0; i < n; i++ {
		r := pool.Get(record.Fields{Writer: "console", Level: "Info", Application: "svc", Process: "worker", Text: "line"})
		r.Publish()
		_, err := e.Append(ctx, r)
		require.NoError(t, err)
		r.Release()
	}
}

func TestSchedulerPrunesAgainstLiveProxyBound(t *testing.T) {
	e := openTestEngine(t)
	appendRecords(t, e, 10)

	settingsStore := settings.NewStore()
	maxCountProxy := settingsStore.Register("retention", "max_count", int64(-1), settings.IntConverter{})

	s := NewScheduler(e, Config{CheckInterval: 10 * time.Millisecond, MaxCountProxy: maxCountProxy, DefaultMaxCount: -1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.NoError(t, maxCountProxy.Set("3"))

	deadline := time.Now().Add(time.Second)
	var oldest, newest int64
	var hasRows bool
	for time.Now().Before(deadline) {
		oldest, newest, hasRows = e.Bounds()
		if hasRows && newest-oldest+1 <= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.True(t, hasRows)
	assert.LessOrEqual(t, newest-oldest+1, int64(3))
}

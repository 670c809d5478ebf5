package stage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/intern"
	"logcore/internal/pipeline"
	"logcore/internal/record"
)

type fakeSyslogWriter struct {
	mu     sync.Mutex
	levels []string
	lines  []string
	closed bool
}

func (f *fakeSyslogWriter) WriteLevel(level, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeSyslogWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSyslogWriter) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.levels...), append([]string(nil), f.lines...)
}

func TestSyslogForwardsRecordsToWriter(t *testing.T) {
	w := &fakeSyslogWriter{}
	s := newSyslogWithWriter("syslog", w, pipeline.AsyncConfig{Capacity: 8, BatchMax: 4}, nil)
	require.NoError(t, s.OnInitialize(context.Background()))
	defer s.OnShutdown(context.Background())

	pool := record.NewPool(intern.New())
	rec := newTestRecord(pool, "disk at 90%")
	require.True(t, s.Enqueue(rec))
	rec.Release()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if levels, _ := w.snapshot(); len(levels) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	levels, lines := w.snapshot()
	require.Len(t, levels, 1)
	assert.Equal(t, "info", levels[0])
	assert.Contains(t, lines[0], "disk at 90%")
}

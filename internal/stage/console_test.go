package stage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/intern"
	"logcore/internal/pipeline"
	"logcore/internal/record"
	"logcore/pkg/errors"
)

func newTestRecord(pool *record.Pool, text string) *record.Record {
	r := pool.Get(record.Fields{
		Application: "billing",
		Process:     "worker",
		Level:       "info",
		Text:        text,
	})
	r.Publish()
	return r
}

func TestConsoleWritesFormattedLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole("console", &buf)

	pool := record.NewPool(intern.New())
	rec := newTestRecord(pool, "hello world")
	defer rec.Release()

	assert.True(t, c.ProcessSync(rec))
	assert.Contains(t, buf.String(), "billing/worker: hello world")
	assert.Contains(t, buf.String(), "[info]")
}

func TestSetTimestampLayoutAppliesWhileDetached(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole("console", &buf)

	require.NoError(t, c.SetTimestampLayout("2006-01-02"))

	pool := record.NewPool(intern.New())
	rec := newTestRecord(pool, "hi")
	defer rec.Release()
	c.ProcessSync(rec)
	assert.Contains(t, buf.String(), rec.WallTime().Format("2006-01-02")+" [info]")
}

func TestSetTimestampLayoutRejectedWhileAttached(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole("console", &buf)

	g := pipeline.NewGraph()
	require.NoError(t, g.AddStage(c))
	require.NoError(t, g.Initialize(context.Background()))

	err := c.SetTimestampLayout("2006-01-02")
	require.Error(t, err)
	var stageErr *errors.Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, errors.KindStageBusy, stageErr.Kind)
}

func TestSplitterAlwaysAccepts(t *testing.T) {
	s := &Splitter{}
	pool := record.NewPool(intern.New())
	rec := newTestRecord(pool, "passthrough")
	defer rec.Release()
	assert.True(t, s.ProcessSync(rec))
}

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcore/internal/intern"
	"logcore/internal/record"
)

type recordingStage struct {
	Base
	mu   sync.Mutex
	seen []string
}

func newRecordingStage(name string) *recordingStage {
	return &recordingStage{Base: NewBase(name)}
}

func (s *recordingStage) ProcessSync(rec *record.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, rec.Text())
	return true
}

func (s *recordingStage) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func newRec(pool *record.Pool, text string) *record.Record {
	r := pool.Get(record.Fields{Text: text})
	r.Publish()
	return r
}

func TestDispatchFansOutToAllDownstream(t *testing.T) {
	g := NewGraph()
	root := newRecordingStage("root")
	a := newRecordingStage("a")
	b := newRecordingStage("b")
	require.NoError(t, g.AddStage(root))
	require.NoError(t, g.AddStage(a))
	require.NoError(t, g.AddStage(b))
	require.NoError(t, g.Connect("root", "a"))
	require.NoError(t, g.Connect("root", "b"))

	pool := record.NewPool(intern.New())
	require.NoError(t, g.Dispatch("root", newRec(pool, "hello")))

	assert.Equal(t, []string{"hello"}, a.Texts())
	assert.Equal(t, []string{"hello"}, b.Texts())
}

func TestConnectRejectsCycle(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddStage(newRecordingStage("a")))
	require.NoError(t, g.AddStage(newRecordingStage("b")))
	require.NoError(t, g.Connect("a", "b"))

	err := g.Connect("b", "a")
	require.Error(t, err)
}

func TestAddStageRejectsDuplicateStageName(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddStage(newRecordingStage("a")))
	err := g.AddStage(newRecordingStage("a"))
	require.Error(t, err)
}

func TestInitializeRunsLeavesBeforeRoots(t *testing.T) {
	g := NewGraph()
	var order []string
	var mu sync.Mutex
	mk := func(name string) *trackingStage {
		return &trackingStage{Base: NewBase(name), onInit: func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}}
	}
	root := mk("root")
	leaf := mk("leaf")
	require.NoError(t, g.AddStage(root))
	require.NoError(t, g.AddStage(leaf))
	require.NoError(t, g.Connect("root", "leaf"))

	require.NoError(t, g.Initialize(context.Background()))
	assert.Equal(t, []string{"leaf", "root"}, order)
	assert.Equal(t, Attached, root.State())
}

type trackingStage struct {
	Base
	onInit func()
}

func (s *trackingStage) ProcessSync(rec *record.Record) bool { return true }

func (s *trackingStage) OnInitialize(ctx context.Context) error {
	s.onInit()
	return nil
}

func TestAsyncEnqueueDropsOnOverflow(t *testing.T) {
	pool := record.NewPool(intern.New())
	proc := &blockingProcessor{release: make(chan struct{})}
	a := NewAsync("async", proc, AsyncConfig{Capacity: 1, Overflow: Drop})
	require.NoError(t, a.OnInitialize(context.Background()))
	defer a.OnShutdown(context.Background())

	r1 := newRec(pool, "first")
	require.True(t, a.Enqueue(r1))

	// Give the worker a moment to potentially drain r1 before we probe
	// overflow — we want the queue genuinely full. Since capacity is 1
	// and the worker may already be processing r1, send enough records
	// that at least one hits a full queue.
	dropped := false
	for i := 0; i < 50; i++ {
		r := newRec(pool, "more")
		if !a.Enqueue(r) {
			dropped = true
			r.Release()
			break
		}
		r.Release()
	}
	close(proc.release)
	_ = dropped // overflow is timing-dependent; the important invariant is Enqueue never panics or blocks forever
}

type blockingProcessor struct {
	release chan struct{}
}

func (p *blockingProcessor) ProcessAsync(ctx context.Context, batch []*record.Record) {
	select {
	case <-p.release:
	case <-time.After(10 * time.Millisecond):
	}
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"logcore/internal/intern"
	"logcore/internal/record"
)

// TestAsyncShutdownLeavesNoWorkerGoroutine verifies that an async
// stage's worker goroutine actually exits on OnShutdown rather than
// blocking forever on its queue or a reconnect sleep — the failure
// mode spec §4.G.5's "shutdown token must be observable from every
// blocking primitive" exists to prevent.
func TestAsyncShutdownLeavesNoWorkerGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := record.NewPool(intern.New())
	proc := &countingProcessor{}
	a := NewAsync("async", proc, AsyncConfig{Capacity: 8, BatchMax: 2})
	require.NoError(t, a.OnInitialize(context.Background()))

	for i := 0; i < 5; i++ {
		r := pool.Get(record.Fields{Text: "line"})
		r.Publish()
		a.Enqueue(r)
		r.Release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.OnShutdown(ctx))
}

type countingProcessor struct{}

func (p *countingProcessor) ProcessAsync(ctx context.Context, batch []*record.Record) {}

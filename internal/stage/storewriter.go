package stage

import (
	"context"

	"github.com/sirupsen/logrus"

	"logcore/internal/pipeline"
	"logcore/internal/record"
	"logcore/internal/store"
)

// StoreWriter is an async stage that durably appends every record it
// receives to a store.Engine. It must be async: the store's commit
// path does disk I/O that would starve producers on a sync stage.
type StoreWriter struct {
	*pipeline.Async

	engine *store.Engine
	logger *logrus.Logger

	// OnAppended, if set, is invoked after a successful batch append
	// with the inclusive [fromID, toID] range — typically wired to a
	// view's OnAdded so the filtered projection stays current.
	OnAppended func(ctx context.Context, fromID, toID int64)
}

func NewStoreWriter(name string, engine *store.Engine, asyncCfg pipeline.AsyncConfig, logger *logrus.Logger) *StoreWriter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sw := &StoreWriter{engine: engine, logger: logger}
	sw.Async = pipeline.NewAsync(name, sw, asyncCfg)
	return sw
}

func (sw *StoreWriter) ProcessAsync(ctx context.Context, batch []*record.Record) {
	ids, err := sw.engine.AppendBatch(ctx, batch)
	if err != nil {
		sw.logger.WithFields(logrus.Fields{"stage": sw.Name(), "error": err, "batch_size": len(batch)}).
			Error("failed to append record batch to store")
		return
	}
	if len(ids) == 0 || sw.OnAppended == nil {
		return
	}
	sw.OnAppended(ctx, ids[0], ids[len(ids)-1])
}

var _ pipeline.AsyncProcessor = (*StoreWriter)(nil)

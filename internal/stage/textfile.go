package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"logcore/internal/pipeline"
	"logcore/internal/record"
	"logcore/pkg/errors"
)

// TextFileConfig controls where and how TextFile writes.
type TextFileConfig struct {
	Path            string
	MaxSizeBytes    int64 // rotate once the current file exceeds this; 0 disables rotation
	TimestampLayout string
}

// TextFile is an async stage that appends formatted lines to a local
// file, rotating by size. It must run async because file writes are
// I/O that could starve producers on a sync stage (spec §4.F).
type TextFile struct {
	*pipeline.Async

	cfg    TextFileConfig
	logger *logrus.Logger

	mu   sync.Mutex
	file *os.File
	size int64
}

func NewTextFile(name string, cfg TextFileConfig, asyncCfg pipeline.AsyncConfig, logger *logrus.Logger) *TextFile {
	if cfg.TimestampLayout == "" {
		cfg.TimestampLayout = defaultTimestampLayout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &TextFile{
		cfg:    cfg,
		logger: logger,
	}
	t.Async = pipeline.NewAsync(name, t, asyncCfg)
	return t
}

func (t *TextFile) OnInitialize(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(t.cfg.Path), 0o755); err != nil {
		return errors.WriteFailed("creating log directory").WithIdentifier(t.cfg.Path).WithCause(err)
	}
	f, err := os.OpenFile(t.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.WriteFailed("opening log file").WithIdentifier(t.cfg.Path).WithCause(err)
	}
	info, _ := f.Stat()
	t.mu.Lock()
	t.file = f
	if info != nil {
		t.size = info.Size()
	}
	t.mu.Unlock()

	return t.Async.OnInitialize(ctx)
}

func (t *TextFile) OnShutdown(ctx context.Context) error {
	err := t.Async.OnShutdown(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	return err
}

// ProcessAsync implements pipeline.AsyncProcessor.
func (t *TextFile) ProcessAsync(ctx context.Context, batch []*record.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return
	}

	for _, rec := range batch {
		line := fmt.Sprintf("%s [%s] %s/%s: %s",
			rec.WallTime().Format(t.cfg.TimestampLayout),
			rec.LevelName(), rec.Application(), rec.Process(), rec.Text())
		if rec.LostMessageCount() > 0 {
			line += fmt.Sprintf(" (lost %d preceding records)", rec.LostMessageCount())
		}
		line += "\n"

		n, err := t.file.WriteString(line)
		if err != nil {
			t.logger.WithFields(logrus.Fields{"stage": t.Name(), "error": err}).
				Error("failed to write record to log file")
			continue
		}
		t.size += int64(n)
	}

	if t.cfg.MaxSizeBytes > 0 && t.size >= t.cfg.MaxSizeBytes {
		t.rotateLocked()
	}
}

func (t *TextFile) rotateLocked() {
	t.file.Close()
	rotated := t.cfg.Path + ".1"
	os.Rename(t.cfg.Path, rotated)

	f, err := os.OpenFile(t.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.logger.WithFields(logrus.Fields{"stage": t.Name(), "error": err}).Error("failed to reopen log file after rotation")
		t.file = nil
		return
	}
	t.file = f
	t.size = 0
}

var _ pipeline.AsyncProcessor = (*TextFile)(nil)

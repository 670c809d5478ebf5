package stage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"logcore/internal/pipeline"
	"logcore/internal/record"
)

// Console is a sync stage that writes each record to a single writer
// (stdout by default) as a plain "timestamp [level]
// application/process: text" line. It does one write to that writer
// per record, which is why it is run as a sync stage rather than an
// async one.
type Console struct {
	pipeline.Base

	mu  sync.Mutex
	out io.Writer

	timestampLayout string
}

const defaultTimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func NewConsole(name string, out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		Base:            pipeline.NewBase(name),
		out:             out,
		timestampLayout: defaultTimestampLayout,
	}
}

// SetTimestampLayout changes the line-format timestamp layout. Settings
// may only change while the stage is Detached — calling this while the
// stage is attached to a running graph returns a StageBusy error
// instead of racing ProcessSync's read of the layout.
func (c *Console) SetTimestampLayout(layout string) error {
	if err := c.RequireDetached(c.Name()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestampLayout = layout
	return nil
}

func (c *Console) ProcessSync(rec *record.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s [%s] %s/%s: %s\n",
		rec.WallTime().Format(c.timestampLayout),
		rec.LevelName(),
		rec.Application(),
		rec.Process(),
		rec.Text(),
	)
	return true
}

var _ pipeline.SyncProcessor = (*Console)(nil)

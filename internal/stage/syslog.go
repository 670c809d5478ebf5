package stage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"logcore/internal/pipeline"
	"logcore/internal/record"
	"logcore/internal/syslogger"
)

// Syslog is an async stage that forwards each record to the host
// system logger (syslog on POSIX, a no-op elsewhere — see
// internal/syslogger). It is async for the same reason TextFile is:
// the underlying write is a blocking syscall to a daemon socket that
// must never stall a producer.
type Syslog struct {
	*pipeline.Async

	writer syslogger.Writer
	logger *logrus.Logger
}

func NewSyslog(name, tag string, asyncCfg pipeline.AsyncConfig, logger *logrus.Logger) (*Syslog, error) {
	w, err := syslogger.New(tag)
	if err != nil {
		return nil, err
	}
	return newSyslogWithWriter(name, w, asyncCfg, logger), nil
}

func newSyslogWithWriter(name string, w syslogger.Writer, asyncCfg pipeline.AsyncConfig, logger *logrus.Logger) *Syslog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Syslog{writer: w, logger: logger}
	s.Async = pipeline.NewAsync(name, s, asyncCfg)
	return s
}

func (s *Syslog) ProcessAsync(ctx context.Context, batch []*record.Record) {
	for _, rec := range batch {
		line := fmt.Sprintf("%s/%s: %s", rec.Application(), rec.Process(), rec.Text())
		if err := s.writer.WriteLevel(rec.LevelName(), line); err != nil {
			s.logger.WithFields(logrus.Fields{"stage": s.Name(), "error": err}).Warn("syslog write failed")
		}
	}
}

func (s *Syslog) OnShutdown(ctx context.Context) error {
	err := s.Async.OnShutdown(ctx)
	s.writer.Close()
	return err
}

var _ pipeline.AsyncProcessor = (*Syslog)(nil)

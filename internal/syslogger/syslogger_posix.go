//go:build linux || darwin || freebsd || netbsd || openbsd

package syslogger

import (
	"log/syslog"
)

// posixWriter forwards lines to the local syslog daemon, mapping the
// subsystem's level names onto syslog priorities.
type posixWriter struct {
	w *syslog.Writer
}

// New dials the local syslog daemon tagged as tag.
func New(tag string) (Writer, error) {
	w, err := syslog.New(syslog.LOG_INFO, tag)
	if err != nil {
		return nil, err
	}
	return &posixWriter{w: w}, nil
}

func (p *posixWriter) WriteLevel(level, line string) error {
	switch level {
	case "fatal", "critical":
		return p.w.Crit(line)
	case "error":
		return p.w.Err(line)
	case "warning", "warn":
		return p.w.Warning(line)
	case "debug", "trace":
		return p.w.Debug(line)
	default:
		return p.w.Info(line)
	}
}

func (p *posixWriter) Close() error { return p.w.Close() }

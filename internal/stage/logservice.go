package stage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"logcore/internal/circuitbreaker"
	"logcore/internal/metrics"
	"logcore/internal/pipeline"
	"logcore/internal/record"
)

// Frame types for the log-service wire protocol: a length-prefixed
// stream of frames, each [uint32 length][byte kind][payload]. Writer,
// level and tag names are interned per connection — the first time a
// name is referenced it is preceded by the matching Register frame,
// so records on the wire carry a 4-byte id instead of repeating the
// string. frameRecordGzip carries the same payload shape as
// frameRecord but gzip-compressed, used once a record's encoded size
// passes compressThresholdBytes.
const (
	frameRegisterWriter byte = 1
	frameRegisterLevel  byte = 2
	frameRegisterTag    byte = 3
	frameRecord         byte = 4
	frameRecordGzip     byte = 5
)

// compressThresholdBytes is the encoded-payload size above which a
// record frame is gzip-compressed before being written to the wire.
const compressThresholdBytes = 512

// LogServiceConfig configures the forwarder's remote endpoint and
// reconnect behaviour.
type LogServiceConfig struct {
	Address                    string
	DialTimeout                time.Duration
	AutoReconnectRetryInterval time.Duration
}

func (c *LogServiceConfig) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.AutoReconnectRetryInterval <= 0 {
		c.AutoReconnectRetryInterval = 5 * time.Second
	}
}

// LogService is an async forwarder stage that streams records to a
// remote collector over the framing above, reconnecting through a
// circuit breaker when the connection drops. Its retry sleep is
// always interruptible by the shutdown token, never a bare time.Sleep
// — spec §4.G.5 requires a blocked reconnect loop to honour shutdown
// promptly.
type LogService struct {
	*pipeline.Async

	cfg     LogServiceConfig
	breaker *circuitbreaker.Breaker
	logger  *logrus.Logger

	mu       sync.Mutex
	conn     net.Conn
	writer   *bufio.Writer
	nextID   int32
	writerID map[string]int32
	levelID  map[string]int32
	tagID    map[string]int32
}

func NewLogService(name string, cfg LogServiceConfig, asyncCfg pipeline.AsyncConfig, logger *logrus.Logger) *LogService {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ls := &LogService{
		cfg:     cfg,
		breaker: circuitbreaker.New(circuitbreaker.Config{Name: name, OpenTimeout: cfg.AutoReconnectRetryInterval}, logger),
		logger:  logger,
	}
	ls.resetIDTables()
	ls.Async = pipeline.NewAsync(name, ls, asyncCfg)
	return ls
}

func (ls *LogService) resetIDTables() {
	ls.writerID = make(map[string]int32)
	ls.levelID = make(map[string]int32)
	ls.tagID = make(map[string]int32)
	ls.nextID = 0
}

func (ls *LogService) ProcessAsync(ctx context.Context, batch []*record.Record) {
	defer metrics.ForwarderCircuitState.WithLabelValues(ls.Name()).Set(float64(ls.breaker.State()))

	if err := ls.ensureConnected(ctx); err != nil {
		ls.logger.WithFields(logrus.Fields{"stage": ls.Name(), "error": err}).Warn("log-service forwarder could not connect")
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for _, rec := range batch {
		if err := ls.writeRecordLocked(rec); err != nil {
			ls.logger.WithFields(logrus.Fields{"stage": ls.Name(), "error": err}).Error("log-service write failed, dropping connection")
			ls.closeLocked()
			ls.breaker.RecordFailure()
			return
		}
	}
	if err := ls.writer.Flush(); err != nil {
		ls.closeLocked()
		ls.breaker.RecordFailure()
		return
	}
	ls.breaker.RecordSuccess()
}

// ensureConnected blocks, with an interruptible sleep between
// attempts, until either a connection is established or ctx is
// cancelled (which happens once shutdown signals the stage's token).
func (ls *LogService) ensureConnected(ctx context.Context) error {
	ls.mu.Lock()
	connected := ls.conn != nil
	ls.mu.Unlock()
	if connected {
		return nil
	}

	for {
		if ls.breaker.Allow() {
			conn, err := net.DialTimeout("tcp", ls.cfg.Address, ls.cfg.DialTimeout)
			if err == nil {
				ls.mu.Lock()
				ls.conn = conn
				ls.writer = bufio.NewWriter(conn)
				ls.resetIDTables()
				ls.mu.Unlock()
				return nil
			}
			ls.breaker.RecordFailure()
		}

		timer := time.NewTimer(ls.cfg.AutoReconnectRetryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (ls *LogService) writeRecordLocked(rec *record.Record) error {
	writerID, isNew := ls.internLocked(ls.writerID, rec.Writer())
	if isNew {
		if err := ls.writeRegisterLocked(frameRegisterWriter, writerID, rec.Writer()); err != nil {
			return err
		}
	}
	levelID, isNew := ls.internLocked(ls.levelID, rec.LevelName())
	if isNew {
		if err := ls.writeRegisterLocked(frameRegisterLevel, levelID, rec.LevelName()); err != nil {
			return err
		}
	}
	var tagIDs []int32
	for _, tag := range rec.Tags().Items() {
		id, isNew := ls.internLocked(ls.tagID, tag)
		if isNew {
			if err := ls.writeRegisterLocked(frameRegisterTag, id, tag); err != nil {
				return err
			}
		}
		tagIDs = append(tagIDs, id)
	}

	payload := make([]byte, 0, 64+len(rec.Application())+len(rec.Process())+len(rec.Text())+4*len(tagIDs))
	payload = appendInt64(payload, rec.WallTime().UnixNano())
	payload = appendInt64(payload, int64(rec.WallOffset()))
	payload = appendInt64(payload, rec.HighPrecisionNanos())
	payload = appendInt64(payload, rec.LostMessageCount())
	payload = appendInt32(payload, int32(rec.ProcessID()))
	payload = appendInt32(payload, writerID)
	payload = appendInt32(payload, levelID)
	payload = appendString(payload, rec.Application())
	payload = appendString(payload, rec.Process())
	payload = appendInt32(payload, int32(len(tagIDs)))
	for _, id := range tagIDs {
		payload = appendInt32(payload, id)
	}
	payload = appendString(payload, rec.Text())

	if len(payload) > compressThresholdBytes {
		compressed, err := gzipCompress(payload)
		if err == nil {
			return ls.writeFrameLocked(frameRecordGzip, compressed)
		}
	}
	return ls.writeFrameLocked(frameRecord, payload)
}

func gzipCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ls *LogService) internLocked(table map[string]int32, name string) (int32, bool) {
	if id, ok := table[name]; ok {
		return id, false
	}
	id := ls.nextID
	ls.nextID++
	table[name] = id
	return id, true
}

func (ls *LogService) writeRegisterLocked(kind byte, id int32, name string) error {
	payload := appendString(appendInt32(nil, id), name)
	return ls.writeFrameLocked(kind, payload)
}

func (ls *LogService) writeFrameLocked(kind byte, payload []byte) error {
	var header [5]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)+1))
	header[4] = kind
	if _, err := ls.writer.Write(header[:]); err != nil {
		return err
	}
	_, err := ls.writer.Write(payload)
	return err
}

func (ls *LogService) closeLocked() {
	if ls.conn != nil {
		ls.conn.Close()
		ls.conn = nil
		ls.writer = nil
	}
}

func (ls *LogService) OnShutdown(ctx context.Context) error {
	err := ls.Async.OnShutdown(ctx)
	ls.mu.Lock()
	ls.closeLocked()
	ls.mu.Unlock()
	return err
}

func appendInt32(b []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	return append(b, tmp[:]...)
}

func appendInt64(b []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(b, tmp[:]...)
}

func appendString(b []byte, s string) []byte {
	b = appendInt32(b, int32(len(s)))
	return append(b, s...)
}

var _ pipeline.AsyncProcessor = (*LogService)(nil)

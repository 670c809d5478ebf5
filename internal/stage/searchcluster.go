package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"logcore/internal/circuitbreaker"
	"logcore/internal/metrics"
	"logcore/internal/pipeline"
	"logcore/internal/record"
	"logcore/pkg/errors"
)

// searchClusterSchemaVersion is stamped onto every document sent to
// the remote cluster so a later reader can tell which document shape
// it is looking at.
const searchClusterSchemaVersion = 1

// SearchClusterConfig configures the forwarder's bulk endpoint.
type SearchClusterConfig struct {
	BulkURL        string // e.g. "https://search.example.internal/_bulk"
	IndexPrefix    string
	RequestTimeout time.Duration
	Compress       bool
}

func (c *SearchClusterConfig) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = "logs"
	}
}

type searchDocument struct {
	SchemaVersion int      `json:"schema_version"`
	Timestamp     string   `json:"@timestamp"`
	Writer        string   `json:"writer"`
	Level         string   `json:"level"`
	Application   string   `json:"application"`
	Process       string   `json:"process"`
	ProcessID     int      `json:"process_id"`
	Tags          []string `json:"tags,omitempty"`
	Text          string   `json:"text"`
	LostMessages  int64    `json:"lost_messages,omitempty"`
}

// SearchCluster is an async forwarder stage that bulk-indexes records
// into a remote search cluster using the newline-delimited-JSON bulk
// body: one action line followed by one document line per record.
type SearchCluster struct {
	*pipeline.Async

	cfg     SearchClusterConfig
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *logrus.Logger
}

func NewSearchCluster(name string, cfg SearchClusterConfig, asyncCfg pipeline.AsyncConfig, logger *logrus.Logger) *SearchCluster {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sc := &SearchCluster{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		breaker: circuitbreaker.New(circuitbreaker.Config{Name: name}, logger),
		logger:  logger,
	}
	sc.Async = pipeline.NewAsync(name, sc, asyncCfg)
	return sc
}

func (sc *SearchCluster) ProcessAsync(ctx context.Context, batch []*record.Record) {
	defer metrics.ForwarderCircuitState.WithLabelValues(sc.Name()).Set(float64(sc.breaker.State()))

	if !sc.breaker.Allow() {
		metrics.RecordsDroppedTotal.WithLabelValues(sc.Name(), "circuit_open").Add(float64(len(batch)))
		sc.logger.WithField("stage", sc.Name()).Warn("search-cluster circuit open, dropping batch")
		return
	}

	body, err := sc.buildBulkBody(batch)
	if err != nil {
		sc.logger.WithFields(logrus.Fields{"stage": sc.Name(), "error": err}).Error("failed to build bulk body")
		return
	}

	if err := sc.send(ctx, body); err != nil {
		sc.logger.WithFields(logrus.Fields{"stage": sc.Name(), "error": err}).Warn("bulk request failed")
		sc.breaker.RecordFailure()
		return
	}
	sc.breaker.RecordSuccess()
}

func (sc *SearchCluster) buildBulkBody(batch []*record.Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range batch {
		index := fmt.Sprintf("%s-%s", sc.cfg.IndexPrefix, rec.WallTime().UTC().Format("2006.01.02"))
		action := map[string]any{"create": map[string]any{"_index": index}}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		buf.Write(actionLine)
		buf.WriteByte('\n')

		doc := searchDocument{
			SchemaVersion: searchClusterSchemaVersion,
			Timestamp:     rec.WallTime().UTC().Format(time.RFC3339Nano),
			Writer:        rec.Writer(),
			Level:         rec.LevelName(),
			Application:   rec.Application(),
			Process:       rec.Process(),
			ProcessID:     rec.ProcessID(),
			Tags:          rec.Tags().Items(),
			Text:          rec.Text(),
			LostMessages:  rec.LostMessageCount(),
		}
		docLine, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		buf.Write(docLine)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (sc *SearchCluster) send(ctx context.Context, body []byte) error {
	contentEncoding := ""
	if sc.cfg.Compress {
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		if _, err := w.Write(body); err != nil {
			return errors.Transport("compressing bulk body").WithCause(err)
		}
		if err := w.Close(); err != nil {
			return errors.Transport("closing gzip writer").WithCause(err)
		}
		body = gz.Bytes()
		contentEncoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.cfg.BulkURL, bytes.NewReader(body))
	if err != nil {
		return errors.Transport("building bulk request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return errors.Transport("bulk request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Transport(fmt.Sprintf("bulk request returned status %d", resp.StatusCode))
	}
	return nil
}

var _ pipeline.AsyncProcessor = (*SearchCluster)(nil)

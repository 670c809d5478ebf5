// Package retention periodically enforces the store's prune bounds
// (spec §4.I's maxCount/maxAge) so a long-running process doesn't grow
// its record store file without limit. It has no file-system
// awareness of its own — it only ever asks the store engine to prune
// itself — unlike disk-quota managers that walk directories directly.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"logcore/internal/settings"
	"logcore/internal/store"
)

// Config names the settings this scheduler reads through proxies, so
// a live configuration change is picked up on the next tick without a
// restart.
type Config struct {
	// CheckInterval is how often the scheduler calls Prune.
	CheckInterval time.Duration

	// MaxCountProxy and MaxAgeProxy back the same bounds store.Engine.Prune
	// takes directly; either may be nil, in which case the scheduler
	// falls back to Defaults.
	MaxCountProxy *settings.Proxy
	MaxAgeProxy   *settings.Proxy

	// Defaults apply when a proxy is nil or its current value doesn't
	// resolve to the expected type.
	DefaultMaxCount int64
	DefaultMaxAge   time.Duration

	// OnPruned, if set, is called with the removed range after a prune
	// actually removes rows: the oldest id as it was before the prune
	// and the cut id, both inclusive, so the cache and view can discard
	// what the store no longer has (spec §4.J pruneNotification, §4.K's
	// Removed change).
	OnPruned func(ctx context.Context, firstRemovedID, cutID int64)
}

func (c *Config) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.DefaultMaxCount == 0 {
		c.DefaultMaxCount = -1
	}
}

// Scheduler drives store.Engine.Prune on a ticker, reading its bounds
// from settings proxies on every tick rather than once at startup, so
// a stage-settings reload changes retention without restarting the
// process.
type Scheduler struct {
	engine *store.Engine
	cfg    Config
	logger *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(engine *store.Engine, cfg Config, logger *logrus.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{engine: engine, cfg: cfg, logger: logger}
}

// Start begins the prune loop. It runs one prune immediately rather
// than waiting a full interval, so a process that restarts with a
// tightened bound enforces it right away.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(loopCtx)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.pruneOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneOnce(ctx)
		}
	}
}

func (s *Scheduler) pruneOnce(ctx context.Context) {
	maxCount := s.cfg.DefaultMaxCount
	if s.cfg.MaxCountProxy != nil {
		if v, ok := s.cfg.MaxCountProxy.Get(); ok {
			switch n := v.(type) {
			case int64:
				maxCount = n
			case int:
				maxCount = int64(n)
			}
		}
	}
	maxAge := s.cfg.DefaultMaxAge
	if s.cfg.MaxAgeProxy != nil {
		if v, ok := s.cfg.MaxAgeProxy.Get(); ok {
			if d, ok := v.(time.Duration); ok {
				maxAge = d
			}
		}
	}

	prevOldest, _, _ := s.engine.Bounds()

	cutID, pruned, err := s.engine.Prune(ctx, maxCount, maxAge)
	if err != nil {
		s.logger.WithError(err).Warn("retention prune failed")
		return
	}
	if pruned {
		s.logger.WithFields(logrus.Fields{"cut_id": cutID, "max_count": maxCount, "max_age": maxAge}).Info("retention prune removed rows")
		if s.cfg.OnPruned != nil {
			s.cfg.OnPruned(ctx, prevOldest, cutID)
		}
	}
}

// Package circuitbreaker implements a three-state (closed, open,
// half-open) circuit breaker shared by the forwarder stages (spec
// §6): a forwarder that cannot reach its remote collector trips the
// breaker rather than retrying every record against a dead endpoint.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls trip/reset thresholds. Zero values are replaced with
// sane defaults by New.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// Breaker is the shared trip/half-open/reset state machine used by
// both the log-service and search-cluster forwarders.
type Breaker struct {
	config Config
	logger *logrus.Logger

	mu                sync.Mutex
	state             State
	consecutiveFails  int
	halfOpenSuccesses int
	nextRetry         time.Time
}

func New(config Config, logger *logrus.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Breaker{config: config, logger: logger, state: Closed}
}

// Allow reports whether a call may proceed right now. Callers that get
// false back must not attempt the call; a forwarder stage treats this
// the same as a queue-full condition and drops or re-queues.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Now().Before(b.nextRetry) {
			return false
		}
		b.transition(HalfOpen)
		b.halfOpenSuccesses = 0
		return true
	case HalfOpen:
		// Exactly one probe call is allowed in flight at a time; the
		// caller that wins the race through Allow proceeds, everyone
		// else waits for the next tick.
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful call. In half-open state enough
// consecutive successes closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails = 0
	if b.state != HalfOpen {
		return
	}
	b.halfOpenSuccesses++
	if b.halfOpenSuccesses >= b.config.SuccessThreshold {
		b.transition(Closed)
	}
}

// RecordFailure reports a failed call. In half-open state this
// re-opens immediately; in closed state enough consecutive failures
// trips the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trip()
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.config.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.transition(Open)
	b.nextRetry = time.Now().Add(b.config.OpenTimeout)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.logger.WithFields(logrus.Fields{
		"breaker": b.config.Name,
		"from":    from.String(),
		"to":      to.String(),
	}).Info("circuit breaker state changed")
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.consecutiveFails = 0
	b.halfOpenSuccesses = 0
}

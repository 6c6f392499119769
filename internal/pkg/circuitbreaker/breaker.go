package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
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

// Breaker trips after threshold consecutive failures and lets halfOpenMax
// probe calls through once timeout has elapsed.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	threshold   int
	timeout     time.Duration
	halfOpenMax int
	lastFailure time.Time
	halfOpenCnt int
	now         func() time.Time
}

func NewBreaker(threshold int, timeout time.Duration, halfOpenMax int) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if halfOpenMax <= 0 {
		halfOpenMax = 1
	}
	return &Breaker{
		state:       Closed,
		threshold:   threshold,
		timeout:     timeout,
		halfOpenMax: halfOpenMax,
		now:         time.Now,
	}
}

// Do runs fn when the breaker allows it and records the result.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) > b.timeout {
			b.state = HalfOpen
			b.halfOpenCnt = 1
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenCnt >= b.halfOpenMax {
			return false
		}
		b.halfOpenCnt++
		return true
	default:
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

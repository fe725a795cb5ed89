package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBreakerOpen is returned when a key's breaker rejects a call.
var ErrBreakerOpen = eris.New("resilience: circuit open")

// BreakerState is the state of one key's breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type breaker struct {
	state    BreakerState
	failures int
	openedAt time.Time
}

// Breakers keeps an independent circuit breaker per key (usually a host).
// After Threshold consecutive failures a key opens for Cooldown; the next
// call after that is a probe whose outcome closes or re-opens the key.
type Breakers struct {
	Threshold int
	Cooldown  time.Duration

	mu    sync.Mutex
	keys  map[string]*breaker
	clock func() time.Time
}

// NewBreakers creates a breaker set.
func NewBreakers(threshold int, cooldown time.Duration) *Breakers {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breakers{
		Threshold: threshold,
		Cooldown:  cooldown,
		keys:      make(map[string]*breaker),
		clock:     time.Now,
	}
}

// Allow returns ErrBreakerOpen when key is open and still cooling down.
func (b *Breakers) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	if br.state != BreakerOpen {
		return nil
	}
	if b.clock().Sub(br.openedAt) >= b.Cooldown {
		br.state = BreakerHalfOpen
		return nil
	}
	return eris.Wrapf(ErrBreakerOpen, "key %s", key)
}

// Record feeds the outcome of a call for key.
func (b *Breakers) Record(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	if err == nil {
		br.state = BreakerClosed
		br.failures = 0
		return
	}

	br.failures++
	if br.state == BreakerHalfOpen || br.failures >= b.Threshold {
		if br.state != BreakerOpen {
			zap.L().Warn("resilience: circuit opened", zap.String("key", key), zap.Int("failures", br.failures))
		}
		br.state = BreakerOpen
		br.openedAt = b.clock()
	}
}

// State returns key's current state.
func (b *Breakers) State(key string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(key).state
}

func (b *Breakers) get(key string) *breaker {
	br, ok := b.keys[key]
	if !ok {
		br = &breaker{}
		b.keys[key] = br
	}
	return br
}

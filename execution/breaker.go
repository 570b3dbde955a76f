package execution

import (
	"sync"
	"time"

	"github.com/cryptooracle/oraclebot/core"
)

// Circuit breaker defaults: three consecutive order failures halt the
// symbol for ten minutes
const (
	breakerThreshold = 3
	breakerCooldown  = 600 * time.Second
)

// Breaker is the per-symbol circuit breaker over repeated order
// failures. It wraps the persisted BreakerState so trips survive a
// restart.
type Breaker struct {
	mu    sync.Mutex
	state *core.BreakerState
	log   core.Logger
}

// NewBreaker wraps the persisted breaker state
func NewBreaker(state *core.BreakerState, log core.Logger) *Breaker {
	return &Breaker{state: state, log: log}
}

// Open reports whether the breaker currently blocks orders
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.state.OpenUntil)
}

// Remaining returns how long the halt still lasts
func (b *Breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := time.Until(b.state.OpenUntil)
	if d < 0 {
		return 0
	}
	return d
}

// RecordFailure counts one order failure and reports whether this
// failure tripped the breaker
func (b *Breaker) RecordFailure(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Failures++
	if b.state.Failures < breakerThreshold {
		return false
	}

	b.state.OpenUntil = time.Now().Add(breakerCooldown)
	b.state.Failures = 0
	b.log.Warnf("circuit breaker armed for %s until %s", symbol, b.state.OpenUntil.Format(time.RFC3339))
	return true
}

// RecordSuccess resets the consecutive failure counter
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Failures = 0
}

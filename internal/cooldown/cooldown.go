// Package cooldown suppresses repeated trading on a symbol inside a
// configured time window.
package cooldown

import (
	"sync"
	"time"
)

// Gate tracks the last trade time per symbol. The cooldown is evaluated
// lazily on each check against elapsed time; there are no timers and
// entries never expire explicitly.
type Gate struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewGate returns a gate with the given window. A zero or negative
// window disables gating entirely.
func NewGate(window time.Duration) *Gate {
	return &Gate{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// InCooldown reports whether symbol traded within the window.
func (g *Gate) InCooldown(symbol string) bool {
	if g.window <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.last[symbol]
	if !ok {
		return false
	}
	return g.now().Sub(last) < g.window
}

// Remaining returns how long until symbol leaves cooldown, zero when it
// already has.
func (g *Gate) Remaining(symbol string) time.Duration {
	if g.window <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.last[symbol]
	if !ok {
		return 0
	}
	if rem := g.window - g.now().Sub(last); rem > 0 {
		return rem
	}
	return 0
}

// NoteTrade records a successful order placement for symbol.
func (g *Gate) NoteTrade(symbol string) {
	g.mu.Lock()
	g.last[symbol] = g.now()
	g.mu.Unlock()
}

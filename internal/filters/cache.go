// Package filters caches per-symbol exchange trading filters and
// quantizes prices and quantities to their increments.
package filters

import (
	"context"
	"math"
	"sync"

	"imba/internal/broker"
	"imba/internal/logger"

	"github.com/shopspring/decimal"
)

// Permissive fallbacks used when the exchange metadata fetch fails.
// Trading continues on conservative guesses instead of blocking.
const (
	DefaultTickSize    = 0.01
	DefaultStepSize    = 0.001
	DefaultMinNotional = 5.0
)

// Cache fetches symbol filters once and keeps them for the process
// lifetime. Exchange filters rarely change intra-session; staleness is
// an accepted tradeoff.
type Cache struct {
	broker broker.Broker

	mu      sync.RWMutex
	filters map[string]broker.SymbolFilters
}

func NewCache(b broker.Broker) *Cache {
	return &Cache{
		broker:  b,
		filters: make(map[string]broker.SymbolFilters),
	}
}

// Get returns the filters for symbol, fetching them on first use. A
// failed fetch yields the permissive defaults without caching them, so
// a later call can still pick up the real values.
func (c *Cache) Get(ctx context.Context, symbol string) broker.SymbolFilters {
	c.mu.RLock()
	f, ok := c.filters[symbol]
	c.mu.RUnlock()
	if ok {
		return f
	}

	f, err := c.broker.SymbolFilters(ctx, symbol)
	if err != nil {
		logger.Warnf("%s filters fetch failed, using defaults (tick=%.4g step=%.4g minNotional=%.4g): %v",
			symbol, DefaultTickSize, DefaultStepSize, DefaultMinNotional, err)
		return broker.SymbolFilters{
			TickSize:    DefaultTickSize,
			StepSize:    DefaultStepSize,
			MinNotional: DefaultMinNotional,
		}
	}
	if f.TickSize <= 0 {
		f.TickSize = DefaultTickSize
	}
	if f.StepSize <= 0 {
		f.StepSize = DefaultStepSize
	}
	if f.MinNotional < 0 {
		f.MinNotional = DefaultMinNotional
	}

	c.mu.Lock()
	c.filters[symbol] = f
	c.mu.Unlock()
	return f
}

// Seed installs filters without a fetch. Used at startup to preload
// configured symbols and by tests.
func (c *Cache) Seed(symbol string, f broker.SymbolFilters) {
	c.mu.Lock()
	c.filters[symbol] = f
	c.mu.Unlock()
}

// QuantizePrice floors px to the symbol's tick size.
func (c *Cache) QuantizePrice(ctx context.Context, symbol string, px float64) float64 {
	return FloorToStep(px, c.Get(ctx, symbol).TickSize)
}

// QuantizeQty floors qty to the symbol's step size.
func (c *Cache) QuantizeQty(ctx context.Context, symbol string, qty float64) float64 {
	return FloorToStep(qty, c.Get(ctx, symbol).StepSize)
}

// FloorToStep rounds x down to an exact multiple of step using decimal
// arithmetic. Floor, never ceiling: rounding up could exceed the sized
// risk or get the order rejected.
func FloorToStep(x, step float64) float64 {
	if step <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	dx := decimal.NewFromFloat(x)
	ds := decimal.NewFromFloat(step)
	out, _ := dx.Div(ds).Floor().Mul(ds).Float64()
	return out
}

// Package risk computes order sizes and evaluates the emergency-stop
// conditions that halt the engine.
package risk

import (
	"context"

	"imba/internal/broker"
	"imba/internal/filters"
	"imba/internal/logger"
	"imba/internal/signal"
)

// SizerConfig carries the risk parameters for position sizing.
type SizerConfig struct {
	RiskPerTradePct float64 // percent of balance risked per trade
	Leverage        int
	SLFixedPct      float64 // fallback stop distance, percent of entry
	MinNotionalUSDT float64 // configured floor, on top of the exchange filter
}

// Sizer converts a signal plus account state into an order quantity.
type Sizer struct {
	cfg     SizerConfig
	filters *filters.Cache
}

func NewSizer(cfg SizerConfig, cache *filters.Cache) *Sizer {
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	return &Sizer{cfg: cfg, filters: cache}
}

// StopPrice derives the fixed-percent stop for an entry.
func (s *Sizer) StopPrice(entryPrice float64, side broker.Side) float64 {
	pct := s.cfg.SLFixedPct / 100.0
	if side == broker.SideBuy {
		return entryPrice * (1.0 - pct)
	}
	return entryPrice * (1.0 + pct)
}

// Size returns the quantized order quantity for sig, or 0 when no trade
// should be taken. Zero is a routine skip outcome, never an error: it
// covers unusable balance or prices, a degenerate stop distance, and an
// already-open position on the symbol.
func (s *Sizer) Size(ctx context.Context, sig signal.Signal, pos *broker.PositionSnapshot, balance, entryPrice, stopPrice float64) float64 {
	if pos != nil && !pos.Flat() {
		logger.Debugf("%s already has exposure (%.6f), skip sizing", sig.Symbol, pos.Amt)
		return 0
	}
	if balance <= 0 || entryPrice <= 0 {
		logger.Debugf("%s unusable sizing inputs (balance=%.2f entry=%.6f)", sig.Symbol, balance, entryPrice)
		return 0
	}

	slDistance := entryPrice - stopPrice
	if slDistance < 0 {
		slDistance = -slDistance
	}
	if slDistance <= 0 {
		slDistance = entryPrice * s.cfg.SLFixedPct / 100.0
	}
	// Never divide by an unguarded distance.
	if slDistance <= 0 {
		logger.Debugf("%s degenerate stop distance, skip", sig.Symbol)
		return 0
	}

	riskAmount := balance * s.cfg.RiskPerTradePct / 100.0
	rawQty := riskAmount / slDistance * float64(s.cfg.Leverage)

	minNotional := s.filters.Get(ctx, sig.Symbol).MinNotional
	if s.cfg.MinNotionalUSDT > minNotional {
		minNotional = s.cfg.MinNotionalUSDT
	}
	if rawQty*entryPrice < minNotional {
		rawQty = minNotional / entryPrice
	}

	qty := s.filters.QuantizeQty(ctx, sig.Symbol, rawQty)
	if qty <= 0 {
		return 0
	}
	return qty
}

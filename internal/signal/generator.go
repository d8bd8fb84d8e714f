package signal

import (
	"context"
	"fmt"
	"math"

	"imba/internal/logger"
	"imba/internal/market"

	talib "github.com/markcheno/go-talib"
)

// GeneratorConfig tunes the built-in EMA crossover generator.
type GeneratorConfig struct {
	Interval      string
	Lookback      int
	FastPeriod    int
	SlowPeriod    int
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64
	MinStrength   float64
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.Lookback <= 0 {
		c.Lookback = 100
	}
	if c.FastPeriod <= 0 {
		c.FastPeriod = 9
	}
	if c.SlowPeriod <= 0 {
		c.SlowPeriod = 21
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.RSIOverbought <= 0 {
		c.RSIOverbought = 72
	}
	if c.RSIOversold <= 0 {
		c.RSIOversold = 28
	}
	if c.MinStrength <= 0 {
		c.MinStrength = 0.05
	}
	return c
}

// Generator produces raw signal records from an EMA crossover filtered
// by RSI. It deliberately emits the loose map shape its upstream
// ancestors emitted; the engine runs everything through Normalize.
type Generator struct {
	cfg    GeneratorConfig
	source market.Source
}

func NewGenerator(cfg GeneratorConfig, source market.Source) *Generator {
	return &Generator{cfg: cfg.withDefaults(), source: source}
}

// Generate returns a raw signal for symbol, or nil when there is no
// actionable setup.
func (g *Generator) Generate(ctx context.Context, symbol string) (any, error) {
	candles, err := g.source.Candles(ctx, symbol, g.cfg.Interval, g.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) < g.cfg.SlowPeriod+1 {
		logger.Debugf("%s insufficient candles for signal (%d < %d)", symbol, len(candles), g.cfg.SlowPeriod+1)
		return nil, nil
	}

	closes := market.Closes(candles)
	fast := talib.Ema(closes, g.cfg.FastPeriod)
	slow := talib.Ema(closes, g.cfg.SlowPeriod)
	rsi := talib.Rsi(closes, g.cfg.RSIPeriod)

	last := len(closes) - 1
	f, s, r := fast[last], slow[last], rsi[last]
	price := closes[last]
	if s <= 0 || math.IsNaN(f) || math.IsNaN(s) || math.IsNaN(r) {
		return nil, nil
	}

	var side string
	switch {
	case f > s && r < g.cfg.RSIOverbought:
		side = "BUY"
	case f < s && r > g.cfg.RSIOversold:
		side = "SELL"
	default:
		return nil, nil
	}

	strength := math.Min(1.0, 0.5+math.Abs(f-s)/s*50)
	if strength < g.cfg.MinStrength {
		logger.Debugf("%s signal below min strength (%.3f < %.3f)", symbol, strength, g.cfg.MinStrength)
		return nil, nil
	}

	return map[string]any{
		"symbol":   symbol,
		"side":     side,
		"strength": strength,
		"price":    price,
	}, nil
}

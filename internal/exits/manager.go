// Package exits idempotently maintains stop-loss and take-profit orders
// on the exchange for open positions. Ensure calls may run on every
// engine tick; they converge to the desired exit set instead of
// accumulating duplicates, and they degrade to fewer take-profit legs
// rather than leaving a position unprotected.
package exits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"imba/internal/broker"
	"imba/internal/filters"
	"imba/internal/logger"
)

// Status of one ensure operation.
type Status string

const (
	StatusOK    Status = "OK"
	StatusSkip  Status = "SKIP"
	StatusError Status = "ERROR"
)

// Result reports one ensure outcome. For take-profit ladders the
// counters carry per-leg detail.
type Result struct {
	Status    Status
	Reason    string
	StopPrice float64
	Placed    int
	Skipped   int
	Fails     int
	DryRun    bool
}

// ExitSet pairs the stop-loss and take-profit results of one ensure.
type ExitSet struct {
	SL Result
	TP Result
}

// Config tunes exit placement.
type Config struct {
	Enabled         bool // place exits on the exchange at all
	DryRun          bool
	WorkingType     broker.WorkingType
	TimeInForce     string
	ReplaceCooldown time.Duration
	TPPrefix        string  // client-order-id prefix identifying TP legs
	ClampTicks      int     // SL epsilon distance from mark, in ticks
	TPBandPct       float64 // TP clamp band around mark, percent
	TPLevelsPct     []float64
	TPShares        []float64
}

func (c Config) withDefaults() Config {
	if c.WorkingType == "" {
		c.WorkingType = broker.WorkingTypeMarkPrice
	}
	if c.TimeInForce == "" {
		c.TimeInForce = "GTC"
	}
	if c.ReplaceCooldown <= 0 {
		c.ReplaceCooldown = 20 * time.Second
	}
	if c.TPPrefix == "" {
		c.TPPrefix = "TP-"
	}
	if c.ClampTicks <= 0 {
		c.ClampTicks = 3
	}
	if c.TPBandPct <= 0 {
		c.TPBandPct = 5.0
	}
	if len(c.TPLevelsPct) == 0 {
		c.TPLevelsPct = []float64{0.5, 1.2, 2.0}
	}
	if len(c.TPShares) == 0 {
		c.TPShares = []float64{0.4, 0.35, 0.25}
	}
	return c
}

// Manager places and replaces exchange-side exits.
type Manager struct {
	cfg     Config
	broker  broker.Broker
	filters *filters.Cache
	gate    *replaceGate
	now     func() time.Time
}

func NewManager(cfg Config, b broker.Broker, cache *filters.Cache) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		broker:  b,
		filters: cache,
		gate:    newReplaceGate(),
		now:     time.Now,
	}
}

// EnsureExits maintains the full exit set for a position: one
// close-position stop plus the configured take-profit ladder.
func (m *Manager) EnsureExits(ctx context.Context, symbol, positionSide string, qty, entryPrice, stopPrice float64) ExitSet {
	return ExitSet{
		SL: m.EnsureSL(ctx, symbol, positionSide, stopPrice),
		TP: m.EnsureTP(ctx, symbol, positionSide, qty, entryPrice),
	}
}

// EnsureSL places a STOP_MARKET close-position order at stopPrice,
// clamped away from the current mark price so the exchange does not
// reject it as immediately triggering. A failed placement is reported,
// not retried: an unprotected position should surface loudly rather
// than silently retry against stale prices.
func (m *Manager) EnsureSL(ctx context.Context, symbol, positionSide string, stopPrice float64) Result {
	if !m.cfg.Enabled {
		return Result{Status: StatusSkip, Reason: "exits disabled"}
	}
	if m.cfg.DryRun {
		return Result{Status: StatusOK, DryRun: true, StopPrice: stopPrice}
	}
	if !m.gate.allow(symbol, "sl", m.cfg.ReplaceCooldown) {
		logger.Debugf("%s SL ensure gated by cooldown", symbol)
		return Result{Status: StatusSkip, Reason: "cooldown"}
	}

	f := m.filters.Get(ctx, symbol)
	mark, err := m.broker.MarkPrice(ctx, symbol)
	if err != nil {
		logger.Warnf("%s mark price unavailable for SL clamp: %v", symbol, err)
		mark = 0
	}

	closing := closeSide(positionSide)
	sp := stopPrice
	eps := float64(m.cfg.ClampTicks) * f.TickSize
	if mark > 0 {
		// A stop on the wrong side of mark triggers immediately and
		// gets rejected; nudge it out by the tick epsilon.
		if closing == broker.SideSell && sp >= mark {
			sp = mark - eps
			if sp < f.TickSize {
				sp = f.TickSize
			}
		}
		if closing == broker.SideBuy && sp <= mark {
			sp = mark + eps
		}
	}
	sp = filters.FloorToStep(sp, f.TickSize)

	ack, err := m.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:        symbol,
		Side:          closing,
		Type:          broker.OrderTypeStopMarket,
		StopPrice:     sp,
		ClosePosition: true,
		WorkingType:   m.cfg.WorkingType,
	})
	if err != nil {
		kind := broker.Classify(err)
		logger.Errorf("%s ensure SL failed (%s): %v", symbol, kind, err)
		logger.Audit("sl-fail", symbol, "", fmt.Sprintf("kind=%s err=%v", kind, err))
		return Result{Status: StatusError, Reason: kind.String(), StopPrice: sp}
	}
	logger.Infof("%s SL ensured @ %.8g (STOP_MARKET closePosition, order=%d)", symbol, sp, ack.OrderID)
	return Result{Status: StatusOK, StopPrice: sp}
}

// EnsureTP converges the exchange to the configured take-profit ladder:
// all previously placed legs (identified by the client-order-id prefix)
// are cancelled, then each (level, share) pair is re-placed as a LIMIT
// reduce-only order. Per-leg failures degrade the ladder instead of
// aborting it.
func (m *Manager) EnsureTP(ctx context.Context, symbol, positionSide string, qty, entryPrice float64) Result {
	if !m.cfg.Enabled {
		return Result{Status: StatusSkip, Reason: "exits disabled"}
	}
	if m.cfg.DryRun {
		return Result{Status: StatusOK, DryRun: true}
	}
	if !m.gate.allow(symbol, "tp", m.cfg.ReplaceCooldown) {
		logger.Debugf("%s TP ensure gated by cooldown", symbol)
		return Result{Status: StatusSkip, Reason: "cooldown"}
	}

	levels, shares := m.cfg.TPLevelsPct, m.cfg.TPShares
	n := len(levels)
	if len(shares) < n {
		n = len(shares)
	}
	if n == 0 {
		return Result{Status: StatusSkip, Reason: "no splits"}
	}

	m.cancelPrefixed(ctx, symbol)

	f := m.filters.Get(ctx, symbol)
	mark, err := m.broker.MarkPrice(ctx, symbol)
	if err != nil {
		mark = 0
	}
	closing := closeSide(positionSide)
	long := isLong(positionSide)

	var res Result
	for i := 0; i < n; i++ {
		level, share := levels[i], shares[i]
		if share <= 0 {
			res.Skipped++
			continue
		}
		partQty := filters.FloorToStep(qty*share, f.StepSize)
		if partQty <= 0 {
			res.Skipped++
			continue
		}

		target := entryPrice * (1.0 + level/100.0)
		if !long {
			target = entryPrice * (1.0 - level/100.0)
		}
		target = m.clampToBand(target, mark)
		px := filters.FloorToStep(target, f.TickSize)

		// Legs below the exchange minimum silently degrade the ladder.
		if partQty*px < f.MinNotional {
			res.Skipped++
			continue
		}

		req := broker.OrderRequest{
			Symbol:        symbol,
			Side:          closing,
			Type:          broker.OrderTypeLimit,
			Quantity:      partQty,
			Price:         px,
			ReduceOnly:    true,
			TimeInForce:   m.cfg.TimeInForce,
			ClientOrderID: fmt.Sprintf("%s%d-%d", m.cfg.TPPrefix, i+1, m.now().UnixMilli()),
		}
		if m.placeLeg(ctx, symbol, i+1, req, f) {
			res.Placed++
		} else {
			res.Fails++
		}
	}

	if res.Placed > 0 {
		logger.Infof("%s TP ensured (%d placed, %d skipped, %d failed)", symbol, res.Placed, res.Skipped, res.Fails)
		res.Status = StatusOK
		return res
	}
	res.Status = StatusSkip
	res.Reason = "no TP placed"
	return res
}

// placeLeg submits one ladder leg with one corrected retry for the two
// recoverable rejection classes: precision violations are re-quantized,
// reduce-only violations are clamped to the live position size.
func (m *Manager) placeLeg(ctx context.Context, symbol string, idx int, req broker.OrderRequest, f broker.SymbolFilters) bool {
	_, err := m.broker.PlaceOrder(ctx, req)
	if err == nil {
		return true
	}

	switch kind := broker.Classify(err); kind {
	case broker.KindPrecision:
		req.Quantity = filters.FloorToStep(req.Quantity, f.StepSize)
		req.Price = filters.FloorToStep(req.Price, f.TickSize)
		if _, err2 := m.broker.PlaceOrder(ctx, req); err2 == nil {
			return true
		} else {
			logger.Warnf("%s TP leg %d precision retry failed: %v", symbol, idx, err2)
		}
	case broker.KindReduceOnly:
		live, ok := m.livePositionQty(ctx, symbol)
		if ok && live < req.Quantity {
			req.Quantity = filters.FloorToStep(live, f.StepSize)
		}
		if req.Quantity > 0 && req.Quantity*req.Price >= f.MinNotional {
			if _, err2 := m.broker.PlaceOrder(ctx, req); err2 == nil {
				return true
			} else {
				logger.Warnf("%s TP leg %d reduce-only retry failed: %v", symbol, idx, err2)
			}
		}
	default:
		logger.Warnf("%s TP leg %d place failed (%s): %v", symbol, idx, kind, err)
	}
	logger.Audit("tp-leg-fail", symbol, "", fmt.Sprintf("leg=%d err=%v", idx, err))
	return false
}

// cancelPrefixed removes every resting order whose client-order-id
// carries the TP prefix. This is the idempotent half of EnsureTP.
func (m *Manager) cancelPrefixed(ctx context.Context, symbol string) {
	orders, err := m.broker.OpenOrders(ctx, symbol)
	if err != nil {
		logger.Warnf("%s listing open TP orders failed: %v", symbol, err)
		return
	}
	for _, o := range orders {
		if !strings.HasPrefix(o.ClientOrderID, m.cfg.TPPrefix) {
			continue
		}
		if err := m.broker.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			logger.Warnf("%s cancel stale TP %s failed: %v", symbol, o.ClientOrderID, err)
		}
	}
}

// clampToBand keeps a target inside the percent band around mark.
func (m *Manager) clampToBand(target, mark float64) float64 {
	if mark <= 0 {
		return target
	}
	band := m.cfg.TPBandPct / 100.0
	lo, hi := mark*(1.0-band), mark*(1.0+band)
	if target < lo {
		return lo
	}
	if target > hi {
		return hi
	}
	return target
}

func (m *Manager) livePositionQty(ctx context.Context, symbol string) (float64, bool) {
	positions, err := m.broker.Positions(ctx)
	if err != nil {
		return 0, false
	}
	for _, p := range positions {
		if strings.EqualFold(p.Symbol, symbol) {
			amt := p.Amt
			if amt < 0 {
				amt = -amt
			}
			return amt, true
		}
	}
	return 0, false
}

func closeSide(positionSide string) broker.Side {
	s := strings.ToUpper(strings.TrimSpace(positionSide))
	if strings.HasPrefix(s, "S") {
		return broker.SideBuy
	}
	return broker.SideSell
}

func isLong(positionSide string) bool {
	s := strings.ToUpper(strings.TrimSpace(positionSide))
	return strings.HasPrefix(s, "L") || strings.HasPrefix(s, "B")
}

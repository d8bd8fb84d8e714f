// Package engine runs the trading loop: generate signals, gate them,
// size them, execute entries and keep exchange-side exits in place,
// with an emergency monitor that can halt the whole process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"imba/internal/broker"
	"imba/internal/cooldown"
	"imba/internal/executor"
	"imba/internal/exits"
	"imba/internal/filters"
	"imba/internal/logger"
	"imba/internal/notifier"
	"imba/internal/pkg/circuit"
	"imba/internal/risk"
	"imba/internal/signal"
	"imba/internal/store"

	"gorm.io/datatypes"
)

// ErrHalted is returned by Run after an emergency stop completed its
// shutdown sequence.
var ErrHalted = errors.New("engine: emergency halt")

// maxSeenSignals bounds the dedup set; oldest entries are dropped
// wholesale once the cap is hit.
const maxSeenSignals = 4096

type Config struct {
	Symbols             []string
	LoopInterval        time.Duration
	Halt                risk.HaltConfig
	TradingHoursEnabled bool
	TradingStartHour    int
	TradingEndHour      int
	MaxConsecutiveErr   int
	FlattenOnHalt       bool
	DryRun              bool
}

func (c Config) withDefaults() Config {
	if c.LoopInterval <= 0 {
		c.LoopInterval = 60 * time.Second
	}
	if c.MaxConsecutiveErr <= 0 {
		c.MaxConsecutiveErr = 10
	}
	return c
}

// Deps carries the collaborators the engine orchestrates. Journal and
// Notify may be nil; the engine degrades to log-only observability.
type Deps struct {
	Broker    broker.Broker
	Filters   *filters.Cache
	Generator *signal.Generator
	Sizer     *risk.Sizer
	Tracker   *risk.Tracker
	Cooldown  *cooldown.Gate
	Executor  *executor.Executor
	Journal   *store.Store
	Notify    notifier.Notifier
}

// Status is a point-in-time snapshot for the admin surface.
type Status struct {
	Running         bool      `json:"running"`
	Halted          bool      `json:"halted"`
	HaltReason      string    `json:"halt_reason,omitempty"`
	DryRun          bool      `json:"dry_run"`
	Symbols         []string  `json:"symbols"`
	LastSweep       time.Time `json:"last_sweep"`
	Iterations      uint64    `json:"iterations"`
	ConsecutiveErrs int       `json:"consecutive_errors"`
	DailyPnL        float64   `json:"daily_pnl"`
	Balance         float64   `json:"balance"`
	Drawdown        float64   `json:"drawdown"`
}

type Engine struct {
	cfg  Config
	deps Deps

	breaker *circuit.Breaker
	now     func() time.Time

	mu         sync.Mutex
	running    bool
	halted     bool
	haltReason string
	lastSweep  time.Time
	iterations uint64
	seen       map[string]struct{}
	lastPos    map[string]broker.PositionSnapshot
}

func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Notify == nil {
		deps.Notify = notifier.Nop{}
	}
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		breaker: circuit.NewBreaker("engine", cfg.MaxConsecutiveErr, 2*cfg.LoopInterval),
		now:     time.Now,
		seen:    make(map[string]struct{}),
		lastPos: make(map[string]broker.PositionSnapshot),
	}
}

// SetHaltConfig swaps the emergency thresholds. Called by the config
// watcher on hot reload.
func (e *Engine) SetHaltConfig(h risk.HaltConfig) {
	e.mu.Lock()
	e.cfg.Halt = h
	e.mu.Unlock()
}

func (e *Engine) haltConfig() risk.HaltConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Halt
}

// Status reports the current engine state for the admin endpoints.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Running:         e.running,
		Halted:          e.halted,
		HaltReason:      e.haltReason,
		DryRun:          e.cfg.DryRun,
		Symbols:         append([]string(nil), e.cfg.Symbols...),
		LastSweep:       e.lastSweep,
		Iterations:      e.iterations,
		ConsecutiveErrs: e.breaker.ConsecutiveFailures(),
	}
	e.mu.Unlock()
	if t := e.deps.Tracker; t != nil {
		st.DailyPnL = t.DailyPnL()
		if bal, ok := t.Balance(); ok {
			st.Balance = bal
		}
		st.Drawdown = t.Drawdown()
	}
	return st
}

// Run drives the trading loop until ctx is cancelled or an emergency
// halt fires. The first sweep runs immediately; subsequent sweeps are
// spaced by LoopInterval.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logger.Infof("engine started: symbols=%v interval=%s dry_run=%v",
		e.cfg.Symbols, e.cfg.LoopInterval, e.cfg.DryRun)

	ticker := time.NewTicker(e.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		if err := e.sweep(ctx); err != nil {
			if errors.Is(err, ErrHalted) || ctx.Err() != nil {
				return err
			}
			logger.Errorf("sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.Infof("engine stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) sweep(ctx context.Context) error {
	mtxIterations.Inc()
	e.mu.Lock()
	e.iterations++
	e.lastSweep = e.now()
	e.mu.Unlock()

	if !e.breaker.Allow() {
		logger.Warnf("sweep suppressed: error breaker %s after %d consecutive failures",
			e.breaker.State(), e.breaker.ConsecutiveFailures())
		return nil
	}

	if e.cfg.TradingHoursEnabled && !e.inTradingHours(e.now().UTC()) {
		mtxSkips.WithLabelValues("trading_hours").Inc()
		logger.Debugf("outside trading hours (%02d-%02d UTC), sweep skipped",
			e.cfg.TradingStartHour, e.cfg.TradingEndHour)
		return nil
	}

	balance, err := e.deps.Broker.AccountBalance(ctx)
	if err != nil {
		e.breaker.RecordFailure()
		return fmt.Errorf("fetch balance: %w", err)
	}
	if e.deps.Tracker != nil {
		e.deps.Tracker.ObserveBalance(balance)
	}
	mtxBalance.Set(balance)

	positions, err := e.deps.Broker.Positions(ctx)
	if err != nil {
		e.breaker.RecordFailure()
		return fmt.Errorf("fetch positions: %w", err)
	}
	e.breaker.RecordSuccess()
	posBySymbol := e.reconcilePositions(positions)

	if e.deps.Tracker != nil {
		mtxDailyPnL.Set(e.deps.Tracker.DailyPnL())
		if halt, reason := risk.ShouldHalt(e.deps.Tracker, e.haltConfig()); halt {
			return e.emergencyShutdown(ctx, reason)
		}
	}

	var sweepErrs int
	for _, symbol := range e.cfg.Symbols {
		if err := e.processSymbol(ctx, symbol, balance, posBySymbol[symbol]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sweepErrs++
			logger.Errorf("%s symbol sweep failed: %v", symbol, err)
		}
	}
	if sweepErrs > 0 && sweepErrs == len(e.cfg.Symbols) {
		// Only an all-symbol failure counts toward the error breaker;
		// a single bad symbol must not starve the rest.
		e.breaker.RecordFailure()
	}
	return nil
}

func (e *Engine) processSymbol(ctx context.Context, symbol string, balance float64, pos *broker.PositionSnapshot) error {
	raw, err := e.deps.Generator.Generate(ctx, symbol)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if raw == nil {
		return nil
	}

	sig, ok := signal.Normalize(raw, symbol)
	if !ok {
		mtxSignals.WithLabelValues("rejected").Inc()
		logger.Audit("reject", symbol, "", fmt.Sprintf("unnormalizable signal %T", raw))
		return nil
	}

	if e.alreadySeen(sig.ID) {
		mtxSkips.WithLabelValues("duplicate").Inc()
		logger.Debugf("%s duplicate signal %s, skipped", symbol, sig.ID)
		return nil
	}

	if e.deps.Cooldown.InCooldown(sig.Symbol) {
		mtxSkips.WithLabelValues("cooldown").Inc()
		remaining := e.deps.Cooldown.Remaining(sig.Symbol)
		logger.Infof("%s in cooldown (%s remaining), signal %s skipped",
			sig.Symbol, remaining.Truncate(time.Second), sig.ID)
		logger.Audit("skip", sig.Symbol, sig.ID, fmt.Sprintf("cooldown remaining=%s", remaining.Truncate(time.Second)))
		return nil
	}

	price := sig.EntryPrice
	if price <= 0 {
		price, err = e.deps.Broker.MarkPrice(ctx, sig.Symbol)
		if err != nil {
			return fmt.Errorf("mark price: %w", err)
		}
	}

	stopPrice := e.deps.Sizer.StopPrice(price, sig.Side)
	qty := e.deps.Sizer.Size(ctx, sig, pos, balance, price, stopPrice)
	if qty <= 0 {
		mtxSkips.WithLabelValues("sized_zero").Inc()
		logger.Audit("skip", sig.Symbol, sig.ID, "sized to zero")
		return nil
	}

	res := e.deps.Executor.Execute(ctx, sig, qty, price, stopPrice)
	e.journalResult(sig, res)
	if !res.Filled() {
		mtxSignals.WithLabelValues("error").Inc()
		return nil
	}

	mtxSignals.WithLabelValues("executed").Inc()
	mtxOrders.WithLabelValues(sig.Symbol, string(sig.Side)).Inc()
	e.deps.Cooldown.NoteTrade(sig.Symbol)
	e.markSeen(sig.ID)

	if !res.DryRun {
		e.notifyf("entry %s %s qty=%.6g @ %.6g (order %d)",
			sig.Symbol, sig.Side, res.Quantity, res.EntryPrice, res.OrderID)
	}
	return nil
}

func (e *Engine) journalResult(sig signal.Signal, res executor.Result) {
	if e.deps.Journal == nil {
		return
	}
	rec := store.OrderRecord{
		Symbol:   sig.Symbol,
		SignalID: sig.ID,
		Side:     string(sig.Side),
		Quantity: res.Quantity,
		Price:    res.EntryPrice,
		Status:   res.Status,
		DryRun:   res.DryRun,
	}
	if len(res.Raw) > 0 {
		rec.Raw = datatypes.JSON(res.Raw)
	}
	if err := e.deps.Journal.RecordOrder(rec); err != nil {
		logger.Errorf("%s journal order failed: %v", sig.Symbol, err)
	}
	e.journalExit(sig.Symbol, "sl", res.Exits.SL)
	e.journalExit(sig.Symbol, "tp", res.Exits.TP)
}

func (e *Engine) journalExit(symbol, kind string, r exits.Result) {
	if e.deps.Journal == nil || r.Status == "" {
		return
	}
	err := e.deps.Journal.RecordExit(store.ExitRecord{
		Symbol:    symbol,
		Kind:      kind,
		Status:    string(r.Status),
		Reason:    r.Reason,
		StopPrice: r.StopPrice,
		Placed:    r.Placed,
		Skipped:   r.Skipped,
		Fails:     r.Fails,
	})
	if err != nil {
		logger.Errorf("%s journal exit failed: %v", symbol, err)
	}
}

// reconcilePositions indexes the live snapshots by symbol and feeds
// realized PnL into the tracker when a previously open position reads
// flat. The last observed unrealized PnL stands in for the realized
// figure; the income endpoint is not polled.
func (e *Engine) reconcilePositions(positions []broker.PositionSnapshot) map[string]*broker.PositionSnapshot {
	bySymbol := make(map[string]*broker.PositionSnapshot, len(positions))
	for i := range positions {
		bySymbol[positions[i].Symbol] = &positions[i]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for symbol, prev := range e.lastPos {
		cur, open := bySymbol[symbol]
		if open && !cur.Flat() {
			continue
		}
		if !prev.Flat() && e.deps.Tracker != nil {
			e.deps.Tracker.RecordRealized(prev.UnrealizedPnL)
			logger.Infof("%s position closed, realized %.2f", symbol, prev.UnrealizedPnL)
		}
		delete(e.lastPos, symbol)
	}
	for symbol, cur := range bySymbol {
		if !cur.Flat() {
			e.lastPos[symbol] = *cur
		}
	}
	return bySymbol
}

// inTradingHours implements an hour window on UTC wall time. A window
// whose start exceeds its end crosses midnight.
func (e *Engine) inTradingHours(now time.Time) bool {
	h := now.Hour()
	start, end := e.cfg.TradingStartHour, e.cfg.TradingEndHour
	if start <= end {
		return h >= start && h <= end
	}
	return !(h > end && h < start)
}

func (e *Engine) alreadySeen(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.seen[id]
	return ok
}

func (e *Engine) markSeen(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.seen) >= maxSeenSignals {
		e.seen = make(map[string]struct{})
	}
	e.seen[id] = struct{}{}
}

// emergencyShutdown cancels open orders, optionally flattens positions,
// records the halt and returns ErrHalted so Run terminates.
func (e *Engine) emergencyShutdown(ctx context.Context, reason string) error {
	mtxHalts.Inc()
	e.mu.Lock()
	e.halted = true
	e.haltReason = reason
	e.mu.Unlock()

	logger.Criticalf("EMERGENCY STOP: %s", reason)
	logger.Audit("halt", "", "", reason)

	for _, symbol := range e.cfg.Symbols {
		orders, err := e.deps.Broker.OpenOrders(ctx, symbol)
		if err != nil {
			logger.Errorf("%s halt: list open orders failed: %v", symbol, err)
			continue
		}
		for _, o := range orders {
			if err := e.deps.Broker.CancelOrder(ctx, symbol, o.OrderID); err != nil {
				logger.Errorf("%s halt: cancel order %d failed: %v", symbol, o.OrderID, err)
			}
		}
	}

	if e.cfg.FlattenOnHalt {
		e.flattenAll(ctx)
	}

	rec := store.HaltRecord{Reason: reason}
	if t := e.deps.Tracker; t != nil {
		rec.DailyPnL = t.DailyPnL()
		rec.Balance, _ = t.Balance()
		rec.Drawdown = t.Drawdown()
	}
	if e.deps.Journal != nil {
		if err := e.deps.Journal.RecordHalt(rec); err != nil {
			logger.Errorf("halt: journal failed: %v", err)
		}
	}
	e.notifyf("EMERGENCY STOP: %s (daily_pnl=%.2f balance=%.2f)", reason, rec.DailyPnL, rec.Balance)
	return ErrHalted
}

func (e *Engine) flattenAll(ctx context.Context) {
	positions, err := e.deps.Broker.Positions(ctx)
	if err != nil {
		logger.Errorf("halt: fetch positions failed: %v", err)
		return
	}
	for _, pos := range positions {
		if pos.Flat() {
			continue
		}
		side := broker.SideSell
		qty := pos.Amt
		if qty < 0 {
			side = broker.SideBuy
			qty = -qty
		}
		_, err := e.deps.Broker.PlaceOrder(ctx, broker.OrderRequest{
			Symbol:     pos.Symbol,
			Side:       side,
			Type:       broker.OrderTypeMarket,
			Quantity:   qty,
			ReduceOnly: true,
		})
		if err != nil {
			logger.Errorf("%s halt: flatten failed: %v", pos.Symbol, err)
			continue
		}
		logger.Infof("%s halt: flattened %.6g via %s market", pos.Symbol, qty, side)
	}
}

func (e *Engine) notifyf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err := e.deps.Notify.Notify(msg); err != nil {
		logger.Warnf("notify failed: %v", err)
	}
}

// SymbolList returns the configured symbols, normalized to upper case.
func SymbolList(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

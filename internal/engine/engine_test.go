package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"imba/internal/broker"
	"imba/internal/cooldown"
	"imba/internal/executor"
	"imba/internal/exits"
	"imba/internal/filters"
	"imba/internal/market"
	"imba/internal/risk"
	"imba/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange implements both the broker and the candle source.
type fakeExchange struct {
	mu sync.Mutex

	balance   float64
	positions []broker.PositionSnapshot
	candles   []market.Candle
	mark      float64

	placed    []broker.OrderRequest
	open      []broker.OpenOrder
	cancelled []int64
}

func (f *fakeExchange) SymbolFilters(ctx context.Context, symbol string) (broker.SymbolFilters, error) {
	return broker.SymbolFilters{TickSize: 0.1, StepSize: 0.001, MinNotional: 5}, nil
}
func (f *fakeExchange) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return f.mark, nil
}
func (f *fakeExchange) OpenOrders(ctx context.Context, symbol string) ([]broker.OpenOrder, error) {
	return f.open, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return broker.OrderAck{OrderID: int64(len(f.placed))}, nil
}
func (f *fakeExchange) AccountBalance(ctx context.Context) (float64, error) {
	return f.balance, nil
}
func (f *fakeExchange) Positions(ctx context.Context) ([]broker.PositionSnapshot, error) {
	return f.positions, nil
}
func (f *fakeExchange) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return f.candles, nil
}

// trendingCandles produces an upward drift with alternating pullbacks,
// which yields a BUY crossover without pushing RSI into overbought.
func trendingCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	px := 50000.0
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			px += 40
		} else {
			px -= 20
		}
		out = append(out, market.Candle{
			OpenTime: int64(i) * 60_000,
			Close:    px,
		})
	}
	return out
}

func newTestEngine(cfg Config, fx *fakeExchange) (*Engine, *risk.Tracker) {
	cache := filters.NewCache(fx)
	sizer := risk.NewSizer(risk.SizerConfig{RiskPerTradePct: 0.5, Leverage: 5, SLFixedPct: 1.0}, cache)
	tracker := risk.NewTracker()
	em := exits.NewManager(exits.Config{Enabled: true, DryRun: true}, fx, cache)
	exec := executor.New(true, fx, em)
	gen := signal.NewGenerator(signal.GeneratorConfig{}, fx)

	eng := New(cfg, Deps{
		Broker:    fx,
		Filters:   cache,
		Generator: gen,
		Sizer:     sizer,
		Tracker:   tracker,
		Cooldown:  cooldown.NewGate(5 * time.Minute),
		Executor:  exec,
	})
	return eng, tracker
}

func TestInTradingHours(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2025, 6, 1, hour, 30, 0, 0, time.UTC)
	}

	e := New(Config{TradingStartHour: 9, TradingEndHour: 17}, Deps{})
	assert.False(t, e.inTradingHours(at(8)))
	assert.True(t, e.inTradingHours(at(9)))
	assert.True(t, e.inTradingHours(at(17)))
	assert.False(t, e.inTradingHours(at(18)))

	// Window crossing midnight: 22..04.
	e = New(Config{TradingStartHour: 22, TradingEndHour: 4}, Deps{})
	assert.True(t, e.inTradingHours(at(23)))
	assert.True(t, e.inTradingHours(at(2)))
	assert.True(t, e.inTradingHours(at(22)))
	assert.True(t, e.inTradingHours(at(4)))
	assert.False(t, e.inTradingHours(at(12)))
}

func TestSeenSetBounded(t *testing.T) {
	e := New(Config{}, Deps{})
	for i := 0; i < maxSeenSignals+10; i++ {
		e.markSeen(fmt.Sprintf("sig-%d", i))
	}
	e.mu.Lock()
	size := len(e.seen)
	e.mu.Unlock()
	assert.LessOrEqual(t, size, maxSeenSignals)
}

func TestSweepExecutesThenCoolsDown(t *testing.T) {
	fx := &fakeExchange{balance: 10000, candles: trendingCandles(100), mark: 50000}
	eng, _ := newTestEngine(Config{Symbols: []string{"BTCUSDT"}, DryRun: true}, fx)
	ctx := context.Background()

	require.NoError(t, eng.sweep(ctx))
	assert.True(t, eng.deps.Cooldown.InCooldown("BTCUSDT"), "a fill starts the symbol cooldown")

	// The second sweep generates another signal, but the cooldown gate
	// must swallow it.
	require.NoError(t, eng.sweep(ctx))
	assert.Empty(t, fx.placed, "dry-run sweeps never reach the exchange")

	st := eng.Status()
	assert.Equal(t, uint64(2), st.Iterations)
	assert.False(t, st.Halted)
}

func TestSweepSkipsOutsideTradingHours(t *testing.T) {
	fx := &fakeExchange{balance: 10000, candles: trendingCandles(100), mark: 50000}
	eng, _ := newTestEngine(Config{
		Symbols:             []string{"BTCUSDT"},
		DryRun:              true,
		TradingHoursEnabled: true,
		TradingStartHour:    9,
		TradingEndHour:      10,
	}, fx)
	eng.now = func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }

	require.NoError(t, eng.sweep(context.Background()))
	assert.False(t, eng.deps.Cooldown.InCooldown("BTCUSDT"), "no trade happened")
}

func TestSweepEmergencyHalt(t *testing.T) {
	fx := &fakeExchange{
		balance: 10000,
		candles: trendingCandles(100),
		mark:    50000,
		open:    []broker.OpenOrder{{OrderID: 31}, {OrderID: 32}},
	}
	eng, tracker := newTestEngine(Config{
		Symbols: []string{"BTCUSDT"},
		DryRun:  true,
		Halt:    risk.HaltConfig{MaxDailyLoss: 100},
	}, fx)
	tracker.RecordRealized(-150)

	err := eng.sweep(context.Background())
	require.ErrorIs(t, err, ErrHalted)
	assert.ElementsMatch(t, []int64{31, 32}, fx.cancelled, "halt cancels resting orders")

	st := eng.Status()
	assert.True(t, st.Halted)
	assert.Contains(t, st.HaltReason, "daily loss")
}

func TestHaltFlattensPositions(t *testing.T) {
	fx := &fakeExchange{
		balance: 10000,
		candles: trendingCandles(100),
		mark:    50000,
		positions: []broker.PositionSnapshot{
			{Symbol: "BTCUSDT", Amt: 0.5},
			{Symbol: "ETHUSDT", Amt: -2},
			{Symbol: "SOLUSDT", Amt: 0},
		},
	}
	eng, tracker := newTestEngine(Config{
		Symbols:       []string{"BTCUSDT"},
		DryRun:        true,
		FlattenOnHalt: true,
		Halt:          risk.HaltConfig{MaxDailyLoss: 100},
	}, fx)
	tracker.RecordRealized(-150)

	err := eng.sweep(context.Background())
	require.ErrorIs(t, err, ErrHalted)

	require.Len(t, fx.placed, 2, "only open positions get flattened")
	for _, req := range fx.placed {
		assert.Equal(t, broker.OrderTypeMarket, req.Type)
		assert.True(t, req.ReduceOnly)
	}
	assert.Equal(t, broker.SideSell, fx.placed[0].Side, "long flattens with a sell")
	assert.Equal(t, broker.SideBuy, fx.placed[1].Side, "short flattens with a buy")
	assert.InDelta(t, 2.0, fx.placed[1].Quantity, 1e-9)
}

func TestReconcilePositionsRealizesPnL(t *testing.T) {
	fx := &fakeExchange{balance: 10000}
	eng, tracker := newTestEngine(Config{Symbols: []string{"BTCUSDT"}}, fx)

	eng.reconcilePositions([]broker.PositionSnapshot{
		{Symbol: "BTCUSDT", Amt: 0.5, UnrealizedPnL: 42.5},
	})
	assert.Zero(t, tracker.DailyPnL(), "open positions realize nothing")

	eng.reconcilePositions(nil)
	assert.InDelta(t, 42.5, tracker.DailyPnL(), 1e-9, "a closed position realizes its last uPnL")

	// The same close must not be double counted.
	eng.reconcilePositions(nil)
	assert.InDelta(t, 42.5, tracker.DailyPnL(), 1e-9)
}

func TestSymbolList(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, SymbolList([]string{" btcusdt ", "ETHUSDT", "", "  "}))
}

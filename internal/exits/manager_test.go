package exits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"imba/internal/broker"
	"imba/internal/filters"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu sync.Mutex

	placed    []broker.OrderRequest
	placeErrs []error // consumed one per PlaceOrder call

	open      []broker.OpenOrder
	openErr   error
	cancelled []int64

	mark      float64
	markErr   error
	positions []broker.PositionSnapshot
	posErr    error
}

func (f *fakeBroker) SymbolFilters(ctx context.Context, symbol string) (broker.SymbolFilters, error) {
	return broker.SymbolFilters{}, errors.New("not seeded")
}

func (f *fakeBroker) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return f.mark, f.markErr
}

func (f *fakeBroker) OpenOrders(ctx context.Context, symbol string) ([]broker.OpenOrder, error) {
	return f.open, f.openErr
}

func (f *fakeBroker) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.placeErrs) > 0 {
		err = f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
	}
	if err != nil {
		return broker.OrderAck{}, err
	}
	f.placed = append(f.placed, req)
	return broker.OrderAck{OrderID: int64(len(f.placed))}, nil
}

func (f *fakeBroker) AccountBalance(ctx context.Context) (float64, error) { return 0, nil }

func (f *fakeBroker) Positions(ctx context.Context) ([]broker.PositionSnapshot, error) {
	return f.positions, f.posErr
}

func newTestManager(cfg Config, b broker.Broker) *Manager {
	cache := filters.NewCache(nil)
	cache.Seed("BTCUSDT", broker.SymbolFilters{TickSize: 0.1, StepSize: 0.001, MinNotional: 5})
	return NewManager(cfg, b, cache)
}

func enabledConfig() Config {
	return Config{Enabled: true}
}

func TestEnsureSLDisabled(t *testing.T) {
	m := newTestManager(Config{Enabled: false}, &fakeBroker{})
	res := m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	assert.Equal(t, StatusSkip, res.Status)
}

func TestEnsureSLDryRun(t *testing.T) {
	b := &fakeBroker{}
	m := newTestManager(Config{Enabled: true, DryRun: true}, b)
	res := m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	assert.Equal(t, StatusOK, res.Status)
	assert.True(t, res.DryRun)
	assert.Empty(t, b.placed, "dry run never calls the exchange")
}

func TestEnsureSLPlacesStopMarket(t *testing.T) {
	b := &fakeBroker{mark: 50000}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, b.placed, 1)

	req := b.placed[0]
	assert.Equal(t, broker.OrderTypeStopMarket, req.Type)
	assert.Equal(t, broker.SideSell, req.Side)
	assert.True(t, req.ClosePosition)
	assert.Equal(t, broker.WorkingTypeMarkPrice, req.WorkingType)
	assert.Zero(t, req.Quantity, "close-position stops carry no quantity")
	assert.InDelta(t, 49500.0, req.StopPrice, 1e-9)
}

func TestEnsureSLClampsAgainstMark(t *testing.T) {
	b := &fakeBroker{mark: 50000}
	m := newTestManager(enabledConfig(), b)

	// A long stop at or above mark would trigger instantly; it gets
	// pushed 3 ticks below mark.
	res := m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 50100)
	require.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 50000-0.3, res.StopPrice, 1e-9)

	// Short side mirrors: stop at or below mark moves above it.
	b2 := &fakeBroker{mark: 50000}
	m2 := newTestManager(enabledConfig(), b2)
	res = m2.EnsureSL(context.Background(), "BTCUSDT", "SHORT", 49900)
	require.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 50000+0.3, res.StopPrice, 1e-9)
}

func TestEnsureSLFailureNotRetried(t *testing.T) {
	b := &fakeBroker{mark: 50000, placeErrs: []error{errors.New("boom")}}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, b.placed, "failed stop must not be silently retried")
}

func TestEnsureSLCooldownGate(t *testing.T) {
	b := &fakeBroker{mark: 50000}
	m := newTestManager(Config{Enabled: true, ReplaceCooldown: 20 * time.Second}, b)
	base := time.Now()
	now := base
	m.gate.now = func() time.Time { return now }

	res := m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	require.Equal(t, StatusOK, res.Status)

	res = m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	assert.Equal(t, StatusSkip, res.Status)
	assert.Equal(t, "cooldown", res.Reason)
	assert.Len(t, b.placed, 1, "gated ensure places nothing")

	now = base.Add(21 * time.Second)
	res = m.EnsureSL(context.Background(), "BTCUSDT", "LONG", 49500)
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, b.placed, 2)
}

func TestEnsureTPLadder(t *testing.T) {
	b := &fakeBroker{mark: 50000}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 3, res.Placed)
	require.Len(t, b.placed, 3)

	wantPrices := []float64{50250, 50600, 51000}
	wantQtys := []float64{0.4, 0.35, 0.25}
	for i, req := range b.placed {
		assert.Equal(t, broker.OrderTypeLimit, req.Type, "leg %d", i+1)
		assert.Equal(t, broker.SideSell, req.Side, "leg %d", i+1)
		assert.True(t, req.ReduceOnly, "leg %d", i+1)
		assert.Equal(t, "GTC", req.TimeInForce, "leg %d", i+1)
		assert.InDelta(t, wantPrices[i], req.Price, 1e-9, "leg %d", i+1)
		assert.InDelta(t, wantQtys[i], req.Quantity, 1e-9, "leg %d", i+1)
		assert.True(t, strings.HasPrefix(req.ClientOrderID, fmt.Sprintf("TP-%d-", i+1)), "leg %d cid %q", i+1, req.ClientOrderID)
	}
}

func TestEnsureTPShortLadder(t *testing.T) {
	b := &fakeBroker{mark: 50000}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "SHORT", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, b.placed, 3)
	assert.InDelta(t, 49750.0, b.placed[0].Price, 1e-9)
	assert.Equal(t, broker.SideBuy, b.placed[0].Side)
}

func TestEnsureTPCancelsStaleLegs(t *testing.T) {
	b := &fakeBroker{
		mark: 50000,
		open: []broker.OpenOrder{
			{OrderID: 11, ClientOrderID: "TP-1-1717200000000"},
			{OrderID: 12, ClientOrderID: "TP-2-1717200000000"},
			{OrderID: 13, ClientOrderID: "other-order"},
		},
	}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status)
	assert.ElementsMatch(t, []int64{11, 12}, b.cancelled, "only prefixed legs are cancelled")
	assert.Len(t, b.placed, 3, "the full ladder is re-placed")
}

func TestEnsureTPSkipsDustLegs(t *testing.T) {
	b := &fakeBroker{mark: 50000}
	m := newTestManager(enabledConfig(), b)

	// qty 0.001 splits into legs below the step and notional floors.
	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 0.001, 50000)
	assert.Equal(t, StatusSkip, res.Status)
	assert.Equal(t, "no TP placed", res.Reason)
	assert.Equal(t, 3, res.Skipped)
	assert.Empty(t, b.placed)
}

func TestEnsureTPBandClamp(t *testing.T) {
	// Mark far below entry: targets computed off entry are clamped into
	// the 5 percent band around mark.
	b := &fakeBroker{mark: 40000}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status)
	for i, req := range b.placed {
		assert.LessOrEqual(t, req.Price, 40000*1.05, "leg %d clamped to band", i+1)
	}
}

func TestPlaceLegPrecisionRetry(t *testing.T) {
	b := &fakeBroker{
		mark:      50000,
		placeErrs: []error{&common.APIError{Code: -1111, Message: "Precision is over the maximum defined for this asset."}},
	}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 3, res.Placed)
	assert.Zero(t, res.Fails)
	assert.Len(t, b.placed, 3, "first leg recovers via re-quantized retry")
}

func TestPlaceLegReduceOnlyRetryClampsToPosition(t *testing.T) {
	b := &fakeBroker{
		mark:      50000,
		placeErrs: []error{&common.APIError{Code: -2022, Message: "ReduceOnly Order is rejected."}},
		positions: []broker.PositionSnapshot{{Symbol: "BTCUSDT", Amt: 0.2}},
	}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, b.placed, 3)
	assert.InDelta(t, 0.2, b.placed[0].Quantity, 1e-9, "retried leg clamps to the live position")
}

func TestPlaceLegUnknownErrorFailsLeg(t *testing.T) {
	b := &fakeBroker{
		mark:      50000,
		placeErrs: []error{errors.New("margin is insufficient")},
	}
	m := newTestManager(enabledConfig(), b)

	res := m.EnsureTP(context.Background(), "BTCUSDT", "LONG", 1.0, 50000)
	require.Equal(t, StatusOK, res.Status, "remaining legs still place")
	assert.Equal(t, 2, res.Placed)
	assert.Equal(t, 1, res.Fails)
}

func TestReplaceGateHardFloor(t *testing.T) {
	g := newReplaceGate()
	base := time.Now()
	now := base
	g.now = func() time.Time { return now }

	// A zero cooldown is still bounded by the 2s hard floor.
	assert.True(t, g.allow("BTCUSDT", "sl", 0))
	assert.False(t, g.allow("BTCUSDT", "sl", 0))

	now = base.Add(time.Second)
	assert.False(t, g.allow("BTCUSDT", "sl", 0))

	now = base.Add(2100 * time.Millisecond)
	assert.True(t, g.allow("BTCUSDT", "sl", 0))
}

func TestReplaceGateKeysPerSymbolAndKind(t *testing.T) {
	g := newReplaceGate()
	assert.True(t, g.allow("BTCUSDT", "sl", time.Minute))
	assert.True(t, g.allow("BTCUSDT", "tp", time.Minute), "sl and tp gate independently")
	assert.True(t, g.allow("ETHUSDT", "sl", time.Minute), "symbols gate independently")
	assert.False(t, g.allow("BTCUSDT", "sl", time.Minute))
}

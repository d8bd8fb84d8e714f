package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"imba/internal/broker"
	"imba/internal/exits"
	"imba/internal/filters"
	"imba/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu sync.Mutex

	placed   []broker.OrderRequest
	placeErr error
	ack      broker.OrderAck
	mark     float64
}

func (f *fakeBroker) SymbolFilters(ctx context.Context, symbol string) (broker.SymbolFilters, error) {
	return broker.SymbolFilters{}, errors.New("not seeded")
}
func (f *fakeBroker) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return f.mark, nil
}
func (f *fakeBroker) OpenOrders(ctx context.Context, symbol string) ([]broker.OpenOrder, error) {
	return nil, nil
}
func (f *fakeBroker) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}
func (f *fakeBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return broker.OrderAck{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return f.ack, nil
}
func (f *fakeBroker) AccountBalance(ctx context.Context) (float64, error) { return 0, nil }
func (f *fakeBroker) Positions(ctx context.Context) ([]broker.PositionSnapshot, error) {
	return nil, nil
}

func newTestExecutor(dryRun bool, b broker.Broker) *Executor {
	cache := filters.NewCache(nil)
	cache.Seed("BTCUSDT", broker.SymbolFilters{TickSize: 0.1, StepSize: 0.001, MinNotional: 5})
	em := exits.NewManager(exits.Config{Enabled: true, DryRun: dryRun}, b, cache)
	return New(dryRun, b, em)
}

func testSignal() signal.Signal {
	return signal.Signal{Symbol: "BTCUSDT", Side: broker.SideBuy, ID: "sig-1"}
}

func TestExecuteDryRunSynthesizesFill(t *testing.T) {
	b := &fakeBroker{}
	e := newTestExecutor(true, b)

	res := e.Execute(context.Background(), testSignal(), 0.5, 50000, 49500)
	assert.Equal(t, StatusFilled, res.Status)
	assert.True(t, res.Filled())
	assert.True(t, res.DryRun)
	assert.InDelta(t, 50000.0, res.EntryPrice, 1e-9)
	assert.InDelta(t, 0.5, res.Quantity, 1e-9)
	assert.Empty(t, b.placed, "dry run never reaches the exchange")
	assert.Equal(t, exits.StatusOK, res.Exits.SL.Status, "exit flow still runs in dry-run")
}

func TestExecuteLivePlacesMarket(t *testing.T) {
	b := &fakeBroker{
		mark: 50000,
		ack:  broker.OrderAck{OrderID: 77, AvgPrice: 50010, ExecutedQty: 0.5},
	}
	e := newTestExecutor(false, b)

	res := e.Execute(context.Background(), testSignal(), 0.5, 50000, 49500)
	require.True(t, res.Filled())
	assert.Equal(t, int64(77), res.OrderID)
	assert.InDelta(t, 50010.0, res.EntryPrice, 1e-9, "fill price wins over reference price")

	require.NotEmpty(t, b.placed)
	entry := b.placed[0]
	assert.Equal(t, broker.OrderTypeMarket, entry.Type)
	assert.Equal(t, broker.SideBuy, entry.Side)
	assert.InDelta(t, 0.5, entry.Quantity, 1e-9)
	assert.False(t, entry.ReduceOnly)
	assert.True(t, strings.HasPrefix(entry.ClientOrderID, "IMBA-"))
	assert.LessOrEqual(t, len(entry.ClientOrderID), 36)
}

func TestExecuteFallsBackToRefPrice(t *testing.T) {
	b := &fakeBroker{mark: 50000, ack: broker.OrderAck{OrderID: 5}}
	e := newTestExecutor(false, b)

	res := e.Execute(context.Background(), testSignal(), 0.5, 50000, 49500)
	require.True(t, res.Filled())
	assert.InDelta(t, 50000.0, res.EntryPrice, 1e-9, "missing avg price falls back to reference")
	assert.InDelta(t, 0.5, res.Quantity, 1e-9)
}

func TestExecuteErrorIsContained(t *testing.T) {
	b := &fakeBroker{placeErr: errors.New("margin is insufficient")}
	e := newTestExecutor(false, b)

	res := e.Execute(context.Background(), testSignal(), 0.5, 50000, 49500)
	assert.Equal(t, StatusError, res.Status)
	assert.False(t, res.Filled())
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, exits.Status(""), res.Exits.SL.Status, "no exits after a failed entry")
}

func TestExecuteRejectsZeroQuantity(t *testing.T) {
	b := &fakeBroker{}
	e := newTestExecutor(false, b)

	res := e.Execute(context.Background(), testSignal(), 0, 50000, 49500)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, b.placed)
}

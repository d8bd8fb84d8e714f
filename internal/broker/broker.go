// Package broker defines the exchange-client contract consumed by the
// execution pipeline. Every capability the pipeline relies on is part of
// the interface up front; optional behaviour is modelled explicitly
// instead of probed for at runtime.
package broker

import (
	"context"
	"time"
)

// Side is an order side as the exchange understands it.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType enumerates the order types the pipeline places.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// WorkingType selects the price series stop orders are evaluated against.
type WorkingType string

const (
	WorkingTypeMarkPrice     WorkingType = "MARK_PRICE"
	WorkingTypeContractPrice WorkingType = "CONTRACT_PRICE"
)

// SymbolFilters are the per-symbol exchange constraints used for
// quantization and minimum-notional checks.
type SymbolFilters struct {
	TickSize    float64
	StepSize    float64
	MinNotional float64
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64 // ignored when ClosePosition is set
	Price         float64 // limit price, 0 for market/stop-market
	StopPrice     float64 // trigger price for stop orders
	ClosePosition bool    // flatten the whole position regardless of size drift
	ReduceOnly    bool
	TimeInForce   string // GTC when empty
	WorkingType   WorkingType
	ClientOrderID string
}

// OrderAck is the exchange acknowledgment for a placed order.
type OrderAck struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        string
	AvgPrice      float64
	ExecutedQty   float64
	Raw           []byte // raw exchange payload, kept for the journal
}

// OpenOrder is a minimal view of a resting order, enough to identify
// and cancel exit legs by client-order-id prefix.
type OpenOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         float64
	Quantity      float64
}

// PositionSnapshot is the current exchange exposure for one symbol.
// Amt carries the sign convention of the exchange: positive long,
// negative short, zero flat.
type PositionSnapshot struct {
	Symbol        string
	Amt           float64
	EntryPrice    float64
	UnrealizedPnL float64
	UpdatedAt     time.Time
}

// Flat reports whether the snapshot carries no exposure.
func (p PositionSnapshot) Flat() bool { return p.Amt == 0 }

// Broker is the exchange client the pipeline executes against. All
// methods take a context; implementations must honor its deadline so
// every exchange call carries an explicit timeout.
type Broker interface {
	SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	AccountBalance(ctx context.Context) (float64, error)
	Positions(ctx context.Context) ([]PositionSnapshot, error)
}

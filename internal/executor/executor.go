// Package executor turns a sized signal into an entry order and hands
// the fill off to the exit manager. Exchange failures stay inside the
// returned result; nothing propagates past this boundary so the engine
// can continue with the next symbol.
package executor

import (
	"context"
	"fmt"

	"imba/internal/broker"
	"imba/internal/exits"
	"imba/internal/logger"
	"imba/internal/signal"

	"github.com/google/uuid"
)

// entryOrderID tags entry orders so they can be tied back to the
// journal. Binance caps client order ids at 36 characters.
func entryOrderID() string {
	return "IMBA-" + uuid.NewString()[:13]
}

// Entry order outcome.
const (
	StatusFilled = "FILLED"
	StatusError  = "ERROR"
)

// Result reports one execution attempt. DryRun marks fills synthesized
// without a network call.
type Result struct {
	Status     string
	EntryPrice float64
	Quantity   float64
	OrderID    int64
	DryRun     bool
	Error      string
	ErrorKind  broker.ErrorKind
	Exits      exits.ExitSet
	Raw        []byte
}

// Filled reports whether an entry (real or synthesized) happened.
func (r Result) Filled() bool { return r.Status == StatusFilled }

// Executor places market entries.
type Executor struct {
	dryRun bool
	broker broker.Broker
	exits  *exits.Manager
}

func New(dryRun bool, b broker.Broker, em *exits.Manager) *Executor {
	return &Executor{dryRun: dryRun, broker: b, exits: em}
}

// Execute places a MARKET entry for sig at the sized quantity, then
// ensures the exchange-side exits. In dry-run mode the fill is
// synthesized at refPrice with no network call, so the rest of the
// pipeline (exit placement, cooldown, logging) runs unmodified.
func (e *Executor) Execute(ctx context.Context, sig signal.Signal, qty, refPrice, stopPrice float64) Result {
	if qty <= 0 {
		return Result{Status: StatusError, Error: "non-positive quantity"}
	}

	posSide := signal.PositionSide(sig.Side)

	if e.dryRun {
		logger.Infof("DRY_RUN MARKET %s %s qty=%.8g @ %.8g", sig.Symbol, sig.Side, qty, refPrice)
		logger.Audit("entry", sig.Symbol, sig.ID, fmt.Sprintf("dry-run side=%s qty=%.8g px=%.8g", sig.Side, qty, refPrice))
		res := Result{Status: StatusFilled, DryRun: true, EntryPrice: refPrice, Quantity: qty}
		res.Exits = e.exits.EnsureExits(ctx, sig.Symbol, posSide, qty, refPrice, stopPrice)
		return res
	}

	ack, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Type:          broker.OrderTypeMarket,
		Quantity:      qty,
		ClientOrderID: entryOrderID(),
	})
	if err != nil {
		kind := broker.Classify(err)
		logger.Errorf("%s entry order failed (%s): %v", sig.Symbol, kind, err)
		logger.Audit("entry-fail", sig.Symbol, sig.ID, fmt.Sprintf("kind=%s err=%v", kind, err))
		return Result{Status: StatusError, Error: err.Error(), ErrorKind: kind}
	}

	execPrice := ack.AvgPrice
	if execPrice <= 0 {
		execPrice = refPrice
	}
	execQty := ack.ExecutedQty
	if execQty <= 0 {
		execQty = qty
	}
	logger.Infof("%s entry filled: %s %.8g @ %.8g (order=%d)", sig.Symbol, sig.Side, execQty, execPrice, ack.OrderID)
	logger.Audit("entry", sig.Symbol, sig.ID, fmt.Sprintf("side=%s qty=%.8g px=%.8g order=%d", sig.Side, execQty, execPrice, ack.OrderID))

	res := Result{
		Status:     StatusFilled,
		EntryPrice: execPrice,
		Quantity:   execQty,
		OrderID:    ack.OrderID,
		Raw:        ack.Raw,
	}
	// Stop distance was sized against refPrice; the fill price is what
	// the exits must protect.
	res.Exits = e.exits.EnsureExits(ctx, sig.Symbol, posSide, execQty, execPrice, stopPrice)
	return res
}

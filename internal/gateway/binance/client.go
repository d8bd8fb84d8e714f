// Package binance implements the broker contract on Binance USDⓈ-M
// futures via the go-binance SDK.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"imba/internal/broker"
	"imba/internal/market"
	"imba/internal/pkg/circuit"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned while the gateway breaker is open.
var ErrCircuitOpen = errors.New("binance gateway circuit open")

const maxKlineLimit = 1500

// Client wraps the futures REST client with per-call deadlines, a rate
// limiter and a circuit breaker. It implements broker.Broker and
// market.Source.
type Client struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker

	posMu    sync.Mutex
	posCache []broker.PositionSnapshot
	posAt    time.Time
}

func New(cfg Config) *Client {
	final := cfg.withDefaults()
	cli := futures.NewClient(final.APIKey, final.APISecret)
	cli.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	cli.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Client{
		cfg:     final,
		client:  cli,
		limiter: rate.NewLimiter(rate.Limit(final.RateLimit), final.RateBurst),
		breaker: circuit.NewBreaker("binance", final.BreakerThreshold, final.BreakerTimeout),
	}
}

// call wraps one REST request with the deadline, limiter and breaker.
func call[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !c.breaker.Allow() {
		return zero, ErrCircuitOpen
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	out, err := fn(ctx)
	if err != nil {
		c.breaker.RecordFailure()
		return zero, err
	}
	c.breaker.RecordSuccess()
	return out, nil
}

func (c *Client) SymbolFilters(ctx context.Context, symbol string) (broker.SymbolFilters, error) {
	info, err := call(ctx, c, func(ctx context.Context) (*futures.ExchangeInfo, error) {
		return c.client.NewExchangeInfoService().Do(ctx)
	})
	if err != nil {
		return broker.SymbolFilters{}, fmt.Errorf("exchange info: %w", err)
	}
	sym := strings.ToUpper(symbol)
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if !strings.EqualFold(s.Symbol, sym) {
			continue
		}
		var f broker.SymbolFilters
		if pf := s.PriceFilter(); pf != nil {
			f.TickSize = parseFloat(pf.TickSize)
		}
		if lf := s.LotSizeFilter(); lf != nil {
			f.StepSize = parseFloat(lf.StepSize)
		}
		if nf := s.MinNotionalFilter(); nf != nil {
			f.MinNotional = parseFloat(nf.Notional)
		}
		return f, nil
	}
	return broker.SymbolFilters{}, fmt.Errorf("symbol %s not in exchange info", sym)
}

// MarkPrice returns the mark price, falling back to the last traded
// price when the premium index is unavailable.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	sym := strings.ToUpper(symbol)
	idx, err := call(ctx, c, func(ctx context.Context) ([]*futures.PremiumIndex, error) {
		return c.client.NewPremiumIndexService().Symbol(sym).Do(ctx)
	})
	if err == nil {
		for _, pi := range idx {
			if pi == nil {
				continue
			}
			if mp := parseFloat(pi.MarkPrice); mp > 0 {
				return mp, nil
			}
		}
	}
	prices, err2 := call(ctx, c, func(ctx context.Context) ([]*futures.SymbolPrice, error) {
		return c.client.NewListPricesService().Symbol(sym).Do(ctx)
	})
	if err2 != nil {
		if err != nil {
			return 0, fmt.Errorf("mark price: %w", err)
		}
		return 0, fmt.Errorf("ticker price: %w", err2)
	}
	for _, p := range prices {
		if p == nil {
			continue
		}
		if px := parseFloat(p.Price); px > 0 {
			return px, nil
		}
	}
	return 0, fmt.Errorf("no price for %s", sym)
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]broker.OpenOrder, error) {
	orders, err := call(ctx, c, func(ctx context.Context) ([]*futures.Order, error) {
		return c.client.NewListOpenOrdersService().Symbol(strings.ToUpper(symbol)).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	out := make([]broker.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		out = append(out, broker.OpenOrder{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          broker.Side(o.Side),
			Type:          broker.OrderType(o.Type),
			Price:         parseFloat(o.Price),
			Quantity:      parseFloat(o.OrigQuantity),
		})
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := call(ctx, c, func(ctx context.Context) (*futures.CancelOrderResponse, error) {
		return c.client.NewCancelOrderService().Symbol(strings.ToUpper(symbol)).OrderID(orderID).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	return nil
}

func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(strings.ToUpper(req.Symbol)).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	if req.ClosePosition {
		svc = svc.ClosePosition(true)
	} else if req.Quantity > 0 {
		svc = svc.Quantity(formatFloat(req.Quantity))
	}
	if req.Price > 0 {
		svc = svc.Price(formatFloat(req.Price))
	}
	if req.StopPrice > 0 {
		svc = svc.StopPrice(formatFloat(req.StopPrice))
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.Type == broker.OrderTypeLimit {
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		svc = svc.TimeInForce(futures.TimeInForceType(tif))
	}
	if req.WorkingType != "" {
		svc = svc.WorkingType(futures.WorkingType(req.WorkingType))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := call(ctx, c, func(ctx context.Context) (*futures.CreateOrderResponse, error) {
		return svc.Do(ctx)
	})
	if err != nil {
		return broker.OrderAck{}, fmt.Errorf("place %s %s %s: %w", req.Type, req.Side, req.Symbol, err)
	}
	raw, _ := json.Marshal(resp)
	return broker.OrderAck{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Status:        string(resp.Status),
		AvgPrice:      parseFloat(resp.AvgPrice),
		ExecutedQty:   parseFloat(resp.ExecutedQuantity),
		Raw:           raw,
	}, nil
}

func (c *Client) AccountBalance(ctx context.Context) (float64, error) {
	balances, err := call(ctx, c, func(ctx context.Context) ([]*futures.Balance, error) {
		return c.client.NewGetBalanceService().Do(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("account balance: %w", err)
	}
	for _, b := range balances {
		if b != nil && strings.EqualFold(b.Asset, c.cfg.StakeAsset) {
			return parseFloat(b.Balance), nil
		}
	}
	return 0, fmt.Errorf("no %s balance", c.cfg.StakeAsset)
}

// Positions returns position snapshots, served from a short TTL cache
// so per-symbol sweeps inside one iteration share a single fetch.
func (c *Client) Positions(ctx context.Context) ([]broker.PositionSnapshot, error) {
	c.posMu.Lock()
	if time.Since(c.posAt) < c.cfg.PositionCacheTTL && c.posCache != nil {
		cached := c.posCache
		c.posMu.Unlock()
		return cached, nil
	}
	c.posMu.Unlock()

	risks, err := call(ctx, c, func(ctx context.Context) ([]*futures.PositionRisk, error) {
		return c.client.NewGetPositionRiskService().Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("position risk: %w", err)
	}
	now := time.Now()
	out := make([]broker.PositionSnapshot, 0, len(risks))
	for _, r := range risks {
		if r == nil {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		out = append(out, broker.PositionSnapshot{
			Symbol:        r.Symbol,
			Amt:           amt,
			EntryPrice:    parseFloat(r.EntryPrice),
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
			UpdatedAt:     now,
		})
	}

	c.posMu.Lock()
	c.posCache = out
	c.posAt = now
	c.posMu.Unlock()
	return out, nil
}

// Candles implements market.Source for the signal generator.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	kls, err := call(ctx, c, func(ctx context.Context) ([]*futures.Kline, error) {
		return c.client.NewKlinesService().
			Symbol(strings.ToUpper(symbol)).
			Interval(strings.ToLower(strings.TrimSpace(interval))).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("klines: %w", err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Package signal defines the canonical trading signal and the
// normalization of heterogeneous upstream signal shapes into it.
package signal

import (
	"fmt"
	"strings"
	"time"

	"imba/internal/broker"
)

// Signal is the one canonical signal record the pipeline consumes.
type Signal struct {
	Symbol     string
	Side       broker.Side
	Strength   float64 // [0,1]
	EntryPrice float64 // 0 when the generator supplied no price
	ID         string  // deduplication key
	Timestamp  time.Time
}

// MapSide resolves a raw side token to an order side. Tokens are
// case-folded; dotted enum renderings ("SignalType.BUY") resolve by
// their last segment. Unresolvable tokens report ok=false.
func MapSide(token string) (broker.Side, bool) {
	s := strings.ToUpper(strings.TrimSpace(token))
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	switch s {
	case "BUY", "LONG", "B", "L":
		return broker.SideBuy, true
	case "SELL", "SHORT", "S":
		return broker.SideSell, true
	default:
		return "", false
	}
}

// PositionSide returns LONG or SHORT for an entry side.
func PositionSide(side broker.Side) string {
	if side == broker.SideBuy {
		return "LONG"
	}
	return "SHORT"
}

func synthesizeID(symbol string, side broker.Side, ts time.Time) string {
	return fmt.Sprintf("%s-%s-%d", symbol, side, ts.UnixMilli())
}

package signal

import (
	"strconv"
	"strings"
	"time"
)

// Raw is the minimal shape a generator-owned signal type must expose to
// be normalized. Optional fields are separate interfaces below; a
// generator implements only what it has.
type Raw interface {
	Side() string
	Strength() float64
}

type priced interface{ EntryPrice() float64 }
type symboled interface{ Symbol() string }
type identified interface{ SignalID() string }
type stamped interface{ Timestamp() time.Time }

// Normalize converts a raw signal of any accepted shape into a Signal.
// Accepted shapes: Signal / *Signal, a map with side/strength/price
// keys, a Raw implementation, a 2-3 element slice (side, strength[,
// price]), or a bare "BUY"/"SELL" string. Anything else, or any side
// token that does not resolve, reports ok=false. Normalize performs no
// I/O and never panics; ill-formed upstream data is dropped, not
// errored.
func Normalize(raw any, defaultSymbol string) (Signal, bool) {
	switch v := raw.(type) {
	case nil:
		return Signal{}, false
	case Signal:
		return finish(v, defaultSymbol)
	case *Signal:
		if v == nil {
			return Signal{}, false
		}
		return finish(*v, defaultSymbol)
	case string:
		side, ok := MapSide(v)
		if !ok {
			return Signal{}, false
		}
		return finish(Signal{Side: side}, defaultSymbol)
	case map[string]any:
		return fromMap(v, defaultSymbol)
	case []any:
		return fromSeq(v, defaultSymbol)
	case Raw:
		return fromRaw(v, defaultSymbol)
	default:
		return Signal{}, false
	}
}

func fromMap(m map[string]any, defaultSymbol string) (Signal, bool) {
	sideTok, ok := firstString(m, "side", "signal_type", "direction")
	if !ok {
		return Signal{}, false
	}
	side, ok := MapSide(sideTok)
	if !ok {
		return Signal{}, false
	}
	sig := Signal{Side: side}
	if sym, ok := firstString(m, "symbol"); ok {
		sig.Symbol = sym
	}
	if v, ok := firstValue(m, "strength", "confidence", "score"); ok {
		sig.Strength = coerceFloat(v)
	}
	if v, ok := firstValue(m, "entry_price", "price"); ok {
		sig.EntryPrice = coerceFloat(v)
	}
	if id, ok := firstString(m, "id", "signal_id"); ok {
		sig.ID = id
	}
	if v, ok := firstValue(m, "timestamp"); ok {
		if ts, ok := v.(time.Time); ok {
			sig.Timestamp = ts
		}
	}
	return finish(sig, defaultSymbol)
}

func fromSeq(seq []any, defaultSymbol string) (Signal, bool) {
	if len(seq) < 2 || len(seq) > 3 {
		return Signal{}, false
	}
	tok, ok := seq[0].(string)
	if !ok {
		return Signal{}, false
	}
	side, ok := MapSide(tok)
	if !ok {
		return Signal{}, false
	}
	sig := Signal{Side: side, Strength: coerceFloat(seq[1])}
	if len(seq) == 3 {
		sig.EntryPrice = coerceFloat(seq[2])
	}
	return finish(sig, defaultSymbol)
}

func fromRaw(r Raw, defaultSymbol string) (Signal, bool) {
	side, ok := MapSide(r.Side())
	if !ok {
		return Signal{}, false
	}
	sig := Signal{Side: side, Strength: r.Strength()}
	if p, ok := r.(priced); ok {
		sig.EntryPrice = p.EntryPrice()
	}
	if s, ok := r.(symboled); ok {
		sig.Symbol = s.Symbol()
	}
	if id, ok := r.(identified); ok {
		sig.ID = id.SignalID()
	}
	if ts, ok := r.(stamped); ok {
		sig.Timestamp = ts.Timestamp()
	}
	return finish(sig, defaultSymbol)
}

// finish fills defaults and enforces field invariants.
func finish(sig Signal, defaultSymbol string) (Signal, bool) {
	if sig.Side != "" {
		if side, ok := MapSide(string(sig.Side)); ok {
			sig.Side = side
		} else {
			return Signal{}, false
		}
	} else {
		return Signal{}, false
	}
	if sig.Symbol == "" {
		sig.Symbol = defaultSymbol
	}
	sig.Symbol = strings.ToUpper(strings.TrimSpace(sig.Symbol))
	if sig.Symbol == "" {
		return Signal{}, false
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}
	if sig.Strength < 0 {
		sig.Strength = 0
	} else if sig.Strength > 1 {
		sig.Strength = 1
	}
	if sig.EntryPrice < 0 {
		sig.EntryPrice = 0
	}
	if sig.ID == "" {
		sig.ID = synthesizeID(sig.Symbol, sig.Side, sig.Timestamp)
	}
	return sig, true
}

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	v, ok := firstValue(m, keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// coerceFloat converts common numeric representations, defaulting to 0
// on anything it cannot read.
func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Package market holds the candle model shared by the gateway and the
// signal generator.
package market

import "context"

// Candle is one closed kline.
type Candle struct {
	OpenTime  int64 // epoch millis
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Source supplies recent candles for a symbol.
type Source interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.Close)
	}
	return out
}

package config

// Defaults returns the baseline configuration merged under any loaded
// file. The exit ladder defaults mirror the recognized TP_LEVELS and
// TP_SHARES environment fallbacks.
func Defaults() Config {
	return Config{
		App: AppConfig{
			LogLevel: "info",
		},
		Exchange: ExchangeConfig{
			StakeAsset:     "USDT",
			TimeoutSec:     15,
			CallTimeoutSec: 10,
			RateLimit:      8,
		},
		Trading: TradingConfig{
			Symbols:           []string{"BTCUSDT"},
			DryRun:            true,
			LoopIntervalSec:   5,
			CooldownSec:       300,
			TradingEndHour:    23,
			MaxConsecutiveErr: 10,
		},
		Risk: RiskConfig{
			RiskPerTradePct: 0.5,
			Leverage:        5,
			SLFixedPct:      1.0,
			MinNotionalUSDT: 5.0,
		},
		Exits: ExitsConfig{
			PlaceExitsOnExchange: true,
			WorkingType:          "MARK_PRICE",
			TimeInForce:          "GTC",
			ReplaceCooldownSec:   20,
			ClampTicks:           3,
			TPBandPct:            5.0,
			TPLevels:             []float64{0.5, 1.2, 2.0},
			TPShares:             []float64{0.4, 0.35, 0.25},
		},
		Signals: SignalsConfig{
			Interval:      "1m",
			Lookback:      100,
			FastPeriod:    9,
			SlowPeriod:    21,
			RSIPeriod:     14,
			RSIOverbought: 72,
			RSIOversold:   28,
			MinStrength:   0.05,
		},
		Admin: AdminConfig{
			Listen: ":8792",
		},
		Store: StoreConfig{
			Path: "data/imba.db",
		},
	}
}

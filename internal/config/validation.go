package config

import (
	"fmt"
	"math"
	"strings"
)

// shareSumTolerance bounds how far the take-profit shares may drift
// from summing to exactly one.
const shareSumTolerance = 1e-6

// validate runs the startup-fatal checks. Malformed exit ladders or
// risk parameters are programmer/config errors and must never reach the
// per-iteration pipeline.
func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Exits.validate(); err != nil {
		return err
	}
	if err := c.Signals.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.Symbols) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	for i, s := range t.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return fmt.Errorf("trading.symbols[%d] is empty", i)
		}
		t.Symbols[i] = s
	}
	if t.LoopIntervalSec <= 0 {
		return fmt.Errorf("trading.loop_interval_sec must be > 0")
	}
	if t.CooldownSec < 0 {
		return fmt.Errorf("trading.cooldown_sec must be >= 0")
	}
	if t.TradingStartHour < 0 || t.TradingStartHour > 23 {
		return fmt.Errorf("trading.trading_start_hour must be in [0,23]")
	}
	if t.TradingEndHour < 0 || t.TradingEndHour > 23 {
		return fmt.Errorf("trading.trading_end_hour must be in [0,23]")
	}
	if t.MaxConsecutiveErr < 0 {
		return fmt.Errorf("trading.max_consecutive_errors must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 10 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0,10]")
	}
	if r.Leverage < 1 || r.Leverage > 125 {
		return fmt.Errorf("risk.leverage must be in [1,125]")
	}
	if r.SLFixedPct <= 0 || r.SLFixedPct > 10 {
		return fmt.Errorf("risk.sl_fixed_pct must be in (0,10]")
	}
	if r.MinNotionalUSDT < 0 {
		return fmt.Errorf("risk.min_notional_usdt must be >= 0")
	}
	if r.MaxDailyLoss < 0 {
		return fmt.Errorf("risk.max_daily_loss must be >= 0 (0 disables the check)")
	}
	if r.MinAccountBalance < 0 {
		return fmt.Errorf("risk.min_account_balance must be >= 0 (0 disables the check)")
	}
	if r.MaxDrawdown < 0 || r.MaxDrawdown > 1 {
		return fmt.Errorf("risk.max_drawdown must be in [0,1] (0 disables the check)")
	}
	return nil
}

func (e *ExitsConfig) validate() error {
	switch strings.ToUpper(strings.TrimSpace(e.WorkingType)) {
	case "MARK_PRICE", "CONTRACT_PRICE":
	default:
		return fmt.Errorf("exits.working_type must be MARK_PRICE or CONTRACT_PRICE")
	}
	if e.ReplaceCooldownSec < 0 {
		return fmt.Errorf("exits.replace_cooldown_sec must be >= 0")
	}
	if len(e.TPLevels) != len(e.TPShares) {
		return fmt.Errorf("exits.tp_levels and exits.tp_shares must have equal length (%d != %d)",
			len(e.TPLevels), len(e.TPShares))
	}
	if len(e.TPShares) == 0 {
		return fmt.Errorf("exits.tp_shares requires at least one level")
	}
	var sum float64
	for i, s := range e.TPShares {
		if s <= 0 {
			return fmt.Errorf("exits.tp_shares[%d] must be > 0", i)
		}
		sum += s
	}
	if math.Abs(sum-1.0) > shareSumTolerance {
		return fmt.Errorf("exits.tp_shares must sum to 1.0 (got %.8f)", sum)
	}
	for i, l := range e.TPLevels {
		if l <= 0 {
			return fmt.Errorf("exits.tp_levels[%d] must be > 0", i)
		}
	}
	return nil
}

func (s *SignalsConfig) validate() error {
	if s.FastPeriod <= 0 || s.SlowPeriod <= 0 || s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("signals fast/slow periods must satisfy 0 < fast < slow")
	}
	if s.RSIPeriod <= 0 {
		return fmt.Errorf("signals.rsi_period must be > 0")
	}
	if s.Lookback <= s.SlowPeriod {
		return fmt.Errorf("signals.lookback must exceed the slow period")
	}
	return nil
}

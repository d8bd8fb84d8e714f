package risk

import (
	"fmt"

	"imba/internal/logger"
)

// HaltConfig holds the emergency-stop thresholds. A zero threshold
// disables its check; zero means "disabled", not "zero tolerance".
type HaltConfig struct {
	MaxDailyLoss      float64 // absolute quote-currency loss per day
	MinAccountBalance float64
	MaxDrawdown       float64 // fraction in (0,1]
}

// AccountMetrics is the read surface the emergency monitor evaluates.
// Balance reports ok=false when no balance observation exists yet, so a
// failed read never trips the balance floor.
type AccountMetrics interface {
	DailyPnL() float64
	Balance() (float64, bool)
	Drawdown() float64
}

// ShouldHalt evaluates the emergency-stop conditions. Each check is
// independently sufficient; the returned reason names the first breach.
// When it reports true the engine is expected to cancel open orders,
// optionally flatten positions, persist state and terminate.
func ShouldHalt(m AccountMetrics, cfg HaltConfig) (bool, string) {
	maxLoss := cfg.MaxDailyLoss
	if maxLoss < 0 {
		maxLoss = -maxLoss
	}
	if maxLoss > 0 {
		if pnl := m.DailyPnL(); pnl < -maxLoss {
			return true, fmt.Sprintf("daily loss limit exceeded: %.2f < -%.2f", pnl, maxLoss)
		}
	}

	if cfg.MinAccountBalance > 0 {
		if bal, ok := m.Balance(); !ok {
			logger.Warnf("account balance unknown, skipping balance floor check")
		} else if bal < cfg.MinAccountBalance {
			return true, fmt.Sprintf("account balance too low: %.2f < %.2f", bal, cfg.MinAccountBalance)
		}
	}

	if cfg.MaxDrawdown > 0 {
		if dd := m.Drawdown(); dd > cfg.MaxDrawdown {
			return true, fmt.Sprintf("maximum drawdown exceeded: %.2f%% > %.2f%%", dd*100, cfg.MaxDrawdown*100)
		}
	}

	return false, ""
}

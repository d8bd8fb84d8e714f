package risk

import (
	"sync"
	"time"

	"imba/internal/logger"

	"github.com/robfig/cron/v3"
)

// Tracker accumulates the account metrics the emergency monitor reads:
// realized PnL since the last UTC midnight, the latest observed balance
// and peak-balance drawdown. The daily PnL resets on a cron schedule.
type Tracker struct {
	mu           sync.Mutex
	dailyPnL     float64
	balance      float64
	balanceKnown bool
	peakBalance  float64
	drawdown     float64

	cron *cron.Cron
}

func NewTracker() *Tracker {
	t := &Tracker{}
	t.cron = cron.New(cron.WithLocation(time.UTC))
	// Daily PnL window rolls over at UTC midnight.
	if _, err := t.cron.AddFunc("0 0 * * *", t.ResetDaily); err != nil {
		logger.Errorf("metrics tracker: scheduling daily reset failed: %v", err)
	}
	return t
}

// Start begins the daily reset schedule.
func (t *Tracker) Start() { t.cron.Start() }

// Stop halts the schedule. In-flight resets complete.
func (t *Tracker) Stop() { t.cron.Stop() }

// ResetDaily zeroes the daily realized PnL window.
func (t *Tracker) ResetDaily() {
	t.mu.Lock()
	prev := t.dailyPnL
	t.dailyPnL = 0
	t.mu.Unlock()
	logger.Infof("daily PnL window reset (closed at %.2f)", prev)
}

// RecordRealized adds a realized PnL delta to the daily window.
func (t *Tracker) RecordRealized(pnl float64) {
	t.mu.Lock()
	t.dailyPnL += pnl
	t.mu.Unlock()
}

// ObserveBalance records a fresh balance reading and updates the
// peak-balance drawdown.
func (t *Tracker) ObserveBalance(balance float64) {
	if balance <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance = balance
	t.balanceKnown = true
	if balance > t.peakBalance {
		t.peakBalance = balance
	}
	if t.peakBalance > 0 {
		t.drawdown = (t.peakBalance - balance) / t.peakBalance
	}
}

func (t *Tracker) DailyPnL() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dailyPnL
}

func (t *Tracker) Balance() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance, t.balanceKnown
}

func (t *Tracker) Drawdown() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drawdown
}

package exits

import (
	"sync"
	"time"
)

// minReplaceGap is the hard floor for the replace cooldown; even a
// misconfigured zero cooldown never hammers the exchange faster than
// this.
const minReplaceGap = 2 * time.Second

// replaceGate rate-limits ensure calls per symbol and kind (sl/tp) so a
// pipeline running every loop tick cannot generate order-replace storms.
type replaceGate struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func newReplaceGate() *replaceGate {
	return &replaceGate{last: make(map[string]time.Time), now: time.Now}
}

// allow reports whether an ensure of kind may run for symbol, and if so
// consumes the slot.
func (g *replaceGate) allow(symbol, kind string, cooldown time.Duration) bool {
	if cooldown < minReplaceGap {
		cooldown = minReplaceGap
	}
	key := symbol + "/" + kind
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.last[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	g.last[key] = now
	return true
}

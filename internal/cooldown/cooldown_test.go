package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateWindow(t *testing.T) {
	g := NewGate(5 * time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g.now = func() time.Time { return now }

	assert.False(t, g.InCooldown("BTCUSDT"), "fresh symbol is not gated")
	assert.Zero(t, g.Remaining("BTCUSDT"))

	g.NoteTrade("BTCUSDT")
	assert.True(t, g.InCooldown("BTCUSDT"))
	assert.Equal(t, 5*time.Minute, g.Remaining("BTCUSDT"))
	assert.False(t, g.InCooldown("ETHUSDT"), "symbols are independent")

	now = base.Add(4 * time.Minute)
	assert.True(t, g.InCooldown("BTCUSDT"))
	assert.Equal(t, time.Minute, g.Remaining("BTCUSDT"))

	now = base.Add(5 * time.Minute)
	assert.False(t, g.InCooldown("BTCUSDT"), "window boundary releases the gate")
	assert.Zero(t, g.Remaining("BTCUSDT"))
}

func TestGateRetrade(t *testing.T) {
	g := NewGate(time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g.now = func() time.Time { return now }

	g.NoteTrade("BTCUSDT")
	now = base.Add(2 * time.Minute)
	assert.False(t, g.InCooldown("BTCUSDT"))

	g.NoteTrade("BTCUSDT")
	assert.True(t, g.InCooldown("BTCUSDT"), "a new trade restarts the window")
}

func TestGateDisabled(t *testing.T) {
	for _, window := range []time.Duration{0, -time.Second} {
		g := NewGate(window)
		g.NoteTrade("BTCUSDT")
		assert.False(t, g.InCooldown("BTCUSDT"), "window %v disables gating", window)
		assert.Zero(t, g.Remaining("BTCUSDT"))
	}
}

package binance

import "time"

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
)

// Config for the futures gateway.
type Config struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	RESTBaseURL string
	StakeAsset  string

	HTTPTimeout time.Duration // transport-level timeout
	CallTimeout time.Duration // per-call deadline applied to every request

	RateLimit float64 // requests per second
	RateBurst int

	BreakerThreshold int
	BreakerTimeout   time.Duration

	PositionCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.RESTBaseURL == "" {
		if c.Testnet {
			c.RESTBaseURL = testnetBaseURL
		} else {
			c.RESTBaseURL = mainnetBaseURL
		}
	}
	if c.StakeAsset == "" {
		c.StakeAsset = "USDT"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 8
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 16
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.PositionCacheTTL <= 0 {
		c.PositionCacheTTL = 5 * time.Second
	}
	return c
}

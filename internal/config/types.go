// Package config loads, validates and watches the engine configuration.
package config

import "time"

type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange" yaml:"exchange"`
	Trading  TradingConfig  `mapstructure:"trading" yaml:"trading"`
	Risk     RiskConfig     `mapstructure:"risk" yaml:"risk"`
	Exits    ExitsConfig    `mapstructure:"exits" yaml:"exits"`
	Signals  SignalsConfig  `mapstructure:"signals" yaml:"signals"`
	Admin    AdminConfig    `mapstructure:"admin" yaml:"admin"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogPath  string `mapstructure:"log_path" yaml:"log_path"`
	AuditLog string `mapstructure:"audit_log" yaml:"audit_log"`
}

type ExchangeConfig struct {
	APIKey         string  `mapstructure:"api_key" yaml:"-"`
	APISecret      string  `mapstructure:"api_secret" yaml:"-"`
	Testnet        bool    `mapstructure:"testnet" yaml:"testnet"`
	RESTBaseURL    string  `mapstructure:"rest_base_url" yaml:"rest_base_url"`
	StakeAsset     string  `mapstructure:"stake_asset" yaml:"stake_asset"`
	TimeoutSec     int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	CallTimeoutSec int     `mapstructure:"call_timeout_sec" yaml:"call_timeout_sec"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

type TradingConfig struct {
	Symbols             []string `mapstructure:"symbols" yaml:"symbols"`
	DryRun              bool     `mapstructure:"dry_run" yaml:"dry_run"`
	LoopIntervalSec     int      `mapstructure:"loop_interval_sec" yaml:"loop_interval_sec"`
	CooldownSec         int      `mapstructure:"cooldown_sec" yaml:"cooldown_sec"`
	TradingHoursEnabled bool     `mapstructure:"trading_hours_enabled" yaml:"trading_hours_enabled"`
	TradingStartHour    int      `mapstructure:"trading_start_hour" yaml:"trading_start_hour"`
	TradingEndHour      int      `mapstructure:"trading_end_hour" yaml:"trading_end_hour"`
	MaxConsecutiveErr   int      `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	FlattenOnHalt       bool     `mapstructure:"flatten_on_halt" yaml:"flatten_on_halt"`
}

type RiskConfig struct {
	RiskPerTradePct   float64 `mapstructure:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	Leverage          int     `mapstructure:"leverage" yaml:"leverage"`
	SLFixedPct        float64 `mapstructure:"sl_fixed_pct" yaml:"sl_fixed_pct"`
	MinNotionalUSDT   float64 `mapstructure:"min_notional_usdt" yaml:"min_notional_usdt"`
	MaxDailyLoss      float64 `mapstructure:"max_daily_loss" yaml:"max_daily_loss"`
	MinAccountBalance float64 `mapstructure:"min_account_balance" yaml:"min_account_balance"`
	MaxDrawdown       float64 `mapstructure:"max_drawdown" yaml:"max_drawdown"`
}

type ExitsConfig struct {
	PlaceExitsOnExchange bool      `mapstructure:"place_exits_on_exchange" yaml:"place_exits_on_exchange"`
	WorkingType          string    `mapstructure:"working_type" yaml:"working_type"`
	TimeInForce          string    `mapstructure:"time_in_force" yaml:"time_in_force"`
	ReplaceCooldownSec   int       `mapstructure:"replace_cooldown_sec" yaml:"replace_cooldown_sec"`
	ClampTicks           int       `mapstructure:"clamp_ticks" yaml:"clamp_ticks"`
	TPBandPct            float64   `mapstructure:"tp_band_pct" yaml:"tp_band_pct"`
	TPLevels             []float64 `mapstructure:"tp_levels" yaml:"tp_levels"`
	TPShares             []float64 `mapstructure:"tp_shares" yaml:"tp_shares"`
}

type SignalsConfig struct {
	Interval      string  `mapstructure:"interval" yaml:"interval"`
	Lookback      int     `mapstructure:"lookback" yaml:"lookback"`
	FastPeriod    int     `mapstructure:"fast_period" yaml:"fast_period"`
	SlowPeriod    int     `mapstructure:"slow_period" yaml:"slow_period"`
	RSIPeriod     int     `mapstructure:"rsi_period" yaml:"rsi_period"`
	RSIOverbought float64 `mapstructure:"rsi_overbought" yaml:"rsi_overbought"`
	RSIOversold   float64 `mapstructure:"rsi_oversold" yaml:"rsi_oversold"`
	MinStrength   float64 `mapstructure:"min_strength" yaml:"min_strength"`
}

type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

type NotifyConfig struct {
	TelegramEnabled bool   `mapstructure:"telegram_enabled" yaml:"telegram_enabled"`
	TelegramToken   string `mapstructure:"telegram_token" yaml:"-"`
	TelegramChatID  string `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

func (t TradingConfig) LoopInterval() time.Duration {
	return time.Duration(t.LoopIntervalSec) * time.Second
}

func (t TradingConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownSec) * time.Second
}

func (e ExitsConfig) ReplaceCooldown() time.Duration {
	return time.Duration(e.ReplaceCooldownSec) * time.Second
}

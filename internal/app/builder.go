package app

import (
	"fmt"
	"time"

	"imba/internal/broker"
	"imba/internal/config"
	"imba/internal/cooldown"
	"imba/internal/engine"
	"imba/internal/executor"
	"imba/internal/exits"
	"imba/internal/filters"
	binancegw "imba/internal/gateway/binance"
	"imba/internal/logger"
	"imba/internal/notifier"
	"imba/internal/risk"
	"imba/internal/signal"
	"imba/internal/store"
	adminhttp "imba/internal/transport/http/admin"
)

// build assembles the dependency graph bottom-up: gateway, filter
// cache, risk and exit layers, engine, then the admin surface.
func build(cfg *config.Config) (*App, error) {
	client := binancegw.New(binancegw.Config{
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		Testnet:     cfg.Exchange.Testnet,
		RESTBaseURL: cfg.Exchange.RESTBaseURL,
		StakeAsset:  cfg.Exchange.StakeAsset,
		HTTPTimeout: time.Duration(cfg.Exchange.TimeoutSec) * time.Second,
		CallTimeout: time.Duration(cfg.Exchange.CallTimeoutSec) * time.Second,
		RateLimit:   cfg.Exchange.RateLimit,
	})

	cache := filters.NewCache(client)
	sizer := risk.NewSizer(risk.SizerConfig{
		RiskPerTradePct: cfg.Risk.RiskPerTradePct,
		Leverage:        cfg.Risk.Leverage,
		SLFixedPct:      cfg.Risk.SLFixedPct,
		MinNotionalUSDT: cfg.Risk.MinNotionalUSDT,
	}, cache)
	tracker := risk.NewTracker()

	exitMgr := exits.NewManager(exits.Config{
		Enabled:         cfg.Exits.PlaceExitsOnExchange,
		DryRun:          cfg.Trading.DryRun,
		WorkingType:     broker.WorkingType(cfg.Exits.WorkingType),
		TimeInForce:     cfg.Exits.TimeInForce,
		ReplaceCooldown: cfg.Exits.ReplaceCooldown(),
		ClampTicks:      cfg.Exits.ClampTicks,
		TPBandPct:       cfg.Exits.TPBandPct,
		TPLevelsPct:     cfg.Exits.TPLevels,
		TPShares:        cfg.Exits.TPShares,
	}, client, cache)

	exec := executor.New(cfg.Trading.DryRun, client, exitMgr)
	gate := cooldown.NewGate(cfg.Trading.Cooldown())
	generator := signal.NewGenerator(signal.GeneratorConfig{
		Interval:      cfg.Signals.Interval,
		Lookback:      cfg.Signals.Lookback,
		FastPeriod:    cfg.Signals.FastPeriod,
		SlowPeriod:    cfg.Signals.SlowPeriod,
		RSIPeriod:     cfg.Signals.RSIPeriod,
		RSIOverbought: cfg.Signals.RSIOverbought,
		RSIOversold:   cfg.Signals.RSIOversold,
		MinStrength:   cfg.Signals.MinStrength,
	}, client)

	var journal *store.Store
	if cfg.Store.Enabled {
		var err error
		journal, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	var notify notifier.Notifier = notifier.Nop{}
	if cfg.Notify.TelegramEnabled && cfg.Notify.TelegramToken != "" {
		notify = notifier.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		logger.Infof("telegram notifier enabled (chat=%s)", cfg.Notify.TelegramChatID)
	}

	eng := engine.New(engine.Config{
		Symbols:      engine.SymbolList(cfg.Trading.Symbols),
		LoopInterval: cfg.Trading.LoopInterval(),
		Halt: risk.HaltConfig{
			MaxDailyLoss:      cfg.Risk.MaxDailyLoss,
			MinAccountBalance: cfg.Risk.MinAccountBalance,
			MaxDrawdown:       cfg.Risk.MaxDrawdown,
		},
		TradingHoursEnabled: cfg.Trading.TradingHoursEnabled,
		TradingStartHour:    cfg.Trading.TradingStartHour,
		TradingEndHour:      cfg.Trading.TradingEndHour,
		MaxConsecutiveErr:   cfg.Trading.MaxConsecutiveErr,
		FlattenOnHalt:       cfg.Trading.FlattenOnHalt,
		DryRun:              cfg.Trading.DryRun,
	}, engine.Deps{
		Broker:    client,
		Filters:   cache,
		Generator: generator,
		Sizer:     sizer,
		Tracker:   tracker,
		Cooldown:  gate,
		Executor:  exec,
		Journal:   journal,
		Notify:    notify,
	})

	var admin *adminhttp.Server
	if cfg.Admin.Enabled {
		var err error
		admin, err = adminhttp.NewServer(adminhttp.ServerConfig{
			Addr:    cfg.Admin.Listen,
			Engine:  eng,
			Broker:  client,
			Journal: journal,
			EffectiveYAML: func() ([]byte, error) {
				out, err := cfg.EffectiveYAML()
				return []byte(out), err
			},
		})
		if err != nil {
			return nil, fmt.Errorf("admin server: %w", err)
		}
	}

	return &App{
		cfg:     cfg,
		engine:  eng,
		tracker: tracker,
		journal: journal,
		admin:   admin,
	}, nil
}

// Package app wires configuration into a running process: exchange
// gateway, trading engine, admin HTTP surface and the config watcher.
package app

import (
	"context"
	"errors"
	"fmt"

	"imba/internal/config"
	"imba/internal/engine"
	"imba/internal/logger"
	"imba/internal/risk"
	"imba/internal/store"
	adminhttp "imba/internal/transport/http/admin"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg     *config.Config
	cfgPath string

	engine  *engine.Engine
	tracker *risk.Tracker
	journal *store.Store
	admin   *adminhttp.Server
}

// NewApp builds the application from cfg without starting anything.
// cfgPath enables hot reload of the reloadable config subset; empty
// disables the watcher.
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a, err := build(cfg)
	if err != nil {
		return nil, err
	}
	a.cfgPath = cfgPath
	return a, nil
}

// Engine exposes the engine instance for test harnesses.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Run starts the engine, the admin server and the config watcher, and
// blocks until the first of them fails or ctx is cancelled. An
// emergency halt stops the whole group.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	a.tracker.Start()
	defer a.tracker.Stop()
	if a.journal != nil {
		defer func() {
			if err := a.journal.Close(); err != nil {
				logger.Warnf("journal close failed: %v", err)
			}
		}()
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.admin != nil {
		group.Go(func() error {
			logger.Infof("admin server listening on %s", a.admin.Addr())
			if err := a.admin.Start(ctx); err != nil {
				return fmt.Errorf("admin server error: %w", err)
			}
			return nil
		})
	}

	if a.cfgPath != "" {
		group.Go(func() error {
			return config.Watch(ctx, a.cfgPath, a.applyReload)
		})
	}

	group.Go(func() error {
		return a.engine.Run(ctx)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) applyReload(r config.Reloadable) {
	logger.SetLevel(r.LogLevel)
	a.engine.SetHaltConfig(risk.HaltConfig{
		MaxDailyLoss:      r.Risk.MaxDailyLoss,
		MinAccountBalance: r.Risk.MinAccountBalance,
		MaxDrawdown:       r.Risk.MaxDrawdown,
	})
	logger.Infof("config reloaded: log_level=%s max_daily_loss=%.2f min_balance=%.2f max_drawdown=%.2f",
		r.LogLevel, r.Risk.MaxDailyLoss, r.Risk.MinAccountBalance, r.Risk.MaxDrawdown)
}

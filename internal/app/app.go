// Package app builds the engine from configuration and runs it.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bracken/internal/config"
	"bracken/internal/engine"
	"bracken/internal/gateway/execution"
	"bracken/internal/gateway/notifier"
	"bracken/internal/logger"
	"bracken/internal/scheduler"
	"bracken/internal/store"
	"bracken/internal/store/gormstore"
)

type App struct {
	cfg *config.Config
	st  store.Store
	eng *engine.Engine
}

// NewApp wires the store, execution gateway, notifier and engine. It does
// not start anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	st, err := gormstore.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// Paper venue for now; a broker bridge slots in behind the same
	// Gateway interface.
	paper := execution.NewPaper(cfg.App.PaperBalanceUSD)
	gw := execution.WithRetry(paper)

	var sink notifier.TextNotifier
	if cfg.Notify.Telegram.Enabled {
		sink = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	eng, err := engine.New(cfg, st, gw, paper, paper, paper, sink)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building engine: %w", err)
	}
	return &App{cfg: cfg, st: st, eng: eng}, nil
}

// Engine exposes the engine for event feeds and test harnesses.
func (a *App) Engine() *engine.Engine { return a.eng }

// Run restores persisted chains and drives the scheduler until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.st.Close()

	if err := a.eng.Recover(ctx); err != nil {
		return fmt.Errorf("restoring chains: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		scheduler.New(ctx, a.cfg.Scheduler.Tick()).Start(a.eng.Task(ctx))
		return nil
	})
	logger.Infof("engine running, tick=%s, %d chains restored",
		a.cfg.Scheduler.Tick(), a.eng.ActiveChains())
	return group.Wait()
}

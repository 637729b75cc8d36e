package monitor

import (
	"context"
	"fmt"
	"time"

	"bracken/internal/chain"
	"bracken/internal/config"
	"bracken/internal/gateway/execution"
	"bracken/internal/gateway/notifier"
	"bracken/internal/logger"
	"bracken/internal/signal"
	"bracken/internal/store"
)

// RecoveryMonitor re-enters after a stop-loss when price claws back a large
// enough fraction of the stopped move before the window closes.
type RecoveryMonitor struct {
	cfg    config.RecoveryConfig
	prices execution.PriceSource
	pl     placer
	st     store.Store
	events *notifier.Events
	nowFn  func() time.Time
}

func NewRecoveryMonitor(
	cfg config.RecoveryConfig,
	gw execution.Gateway,
	prices execution.PriceSource,
	st store.Store,
	events *notifier.Events,
) *RecoveryMonitor {
	return &RecoveryMonitor{
		cfg:    cfg,
		prices: prices,
		pl:     placer{gw: gw, st: st},
		st:     st,
		events: events,
		nowFn:  time.Now,
	}
}

// RecoveryFraction measures how much of the stopped move price has clawed
// back: 0 at the stop, 1 back at the entry.
func RecoveryFraction(dir signal.Direction, entry, stop, cur float64) float64 {
	if dir == signal.Long {
		denom := entry - stop
		if denom <= 0 {
			return 0
		}
		return (cur - stop) / denom
	}
	denom := stop - entry
	if denom <= 0 {
		return 0
	}
	return (stop - cur) / denom
}

// Start opens a recovery window for a chain whose entry just stopped out.
// When recovery is disabled or an attempt limit is hit the chain stops
// immediately and no event is created.
func (m *RecoveryMonitor) Start(ctx context.Context, rc *chain.ReentryChain, entry, stop, hit float64) (*chain.StopLossEvent, error) {
	now := m.nowFn()
	if !m.cfg.Enabled {
		return nil, m.stopChain(ctx, rc, "recovery disabled", now)
	}
	if rc.RecoveryAttempts >= m.cfg.MaxAttemptsPerChain {
		return nil, m.stopChain(ctx, rc, "per-chain recovery limit reached", now)
	}
	dayAttempts, err := m.dayAttempts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("counting recovery attempts: %w", err)
	}
	if dayAttempts >= m.cfg.MaxAttemptsPerDay {
		return nil, m.stopChain(ctx, rc, "daily recovery limit reached", now)
	}

	ev := chain.NewStopLossEvent(rc, entry, stop, hit, now, m.cfg.Window())
	if err := m.st.SaveStopLossEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("persisting stop loss event: %w", err)
	}
	rc.Status = chain.ChainRecovering
	rc.UpdatedAt = now
	if err := m.st.SaveReentryChain(ctx, rc); err != nil {
		return nil, fmt.Errorf("persisting chain %s: %w", rc.ID, err)
	}
	m.events.RecoveryStarted(rc.Symbol, rc.ID, ev.Deadline)
	logger.Infof("recovery window opened chain=%s until %s", rc.ID, ev.Deadline.Format(time.RFC3339))
	return ev, nil
}

// Tick checks one unresolved stop-loss event. Expiry is checked before the
// trigger so a late claw-back can never fire after the deadline.
func (m *RecoveryMonitor) Tick(ctx context.Context, rc *chain.ReentryChain, ev *chain.StopLossEvent) error {
	if ev == nil || ev.Resolved || rc.Status != chain.ChainRecovering {
		return nil
	}
	now := m.nowFn()
	if now.After(ev.Deadline) {
		ev.Resolved = true
		ev.Outcome = chain.OutcomeExpired
		if err := m.st.SaveStopLossEvent(ctx, ev); err != nil {
			return fmt.Errorf("persisting expired event %s: %w", ev.ID, err)
		}
		if err := m.stopChain(ctx, rc, "recovery window expired", now); err != nil {
			return err
		}
		m.events.RecoveryExpired(rc.Symbol, rc.ID)
		return nil
	}

	quote, err := m.prices.Quote(ctx, rc.Symbol)
	if err != nil {
		logger.Warnf("recovery quote %s failed: %v", rc.Symbol, err)
		return nil
	}
	fraction := RecoveryFraction(rc.Direction, ev.EntryPrice, ev.StopPrice, quote.Mid())
	if fraction < m.cfg.TriggerFraction {
		return nil
	}

	fullDist := ev.EntryPrice - ev.StopPrice
	if rc.Direction == signal.Short {
		fullDist = ev.StopPrice - ev.EntryPrice
	}
	reducedDist := fullDist * (1 - m.cfg.StopReductionPct/100)

	t, err := m.pl.place(ctx, rc, quote.Mid(), reducedDist, m.cfg.RewardRiskRatio, now)
	if err != nil {
		logger.Warnf("recovery re-entry for chain %s failed, retrying next tick: %v", rc.ID, err)
		return nil
	}

	ev.Resolved = true
	ev.Outcome = chain.OutcomeReentered
	if err := m.st.SaveStopLossEvent(ctx, ev); err != nil {
		return fmt.Errorf("persisting resolved event %s: %w", ev.ID, err)
	}
	rc.RecoveryAttempts++
	rc.Status = chain.ChainActive
	rc.UpdatedAt = now
	if err := m.st.SaveReentryChain(ctx, rc); err != nil {
		return fmt.Errorf("persisting chain %s: %w", rc.ID, err)
	}
	m.events.RecoveryExecuted(rc.Symbol, rc.ID, t.Ticket, rc.RecoveryAttempts)
	logger.Infof("recovery re-entry chain=%s ticket=%s fraction=%.4f", rc.ID, t.Ticket, fraction)
	return nil
}

func (m *RecoveryMonitor) stopChain(ctx context.Context, rc *chain.ReentryChain, reason string, now time.Time) error {
	rc.Status = chain.ChainStopped
	rc.UpdatedAt = now
	if err := m.st.SaveReentryChain(ctx, rc); err != nil {
		return fmt.Errorf("persisting stopped chain %s: %w", rc.ID, err)
	}
	m.events.ChainStopped(rc.Symbol, rc.ID, reason)
	logger.Infof("chain %s stopped: %s", rc.ID, reason)
	return nil
}

// dayAttempts counts today's executed re-entries from the store, so the
// day-level limit survives a restart.
func (m *RecoveryMonitor) dayAttempts(ctx context.Context, now time.Time) (int, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	return m.st.CountReenteredStopLossEvents(ctx, dayStart)
}

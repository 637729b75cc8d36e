package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"bracken/internal/chain"
	"bracken/internal/config"
	"bracken/internal/gateway/execution"
	"bracken/internal/gateway/notifier"
	"bracken/internal/logger"
	"bracken/internal/pkg/pip"
	"bracken/internal/store"
)

// ExitContinuationMonitor re-enters after a forced exit once price has moved
// a minimum gap away from the exit, in either direction.
type ExitContinuationMonitor struct {
	cfg    config.ExitContinuationConfig
	prices execution.PriceSource
	pl     placer
	st     store.Store
	events *notifier.Events
	nowFn  func() time.Time
}

func NewExitContinuationMonitor(
	cfg config.ExitContinuationConfig,
	gw execution.Gateway,
	prices execution.PriceSource,
	st store.Store,
	events *notifier.Events,
) *ExitContinuationMonitor {
	return &ExitContinuationMonitor{
		cfg:    cfg,
		prices: prices,
		pl:     placer{gw: gw, st: st},
		st:     st,
		events: events,
		nowFn:  time.Now,
	}
}

// Arm opens a watch after a forced-exit close.
func (m *ExitContinuationMonitor) Arm(ctx context.Context, rc *chain.ReentryChain, exitPrice, stopDist float64) (*chain.ContinuationRecord, error) {
	now := m.nowFn()
	if !m.cfg.Enabled {
		return nil, m.completeChain(ctx, rc, now)
	}
	rec := chain.NewContinuationRecord(rc, chain.ContinuationExit, exitPrice, stopDist, 0, now, m.cfg.Window())
	if err := m.st.SaveContinuation(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting continuation record: %w", err)
	}
	logger.Infof("exit continuation armed chain=%s until %s", rc.ID, rec.Deadline.Format(time.RFC3339))
	return rec, nil
}

// Tick evaluates one armed watch. The gap test is absolute, so it fires on a
// resumed move as well as a deeper pullback.
func (m *ExitContinuationMonitor) Tick(ctx context.Context, rc *chain.ReentryChain, rec *chain.ContinuationRecord) error {
	if rec == nil || rec.Resolved || rc.Status.Terminal() {
		return nil
	}
	now := m.nowFn()
	if now.After(rec.Deadline) {
		rec.Resolved = true
		if err := m.st.SaveContinuation(ctx, rec); err != nil {
			return fmt.Errorf("persisting continuation record %s: %w", rec.ID, err)
		}
		return m.completeChain(ctx, rc, now)
	}

	quote, err := m.prices.Quote(ctx, rc.Symbol)
	if err != nil {
		logger.Warnf("exit continuation quote %s failed: %v", rc.Symbol, err)
		return nil
	}
	gap := math.Abs(quote.Mid() - rec.TriggerPrice)
	if gap < m.cfg.MinGapPips*pip.Size(rc.Symbol) {
		return nil
	}

	reducedDist := rec.StopDist * (1 - m.cfg.StopReductionPct/100)
	tr, err := m.pl.place(ctx, rc, quote.Mid(), reducedDist, m.cfg.RewardRiskRatio, now)
	if err != nil {
		logger.Warnf("exit continuation re-entry for chain %s failed, retrying next tick: %v", rc.ID, err)
		return nil
	}

	rec.Resolved = true
	rec.Reentered = true
	if err := m.st.SaveContinuation(ctx, rec); err != nil {
		return fmt.Errorf("persisting continuation record %s: %w", rec.ID, err)
	}
	rc.UpdatedAt = now
	if err := m.st.SaveReentryChain(ctx, rc); err != nil {
		return fmt.Errorf("persisting chain %s: %w", rc.ID, err)
	}
	m.events.ContinuationOpened(rc.Symbol, rc.ID, string(chain.ContinuationExit), tr.Ticket, 0)
	logger.Infof("exit continuation opened chain=%s ticket=%s gap=%.1f pips", rc.ID, tr.Ticket, pip.Pips(rc.Symbol, gap))
	return nil
}

func (m *ExitContinuationMonitor) completeChain(ctx context.Context, rc *chain.ReentryChain, now time.Time) error {
	rc.Status = chain.ChainCompleted
	rc.UpdatedAt = now
	if err := m.st.SaveReentryChain(ctx, rc); err != nil {
		return fmt.Errorf("persisting completed chain %s: %w", rc.ID, err)
	}
	logger.Infof("chain %s completed", rc.ID)
	return nil
}

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
	"bracken/internal/store"
	"bracken/internal/trend"
)

// TPContinuationMonitor rides a winner: after a take-profit close it re-enters
// in the same direction with a tightening stop, one level at a time.
type TPContinuationMonitor struct {
	cfg    config.TPContinuationConfig
	trendG *trend.Gate
	prices execution.PriceSource
	pl     placer
	st     store.Store
	events *notifier.Events
	nowFn  func() time.Time
}

func NewTPContinuationMonitor(
	cfg config.TPContinuationConfig,
	trendG *trend.Gate,
	gw execution.Gateway,
	prices execution.PriceSource,
	st store.Store,
	events *notifier.Events,
) *TPContinuationMonitor {
	return &TPContinuationMonitor{
		cfg:    cfg,
		trendG: trendG,
		prices: prices,
		pl:     placer{gw: gw, st: st},
		st:     st,
		events: events,
		nowFn:  time.Now,
	}
}

// Arm opens a continuation watch after a take-profit close. stopDist is the
// stop distance of the trade that just closed, before any reduction.
func (t *TPContinuationMonitor) Arm(ctx context.Context, rc *chain.ReentryChain, closePrice, stopDist float64) (*chain.ContinuationRecord, error) {
	now := t.nowFn()
	if !t.cfg.Enabled || rc.TPLevel >= t.cfg.MaxLevel {
		return nil, t.completeChain(ctx, rc, now)
	}
	rec := chain.NewContinuationRecord(rc, chain.ContinuationTP, closePrice, stopDist, rc.TPLevel+1, now, t.cfg.Window())
	if err := t.st.SaveContinuation(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting continuation record: %w", err)
	}
	logger.Infof("tp continuation armed chain=%s level=%d until %s", rc.ID, rec.Level, rec.Deadline.Format(time.RFC3339))
	return rec, nil
}

// Tick evaluates one armed watch. The trend has to still agree with the
// chain's direction; once it slips, or the window runs out, the chain
// completes with its banked profit.
func (t *TPContinuationMonitor) Tick(ctx context.Context, rc *chain.ReentryChain, rec *chain.ContinuationRecord) error {
	if rec == nil || rec.Resolved || rc.Status.Terminal() {
		return nil
	}
	now := t.nowFn()
	if now.After(rec.Deadline) {
		return t.resolve(ctx, rc, rec, false, now)
	}
	if !t.trendG.Aligned(rc.Symbol, rc.Route, rc.Direction) {
		return t.resolve(ctx, rc, rec, false, now)
	}

	quote, err := t.prices.Quote(ctx, rc.Symbol)
	if err != nil {
		logger.Warnf("tp continuation quote %s failed: %v", rc.Symbol, err)
		return nil
	}
	reduction := t.cfg.ReductionFor(rec.Level)
	reducedDist := rec.StopDist * (1 - reduction/100)

	tr, err := t.pl.place(ctx, rc, quote.Mid(), reducedDist, t.cfg.RewardRiskRatio, now)
	if err != nil {
		logger.Warnf("tp continuation re-entry for chain %s failed, retrying next tick: %v", rc.ID, err)
		return nil
	}

	rec.Resolved = true
	rec.Reentered = true
	if err := t.st.SaveContinuation(ctx, rec); err != nil {
		return fmt.Errorf("persisting continuation record %s: %w", rec.ID, err)
	}
	rc.TPLevel = rec.Level
	rc.UpdatedAt = now
	if err := t.st.SaveReentryChain(ctx, rc); err != nil {
		return fmt.Errorf("persisting chain %s: %w", rc.ID, err)
	}
	t.events.ContinuationOpened(rc.Symbol, rc.ID, string(chain.ContinuationTP), tr.Ticket, rec.Level)
	logger.Infof("tp continuation opened chain=%s ticket=%s level=%d reduction=%.0f%%", rc.ID, tr.Ticket, rec.Level, reduction)
	return nil
}

func (t *TPContinuationMonitor) resolve(ctx context.Context, rc *chain.ReentryChain, rec *chain.ContinuationRecord, reentered bool, now time.Time) error {
	rec.Resolved = true
	rec.Reentered = reentered
	if err := t.st.SaveContinuation(ctx, rec); err != nil {
		return fmt.Errorf("persisting continuation record %s: %w", rec.ID, err)
	}
	return t.completeChain(ctx, rc, now)
}

func (t *TPContinuationMonitor) completeChain(ctx context.Context, rc *chain.ReentryChain, now time.Time) error {
	rc.Status = chain.ChainCompleted
	rc.UpdatedAt = now
	if err := t.st.SaveReentryChain(ctx, rc); err != nil {
		return fmt.Errorf("persisting completed chain %s: %w", rc.ID, err)
	}
	logger.Infof("chain %s completed", rc.ID)
	return nil
}

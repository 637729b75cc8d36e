// Package monitor watches closed trades for re-entry opportunities: stop-loss
// recovery, take-profit continuation and forced-exit continuation.
package monitor

import (
	"context"
	"fmt"
	"time"

	"bracken/internal/chain"
	"bracken/internal/gateway/execution"
	"bracken/internal/signal"
	"bracken/internal/store"
)

// placer submits a re-entry order at the current price with a symmetric
// reward:risk target and records the trade row.
type placer struct {
	gw execution.Gateway
	st store.Store
}

func (p *placer) place(ctx context.Context, rc *chain.ReentryChain, price, stopDist, rewardRisk float64, now time.Time) (*chain.Trade, error) {
	if stopDist <= 0 {
		return nil, fmt.Errorf("re-entry for chain %s has no stop distance", rc.ID)
	}
	stop := price - stopDist
	target := price + stopDist*rewardRisk
	if rc.Direction == signal.Short {
		stop = price + stopDist
		target = price - stopDist*rewardRisk
	}
	lastLot, err := p.lastLot(ctx, rc)
	if err != nil {
		return nil, err
	}
	t := &chain.Trade{
		ChainID:     rc.ID,
		Symbol:      rc.Symbol,
		Direction:   rc.Direction,
		Leg:         chain.LegReentry,
		Status:      chain.TradePending,
		Lot:         lastLot,
		EntryPrice:  price,
		StopPrice:   stop,
		TargetPrice: target,
		OpenedAt:    now,
	}
	ticket, err := p.gw.Submit(ctx, execution.OrderRequest{
		Symbol:    t.Symbol,
		Direction: t.Direction,
		Lot:       t.Lot,
		Price:     price,
		Stop:      stop,
		Target:    target,
		Tag:       rc.ID,
	})
	if err != nil {
		return nil, err
	}
	t.Ticket = ticket
	t.Status = chain.TradeOpen
	if err := p.st.SaveTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("persisting re-entry trade %s: %w", ticket, err)
	}
	return t, nil
}

// lastLot reuses the most recent lot size of the chain, falling back to the
// minimum when the chain has no trades yet.
func (p *placer) lastLot(ctx context.Context, rc *chain.ReentryChain) (float64, error) {
	trades, err := p.st.ListChainTrades(ctx, rc.ID)
	if err != nil {
		return 0, fmt.Errorf("listing chain %s trades: %w", rc.ID, err)
	}
	lot := 0.01
	var latest time.Time
	for _, t := range trades {
		if t.Status == chain.TradeFailed {
			continue
		}
		if t.OpenedAt.After(latest) || latest.IsZero() {
			latest = t.OpenedAt
			lot = t.Lot
		}
	}
	return lot, nil
}

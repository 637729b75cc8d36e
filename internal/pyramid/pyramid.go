// Package pyramid books fixed profit per order and doubles the order count
// level by level until the pyramid tops out.
package pyramid

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bracken/internal/chain"
	"bracken/internal/config"
	"bracken/internal/gateway/execution"
	"bracken/internal/gateway/notifier"
	"bracken/internal/logger"
	"bracken/internal/pkg/pip"
	"bracken/internal/signal"
	"bracken/internal/store"
)

// InvariantViolation means the open-order accounting of a profit chain no
// longer matches its level. The chain is cancelled and must not be evaluated
// again.
type InvariantViolation struct {
	ChainID string
	Detail  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("profit chain %s invariant violated: %s", e.ChainID, e.Detail)
}

// PnLRecorder folds realized P&L into the risk counters.
type PnLRecorder interface {
	RecordClose(pnl decimal.Decimal) error
}

type Evaluator struct {
	cfg      config.PyramidConfig
	gw       execution.Gateway
	profits  execution.ProfitSource
	prices   execution.PriceSource
	st       store.Store
	events   *notifier.Events
	recorder PnLRecorder
	nowFn    func() time.Time
}

func NewEvaluator(
	cfg config.PyramidConfig,
	gw execution.Gateway,
	profits execution.ProfitSource,
	prices execution.PriceSource,
	st store.Store,
	events *notifier.Events,
	recorder PnLRecorder,
) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		gw:       gw,
		profits:  profits,
		prices:   prices,
		st:       st,
		events:   events,
		recorder: recorder,
		nowFn:    time.Now,
	}
}

// Tick drives one evaluation round of a profit chain. Close and submit
// failures are retried on the next tick; only an invariant breach or a
// persistence failure surfaces as an error.
func (e *Evaluator) Tick(ctx context.Context, pc *chain.ProfitChain) error {
	if !e.cfg.Enabled || pc.Status != chain.ProfitActive {
		return nil
	}
	if got := len(pc.OpenTickets) + pc.PendingOrders; got > pc.CohortSize() {
		pc.Status = chain.ProfitCancelled
		if err := e.st.SaveProfitChain(ctx, pc); err != nil {
			logger.Errorf("persisting cancelled profit chain %s: %v", pc.ID, err)
		}
		return &InvariantViolation{
			ChainID: pc.ID,
			Detail:  fmt.Sprintf("level %d holds %d orders, cohort is %d", pc.Level, got, pc.CohortSize()),
		}
	}

	e.fillPending(ctx, pc)
	e.bookProfits(ctx, pc)

	if len(pc.OpenTickets) == 0 && pc.PendingOrders == 0 {
		if pc.Level >= pc.MaxLevel {
			pc.Status = chain.ProfitCompleted
			e.events.PyramidCompleted(pc.Symbol, pc.ReentryID, pc.BookedProfit.StringFixed(2))
			logger.Infof("pyramid completed chain=%s booked=$%s", pc.ID, pc.BookedProfit.StringFixed(2))
		} else {
			pc.Level++
			pc.PendingOrders = pc.CohortSize()
			logger.Infof("pyramid advanced chain=%s level=%d cohort=%d", pc.ID, pc.Level, pc.CohortSize())
			e.fillPending(ctx, pc)
		}
	}
	pc.UpdatedAt = e.nowFn()
	if err := e.st.SaveProfitChain(ctx, pc); err != nil {
		return fmt.Errorf("persisting profit chain %s: %w", pc.ID, err)
	}
	return nil
}

// fillPending submits outstanding orders for the current level. What fails
// stays pending for the next tick.
func (e *Evaluator) fillPending(ctx context.Context, pc *chain.ProfitChain) {
	for pc.PendingOrders > 0 {
		quote, err := e.prices.Quote(ctx, pc.Symbol)
		if err != nil {
			logger.Warnf("pyramid quote %s failed: %v", pc.Symbol, err)
			return
		}
		price := quote.Mid()
		dist := pip.DistForRisk(pc.Symbol, pc.BaseLot, e.cfg.OrderMaxLossUSD)
		stop := price - dist
		if pc.Direction == signal.Short {
			stop = price + dist
		}
		ticket, err := e.gw.Submit(ctx, execution.OrderRequest{
			Symbol:    pc.Symbol,
			Direction: pc.Direction,
			Lot:       pc.BaseLot,
			Price:     price,
			Stop:      stop,
			Tag:       pc.ReentryID,
		})
		if err != nil {
			logger.Warnf("pyramid submit %s failed, retrying next tick: %v", pc.Symbol, err)
			return
		}
		pc.OpenTickets = append(pc.OpenTickets, ticket)
		pc.PendingOrders--
		t := &chain.Trade{
			Ticket:     ticket,
			ChainID:    pc.ReentryID,
			Symbol:     pc.Symbol,
			Direction:  pc.Direction,
			Leg:        chain.LegPyramid,
			Status:     chain.TradeOpen,
			Lot:        pc.BaseLot,
			EntryPrice: price,
			StopPrice:  stop,
			OpenedAt:   e.nowFn(),
		}
		if err := e.st.SaveTrade(ctx, t); err != nil {
			logger.Errorf("persisting pyramid trade %s: %v", ticket, err)
		}
	}
}

// bookProfits closes every open order that reached the per-order target.
func (e *Evaluator) bookProfits(ctx context.Context, pc *chain.ProfitChain) {
	target := decimal.NewFromFloat(e.cfg.PerOrderTargetUSD)
	for _, ticket := range append([]string(nil), pc.OpenTickets...) {
		profit, err := e.profits.OpenProfit(ctx, ticket)
		if err != nil {
			logger.Warnf("pyramid profit lookup %s failed: %v", ticket, err)
			continue
		}
		if profit.LessThan(target) {
			continue
		}
		realized, err := e.gw.Close(ctx, ticket)
		if err != nil {
			logger.Warnf("pyramid close %s failed, retrying next tick: %v", ticket, err)
			continue
		}
		pc.RemoveTicket(ticket)
		pc.BookedProfit = pc.BookedProfit.Add(realized)
		if e.recorder != nil {
			if err := e.recorder.RecordClose(realized); err != nil {
				logger.Errorf("recording pyramid close %s: %v", ticket, err)
			}
		}
		e.closeTradeRow(ctx, ticket, realized)
		e.events.ProfitBooked(pc.Symbol, pc.ReentryID, pc.Level,
			realized.StringFixed(2), pc.BookedProfit.StringFixed(2))
		logger.Infof("pyramid booked $%s on %s level=%d total=$%s",
			realized.StringFixed(2), ticket, pc.Level, pc.BookedProfit.StringFixed(2))
	}
}

func (e *Evaluator) closeTradeRow(ctx context.Context, ticket string, realized decimal.Decimal) {
	t, err := e.st.GetTrade(ctx, ticket)
	if err != nil {
		logger.Warnf("pyramid trade row %s missing: %v", ticket, err)
		return
	}
	t.Status = chain.TradeClosed
	t.RealizedPnL = realized
	t.ClosedAt = e.nowFn()
	if err := e.st.SaveTrade(ctx, t); err != nil {
		logger.Errorf("persisting closed trade %s: %v", ticket, err)
	}
}

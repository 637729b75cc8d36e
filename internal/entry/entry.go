// Package entry turns an admitted signal into the dual-leg bracket and the
// chains that monitor it afterwards.
package entry

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
	"bracken/internal/risk"
	"bracken/internal/signal"
	"bracken/internal/store"
	"bracken/internal/trend"
)

// TrendRejection is returned when the alignment gate refuses a signal.
// Like risk rejections it carries no side effects.
type TrendRejection struct {
	Checked []signal.Timeframe
}

func (r *TrendRejection) Error() string {
	return fmt.Sprintf("trend gate rejected entry (checked %v)", r.Checked)
}

// Result reports what the coordinator managed to open. A leg that failed to
// submit is nil; its sibling stands.
type Result struct {
	Chain  *chain.ReentryChain
	Profit *chain.ProfitChain
	LegA   *chain.Trade
	LegB   *chain.Trade
}

type Coordinator struct {
	cfg     config.EntryConfig
	routes  config.RoutesConfig
	riskG   *risk.Gate
	trendG  *trend.Gate
	gw      execution.Gateway
	account execution.AccountSource
	st      store.Store
	events  *notifier.Events
	nowFn   func() time.Time
}

func NewCoordinator(
	cfg config.EntryConfig,
	routes config.RoutesConfig,
	riskG *risk.Gate,
	trendG *trend.Gate,
	gw execution.Gateway,
	account execution.AccountSource,
	st store.Store,
	events *notifier.Events,
) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		routes:  routes,
		riskG:   riskG,
		trendG:  trendG,
		gw:      gw,
		account: account,
		st:      st,
		events:  events,
		nowFn:   time.Now,
	}
}

func (c *Coordinator) routeFor(r signal.Route) config.RouteConfig {
	switch r {
	case signal.RouteScalp:
		return c.routes.Scalp
	case signal.RouteSwing:
		return c.routes.Swing
	default:
		return c.routes.Intraday
	}
}

// Open runs the full gate chain and submits both legs. Legs are independent:
// one failing does not roll back the other.
func (c *Coordinator) Open(ctx context.Context, sig *signal.Signal, maxPyramidLevel int) (*Result, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	balance, err := c.account.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading balance: %w", err)
	}
	route := c.routeFor(sig.Route)
	totalLot := roundLot(risk.BaseLot(balance) * route.LotMultiplier)
	scaledDist := sig.StopDist * route.StopMultiplier

	// Risk is checked before trend so a doubly-ineligible signal reports
	// the risk reason.
	totalLot, err = c.riskG.Evaluate(sig.Symbol, balance, scaledDist, totalLot)
	if err != nil {
		return nil, err
	}
	if align := c.trendG.Check(sig); !align.Passed {
		return nil, &TrendRejection{Checked: align.Checked}
	}

	legALot := c.clampLot(totalLot / (1 + c.cfg.LegBLotFactor))
	legBLot := c.clampLot(legALot * c.cfg.LegBLotFactor)

	now := c.nowFn()
	rc := chain.NewReentryChain(sig, now)
	res := &Result{Chain: rc}

	legA := c.buildLegA(sig, rc, legALot, scaledDist, now)
	legB := c.buildLegB(sig, rc, legBLot, now)

	if t, err := c.submit(ctx, legA); err != nil {
		logger.Errorf("leg A submit failed for %s: %v", sig.Symbol, err)
		c.events.LegFailed(sig.Symbol, rc.ID, string(chain.LegA), err)
	} else {
		res.LegA = t
		rc.LegATicket = t.Ticket
	}

	if t, err := c.submit(ctx, legB); err != nil {
		logger.Errorf("leg B submit failed for %s: %v", sig.Symbol, err)
		c.events.LegFailed(sig.Symbol, rc.ID, string(chain.LegB), err)
	} else {
		res.LegB = t
		rc.LegBTicket = t.Ticket
	}

	if res.LegA == nil && res.LegB == nil {
		return nil, fmt.Errorf("both legs failed for %s", sig.Symbol)
	}

	if err := c.st.SaveReentryChain(ctx, rc); err != nil {
		return nil, fmt.Errorf("persisting chain %s: %w", rc.ID, err)
	}
	if res.LegB != nil {
		pc := chain.NewProfitChain(rc.ID, sig.Symbol, sig.Direction, legBLot, maxPyramidLevel, now)
		pc.OpenTickets = []string{res.LegB.Ticket}
		if err := c.st.SaveProfitChain(ctx, pc); err != nil {
			return nil, fmt.Errorf("persisting profit chain %s: %w", pc.ID, err)
		}
		res.Profit = pc
	}

	c.events.EntryOpened(sig.Symbol, rc.ID, string(sig.Direction), legALot, legBLot)
	logger.Infof("entry opened %s %s chain=%s legA=%s legB=%s",
		sig.Symbol, sig.Direction, rc.ID, rc.LegATicket, rc.LegBTicket)
	return res, nil
}

func (c *Coordinator) buildLegA(sig *signal.Signal, rc *chain.ReentryChain, lot, scaledDist float64, now time.Time) *chain.Trade {
	stop := sig.Price - scaledDist
	if sig.Direction == signal.Short {
		stop = sig.Price + scaledDist
	}
	return &chain.Trade{
		ChainID:     rc.ID,
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Leg:         chain.LegA,
		Status:      chain.TradePending,
		Lot:         lot,
		EntryPrice:  sig.Price,
		StopPrice:   stop,
		TargetPrice: sig.FarTarget(),
		OpenedAt:    now,
	}
}

func (c *Coordinator) buildLegB(sig *signal.Signal, rc *chain.ReentryChain, lot float64, now time.Time) *chain.Trade {
	dist := pip.DistForRisk(sig.Symbol, lot, c.cfg.LegBMaxLossUSD)
	stop := sig.Price - dist
	if sig.Direction == signal.Short {
		stop = sig.Price + dist
	}
	return &chain.Trade{
		ChainID:     rc.ID,
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Leg:         chain.LegB,
		Status:      chain.TradePending,
		Lot:         lot,
		EntryPrice:  sig.Price,
		StopPrice:   stop,
		TargetPrice: sig.NearTarget(),
		OpenedAt:    now,
	}
}

func (c *Coordinator) submit(ctx context.Context, t *chain.Trade) (*chain.Trade, error) {
	ticket, err := c.gw.Submit(ctx, execution.OrderRequest{
		Symbol:    t.Symbol,
		Direction: t.Direction,
		Lot:       t.Lot,
		Price:     t.EntryPrice,
		Stop:      t.StopPrice,
		Target:    t.TargetPrice,
		Tag:       t.ChainID,
	})
	if err != nil {
		return nil, err
	}
	t.Ticket = ticket
	t.Status = chain.TradeOpen
	if err := c.st.SaveTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("persisting trade %s: %w", ticket, err)
	}
	return t, nil
}

func (c *Coordinator) clampLot(lot float64) float64 {
	lot = roundLot(lot)
	if lot < c.cfg.MinLot {
		lot = c.cfg.MinLot
	}
	return lot
}

func roundLot(lot float64) float64 {
	return math.Round(lot*100) / 100
}

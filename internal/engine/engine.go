// Package engine owns the chain runtimes and routes venue events and
// scheduler ticks to the gates, the pyramid and the monitors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bracken/internal/chain"
	"bracken/internal/config"
	"bracken/internal/entry"
	"bracken/internal/gateway/execution"
	"bracken/internal/gateway/notifier"
	"bracken/internal/logger"
	"bracken/internal/monitor"
	"bracken/internal/pyramid"
	"bracken/internal/risk"
	"bracken/internal/signal"
	"bracken/internal/store"
	"bracken/internal/trend"
)

// chainRuntime is the in-memory state of one re-entry chain. Its mutex
// serializes event handling against scheduler ticks.
type chainRuntime struct {
	mu     sync.Mutex
	chain  *chain.ReentryChain
	profit *chain.ProfitChain
	stop   *chain.StopLossEvent
	cont   *chain.ContinuationRecord
}

type Engine struct {
	cfg    *config.Config
	st     store.Store
	events *notifier.Events

	riskG       *risk.Gate
	trendG      *trend.Gate
	coordinator *entry.Coordinator
	pyramidEval *pyramid.Evaluator
	recovery    *monitor.RecoveryMonitor
	tpCont      *monitor.TPContinuationMonitor
	exitCont    *monitor.ExitContinuationMonitor

	mu     sync.Mutex
	chains map[string]*chainRuntime
}

func New(
	cfg *config.Config,
	st store.Store,
	gw execution.Gateway,
	prices execution.PriceSource,
	profits execution.ProfitSource,
	account execution.AccountSource,
	sink notifier.TextNotifier,
) (*Engine, error) {
	events := notifier.NewEvents(sink)
	riskG, err := risk.NewGate(cfg.Risk, st)
	if err != nil {
		return nil, err
	}
	trendG := trend.NewGate(cfg.Trend.Enabled)

	e := &Engine{
		cfg:         cfg,
		st:          st,
		events:      events,
		riskG:       riskG,
		trendG:      trendG,
		coordinator: entry.NewCoordinator(cfg.Entry, cfg.Routes, riskG, trendG, gw, account, st, events),
		pyramidEval: pyramid.NewEvaluator(cfg.Pyramid, gw, profits, prices, st, events, riskG),
		recovery:    monitor.NewRecoveryMonitor(cfg.Recovery, gw, prices, st, events),
		tpCont:      monitor.NewTPContinuationMonitor(cfg.Continuation.TP, trendG, gw, prices, st, events),
		exitCont:    monitor.NewExitContinuationMonitor(cfg.Continuation.Exit, gw, prices, st, events),
		chains:      make(map[string]*chainRuntime),
	}
	return e, nil
}

// TrendGate exposes the gate so an external feed can publish trend state.
func (e *Engine) TrendGate() *trend.Gate { return e.trendG }

// RiskGate exposes the loss counters for reporting.
func (e *Engine) RiskGate() *risk.Gate { return e.riskG }

func (e *Engine) runtime(chainID string) (*chainRuntime, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.chains[chainID]
	return rt, ok
}

func (e *Engine) addRuntime(rt *chainRuntime) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains[rt.chain.ID] = rt
}

// HandleSignal opens a new dual-leg bracket and registers its chain.
func (e *Engine) HandleSignal(ctx context.Context, sig *signal.Signal) (*entry.Result, error) {
	res, err := e.coordinator.Open(ctx, sig, e.cfg.Pyramid.MaxLevel)
	if err != nil {
		return nil, err
	}
	e.addRuntime(&chainRuntime{chain: res.Chain, profit: res.Profit})
	return res, nil
}

// HandleStopLoss processes a stop-loss close reported by the venue. A stopped
// pyramid order cancels the pyramid before the chain enters recovery.
func (e *Engine) HandleStopLoss(ctx context.Context, ticket string, hitPrice float64, realized decimal.Decimal) error {
	t, rt, err := e.closedTrade(ctx, ticket, realized)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.chain.Status.Terminal() {
		return nil
	}
	if e.inPyramid(rt, ticket) {
		rt.profit.RemoveTicket(ticket)
		rt.profit.Status = chain.ProfitCancelled
		if err := e.st.SaveProfitChain(ctx, rt.profit); err != nil {
			return fmt.Errorf("persisting cancelled profit chain: %w", err)
		}
		logger.Infof("pyramid cancelled after stop-out chain=%s ticket=%s", rt.chain.ID, ticket)
	}

	if err := e.supersedeStop(ctx, rt); err != nil {
		return err
	}
	ev, err := e.recovery.Start(ctx, rt.chain, t.EntryPrice, t.StopPrice, hitPrice)
	if err != nil {
		return err
	}
	rt.stop = ev
	return nil
}

// HandleTakeProfit processes a take-profit close. A ticket in the pyramid
// cohort leaves it with its profit booked; entry legs additionally arm the
// continuation watch.
func (e *Engine) HandleTakeProfit(ctx context.Context, ticket string, closePrice float64, realized decimal.Decimal) error {
	t, rt, err := e.closedTrade(ctx, ticket, realized)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.chain.Status.Terminal() {
		return nil
	}
	if e.inPyramid(rt, ticket) {
		rt.profit.RemoveTicket(ticket)
		rt.profit.BookedProfit = rt.profit.BookedProfit.Add(realized)
		if err := e.st.SaveProfitChain(ctx, rt.profit); err != nil {
			return fmt.Errorf("persisting profit chain: %w", err)
		}
	}
	if t.Leg == chain.LegPyramid {
		return nil
	}

	if err := e.supersedeContinuation(ctx, rt); err != nil {
		return err
	}
	rec, err := e.tpCont.Arm(ctx, rt.chain, closePrice, stopDistOf(t))
	if err != nil {
		return err
	}
	rt.cont = rec
	return nil
}

// HandleForcedExit processes a manual or venue-forced close and arms the
// exit continuation watch.
func (e *Engine) HandleForcedExit(ctx context.Context, ticket string, exitPrice float64, realized decimal.Decimal) error {
	t, rt, err := e.closedTrade(ctx, ticket, realized)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.chain.Status.Terminal() {
		return nil
	}
	if e.inPyramid(rt, ticket) {
		rt.profit.RemoveTicket(ticket)
		rt.profit.BookedProfit = rt.profit.BookedProfit.Add(realized)
		if err := e.st.SaveProfitChain(ctx, rt.profit); err != nil {
			return fmt.Errorf("persisting profit chain: %w", err)
		}
	}
	if t.Leg == chain.LegPyramid {
		return nil
	}
	if err := e.supersedeContinuation(ctx, rt); err != nil {
		return err
	}
	rec, err := e.exitCont.Arm(ctx, rt.chain, exitPrice, stopDistOf(t))
	if err != nil {
		return err
	}
	rt.cont = rec
	return nil
}

// closedTrade marks the trade row closed, folds realized P&L into the risk
// counters and locates the chain runtime.
func (e *Engine) closedTrade(ctx context.Context, ticket string, realized decimal.Decimal) (*chain.Trade, *chainRuntime, error) {
	t, err := e.st.GetTrade(ctx, ticket)
	if err != nil {
		return nil, nil, err
	}
	t.Status = chain.TradeClosed
	t.RealizedPnL = realized
	t.ClosedAt = time.Now()
	if err := e.st.SaveTrade(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("persisting closed trade %s: %w", ticket, err)
	}
	if err := e.riskG.RecordClose(realized); err != nil {
		logger.Errorf("recording close %s: %v", ticket, err)
	}
	rt, ok := e.runtime(t.ChainID)
	if !ok {
		return nil, nil, fmt.Errorf("no runtime for chain %s (ticket %s)", t.ChainID, ticket)
	}
	return t, rt, nil
}

// supersedeStop resolves a still-open recovery watch before a newer stop-out
// replaces it. Both legs of one bracket can stop out in sequence; the chain
// carries at most one unresolved StopLossEvent, keyed to the latest close.
func (e *Engine) supersedeStop(ctx context.Context, rt *chainRuntime) error {
	if rt.stop == nil || rt.stop.Resolved {
		return nil
	}
	rt.stop.Resolved = true
	rt.stop.Outcome = chain.OutcomeSuperseded
	if err := e.st.SaveStopLossEvent(ctx, rt.stop); err != nil {
		return fmt.Errorf("superseding stop event %s: %w", rt.stop.ID, err)
	}
	logger.Infof("stop watch superseded chain=%s event=%s", rt.chain.ID, rt.stop.ID)
	return nil
}

// supersedeContinuation resolves a still-open continuation watch before a
// newer take-profit or forced-exit close arms its replacement.
func (e *Engine) supersedeContinuation(ctx context.Context, rt *chainRuntime) error {
	if rt.cont == nil || rt.cont.Resolved {
		return nil
	}
	rt.cont.Resolved = true
	if err := e.st.SaveContinuation(ctx, rt.cont); err != nil {
		return fmt.Errorf("superseding continuation %s: %w", rt.cont.ID, err)
	}
	logger.Infof("continuation superseded chain=%s record=%s", rt.chain.ID, rt.cont.ID)
	return nil
}

// inPyramid reports whether the ticket is part of the live pyramid cohort.
func (e *Engine) inPyramid(rt *chainRuntime, ticket string) bool {
	if rt.profit == nil || rt.profit.Status != chain.ProfitActive {
		return false
	}
	for _, open := range rt.profit.OpenTickets {
		if open == ticket {
			return true
		}
	}
	return false
}

func stopDistOf(t *chain.Trade) float64 {
	d := t.EntryPrice - t.StopPrice
	if d < 0 {
		d = -d
	}
	return d
}

// Sweep evaluates every live chain once. Chains are fanned out with bounded
// concurrency; a chain still locked from a previous tick is skipped, and a
// panic in one chain never reaches the others.
func (e *Engine) Sweep(ctx context.Context) {
	e.mu.Lock()
	snapshot := make([]*chainRuntime, 0, len(e.chains))
	for _, rt := range e.chains {
		snapshot = append(snapshot, rt)
	}
	e.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Scheduler.MaxConcurrentChains)
	for _, rt := range snapshot {
		rt := rt
		g.Go(func() error {
			if !rt.mu.TryLock() {
				logger.Debugf("chain %s still busy, skipping tick", rt.chain.ID)
				return nil
			}
			defer rt.mu.Unlock()
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("panic evaluating chain %s: %v\n%s", rt.chain.ID, r, debug.Stack())
				}
			}()
			e.tickChain(ctx, rt)
			return nil
		})
	}
	_ = g.Wait()
	e.pruneTerminal()
}

// tickChain runs under the runtime lock. Terminal status is re-checked here,
// after the lock, so a chain stopped mid-tick never receives new orders.
func (e *Engine) tickChain(ctx context.Context, rt *chainRuntime) {
	if rt.chain.Status.Terminal() {
		return
	}

	if rt.profit != nil && rt.profit.Status == chain.ProfitActive {
		if err := e.pyramidEval.Tick(ctx, rt.profit); err != nil {
			var inv *pyramid.InvariantViolation
			if errors.As(err, &inv) {
				e.stopChain(ctx, rt, "pyramid invariant violated")
				e.events.Critical("Pyramid Invariant Violated",
					fmt.Sprintf("chain: %s", rt.chain.ID), inv.Detail)
				return
			}
			e.persistWarn(rt, "pyramid", err)
		}
	}

	if rt.stop != nil && !rt.stop.Resolved {
		if err := e.recovery.Tick(ctx, rt.chain, rt.stop); err != nil {
			e.persistWarn(rt, "recovery", err)
		}
	}

	if rt.cont != nil && !rt.cont.Resolved {
		var err error
		switch rt.cont.Kind {
		case chain.ContinuationTP:
			err = e.tpCont.Tick(ctx, rt.chain, rt.cont)
		case chain.ContinuationExit:
			err = e.exitCont.Tick(ctx, rt.chain, rt.cont)
		}
		if err != nil {
			e.persistWarn(rt, "continuation", err)
		}
	}
}

// persistWarn handles tick errors, which surface only on failed writes. The
// chain is left in memory to retry on the next sweep; the operator is told
// the store and memory may disagree.
func (e *Engine) persistWarn(rt *chainRuntime, what string, err error) {
	logger.Errorf("%s tick chain=%s: %v", what, rt.chain.ID, err)
	e.events.Critical("Persistence Failure",
		fmt.Sprintf("chain: %s", rt.chain.ID),
		fmt.Sprintf("component: %s", what),
		fmt.Sprintf("error: %v", err))
}

func (e *Engine) stopChain(ctx context.Context, rt *chainRuntime, reason string) {
	rt.chain.Status = chain.ChainStopped
	rt.chain.UpdatedAt = time.Now()
	if err := e.st.SaveReentryChain(ctx, rt.chain); err != nil {
		logger.Errorf("persisting stopped chain %s: %v", rt.chain.ID, err)
	}
	e.events.ChainStopped(rt.chain.Symbol, rt.chain.ID, reason)
	logger.Warnf("chain %s stopped: %s", rt.chain.ID, reason)
}

// pruneTerminal drops finished chains whose watches are all resolved.
func (e *Engine) pruneTerminal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, rt := range e.chains {
		if !rt.mu.TryLock() {
			continue
		}
		done := rt.chain.Status.Terminal() &&
			(rt.stop == nil || rt.stop.Resolved) &&
			(rt.cont == nil || rt.cont.Resolved)
		rt.mu.Unlock()
		if done {
			delete(e.chains, id)
		}
	}
}

// Recover rebuilds the chain runtimes from the store after a restart.
func (e *Engine) Recover(ctx context.Context) error {
	chains, err := e.st.ListActiveReentryChains(ctx)
	if err != nil {
		return fmt.Errorf("listing active chains: %w", err)
	}
	profits, err := e.st.ListActiveProfitChains(ctx)
	if err != nil {
		return fmt.Errorf("listing active profit chains: %w", err)
	}
	stops, err := e.st.ListUnresolvedStopLossEvents(ctx)
	if err != nil {
		return fmt.Errorf("listing stop loss events: %w", err)
	}
	conts, err := e.st.ListUnresolvedContinuations(ctx)
	if err != nil {
		return fmt.Errorf("listing continuations: %w", err)
	}

	profitByChain := make(map[string]*chain.ProfitChain, len(profits))
	for _, p := range profits {
		profitByChain[p.ReentryID] = p
	}
	stopByChain := make(map[string]*chain.StopLossEvent, len(stops))
	for _, s := range stops {
		stopByChain[s.ChainID] = s
	}
	contByChain := make(map[string]*chain.ContinuationRecord, len(conts))
	for _, c := range conts {
		contByChain[c.ChainID] = c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rc := range chains {
		e.chains[rc.ID] = &chainRuntime{
			chain:  rc,
			profit: profitByChain[rc.ID],
			stop:   stopByChain[rc.ID],
			cont:   contByChain[rc.ID],
		}
	}
	logger.Infof("recovered %d chains (%d pyramids, %d stop watches, %d continuations)",
		len(chains), len(profits), len(stops), len(conts))
	return nil
}

// Task returns the scheduler closure driving Sweep with a per-tick timeout.
func (e *Engine) Task(parent context.Context) func() {
	return func() {
		ctx, cancel := context.WithTimeout(parent, e.cfg.Scheduler.Tick())
		defer cancel()
		start := time.Now()
		e.Sweep(ctx)
		if took := time.Since(start); took > e.cfg.Scheduler.Tick()/2 {
			logger.Warnf("sweep took %s, over half the tick interval", took.Truncate(time.Millisecond))
		}
	}
}

// ActiveChains reports how many chains the engine is tracking.
func (e *Engine) ActiveChains() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.chains)
}

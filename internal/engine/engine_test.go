package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bracken/internal/chain"
	"bracken/internal/config"
	"bracken/internal/gateway/execution"
	"bracken/internal/signal"
	"bracken/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{DailyLossPct: 3, LifetimeLossUSD: 500},
		Routes: config.RoutesConfig{
			Scalp:    config.RouteConfig{StopMultiplier: 1.0, LotMultiplier: 1.25},
			Intraday: config.RouteConfig{StopMultiplier: 1.5, LotMultiplier: 1.0},
			Swing:    config.RouteConfig{StopMultiplier: 2.0, LotMultiplier: 0.625},
		},
		Entry:   config.EntryConfig{LegBLotFactor: 2.0, LegBMaxLossUSD: 10, MinLot: 0.01},
		Pyramid: config.PyramidConfig{Enabled: true, MaxLevel: 4, PerOrderTargetUSD: 10, OrderMaxLossUSD: 10},
		Recovery: config.RecoveryConfig{
			Enabled: true, WindowMinutes: 60, TriggerFraction: 0.70,
			StopReductionPct: 50, RewardRiskRatio: 2, MaxAttemptsPerChain: 2, MaxAttemptsPerDay: 4,
		},
		Continuation: config.ContinuationConfig{
			TP: config.TPContinuationConfig{
				Enabled: true, WindowMinutes: 30, MaxLevel: 3,
				StopReductionPcts: []float64{40, 55, 70}, RewardRiskRatio: 2,
			},
			Exit: config.ExitContinuationConfig{
				Enabled: true, WindowMinutes: 30, MinGapPips: 15,
				StopReductionPct: 50, RewardRiskRatio: 2,
			},
		},
		Scheduler: config.SchedulerConfig{TickSeconds: 30, MaxConcurrentChains: 4},
		Trend:     config.TrendConfig{Enabled: true},
	}
}

func newEngine(t *testing.T, paper *execution.Paper, st *store.Mem) *Engine {
	t.Helper()
	e, err := New(testConfig(), st, paper, paper, paper, paper, nil)
	require.NoError(t, err)
	e.TrendGate().SetTrend("XAUUSD", signal.M15, signal.Long)
	e.TrendGate().SetTrend("XAUUSD", signal.H1, signal.Long)
	return e
}

func goldSignal() *signal.Signal {
	return &signal.Signal{
		Symbol:    "XAUUSD",
		Direction: signal.Long,
		Route:     signal.RouteIntraday,
		Class:     signal.ClassStandard,
		Price:     2030.50,
		StopDist:  5.50,
		Targets:   []float64{2035.00, 2040.00},
	}
}

func TestHandleSignalRegistersChain(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)

	res, err := e.HandleSignal(context.Background(), goldSignal())
	require.NoError(t, err)
	require.NotNil(t, res.LegA)
	require.NotNil(t, res.LegB)
	assert.Equal(t, 1, e.ActiveChains())
}

func TestHandleStopLossOpensRecovery(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	err = e.HandleStopLoss(ctx, res.LegA.Ticket, res.LegA.StopPrice, decimal.NewFromFloat(-15))
	require.NoError(t, err)

	saved, ok := st.ReentryChain(res.Chain.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ChainRecovering, saved.Status)

	events, err := st.ListUnresolvedStopLossEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, res.Chain.ID, events[0].ChainID)

	assert.True(t, e.RiskGate().Snapshot().DailyLoss.Equal(decimal.NewFromFloat(15)))
}

func TestSweepExecutesRecoveryReentry(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)
	before := paper.OpenCount()

	require.NoError(t, e.HandleStopLoss(ctx, res.LegA.Ticket, res.LegA.StopPrice, decimal.NewFromFloat(-15)))

	// claw-back of 6.25 out of the 8.25 stop distance is past the 70% trigger
	paper.SetQuote("XAUUSD", 2028.50, 2028.50)
	e.Sweep(ctx)

	saved, ok := st.ReentryChain(res.Chain.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ChainActive, saved.Status)
	assert.Equal(t, 1, saved.RecoveryAttempts)
	assert.Equal(t, before+1, paper.OpenCount())

	events, err := st.ListUnresolvedStopLossEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSecondStopOutSupersedesRecoveryWatch(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	// leg B's fixed-dollar stop is tighter, so it routinely stops out first
	// and leg A follows at the wider stop
	require.NoError(t, e.HandleStopLoss(ctx, res.LegB.Ticket, res.LegB.StopPrice, decimal.NewFromFloat(-10)))
	require.NoError(t, e.HandleStopLoss(ctx, res.LegA.Ticket, res.LegA.StopPrice, decimal.NewFromFloat(-15)))

	events, err := st.ListUnresolvedStopLossEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, res.LegA.StopPrice, events[0].StopPrice, 1e-9)

	// a restart sees exactly the surviving watch
	restarted := newEngine(t, paper, st)
	require.NoError(t, restarted.Recover(ctx))
	assert.Equal(t, 1, restarted.ActiveChains())
}

func TestSweepHoldsBelowRecoveryTrigger(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)
	before := paper.OpenCount()
	require.NoError(t, e.HandleStopLoss(ctx, res.LegA.Ticket, res.LegA.StopPrice, decimal.NewFromFloat(-15)))

	// only 2.25 of 8.25 recovered
	paper.SetQuote("XAUUSD", 2024.50, 2024.50)
	e.Sweep(ctx)

	assert.Equal(t, before, paper.OpenCount())
	events, err := st.ListUnresolvedStopLossEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandleTakeProfitArmsContinuation(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	err = e.HandleTakeProfit(ctx, res.LegA.Ticket, res.LegA.TargetPrice, decimal.NewFromFloat(82.5))
	require.NoError(t, err)

	conts, err := st.ListUnresolvedContinuations(ctx)
	require.NoError(t, err)
	require.Len(t, conts, 1)
	assert.Equal(t, chain.ContinuationTP, conts[0].Kind)
	assert.Equal(t, 1, conts[0].Level)
}

func TestLegBTakeProfitLeavesCohortAndArms(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	realized := decimal.NewFromFloat(9)
	require.NoError(t, e.HandleTakeProfit(ctx, res.LegB.Ticket, res.LegB.TargetPrice, realized))

	pc, ok := st.ProfitChain(res.Profit.ID)
	require.True(t, ok)
	assert.Empty(t, pc.OpenTickets)
	assert.Equal(t, chain.ProfitActive, pc.Status)
	assert.True(t, pc.BookedProfit.Equal(realized))

	conts, err := st.ListUnresolvedContinuations(ctx)
	require.NoError(t, err)
	assert.Len(t, conts, 1)
}

func TestSecondTakeProfitSupersedesContinuation(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	require.NoError(t, e.HandleTakeProfit(ctx, res.LegB.Ticket, res.LegB.TargetPrice, decimal.NewFromFloat(9)))
	require.NoError(t, e.HandleTakeProfit(ctx, res.LegA.Ticket, res.LegA.TargetPrice, decimal.NewFromFloat(82.5)))

	conts, err := st.ListUnresolvedContinuations(ctx)
	require.NoError(t, err)
	require.Len(t, conts, 1)
	assert.Equal(t, chain.ContinuationTP, conts[0].Kind)
	assert.Equal(t, 1, conts[0].Level)
	assert.InDelta(t, res.LegA.TargetPrice, conts[0].TriggerPrice, 1e-9)
}

func TestPyramidStopOutCancelsPyramid(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	pt := &chain.Trade{
		Ticket:     "pyr-1",
		ChainID:    res.Chain.ID,
		Symbol:     "XAUUSD",
		Direction:  signal.Long,
		Leg:        chain.LegPyramid,
		Status:     chain.TradeOpen,
		Lot:        0.02,
		EntryPrice: 2031.00,
		StopPrice:  2026.00,
	}
	require.NoError(t, st.SaveTrade(ctx, pt))
	res.Profit.OpenTickets = append(res.Profit.OpenTickets, pt.Ticket)

	require.NoError(t, e.HandleStopLoss(ctx, pt.Ticket, pt.StopPrice, decimal.NewFromFloat(-10)))

	pc, ok := st.ProfitChain(res.Profit.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ProfitCancelled, pc.Status)
	assert.NotContains(t, pc.OpenTickets, pt.Ticket)

	saved, ok := st.ReentryChain(res.Chain.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ChainRecovering, saved.Status)
}

func TestSweepStopsChainOnPyramidInvariant(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)

	// two ghost tickets overflow the one-order cohort at level zero
	res.Profit.OpenTickets = append(res.Profit.OpenTickets, "ghost-1", "ghost-2")

	e.Sweep(ctx)

	saved, ok := st.ReentryChain(res.Chain.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ChainStopped, saved.Status)

	pc, ok := st.ProfitChain(res.Profit.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ProfitCancelled, pc.Status)

	// terminal chain with no open watches is pruned in the same sweep
	assert.Equal(t, 0, e.ActiveChains())
}

func TestRecoverRebuildsRuntimes(t *testing.T) {
	paper := execution.NewPaper(10_000)
	st := store.NewMem()
	e := newEngine(t, paper, st)
	ctx := context.Background()

	res, err := e.HandleSignal(ctx, goldSignal())
	require.NoError(t, err)
	require.NoError(t, e.HandleStopLoss(ctx, res.LegA.Ticket, res.LegA.StopPrice, decimal.NewFromFloat(-15)))

	restarted := newEngine(t, paper, st)
	require.NoError(t, restarted.Recover(ctx))
	assert.Equal(t, 1, restarted.ActiveChains())

	before := paper.OpenCount()
	paper.SetQuote("XAUUSD", 2028.50, 2028.50)
	restarted.Sweep(ctx)

	saved, ok := st.ReentryChain(res.Chain.ID)
	require.True(t, ok)
	assert.Equal(t, chain.ChainActive, saved.Status)
	assert.Equal(t, before+1, paper.OpenCount())
}

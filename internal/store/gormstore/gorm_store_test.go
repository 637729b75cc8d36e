package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bracken/internal/chain"
	"bracken/internal/risk"
	"bracken/internal/signal"
)

func openStore(t *testing.T) *GormStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "bracken.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveTradeUpserts(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	tr := &chain.Trade{
		Ticket:     "T-1",
		ChainID:    "c1",
		Symbol:     "EURUSD",
		Direction:  signal.Long,
		Leg:        chain.LegA,
		Status:     chain.TradeOpen,
		Lot:        0.02,
		EntryPrice: 1.0850,
		StopPrice:  1.0828,
		OpenedAt:   time.Now(),
	}
	require.NoError(t, st.SaveTrade(ctx, tr))

	tr.Status = chain.TradeClosed
	tr.RealizedPnL = decimal.NewFromFloat(-15.40)
	require.NoError(t, st.SaveTrade(ctx, tr))

	got, err := st.GetTrade(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, chain.TradeClosed, got.Status)
	assert.True(t, got.RealizedPnL.Equal(decimal.NewFromFloat(-15.40)))

	trades, err := st.ListChainTrades(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestListActiveReentryChains(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	for _, c := range []*chain.ReentryChain{
		{ID: "a", Symbol: "EURUSD", Direction: signal.Long, Route: signal.RouteScalp, Status: chain.ChainActive},
		{ID: "b", Symbol: "EURUSD", Direction: signal.Long, Route: signal.RouteScalp, Status: chain.ChainRecovering},
		{ID: "c", Symbol: "EURUSD", Direction: signal.Long, Route: signal.RouteScalp, Status: chain.ChainStopped},
		{ID: "d", Symbol: "EURUSD", Direction: signal.Long, Route: signal.RouteScalp, Status: chain.ChainCompleted},
	} {
		require.NoError(t, st.SaveReentryChain(ctx, c))
	}

	active, err := st.ListActiveReentryChains(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, c := range active {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestProfitChainTicketsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bracken.db")
	ctx := context.Background()

	st, err := New(path)
	require.NoError(t, err)
	pc := &chain.ProfitChain{
		ID:            "p1",
		ReentryID:     "c1",
		Symbol:        "XAUUSD",
		Direction:     signal.Long,
		Status:        chain.ProfitActive,
		Level:         2,
		MaxLevel:      4,
		BaseLot:       0.02,
		OpenTickets:   []string{"T-7", "T-8"},
		PendingOrders: 2,
		BookedProfit:  decimal.NewFromFloat(30),
	}
	require.NoError(t, st.SaveProfitChain(ctx, pc))
	require.NoError(t, st.Close())

	st2, err := New(path)
	require.NoError(t, err)
	defer st2.Close()

	chains, err := st2.ListActiveProfitChains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	got := chains[0]
	assert.Equal(t, []string{"T-7", "T-8"}, got.OpenTickets)
	assert.Equal(t, 2, got.PendingOrders)
	assert.Equal(t, 2, got.Level)
	assert.True(t, got.BookedProfit.Equal(decimal.NewFromFloat(30)))
}

func TestUnresolvedWatchFilters(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	open := &chain.StopLossEvent{ID: "e1", ChainID: "c1", Symbol: "EURUSD", Direction: signal.Long}
	done := &chain.StopLossEvent{ID: "e2", ChainID: "c2", Symbol: "EURUSD", Direction: signal.Long,
		Resolved: true, Outcome: chain.OutcomeExpired}
	require.NoError(t, st.SaveStopLossEvent(ctx, open))
	require.NoError(t, st.SaveStopLossEvent(ctx, done))

	events, err := st.ListUnresolvedStopLossEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)

	armed := &chain.ContinuationRecord{ID: "r1", ChainID: "c1", Symbol: "EURUSD",
		Direction: signal.Long, Kind: chain.ContinuationTP, Level: 1}
	fired := &chain.ContinuationRecord{ID: "r2", ChainID: "c2", Symbol: "EURUSD",
		Direction: signal.Long, Kind: chain.ContinuationExit, Resolved: true, Reentered: true}
	require.NoError(t, st.SaveContinuation(ctx, armed))
	require.NoError(t, st.SaveContinuation(ctx, fired))

	conts, err := st.ListUnresolvedContinuations(ctx)
	require.NoError(t, err)
	require.Len(t, conts, 1)
	assert.Equal(t, "r1", conts[0].ID)
}

func TestCountReenteredStopLossEvents(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now()

	save := func(id string, outcome chain.StopOutcome, hitAt time.Time) {
		require.NoError(t, st.SaveStopLossEvent(ctx, &chain.StopLossEvent{
			ID: id, ChainID: "c-" + id, Symbol: "EURUSD", Direction: signal.Long,
			HitAt: hitAt, Resolved: outcome != chain.OutcomePending, Outcome: outcome,
		}))
	}
	save("e1", chain.OutcomeReentered, now)
	save("e2", chain.OutcomeReentered, now.Add(-time.Hour))
	save("e3", chain.OutcomeReentered, now.Add(-48*time.Hour)) // two days back
	save("e4", chain.OutcomeExpired, now)
	save("e5", chain.OutcomePending, now)

	n, err := st.CountReenteredStopLossEvents(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRiskStateRoundTrip(t *testing.T) {
	st := openStore(t)

	_, ok, err := st.LoadRiskState()
	require.NoError(t, err)
	assert.False(t, ok)

	want := risk.State{
		DailyLoss:    decimal.NewFromFloat(42.50),
		DailyProfit:  decimal.NewFromFloat(10),
		LifetimeLoss: decimal.NewFromFloat(180.25),
		Day:          "2026-03-02",
	}
	require.NoError(t, st.SaveRiskState(want))

	got, ok, err := st.LoadRiskState()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Day, got.Day)
	assert.True(t, got.DailyLoss.Equal(want.DailyLoss))
	assert.True(t, got.LifetimeLoss.Equal(want.LifetimeLoss))
}

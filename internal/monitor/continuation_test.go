package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bracken/internal/chain"
	"bracken/internal/config"
	"bracken/internal/gateway/execution"
	"bracken/internal/gateway/notifier"
	"bracken/internal/signal"
	"bracken/internal/store"
	"bracken/internal/trend"
)

func tpCfg() config.TPContinuationConfig {
	return config.TPContinuationConfig{
		Enabled:           true,
		WindowMinutes:     30,
		MaxLevel:          3,
		StopReductionPcts: []float64{40, 55, 70},
		RewardRiskRatio:   2.0,
	}
}

func exitCfg() config.ExitContinuationConfig {
	return config.ExitContinuationConfig{
		Enabled:          true,
		WindowMinutes:    30,
		MinGapPips:       15,
		StopReductionPct: 50,
		RewardRiskRatio:  2.0,
	}
}

func alignedTrend() *trend.Gate {
	g := trend.NewGate(true)
	g.SetTrend("EURUSD", signal.M15, signal.Long)
	g.SetTrend("EURUSD", signal.H1, signal.Long)
	return g
}

func TestTPContinuationOpensNextLevel(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	m := NewTPContinuationMonitor(tpCfg(), alignedTrend(), paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)

	rec, err := m.Arm(context.Background(), rc, 1.0900, 0.0030)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Level)

	paper.SetQuote("EURUSD", 1.0902, 1.0902)
	require.NoError(t, m.Tick(context.Background(), rc, rec))

	assert.True(t, rec.Resolved)
	assert.True(t, rec.Reentered)
	assert.Equal(t, 1, rc.TPLevel)
	require.Equal(t, 1, paper.OpenCount())

	req, ok := paper.Position("P-1")
	require.True(t, ok)
	// level 1 trims the 30-pip stop by 40% to 18 pips
	assert.InDelta(t, 1.0902-0.0018, req.Stop, 1e-9)
	assert.InDelta(t, 1.0902+0.0036, req.Target, 1e-9)
}

func TestTPContinuationStopsAtMaxLevel(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	m := NewTPContinuationMonitor(tpCfg(), alignedTrend(), paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)
	rc.TPLevel = 3

	rec, err := m.Arm(context.Background(), rc, 1.0900, 0.0030)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, chain.ChainCompleted, rc.Status)
}

func TestTPContinuationTrendFlipCompletesChain(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	g := alignedTrend()
	m := NewTPContinuationMonitor(tpCfg(), g, paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)

	rec, err := m.Arm(context.Background(), rc, 1.0900, 0.0030)
	require.NoError(t, err)

	g.SetTrend("EURUSD", signal.H1, signal.Short)
	require.NoError(t, m.Tick(context.Background(), rc, rec))

	assert.True(t, rec.Resolved)
	assert.False(t, rec.Reentered)
	assert.Equal(t, chain.ChainCompleted, rc.Status)
	assert.Equal(t, 0, paper.OpenCount())
}

func TestTPContinuationWindowExpiry(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	m := NewTPContinuationMonitor(tpCfg(), alignedTrend(), paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)

	rec, err := m.Arm(context.Background(), rc, 1.0900, 0.0030)
	require.NoError(t, err)

	m.nowFn = func() time.Time { return rec.Deadline.Add(time.Minute) }
	require.NoError(t, m.Tick(context.Background(), rc, rec))

	assert.True(t, rec.Resolved)
	assert.Equal(t, chain.ChainCompleted, rc.Status)
	assert.Equal(t, 0, paper.OpenCount())
}

func TestExitContinuationGapThreshold(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	m := NewExitContinuationMonitor(exitCfg(), paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)

	rec, err := m.Arm(context.Background(), rc, 1.0850, 0.0030)
	require.NoError(t, err)
	require.NotNil(t, rec)

	// 10 pips from the exit: under the 15-pip gap
	paper.SetQuote("EURUSD", 1.0860, 1.0860)
	require.NoError(t, m.Tick(context.Background(), rc, rec))
	assert.False(t, rec.Resolved)
	assert.Equal(t, 0, paper.OpenCount())

	// 16 pips clears it
	paper.SetQuote("EURUSD", 1.0866, 1.0866)
	require.NoError(t, m.Tick(context.Background(), rc, rec))
	assert.True(t, rec.Resolved)
	assert.True(t, rec.Reentered)
	require.Equal(t, 1, paper.OpenCount())

	req, ok := paper.Position("P-1")
	require.True(t, ok)
	assert.Equal(t, signal.Long, req.Direction)
	assert.InDelta(t, 1.0866-0.0015, req.Stop, 1e-9)
}

func TestExitContinuationFiresOnAdversePullbackToo(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	m := NewExitContinuationMonitor(exitCfg(), paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)

	rec, err := m.Arm(context.Background(), rc, 1.0850, 0.0030)
	require.NoError(t, err)

	paper.SetQuote("EURUSD", 1.0832, 1.0832) // 18 pips below the exit
	require.NoError(t, m.Tick(context.Background(), rc, rec))
	assert.True(t, rec.Reentered)

	req, ok := paper.Position("P-1")
	require.True(t, ok)
	assert.Equal(t, signal.Long, req.Direction)
}

func TestExitContinuationExpiry(t *testing.T) {
	st := store.NewMem()
	paper := execution.NewPaper(10_000)
	m := NewExitContinuationMonitor(exitCfg(), paper, paper, st, notifier.NewEvents(nil))
	rc := seedReentryChain(t, st, signal.Long)

	rec, err := m.Arm(context.Background(), rc, 1.0850, 0.0030)
	require.NoError(t, err)

	paper.SetQuote("EURUSD", 1.0900, 1.0900)
	m.nowFn = func() time.Time { return rec.Deadline.Add(time.Second) }
	require.NoError(t, m.Tick(context.Background(), rc, rec))

	assert.True(t, rec.Resolved)
	assert.False(t, rec.Reentered)
	assert.Equal(t, chain.ChainCompleted, rc.Status)
	assert.Equal(t, 0, paper.OpenCount())
}

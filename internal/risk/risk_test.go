package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bracken/internal/config"
)

type memStateStore struct {
	state State
	ok    bool
	saves int
}

func (m *memStateStore) LoadRiskState() (State, bool, error) { return m.state, m.ok, nil }
func (m *memStateStore) SaveRiskState(s State) error {
	m.state = s
	m.saves++
	return nil
}

func testCfg() config.RiskConfig {
	return config.RiskConfig{DailyLossPct: 3.0, LifetimeLossUSD: 500}
}

func fixedNow(t *testing.T, g *Gate, day string) {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05", day)
	require.NoError(t, err)
	g.nowFn = func() time.Time { return ts }
}

func TestBaseLotTiers(t *testing.T) {
	cases := []struct {
		balance float64
		want    float64
	}{
		{5_000, 0.01},
		{9_999, 0.01},
		{10_000, 0.02},
		{25_000, 0.05},
		{50_000, 0.10},
		{100_000, 0.20},
		{250_000, 0.20},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, BaseLot(decimal.NewFromFloat(c.balance)), "balance %v", c.balance)
	}
}

func TestEvaluateAdmitsWithinAllowance(t *testing.T) {
	g, err := NewGate(testCfg(), &memStateStore{})
	require.NoError(t, err)
	fixedNow(t, g, "2026-03-02 10:00:00")

	lot, err := g.Evaluate("EURUSD", decimal.NewFromInt(10_000), 0.0050, 0.02)
	require.NoError(t, err)
	assert.Equal(t, 0.02, lot)
}

func TestEvaluateScalesProportionally(t *testing.T) {
	store := &memStateStore{}
	g, err := NewGate(testCfg(), store)
	require.NoError(t, err)
	fixedNow(t, g, "2026-03-02 10:00:00")

	// daily cap $300, $290 already lost, $10 left; 50 pips on 0.10 lots
	// proposes $50 of risk
	require.NoError(t, g.RecordClose(decimal.NewFromInt(-290)))

	lot, err := g.Evaluate("EURUSD", decimal.NewFromInt(10_000), 0.0050, 0.10)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, lot, 1e-9)
}

func TestEvaluateScaledLotNeverBelowMinimum(t *testing.T) {
	g, err := NewGate(testCfg(), &memStateStore{})
	require.NoError(t, err)
	fixedNow(t, g, "2026-03-02 10:00:00")
	require.NoError(t, g.RecordClose(decimal.NewFromFloat(-299.50)))

	lot, err := g.Evaluate("EURUSD", decimal.NewFromInt(10_000), 0.0050, 0.10)
	require.NoError(t, err)
	assert.Equal(t, 0.01, lot)
}

func TestEvaluateRejections(t *testing.T) {
	t.Run("daily cap", func(t *testing.T) {
		g, err := NewGate(testCfg(), &memStateStore{})
		require.NoError(t, err)
		fixedNow(t, g, "2026-03-02 10:00:00")
		require.NoError(t, g.RecordClose(decimal.NewFromInt(-300)))

		_, err = g.Evaluate("EURUSD", decimal.NewFromInt(10_000), 0.0050, 0.02)
		var rej *Rejection
		require.True(t, errors.As(err, &rej))
		assert.Equal(t, ReasonDailyCap, rej.Reason)
	})

	t.Run("lifetime cap", func(t *testing.T) {
		store := &memStateStore{
			state: State{
				LifetimeLoss: decimal.NewFromInt(500),
				Day:          "2026-03-02",
			},
			ok: true,
		}
		g, err := NewGate(testCfg(), store)
		require.NoError(t, err)
		fixedNow(t, g, "2026-03-02 10:00:00")

		_, err = g.Evaluate("EURUSD", decimal.NewFromInt(10_000), 0.0050, 0.02)
		var rej *Rejection
		require.True(t, errors.As(err, &rej))
		assert.Equal(t, ReasonLifetimeCap, rej.Reason)
	})

	t.Run("rejection has no side effect", func(t *testing.T) {
		g, err := NewGate(testCfg(), &memStateStore{})
		require.NoError(t, err)
		fixedNow(t, g, "2026-03-02 10:00:00")
		require.NoError(t, g.RecordClose(decimal.NewFromInt(-300)))
		before := g.Snapshot()

		_, err = g.Evaluate("EURUSD", decimal.NewFromInt(10_000), 0.0050, 0.02)
		require.Error(t, err)
		assert.True(t, before.DailyLoss.Equal(g.Snapshot().DailyLoss))
	})
}

func TestDailyRolloverResetsOnce(t *testing.T) {
	store := &memStateStore{
		state: State{
			DailyLoss:    decimal.NewFromInt(120),
			DailyProfit:  decimal.NewFromInt(40),
			LifetimeLoss: decimal.NewFromInt(120),
			Day:          "2026-03-01",
		},
		ok: true,
	}
	g, err := NewGate(testCfg(), store)
	require.NoError(t, err)
	fixedNow(t, g, "2026-03-02 00:05:00")

	require.NoError(t, g.RecordClose(decimal.NewFromInt(-10)))
	require.NoError(t, g.RecordClose(decimal.NewFromInt(-5)))

	st := g.Snapshot()
	assert.Equal(t, "2026-03-02", st.Day)
	assert.True(t, st.DailyLoss.Equal(decimal.NewFromInt(15)), "daily loss %s", st.DailyLoss)
	assert.True(t, st.DailyProfit.IsZero())
	// lifetime is never reset
	assert.True(t, st.LifetimeLoss.Equal(decimal.NewFromInt(135)), "lifetime loss %s", st.LifetimeLoss)
}

func TestRecordCloseProfitOnlyTouchesDailyProfit(t *testing.T) {
	g, err := NewGate(testCfg(), &memStateStore{})
	require.NoError(t, err)
	fixedNow(t, g, "2026-03-02 10:00:00")

	require.NoError(t, g.RecordClose(decimal.NewFromInt(25)))
	st := g.Snapshot()
	assert.True(t, st.DailyProfit.Equal(decimal.NewFromInt(25)))
	assert.True(t, st.DailyLoss.IsZero())
	assert.True(t, st.LifetimeLoss.IsZero())
}

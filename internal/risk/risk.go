// Package risk enforces the loss caps and account-tier sizing that gate
// every new entry.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bracken/internal/config"
	"bracken/internal/logger"
	"bracken/internal/pkg/pip"
)

// Reason is a typed gate-rejection code.
type Reason string

const (
	ReasonDailyCap    Reason = "DAILY_CAP_REACHED"
	ReasonLifetimeCap Reason = "LIFETIME_CAP_REACHED"
)

// Rejection is returned when the gate refuses an entry. It carries no side
// effects; counters are untouched.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk gate rejected entry: %s", r.Reason)
}

// State holds the persisted loss counters. Day is the calendar date the daily
// counters belong to, formatted 2006-01-02 UTC.
type State struct {
	DailyLoss    decimal.Decimal
	DailyProfit  decimal.Decimal
	LifetimeLoss decimal.Decimal
	Day          string
}

// StateStore persists the single risk state row across restarts.
type StateStore interface {
	LoadRiskState() (State, bool, error)
	SaveRiskState(State) error
}

// Gate serializes all risk decisions through one mutex.
type Gate struct {
	mu    sync.Mutex
	cfg   config.RiskConfig
	state State
	store StateStore
	nowFn func() time.Time
}

func NewGate(cfg config.RiskConfig, store StateStore) (*Gate, error) {
	g := &Gate{cfg: cfg, store: store, nowFn: time.Now}
	if store != nil {
		st, ok, err := store.LoadRiskState()
		if err != nil {
			return nil, fmt.Errorf("loading risk state: %w", err)
		}
		if ok {
			g.state = st
		}
	}
	return g, nil
}

// BaseLot maps the account balance to the fixed-lot tier table.
func BaseLot(balance decimal.Decimal) float64 {
	b, _ := balance.Float64()
	switch {
	case b < 10_000:
		return 0.01
	case b < 25_000:
		return 0.02
	case b < 50_000:
		return 0.05
	case b < 100_000:
		return 0.10
	default:
		return 0.20
	}
}

// Evaluate admits, scales down, or rejects a proposed entry. The returned lot
// is the admitted size; on rejection it is zero and the error is *Rejection.
func (g *Gate) Evaluate(symbol string, balance decimal.Decimal, stopDist, lot float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	dailyCap := balance.Mul(decimal.NewFromFloat(g.cfg.DailyLossPct / 100))
	remainingDaily := dailyCap.Sub(g.state.DailyLoss)
	remainingLifetime := decimal.NewFromFloat(g.cfg.LifetimeLossUSD).Sub(g.state.LifetimeLoss)

	if remainingDaily.LessThanOrEqual(decimal.Zero) {
		return 0, &Rejection{Reason: ReasonDailyCap}
	}
	if remainingLifetime.LessThanOrEqual(decimal.Zero) {
		return 0, &Rejection{Reason: ReasonLifetimeCap}
	}

	remaining := remainingDaily
	if remainingLifetime.LessThan(remaining) {
		remaining = remainingLifetime
	}
	rem, _ := remaining.Float64()

	proposed := pip.RiskUSD(symbol, lot, stopDist)
	if proposed <= rem {
		return lot, nil
	}

	scaled := math.Floor(lot*rem/proposed*100) / 100
	if scaled < 0.01 {
		scaled = 0.01
	}
	logger.Infof("risk gate scaled %s lot %.2f -> %.2f (remaining allowance $%.2f)", symbol, lot, scaled, rem)
	return scaled, nil
}

// RecordClose folds a realized P&L into the counters and persists them.
func (g *Gate) RecordClose(pnl decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	if pnl.IsNegative() {
		loss := pnl.Neg()
		g.state.DailyLoss = g.state.DailyLoss.Add(loss)
		g.state.LifetimeLoss = g.state.LifetimeLoss.Add(loss)
	} else {
		g.state.DailyProfit = g.state.DailyProfit.Add(pnl)
	}
	return g.persistLocked()
}

// Snapshot returns a copy of the current counters for reporting.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	return g.state
}

func (g *Gate) rolloverLocked() {
	today := g.nowFn().UTC().Format("2006-01-02")
	if g.state.Day == today {
		return
	}
	if g.state.Day != "" {
		logger.Infof("risk counters reset for %s (daily loss was $%s)", today, g.state.DailyLoss.StringFixed(2))
	}
	g.state.Day = today
	g.state.DailyLoss = decimal.Zero
	g.state.DailyProfit = decimal.Zero
	if err := g.persistLocked(); err != nil {
		logger.Errorf("persisting risk rollover failed: %v", err)
	}
}

func (g *Gate) persistLocked() error {
	if g.store == nil {
		return nil
	}
	if err := g.store.SaveRiskState(g.state); err != nil {
		return fmt.Errorf("saving risk state: %w", err)
	}
	return nil
}

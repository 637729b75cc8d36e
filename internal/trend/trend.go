// Package trend keeps per-symbol, per-timeframe trend direction and checks
// whether a signal agrees with all timeframes its route requires.
package trend

import (
	"sync"

	"bracken/internal/signal"
)

// Alignment is the audit record of one gate check.
type Alignment struct {
	Passed   bool
	Bypassed bool
	Checked  []signal.Timeframe
}

// Gate stores trend state written by SetTrend. A timeframe that was never set
// fails closed.
type Gate struct {
	mu      sync.RWMutex
	enabled bool
	trends  map[string]map[signal.Timeframe]signal.Direction
}

func NewGate(enabled bool) *Gate {
	return &Gate{
		enabled: enabled,
		trends:  make(map[string]map[signal.Timeframe]signal.Direction),
	}
}

// SetTrend records the current trend direction for one symbol timeframe.
func (g *Gate) SetTrend(symbol string, tf signal.Timeframe, dir signal.Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.trends[symbol] == nil {
		g.trends[symbol] = make(map[signal.Timeframe]signal.Direction)
	}
	g.trends[symbol][tf] = dir
}

// Check evaluates a signal against the route's required timeframes.
// Aggressive and reversal classes bypass the check entirely.
func (g *Gate) Check(sig *signal.Signal) Alignment {
	if !g.enabled || sig.Class.BypassesTrendGate() {
		return Alignment{Passed: true, Bypassed: true}
	}
	required := sig.Route.RequiredTimeframes()
	g.mu.RLock()
	defer g.mu.RUnlock()

	res := Alignment{Passed: true, Checked: required}
	symbolTrends := g.trends[sig.Symbol]
	for _, tf := range required {
		dir, ok := symbolTrends[tf]
		if !ok || dir != sig.Direction {
			res.Passed = false
			return res
		}
	}
	return res
}

// Aligned reports whether a direction still agrees with a route's required
// timeframes. Used by the continuation monitors after the original signal is
// long gone.
func (g *Gate) Aligned(symbol string, route signal.Route, dir signal.Direction) bool {
	if !g.enabled {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	symbolTrends := g.trends[symbol]
	for _, tf := range route.RequiredTimeframes() {
		cur, ok := symbolTrends[tf]
		if !ok || cur != dir {
			return false
		}
	}
	return true
}

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bracken/internal/chain"
	"bracken/internal/risk"
)

// Mem is an in-memory Store for tests and throwaway runs. Values are copied
// on the way in and out so callers cannot alias internal state.
type Mem struct {
	mu            sync.Mutex
	trades        map[string]chain.Trade
	reentries     map[string]chain.ReentryChain
	profits       map[string]chain.ProfitChain
	stopEvents    map[string]chain.StopLossEvent
	continuations map[string]chain.ContinuationRecord
	riskState     risk.State
	hasRiskState  bool

	// SaveErr, when set, fails every write.
	SaveErr error
}

func NewMem() *Mem {
	return &Mem{
		trades:        make(map[string]chain.Trade),
		reentries:     make(map[string]chain.ReentryChain),
		profits:       make(map[string]chain.ProfitChain),
		stopEvents:    make(map[string]chain.StopLossEvent),
		continuations: make(map[string]chain.ContinuationRecord),
	}
}

var _ Store = (*Mem)(nil)

func (m *Mem) SaveTrade(_ context.Context, t *chain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.trades[t.Ticket] = *t
	return nil
}

func (m *Mem) GetTrade(_ context.Context, ticket string) (*chain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[ticket]
	if !ok {
		return nil, fmt.Errorf("trade %s not found", ticket)
	}
	return &t, nil
}

func (m *Mem) ListChainTrades(_ context.Context, chainID string) ([]*chain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chain.Trade
	for _, t := range m.trades {
		if t.ChainID == chainID {
			cp := t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Mem) SaveReentryChain(_ context.Context, c *chain.ReentryChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.reentries[c.ID] = *c
	return nil
}

func (m *Mem) ListActiveReentryChains(_ context.Context) ([]*chain.ReentryChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chain.ReentryChain
	for _, c := range m.reentries {
		if !c.Status.Terminal() {
			cp := c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Mem) SaveProfitChain(_ context.Context, p *chain.ProfitChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *p
	cp.OpenTickets = append([]string(nil), p.OpenTickets...)
	m.profits[p.ID] = cp
	return nil
}

func (m *Mem) ListActiveProfitChains(_ context.Context) ([]*chain.ProfitChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chain.ProfitChain
	for _, p := range m.profits {
		if p.Status == chain.ProfitActive {
			cp := p
			cp.OpenTickets = append([]string(nil), p.OpenTickets...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Mem) SaveStopLossEvent(_ context.Context, e *chain.StopLossEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.stopEvents[e.ID] = *e
	return nil
}

func (m *Mem) ListUnresolvedStopLossEvents(_ context.Context) ([]*chain.StopLossEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chain.StopLossEvent
	for _, e := range m.stopEvents {
		if !e.Resolved {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Mem) CountReenteredStopLossEvents(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.stopEvents {
		if e.Outcome == chain.OutcomeReentered && !e.HitAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Mem) SaveContinuation(_ context.Context, r *chain.ContinuationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.continuations[r.ID] = *r
	return nil
}

func (m *Mem) ListUnresolvedContinuations(_ context.Context) ([]*chain.ContinuationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chain.ContinuationRecord
	for _, r := range m.continuations {
		if !r.Resolved {
			cp := r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Mem) LoadRiskState() (risk.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.riskState, m.hasRiskState, nil
}

func (m *Mem) SaveRiskState(st risk.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.riskState = st
	m.hasRiskState = true
	return nil
}

func (m *Mem) Close() error { return nil }

// ReentryChain returns a stored chain by id.
func (m *Mem) ReentryChain(id string) (*chain.ReentryChain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.reentries[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

// ProfitChain returns a stored profit chain by id.
func (m *Mem) ProfitChain(id string) (*chain.ProfitChain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profits[id]
	if !ok {
		return nil, false
	}
	cp := p
	cp.OpenTickets = append([]string(nil), p.OpenTickets...)
	return &cp, true
}

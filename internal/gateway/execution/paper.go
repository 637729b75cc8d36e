package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Paper is an in-memory venue used for dry-run mode and tests. It fills every
// order at the requested price and marks positions against quotes fed through
// SetQuote.
type Paper struct {
	mu        sync.Mutex
	seq       int
	quotes    map[string]Quote
	positions map[string]*paperPosition
	profits   map[string]decimal.Decimal
	balance   decimal.Decimal

	// SubmitErr, when set, fails the next Submit calls.
	SubmitErr error
	// CloseErr, when set, fails Close calls.
	CloseErr error
}

type paperPosition struct {
	req    OrderRequest
	closed bool
}

func NewPaper(balance float64) *Paper {
	return &Paper{
		quotes:    make(map[string]Quote),
		positions: make(map[string]*paperPosition),
		profits:   make(map[string]decimal.Decimal),
		balance:   decimal.NewFromFloat(balance),
	}
}

func (p *Paper) Submit(_ context.Context, req OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubmitErr != nil {
		return "", p.SubmitErr
	}
	p.seq++
	ticket := fmt.Sprintf("P-%d", p.seq)
	p.positions[ticket] = &paperPosition{req: req}
	return ticket, nil
}

func (p *Paper) Close(_ context.Context, ticket string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CloseErr != nil {
		return decimal.Zero, p.CloseErr
	}
	pos, ok := p.positions[ticket]
	if !ok || pos.closed {
		return decimal.Zero, fmt.Errorf("paper: unknown or closed ticket %s", ticket)
	}
	pos.closed = true
	realized := p.profits[ticket]
	p.balance = p.balance.Add(realized)
	return realized, nil
}

func (p *Paper) Modify(_ context.Context, ticket string, stop, target float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok || pos.closed {
		return fmt.Errorf("paper: unknown or closed ticket %s", ticket)
	}
	pos.req.Stop = stop
	pos.req.Target = target
	return nil
}

func (p *Paper) Quote(_ context.Context, symbol string) (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("paper: no quote for %s", symbol)
	}
	return q, nil
}

func (p *Paper) OpenProfit(_ context.Context, ticket string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return decimal.Zero, fmt.Errorf("paper: unknown ticket %s", ticket)
	}
	if pos.closed {
		return decimal.Zero, fmt.Errorf("paper: ticket %s already closed", ticket)
	}
	return p.profits[ticket], nil
}

func (p *Paper) Balance(_ context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// SetQuote feeds a price used by Quote.
func (p *Paper) SetQuote(symbol string, bid, ask float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = Quote{Bid: bid, Ask: ask}
}

// SetProfit pins the open P&L reported for a ticket.
func (p *Paper) SetProfit(ticket string, usd float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profits[ticket] = decimal.NewFromFloat(usd)
}

// Position returns a copy of the order behind a ticket.
func (p *Paper) Position(ticket string) (OrderRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return OrderRequest{}, false
	}
	return pos.req, true
}

// OpenCount reports how many positions are still open.
func (p *Paper) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pos := range p.positions {
		if !pos.closed {
			n++
		}
	}
	return n
}

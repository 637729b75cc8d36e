// Package execution abstracts the order venue. The engine only ever talks to
// these interfaces; live transports and the paper gateway implement them.
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"bracken/internal/signal"
)

// OrderRequest describes one order to submit.
type OrderRequest struct {
	Symbol    string
	Direction signal.Direction
	Lot       float64
	Price     float64 // reference price at submission
	Stop      float64
	Target    float64 // 0 disables the target
	Tag       string  // chain id, for venue-side audit
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Bid float64
	Ask float64
}

func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }

// Gateway submits and manages orders at the venue.
type Gateway interface {
	// Submit places the order and returns the venue ticket.
	Submit(ctx context.Context, req OrderRequest) (string, error)
	// Close flattens the position and returns realized P&L in USD.
	Close(ctx context.Context, ticket string) (decimal.Decimal, error)
	// Modify replaces stop and target on an open position.
	Modify(ctx context.Context, ticket string, stop, target float64) error
}

// PriceSource serves current quotes.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// ProfitSource serves live open P&L per ticket.
type ProfitSource interface {
	OpenProfit(ctx context.Context, ticket string) (decimal.Decimal, error)
}

// AccountSource serves the account balance used for risk sizing.
type AccountSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

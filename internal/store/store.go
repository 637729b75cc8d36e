// Package store defines the persistence boundary. The engine writes every
// state transition through it so a restart can rebuild all monitors.
package store

import (
	"context"
	"time"

	"bracken/internal/chain"
	"bracken/internal/risk"
)

type Store interface {
	SaveTrade(ctx context.Context, t *chain.Trade) error
	GetTrade(ctx context.Context, ticket string) (*chain.Trade, error)
	ListChainTrades(ctx context.Context, chainID string) ([]*chain.Trade, error)

	SaveReentryChain(ctx context.Context, c *chain.ReentryChain) error
	ListActiveReentryChains(ctx context.Context) ([]*chain.ReentryChain, error)

	SaveProfitChain(ctx context.Context, p *chain.ProfitChain) error
	ListActiveProfitChains(ctx context.Context) ([]*chain.ProfitChain, error)

	SaveStopLossEvent(ctx context.Context, e *chain.StopLossEvent) error
	ListUnresolvedStopLossEvents(ctx context.Context) ([]*chain.StopLossEvent, error)
	// CountReenteredStopLossEvents backs the day-level recovery attempt
	// limit across restarts.
	CountReenteredStopLossEvents(ctx context.Context, since time.Time) (int, error)

	SaveContinuation(ctx context.Context, r *chain.ContinuationRecord) error
	ListUnresolvedContinuations(ctx context.Context) ([]*chain.ContinuationRecord, error)

	// Risk state methods double as risk.StateStore.
	LoadRiskState() (risk.State, bool, error)
	SaveRiskState(risk.State) error

	Close() error
}

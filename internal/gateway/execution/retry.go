package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bracken/internal/logger"
)

const (
	retryAttempts = 3
	retryBackoff  = 500 * time.Millisecond
)

// Retrying decorates a Gateway with a fixed-backoff retry loop. Submit is
// retried too: the venue dedupes by tag, so a replay cannot double-fill.
type Retrying struct {
	inner Gateway
}

func WithRetry(inner Gateway) *Retrying {
	return &Retrying{inner: inner}
}

func (r *Retrying) Submit(ctx context.Context, req OrderRequest) (string, error) {
	var ticket string
	err := r.attempt(ctx, "submit "+req.Symbol, func() error {
		var err error
		ticket, err = r.inner.Submit(ctx, req)
		return err
	})
	return ticket, err
}

func (r *Retrying) Close(ctx context.Context, ticket string) (decimal.Decimal, error) {
	var realized decimal.Decimal
	err := r.attempt(ctx, "close "+ticket, func() error {
		var err error
		realized, err = r.inner.Close(ctx, ticket)
		return err
	})
	return realized, err
}

func (r *Retrying) Modify(ctx context.Context, ticket string, stop, target float64) error {
	return r.attempt(ctx, "modify "+ticket, func() error {
		return r.inner.Modify(ctx, ticket, stop, target)
	})
}

func (r *Retrying) attempt(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for i := 1; i <= retryAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		logger.Warnf("gateway %s failed (attempt %d/%d): %v", op, i, retryAttempts, lastErr)
		if i < retryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
	}
	return fmt.Errorf("gateway %s failed after %d attempts: %w", op, retryAttempts, lastErr)
}

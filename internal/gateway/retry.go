package gateway

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v5"

	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

// isTransient is swapped out in tests.
var isTransient = store.IsTransient

// do runs op, retrying once after a short pause if the store reports it is
// busy. A second busy failure is reported as unavailable. Other errors are
// returned as they are.
func do[T any](ctx context.Context, g *Gateway, name string, op func() (T, error)) (T, error) {
	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		if err != nil {
			slog.Warn("store busy", "op", name, "attempt", attempt, "error", err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(g.RetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil && isTransient(err) {
		var zero T
		return zero, model.Errorf(model.ErrUnavailable, "%s: store is busy, try again later", name)
	}
	return result, err
}

// exec is do for operations without a result.
func exec(ctx context.Context, g *Gateway, name string, op func() error) error {
	_, err := do(ctx, g, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

package loan

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/paralibrary/internal/model"
	"github.com/erazemk/paralibrary/internal/store"
)

// sweepConcurrency bounds how many books are marked late at once.
const sweepConcurrency = 4

// SweepLate persists the late status of every overdue loan and returns how
// many loans it changed.
func (m *Manager) SweepLate(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "loan.sweep")
	defer span.End()

	overdue, err := store.ListOverdueLoans(ctx, m.db, m.clock())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	var marked atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, l := range overdue {
		g.Go(func() error {
			_, err := m.MarkLate(gctx, l.ID)
			switch {
			case err == nil:
				marked.Add(1)
				return nil
			case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrNotFound):
				// Returned or marked by someone else since the listing.
				return nil
			default:
				return err
			}
		})
	}
	err = g.Wait()

	n := int(marked.Load())
	span.SetAttributes(attribute.Int("loans.marked", n))
	if err != nil {
		span.RecordError(err)
		return n, err
	}
	return n, nil
}

// RunSweeper calls SweepLate every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.SweepLate(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("sweeping late loans", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Info("marked loans late", "count", n)
			}
		}
	}
}

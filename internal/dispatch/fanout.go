package dispatch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FanOut calls send once per recipient with at most limit calls in flight,
// and returns when every call has finished. A call that fails or panics
// does not stop the others.
func FanOut(ctx context.Context, limit int, recipients []string, send func(ctx context.Context, recipientID string)) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, id := range recipients {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("fan-out send panic recovered", "recipient_id", id, "panic", rec)
				}
			}()
			send(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

package middleware

import (
	"context"
	"time"

	"github.com/keshon/jukebox/internal/metrics"
	"github.com/keshon/jukebox/pkg/cmd"
)

// WithMetrics records how long each command run takes.
func WithMetrics() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			defer func() {
				metrics.CommandDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
			}()
			return c.Run(ctx, inv)
		})
	}
}

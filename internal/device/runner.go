// internal/device/runner.go
package device

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Run primes the state with one cycle, then polls on a ticker until ctx ends.
// Cycles never overlap each other or a command. No retries: a failed cycle
// is simply followed by the next tick.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("device: interval must be > 0")
	}
	defer c.health.Disable()

	c.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	start := time.Now()
	res, err := c.Update(ctx)
	if err != nil {
		return // shutting down
	}
	c.log.Debug("cycle done",
		zap.Duration("took", time.Since(start)),
		zap.Bool("ok", res.OK()),
		zap.Int("events", len(res.Events)),
	)
}

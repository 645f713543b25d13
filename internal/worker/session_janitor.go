package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Evictor drops idle state and reports how much was removed.
type Evictor interface {
	EvictIdle() int
}

// StartSessionJanitor evicts idle viewing sessions every interval until ctx
// is done. The returned channel closes when the janitor exits.
func StartSessionJanitor(ctx context.Context, sessions Evictor, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if sessions == nil || interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.EvictIdle(); n > 0 {
					logger.Info("evicted idle view sessions", zap.Int("count", n))
				}
			}
		}
	}()
	return done
}

package harvest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests out. It combines a token-bucket ceiling on request
// rate with fixed context-aware pauses between cases and work units. The
// delays are politeness toward the remote host, not a correctness mechanism.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a pacer capped at rps requests per second. A non-positive
// rps disables the ceiling.
func NewPacer(rps float64, burst int) *Pacer {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request token is available or the context ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace wait: %w", err)
	}
	return nil
}

var (
	_ Limiter = (*Pacer)(nil)
	_ Pauser  = (*Pacer)(nil)
)

// Pause sleeps for delay unless the context ends first.
func (p *Pacer) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

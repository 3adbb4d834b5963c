package answer

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pacing defaults, imposed by upstream rate limits. Serializing the
// outbound generation calls is a correctness requirement, not an
// optimization.
const (
	MaxConcurrentRequests = 1
	MinRequestInterval    = 3000 * time.Millisecond
)

// Pacer serializes outbound generation calls and enforces a minimum
// spacing between the starts of successive calls, process-wide.
type Pacer struct {
	slots   *semaphore.Weighted
	limiter *rate.Limiter
}

// NewPacer creates a pacer with the given minimum inter-request
// interval (MinRequestInterval when zero).
func NewPacer(minInterval time.Duration) *Pacer {
	if minInterval <= 0 {
		minInterval = MinRequestInterval
	}
	return &Pacer{
		slots:   semaphore.NewWeighted(MaxConcurrentRequests),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Acquire blocks until a slot is free and the spacing interval has
// elapsed since the previous call started. Every successful Acquire
// must be paired with Release.
func (p *Pacer) Acquire(ctx context.Context) error {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		p.slots.Release(1)
		return err
	}
	return nil
}

// Release frees the slot taken by Acquire.
func (p *Pacer) Release() {
	p.slots.Release(1)
}

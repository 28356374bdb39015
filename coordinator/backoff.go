package coordinator

import (
	"context"
	"time"
)

// backoff produces exponentially growing delays capped at max.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{next: initial, max: max}
}

// Next returns the current delay and doubles it for the following call.
func (b *backoff) Next() time.Duration {
	d := b.next
	if d > b.max {
		d = b.max
	}
	b.next = d * 2
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

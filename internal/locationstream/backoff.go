package locationstream

import (
	"context"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

const (
	InitialBackoff = 200 * time.Millisecond
	MaxBackoff     = 5 * time.Second
)

// Backoff is the reconnect delay used by sources while their device or
// broker is unavailable: 200ms, doubling, capped at 5s.
type Backoff struct {
	current time.Duration
}

// Wait sleeps for the current delay and doubles it. It returns false if ctx
// ends first.
func (b *Backoff) Wait(ctx context.Context) bool {
	if b.current <= 0 {
		b.current = InitialBackoff
	}
	if !sleepWithContext(ctx, b.current) {
		return false
	}
	b.current = retry.NextBackoff(b.current, MaxBackoff)
	return true
}

// Reset returns the delay to its initial value.
func (b *Backoff) Reset() {
	b.current = InitialBackoff
}

// Current returns the delay the next Wait will use.
func (b *Backoff) Current() time.Duration {
	if b.current <= 0 {
		return InitialBackoff
	}
	return b.current
}

// sleepWithContext mirrors retry.SleepWithContext on the package clock so
// tests can advance it.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := domain.Clock().NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

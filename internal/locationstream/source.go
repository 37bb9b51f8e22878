// Package locationstream turns a position source into a single ordered
// subscription of location fixes and location errors.
package locationstream

import (
	"context"
	"time"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// WatchOptions is what the adapter asks of a source.
type WatchOptions struct {
	// HighAccuracy asks the source to drop coarse or estimated fixes.
	HighAccuracy bool
	// Timeout is how long the source may go without a fix before it
	// reports a Timeout error. It keeps watching afterwards.
	Timeout time.Duration
	// MaximumAge is the oldest cached fix the source may deliver. Zero means
	// only fixes taken after the watch started.
	MaximumAge time.Duration
}

// DefaultWatchOptions requests fresh high-accuracy fixes with a 10 second timeout.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaximumAge:   0,
	}
}

// Emitter receives events from a source. Calls must come from one goroutine
// at a time, in the order the source observed them.
type Emitter interface {
	Fix(loc domain.Location)
	Error(err *domain.LocationError)
}

// Source produces location fixes until its context is cancelled.
//
// Watch blocks. Recoverable problems are reported through Emitter.Error and
// watching continues. A non-nil return other than the context error ends the
// subscription.
type Source interface {
	Watch(ctx context.Context, opts WatchOptions, emit Emitter) error
}

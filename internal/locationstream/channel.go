package locationstream

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

var errNoFix = errors.New("no fix received within timeout")

// ChannelSource is a Source fed from Go channels. The replay tool and tests
// use it in place of a device or broker.
type ChannelSource struct {
	fixes <-chan domain.Location
	errs  <-chan *domain.LocationError
}

// NewChannelSource creates a source over fixes and errs. errs may be nil.
// Closing fixes ends the watch.
func NewChannelSource(fixes <-chan domain.Location, errs <-chan *domain.LocationError) *ChannelSource {
	return &ChannelSource{fixes: fixes, errs: errs}
}

// Watch forwards fixes and errors until fixes is closed or ctx is cancelled.
// When opts.Timeout elapses without a fix a Timeout error is emitted and the
// wait starts over.
func (c *ChannelSource) Watch(ctx context.Context, opts WatchOptions, emit Emitter) error {
	errs := c.errs

	var timer clockwork.Timer
	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer = domain.Clock().NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case loc, ok := <-c.fixes:
			if !ok {
				return nil
			}
			if timer != nil {
				timer.Reset(opts.Timeout)
			}
			emit.Fix(loc)
		case le, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			emit.Error(le)
		case <-timeout:
			emit.Error(domain.NewLocationError(domain.ErrTimeout, errNoFix))
			timer.Reset(opts.Timeout)
		}
	}
}

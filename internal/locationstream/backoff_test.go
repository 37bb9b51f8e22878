package locationstream

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

func TestBackoff_WaitDoubles(t *testing.T) {
	fake := clockwork.NewFakeClock()
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	var b Backoff
	assert.Equal(t, InitialBackoff, b.Current())

	done := make(chan bool, 1)
	go func() { done <- b.Wait(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fake.BlockUntilContext(ctx, 1))
	fake.Advance(InitialBackoff)

	assert.True(t, <-done)
	assert.Equal(t, 400*time.Millisecond, b.Current())

	b.Reset()
	assert.Equal(t, InitialBackoff, b.Current())
}

func TestBackoff_WaitCancelled(t *testing.T) {
	fake := clockwork.NewFakeClock()
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var b Backoff
	assert.False(t, b.Wait(ctx))
	assert.Equal(t, InitialBackoff, b.Current())
}

func TestSleepWithContext_ZeroDuration(t *testing.T) {
	assert.True(t, sleepWithContext(context.Background(), 0))
}

func TestBackoff_Capped(t *testing.T) {
	fake := clockwork.NewFakeClock()
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	b := Backoff{current: 4 * time.Second}
	done := make(chan bool, 1)
	go func() { done <- b.Wait(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fake.BlockUntilContext(ctx, 1))
	fake.Advance(4 * time.Second)

	assert.True(t, <-done)
	assert.Equal(t, MaxBackoff, b.Current())
}

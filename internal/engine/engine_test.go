package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/engine"
	"github.com/couchcryptid/hazard-alert-service/internal/locationstream"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
	"github.com/couchcryptid/hazard-alert-service/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// metersPerDegreeLat is the haversine distance of one degree along a meridian.
var metersPerDegreeLat = domain.EarthRadiusMeters * math.Pi / 180

var (
	h1 = domain.HazardPoint{
		ID:         "PT-01",
		Location:   domain.Location{Lat: 38.7436, Lng: -9.1602},
		SpeedLimit: 80,
		RoadName:   "A1 - Lisboa",
		Country:    domain.CountryPortugal,
	}
	h2 = domain.HazardPoint{
		ID:         "PT-06",
		Location:   domain.Location{Lat: 38.7883, Lng: -9.1121},
		SpeedLimit: 80,
		RoadName:   "IC2 - Sacavém",
		Country:    domain.CountryPortugal,
	}
)

// south returns the point d meters due south of loc.
func south(loc domain.Location, d float64) domain.Location {
	return domain.Location{Lat: loc.Lat - d/metersPerDegreeLat, Lng: loc.Lng}
}

type dispatchCall struct {
	HazardID string
	Language string
}

type mockDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (m *mockDispatcher) Dispatch(h domain.HazardPoint, lang string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, dispatchCall{HazardID: h.ID, Language: lang})
}

func (m *mockDispatcher) Calls() []dispatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatchCall(nil), m.calls...)
}

func newEngine(t *testing.T, points ...domain.HazardPoint) (*engine.Engine, *mockDispatcher, *observability.Metrics) {
	t.Helper()
	if len(points) == 0 {
		points = []domain.HazardPoint{h1}
	}
	reg, err := registry.Load(points)
	require.NoError(t, err)

	d := &mockDispatcher{}
	metrics := observability.NewMetricsForTesting()
	e, err := engine.New(reg, domain.DefaultEngineConfig(), d, slog.Default(), metrics)
	require.NoError(t, err)
	return e, d, metrics
}

func feed(e *engine.Engine, h domain.HazardPoint, distances ...float64) {
	for _, d := range distances {
		e.OnLocation(south(h.Location, d))
	}
}

func phaseOf(t *testing.T, e *engine.Engine, id string) domain.Phase {
	t.Helper()
	p, ok := e.StateOf(id)
	require.True(t, ok, "unknown hazard %s", id)
	return p
}

func TestNew_InvalidConfig(t *testing.T) {
	reg, err := registry.Load([]domain.HazardPoint{h1})
	require.NoError(t, err)

	cfg := domain.DefaultEngineConfig()
	cfg.EnterThresholdMeters = 2000
	_, err = engine.New(reg, cfg, &mockDispatcher{}, slog.Default(), observability.NewMetricsForTesting())
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestOnLocation_EntersOnceAtThreshold(t *testing.T) {
	e, d, metrics := newEngine(t)

	feed(e, h1, 900, 600)
	assert.Empty(t, d.Calls())
	assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h1.ID))

	feed(e, h1, 450)
	assert.Equal(t, []dispatchCall{{HazardID: h1.ID, Language: "pt"}}, d.Calls())
	assert.Equal(t, domain.PhaseAlerted, phaseOf(t, e, h1.ID))

	feed(e, h1, 300, 300, 100)
	assert.Len(t, d.Calls(), 1, "continuing to approach must not re-announce")

	assert.InDelta(t, 6, testutil.ToFloat64(metrics.LocationsProcessed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Transitions.WithLabelValues("entered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HazardsAlerted), 0)
}

func TestOnLocation_ExitResetsWithoutDispatch(t *testing.T) {
	e, d, metrics := newEngine(t)

	feed(e, h1, 450, 1300)
	assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h1.ID))
	assert.Len(t, d.Calls(), 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Transitions.WithLabelValues("exited")), 0)
	assert.Zero(t, testutil.ToFloat64(metrics.HazardsAlerted))
}

func TestOnLocation_ReapproachAnnouncesAgain(t *testing.T) {
	e, d, _ := newEngine(t)

	feed(e, h1, 450, 1300, 400)
	assert.Len(t, d.Calls(), 2)
	assert.Equal(t, domain.PhaseAlerted, phaseOf(t, e, h1.ID))
}

func TestOnLocation_HysteresisBand(t *testing.T) {
	e, d, _ := newEngine(t)

	// Jitter inside the band neither exits nor re-enters.
	feed(e, h1, 450, 1100, 480, 1150, 700, 1190)
	assert.Len(t, d.Calls(), 1)
	assert.Equal(t, domain.PhaseAlerted, phaseOf(t, e, h1.ID))
}

func TestOnLocation_HazardsAreIndependent(t *testing.T) {
	e, d, _ := newEngine(t, h1, h2)

	e.OnLocation(south(h1.Location, 200))

	assert.Equal(t, domain.PhaseAlerted, phaseOf(t, e, h1.ID))
	assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h2.ID))
	assert.Equal(t, []dispatchCall{{HazardID: h1.ID, Language: "pt"}}, d.Calls())
}

func TestOnLocation_MutedAdvancesStateWithoutDispatch(t *testing.T) {
	e, d, metrics := newEngine(t)
	require.NoError(t, e.Configure(domain.ConfigPatch{Enabled: ptr(false)}))
	assert.Zero(t, testutil.ToFloat64(metrics.EngineEnabled))

	feed(e, h1, 900, 450)
	assert.Equal(t, domain.PhaseAlerted, phaseOf(t, e, h1.ID))
	assert.Empty(t, d.Calls())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.AlertsSuppressed), 0)

	t.Run("unmute does not announce retroactively", func(t *testing.T) {
		require.NoError(t, e.Configure(domain.ConfigPatch{Enabled: ptr(true)}))
		feed(e, h1, 300, 100)
		assert.Empty(t, d.Calls())
	})

	t.Run("next approach after unmute is announced", func(t *testing.T) {
		feed(e, h1, 1300, 400)
		assert.Len(t, d.Calls(), 1)
	})

	t.Run("leaving while muted re-arms the hazard", func(t *testing.T) {
		require.NoError(t, e.Configure(domain.ConfigPatch{Enabled: ptr(false)}))
		feed(e, h1, 1300)
		assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h1.ID))

		require.NoError(t, e.Configure(domain.ConfigPatch{Enabled: ptr(true)}))
		feed(e, h1, 450)
		assert.Len(t, d.Calls(), 2)
	})
}

func TestConfigure(t *testing.T) {
	t.Run("thresholds apply on the next fix", func(t *testing.T) {
		e, d, _ := newEngine(t)

		feed(e, h1, 700)
		assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h1.ID))

		require.NoError(t, e.Configure(domain.ConfigPatch{
			EnterThresholdMeters: ptr(800.0),
			ExitThresholdMeters:  ptr(1500.0),
		}))
		assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h1.ID), "configure never evaluates")

		feed(e, h1, 700)
		assert.Len(t, d.Calls(), 1)
	})

	t.Run("language is passed to the dispatcher", func(t *testing.T) {
		e, d, _ := newEngine(t)
		require.NoError(t, e.Configure(domain.ConfigPatch{Language: ptr("es")}))

		feed(e, h1, 100)
		assert.Equal(t, []dispatchCall{{HazardID: h1.ID, Language: "es"}}, d.Calls())
	})

	t.Run("invalid patch leaves config unchanged", func(t *testing.T) {
		e, _, _ := newEngine(t)
		err := e.Configure(domain.ConfigPatch{EnterThresholdMeters: ptr(1500.0)})
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
		assert.Equal(t, domain.DefaultEngineConfig(), e.Config())
	})
}

func TestOnLocation_ConcurrentCallsEnterOnce(t *testing.T) {
	e, d, _ := newEngine(t)
	loc := south(h1.Location, 450)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.OnLocation(loc)
		}()
	}
	wg.Wait()

	assert.Len(t, d.Calls(), 1)
}

func TestOnLocation_InvalidLocationIgnored(t *testing.T) {
	e, d, metrics := newEngine(t)

	e.OnLocation(domain.Location{Lat: math.NaN(), Lng: 0})
	e.OnLocation(domain.Location{Lat: 200, Lng: 0})

	assert.Empty(t, d.Calls())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.LocationsIgnored), 0)
	_, ok := e.LastLocation()
	assert.False(t, ok)
}

func TestLastLocation(t *testing.T) {
	fixed := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	e, _, _ := newEngine(t)
	_, ok := e.LastLocation()
	assert.False(t, ok)

	loc := south(h1.Location, 900)
	e.OnLocation(loc)

	last, ok := e.LastLocation()
	require.True(t, ok)
	assert.Equal(t, loc, last.Location)
	assert.Equal(t, fixed, last.ReceivedAt)
}

func TestStates(t *testing.T) {
	e, _, _ := newEngine(t, h1, h2)
	e.OnLocation(h2.Location)

	assert.Equal(t, []domain.AlertState{
		{HazardID: h1.ID, Phase: domain.PhaseIdle},
		{HazardID: h2.ID, Phase: domain.PhaseAlerted},
	}, e.States())

	_, ok := e.StateOf("ES-99")
	assert.False(t, ok)
	assert.Len(t, e.Hazards(), 2)
}

func TestAttach_UnsubscribeStopsPhaseChanges(t *testing.T) {
	e, d, metrics := newEngine(t)
	fixes := make(chan domain.Location)
	opts := locationstream.DefaultWatchOptions()
	opts.Timeout = 0
	adapter := locationstream.New(locationstream.NewChannelSource(fixes, nil), opts, slog.Default(), metrics)

	ctx := context.Background()
	require.ErrorContains(t, e.CheckReadiness(ctx), "not attached")

	require.NoError(t, e.Attach(adapter, nil))
	require.NoError(t, e.CheckReadiness(ctx))
	require.ErrorIs(t, e.Attach(adapter, nil), engine.ErrAlreadyAttached)

	fixes <- south(h1.Location, 900)
	fixes <- south(h1.Location, 600)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.LocationsProcessed) == 2
	}, time.Second, 5*time.Millisecond)

	e.UnsubscribeSource()
	e.UnsubscribeSource()
	assert.True(t, e.Detached())
	require.ErrorContains(t, e.CheckReadiness(ctx), "detached")

	// Late delivery straight into the engine.
	feed(e, h1, 450, 100)
	assert.Equal(t, domain.PhaseIdle, phaseOf(t, e, h1.ID))
	assert.Empty(t, d.Calls())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.LocationsIgnored), 0)

	t.Run("reattach resumes evaluation", func(t *testing.T) {
		require.NoError(t, e.Attach(adapter, nil))
		assert.False(t, e.Detached())

		fixes <- south(h1.Location, 450)
		require.Eventually(t, func() bool { return len(d.Calls()) == 1 }, time.Second, 5*time.Millisecond)

		e.UnsubscribeSource()
		close(fixes)
	})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SourceRunning) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestAttach_ForwardsLocationErrors(t *testing.T) {
	e, _, metrics := newEngine(t)
	fixes := make(chan domain.Location)
	errs := make(chan *domain.LocationError)
	opts := locationstream.DefaultWatchOptions()
	opts.Timeout = 0
	adapter := locationstream.New(locationstream.NewChannelSource(fixes, errs), opts, slog.Default(), metrics)

	got := make(chan *domain.LocationError, 1)
	require.NoError(t, e.Attach(adapter, func(le *domain.LocationError) { got <- le }))

	errs <- domain.NewLocationError(domain.ErrUnavailable, errors.New("gps off"))
	le := <-got
	assert.Equal(t, domain.ErrUnavailable, le.Kind)
	require.NoError(t, e.CheckReadiness(context.Background()))

	e.UnsubscribeSource()
	close(fixes)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SourceRunning) == 0
	}, time.Second, 5*time.Millisecond)
}

// gatedSource holds its watch open past cancellation until release closes.
type gatedSource struct {
	release chan struct{}
}

func (g gatedSource) Watch(ctx context.Context, _ locationstream.WatchOptions, _ locationstream.Emitter) error {
	<-g.release
	<-ctx.Done()
	return ctx.Err()
}

func TestAttach_DetachedWhileSubscribing(t *testing.T) {
	e, _, metrics := newEngine(t)
	src := gatedSource{release: make(chan struct{})}
	opts := locationstream.DefaultWatchOptions()
	opts.Timeout = 0
	adapter := locationstream.New(src, opts, slog.Default(), metrics)

	// A stopped subscription whose watch has not wound down makes the next
	// Subscribe wait.
	prev, err := adapter.Subscribe(func(domain.Location) {}, nil)
	require.NoError(t, err)
	adapter.Unsubscribe(prev)

	attached := make(chan error, 1)
	go func() { attached <- e.Attach(adapter, nil) }()

	// Let Attach reach Subscribe before detaching.
	time.Sleep(50 * time.Millisecond)
	e.UnsubscribeSource()
	close(src.release)

	select {
	case err := <-attached:
		require.ErrorIs(t, err, engine.ErrDetached)
	case <-time.After(2 * time.Second):
		t.Fatal("Attach did not return")
	}
	assert.True(t, e.Detached())
	require.ErrorIs(t, e.CheckReadiness(context.Background()), engine.ErrDetached)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SourceRunning) == 0
	}, time.Second, 5*time.Millisecond)
}

func ptr[T any](v T) *T { return &v }

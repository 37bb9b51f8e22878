package dispatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/couchcryptid/hazard-alert-service/internal/dispatch"
	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var lisbonA1 = domain.HazardPoint{
	ID:         "PT-01",
	Location:   domain.Location{Lat: 38.7436, Lng: -9.1602},
	SpeedLimit: 80,
	RoadName:   "A1 - Lisboa",
	Country:    domain.CountryPortugal,
	Kind:       domain.KindFixed,
}

func waitAll(t *testing.T, d *dispatch.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
}

func TestPhrase(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"pt", "Atenção, radar de velocidade à frente. Limite de 80 quilómetros por hora."},
		{"en", "Attention, speed camera ahead. Speed limit 80 kilometres per hour."},
		{"es", "Atención, radar de velocidad más adelante. Límite de 80 kilómetros por hora."},
		{"fr", "Attention, radar de vitesse devant. Limite de 80 kilomètres par heure."},
		{"de", "Achtung, Blitzer voraus. Tempolimit 80 Kilometer pro Stunde."},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, dispatch.Phrase(tt.lang, 80))
		})
	}

	t.Run("unknown language falls back to portuguese", func(t *testing.T) {
		assert.Equal(t, dispatch.Phrase("pt", 120), dispatch.Phrase("it", 120))
		assert.Equal(t, dispatch.Phrase("pt", 120), dispatch.Phrase("", 120))
	})
}

func TestResolveLanguage(t *testing.T) {
	assert.Equal(t, "pt", dispatch.ResolveLanguage("pt"))
	assert.Equal(t, "pt", dispatch.ResolveLanguage("pt-BR"))
	assert.Equal(t, "en", dispatch.ResolveLanguage("en-GB"))
	assert.Equal(t, "de", dispatch.ResolveLanguage("DE"))
	assert.Equal(t, "pt", dispatch.ResolveLanguage("it"))
	assert.Equal(t, "pt", dispatch.ResolveLanguage("not a tag"))
}

func TestSupportedLanguages(t *testing.T) {
	langs := dispatch.SupportedLanguages()
	assert.Equal(t, []string{"pt", "en", "es", "fr", "de"}, langs)

	langs[0] = "xx"
	assert.Equal(t, "pt", dispatch.SupportedLanguages()[0])
}

func TestDispatch_Delivers(t *testing.T) {
	fixed := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	got := make(chan domain.Announcement, 1)
	notifier := dispatch.NotifierFunc(func(_ context.Context, a domain.Announcement) error {
		got <- a
		return nil
	})

	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(notifier, slog.Default(), metrics)
	d.Dispatch(lisbonA1, "en")
	waitAll(t, d)

	a := <-got
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "PT-01", a.HazardID)
	assert.Equal(t, "A1 - Lisboa", a.RoadName)
	assert.Equal(t, domain.CountryPortugal, a.Country)
	assert.Equal(t, 80, a.SpeedLimit)
	assert.Equal(t, "en", a.Language)
	assert.Equal(t, dispatch.Phrase("en", 80), a.Message)
	assert.Equal(t, fixed, a.TriggeredAt)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("success")), 0)
	assert.Zero(t, testutil.ToFloat64(metrics.DispatchInFlight))
	assert.Zero(t, d.InFlight())
}

func TestDispatch_FailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	notifier := dispatch.NotifierFunc(func(context.Context, domain.Announcement) error {
		calls.Add(1)
		return errors.New("speaker unplugged")
	})

	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(notifier, slog.Default(), metrics)
	d.Dispatch(lisbonA1, "pt")
	waitAll(t, d)

	assert.Equal(t, int32(1), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("failure")), 0)
	assert.Zero(t, d.InFlight())
}

func TestDispatch_RecoversPanic(t *testing.T) {
	var calls atomic.Int32
	notifier := dispatch.NotifierFunc(func(context.Context, domain.Announcement) error {
		if calls.Add(1) == 1 {
			panic("tts engine crashed")
		}
		return nil
	})

	metrics := observability.NewMetricsForTesting()
	d := dispatch.New(notifier, slog.Default(), metrics)

	d.Dispatch(lisbonA1, "pt")
	waitAll(t, d)
	d.Dispatch(lisbonA1, "pt")
	waitAll(t, d)

	assert.Equal(t, int32(2), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Dispatches.WithLabelValues("success")), 0)
}

func TestDispatch_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	notifier := dispatch.NotifierFunc(func(context.Context, domain.Announcement) error {
		started <- struct{}{}
		<-release
		return nil
	})

	d := dispatch.New(notifier, slog.Default(), observability.NewMetricsForTesting())
	d.Dispatch(lisbonA1, "pt")
	<-started
	assert.Equal(t, 1, d.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(release)
	waitAll(t, d)
	assert.Zero(t, d.InFlight())
}

func TestDispatch_Concurrent(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	notifier := dispatch.NotifierFunc(func(_ context.Context, a domain.Announcement) error {
		mu.Lock()
		defer mu.Unlock()
		seen[a.ID] = true
		return nil
	})

	d := dispatch.New(notifier, slog.Default(), observability.NewMetricsForTesting())
	for range 20 {
		d.Dispatch(lisbonA1, "es")
	}
	waitAll(t, d)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 20, "every announcement gets its own id")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := dispatch.NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Announce(context.Background(), domain.Announcement{
		ID:         "a-1",
		HazardID:   "PT-01",
		RoadName:   "A1 - Lisboa",
		SpeedLimit: 80,
		Language:   "pt",
		Message:    dispatch.Phrase("pt", 80),
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hazard announcement", line["msg"])
	assert.Equal(t, "PT-01", line["hazard_id"])
	assert.InDelta(t, 80, line["speed_limit"], 0)
	assert.Equal(t, dispatch.Phrase("pt", 80), line["message"])
}

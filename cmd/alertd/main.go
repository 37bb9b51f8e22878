package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/hazard-alert-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/hazard-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-alert-service/internal/adapter/nmea"
	"github.com/couchcryptid/hazard-alert-service/internal/adapter/sqlite"
	"github.com/couchcryptid/hazard-alert-service/internal/adapter/webhook"
	"github.com/couchcryptid/hazard-alert-service/internal/config"
	"github.com/couchcryptid/hazard-alert-service/internal/dispatch"
	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/engine"
	"github.com/couchcryptid/hazard-alert-service/internal/locationstream"
	"github.com/couchcryptid/hazard-alert-service/internal/observability"
	"github.com/couchcryptid/hazard-alert-service/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := loadHazards(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load hazards", "error", err)
		os.Exit(1)
	}

	notifier, closeNotifier := newNotifier(cfg, logger)
	dispatcher := dispatch.New(notifier, logger, metrics)

	eng, err := engine.New(reg, cfg.EngineConfig(), dispatcher, logger, metrics)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	src, closeSource, err := newSource(cfg, logger)
	if err != nil {
		logger.Error("failed to create location source", "error", err)
		os.Exit(1)
	}

	opts := locationstream.DefaultWatchOptions()
	opts.HighAccuracy = cfg.HighAccuracy
	opts.Timeout = cfg.FixTimeout
	adapter := locationstream.New(src, opts, logger, metrics)

	onError := func(le *domain.LocationError) {
		if le.Kind == domain.ErrPermissionDenied {
			logger.Error("location permission denied, alerts paused", "error", le)
		}
	}
	if err := eng.Attach(adapter, onError); err != nil {
		logger.Error("failed to attach location source", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("hazard alerts running",
		"hazards", reg.Len(),
		"location_source", cfg.LocationSource,
		"notifier", cfg.Notifier,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	eng.UnsubscribeSource()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("announcements still in flight at shutdown", "in_flight", dispatcher.InFlight())
	}
	if err := closeSource(); err != nil {
		logger.Error("location source close error", "error", err)
	}
	if err := closeNotifier(); err != nil {
		logger.Error("notifier close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// loadHazards builds the registry from the configured source. An empty
// SQLite database is seeded with the built-in set.
func loadHazards(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	switch cfg.HazardsSource {
	case config.HazardsFile:
		logger.Info("loading hazards from file", "path", cfg.HazardsPath)
		return registry.LoadFile(cfg.HazardsPath)

	case config.HazardsSQLite:
		db, err := sqlite.Open(cfg.HazardsPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if err := sqlite.Migrate(db); err != nil {
			return nil, err
		}
		points, err := sqlite.LoadHazards(ctx, db)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			points = registry.Builtin()
			if err := sqlite.SaveHazards(ctx, db, points); err != nil {
				return nil, err
			}
			logger.Info("seeded hazard db with built-in hazards", "path", cfg.HazardsPath, "count", len(points))
		}
		return registry.Load(points)

	default:
		return registry.Load(registry.Builtin())
	}
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (dispatch.Notifier, func() error) {
	switch cfg.Notifier {
	case config.NotifierKafka:
		n := kafkaadapter.NewNotifier(cfg, logger)
		return n, n.Close
	case config.NotifierWebhook:
		return webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookTimeout, logger), noopClose
	default:
		return dispatch.NewLogNotifier(logger), noopClose
	}
}

func newSource(cfg *config.Config, logger *slog.Logger) (locationstream.Source, func() error, error) {
	switch cfg.LocationSource {
	case config.SourceSerial:
		src, err := nmea.NewSource(nmea.PortOptions{Path: cfg.SerialPort, BaudRate: cfg.SerialBaudRate}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("serial source: %w", err)
		}
		return src, noopClose, nil
	case config.SourceKafka:
		src := kafkaadapter.NewSource(cfg, logger)
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown location source %q", cfg.LocationSource)
	}
}

func noopClose() error { return nil }

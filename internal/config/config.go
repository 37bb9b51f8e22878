package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// Hazard sources.
const (
	HazardsBuiltin = "builtin"
	HazardsFile    = "file"
	HazardsSQLite  = "sqlite"
)

// Location sources.
const (
	SourceKafka  = "kafka"
	SourceSerial = "serial"
)

// Notifiers.
const (
	NotifierLog     = "log"
	NotifierKafka   = "kafka"
	NotifierWebhook = "webhook"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Initial engine settings; PATCH /v1/config changes them at runtime.
	AlertsEnabled        bool
	AlertLanguage        string
	EnterThresholdMeters float64
	ExitThresholdMeters  float64

	HazardsSource string
	HazardsPath   string

	LocationSource     string
	KafkaBrokers       []string
	KafkaLocationTopic string
	KafkaGroupID       string
	SerialPort         string
	SerialBaudRate     int
	FixTimeout         time.Duration
	HighAccuracy       bool

	Notifier        string
	KafkaAlertTopic string
	WebhookURL      string
	WebhookTimeout  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fixTimeout, err := parsePositiveDuration("FIX_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	webhookTimeout, err := parsePositiveDuration("WEBHOOK_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	enabled, err := parseBool("ALERTS_ENABLED", true)
	if err != nil {
		return nil, err
	}
	highAccuracy, err := parseBool("HIGH_ACCURACY", true)
	if err != nil {
		return nil, err
	}

	enter, err := parseMeters("ENTER_THRESHOLD_METERS", domain.DefaultEnterThresholdMeters)
	if err != nil {
		return nil, err
	}
	exit, err := parseMeters("EXIT_THRESHOLD_METERS", domain.DefaultExitThresholdMeters)
	if err != nil {
		return nil, err
	}

	baudRate, err := strconv.Atoi(sharedcfg.EnvOrDefault("SERIAL_BAUD_RATE", "9600"))
	if err != nil || baudRate <= 0 {
		return nil, errors.New("invalid SERIAL_BAUD_RATE")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		AlertsEnabled:        enabled,
		AlertLanguage:        strings.ToLower(sharedcfg.EnvOrDefault("ALERT_LANGUAGE", domain.DefaultLanguage)),
		EnterThresholdMeters: enter,
		ExitThresholdMeters:  exit,

		HazardsSource: strings.ToLower(sharedcfg.EnvOrDefault("HAZARDS_SOURCE", HazardsBuiltin)),
		HazardsPath:   os.Getenv("HAZARDS_PATH"),

		LocationSource:     strings.ToLower(sharedcfg.EnvOrDefault("LOCATION_SOURCE", SourceKafka)),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaLocationTopic: sharedcfg.EnvOrDefault("KAFKA_LOCATION_TOPIC", "location-fixes"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "hazard-alerts"),
		SerialPort:         os.Getenv("SERIAL_PORT"),
		SerialBaudRate:     baudRate,
		FixTimeout:         fixTimeout,
		HighAccuracy:       highAccuracy,

		Notifier:        strings.ToLower(sharedcfg.EnvOrDefault("NOTIFIER", NotifierLog)),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "hazard-alerts"),
		WebhookURL:      os.Getenv("WEBHOOK_URL"),
		WebhookTimeout:  webhookTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EngineConfig returns the initial engine settings.
func (c *Config) EngineConfig() domain.EngineConfig {
	return domain.EngineConfig{
		Enabled:              c.AlertsEnabled,
		Language:             c.AlertLanguage,
		EnterThresholdMeters: c.EnterThresholdMeters,
		ExitThresholdMeters:  c.ExitThresholdMeters,
	}
}

func (c *Config) validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("ENTER_THRESHOLD_METERS/EXIT_THRESHOLD_METERS/ALERT_LANGUAGE: %w", err)
	}

	switch c.HazardsSource {
	case HazardsBuiltin:
	case HazardsFile, HazardsSQLite:
		if c.HazardsPath == "" {
			return fmt.Errorf("HAZARDS_PATH is required when HAZARDS_SOURCE=%s", c.HazardsSource)
		}
	default:
		return fmt.Errorf("invalid HAZARDS_SOURCE %q", c.HazardsSource)
	}

	switch c.LocationSource {
	case SourceKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaLocationTopic == "" {
			return errors.New("KAFKA_LOCATION_TOPIC is required")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return errors.New("SERIAL_PORT is required when LOCATION_SOURCE=serial")
		}
	default:
		return fmt.Errorf("invalid LOCATION_SOURCE %q", c.LocationSource)
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaAlertTopic == "" {
			return errors.New("KAFKA_ALERT_TOPIC is required")
		}
	case NotifierWebhook:
		if c.WebhookURL == "" {
			return errors.New("WEBHOOK_URL is required when NOTIFIER=webhook")
		}
	default:
		return fmt.Errorf("invalid NOTIFIER %q", c.Notifier)
	}

	return nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseMeters(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

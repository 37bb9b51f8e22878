package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hazard-alert-service/internal/config"
	"github.com/couchcryptid/hazard-alert-service/internal/domain"
	"github.com/couchcryptid/hazard-alert-service/internal/locationstream"
)

// MaxAccuracyMeters is the worst reported accuracy accepted when high
// accuracy is requested.
const MaxAccuracyMeters = 100.0

var errNoFix = errors.New("no location fix on topic within timeout")

// messageReader is the subset of *kafkago.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Source consumes location fixes from a Kafka topic.
// It implements locationstream.Source.
type Source struct {
	reader messageReader
	logger *slog.Logger
}

// NewSource creates a consumer-group reader for the location topic. New
// groups start at the end of the topic so old fixes are never replayed.
func NewSource(cfg *config.Config, logger *slog.Logger) *Source {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaLocationTopic,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafkago.LastOffset,
	})
	return &Source{reader: r, logger: logger}
}

// Watch fetches fixes until ctx is cancelled. A fetch that outlasts
// opts.Timeout reports a Timeout error; broker failures report Unavailable
// and are retried with backoff. Offsets are committed once a message has been
// handled, whether it was emitted or dropped.
func (s *Source) Watch(ctx context.Context, opts locationstream.WatchOptions, emit locationstream.Emitter) error {
	cutoff := domain.Now().Add(-opts.MaximumAge)
	var backoff locationstream.Backoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := s.fetch(ctx, opts.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				emit.Error(domain.NewLocationError(domain.ErrTimeout, errNoFix))
				continue
			}
			s.logger.Error("fetch location fix failed", "error", err, "backoff", backoff.Current())
			emit.Error(domain.NewLocationError(domain.ErrUnavailable, err))
			if !backoff.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		backoff.Reset()

		fix, err := decodeFix(msg)
		switch {
		case err != nil:
			s.logger.Warn("skipping malformed location fix",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		case fix.Timestamp.Before(cutoff):
			s.logger.Debug("skipping stale location fix", "timestamp", fix.Timestamp, "offset", msg.Offset)
		case opts.HighAccuracy && fix.Accuracy > MaxAccuracyMeters:
			s.logger.Debug("skipping coarse location fix", "accuracy_m", fix.Accuracy, "offset", msg.Offset)
		default:
			emit.Fix(fix.Location)
		}

		s.commit(ctx, msg)
	}
}

func (s *Source) fetch(ctx context.Context, timeout time.Duration) (kafkago.Message, error) {
	if timeout <= 0 {
		return s.reader.FetchMessage(ctx)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.reader.FetchMessage(fetchCtx)
}

func (s *Source) commit(ctx context.Context, msg kafkago.Message) {
	if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		s.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}

func (s *Source) Close() error {
	return s.reader.Close()
}

// fixMessage is the wire format of a location fix.
type fixMessage struct {
	Lat       *float64  `json:"lat"`
	Lng       *float64  `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Fix is a decoded location message.
type Fix struct {
	Location  domain.Location
	Accuracy  float64
	Timestamp time.Time
}

// decodeFix parses a fix message. A missing timestamp falls back to the
// Kafka message time.
func decodeFix(msg kafkago.Message) (Fix, error) {
	var m fixMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return Fix{}, fmt.Errorf("decode location fix: %w", err)
	}
	if m.Lat == nil || m.Lng == nil {
		return Fix{}, errors.New("decode location fix: lat and lng are required")
	}
	fix := Fix{
		Location:  domain.Location{Lat: *m.Lat, Lng: *m.Lng},
		Accuracy:  m.Accuracy,
		Timestamp: m.Timestamp,
	}
	if err := fix.Location.Validate(); err != nil {
		return Fix{}, fmt.Errorf("decode location fix: %w", err)
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = msg.Time
	}
	return fix, nil
}

// EncodeFix renders a fix in the wire format consumed by Source.
func EncodeFix(loc domain.Location, accuracy float64, ts time.Time) ([]byte, error) {
	lat, lng := loc.Lat, loc.Lng
	return json.Marshal(fixMessage{Lat: &lat, Lng: &lng, Accuracy: accuracy, Timestamp: ts})
}

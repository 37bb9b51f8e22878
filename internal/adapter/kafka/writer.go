package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hazard-alert-service/internal/config"
	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes announcements to the alert topic.
// It implements dispatch.Notifier.
type Notifier struct {
	writer messageWriter
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured alert topic.
// Messages are keyed by hazard id so one hazard's announcements stay on one
// partition.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		// Announcements are fire-once: one write attempt, flushed without
		// waiting for a batch to fill.
		MaxAttempts:  1,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Notifier{writer: w, logger: logger}
}

// Announce publishes a single announcement.
func (n *Notifier) Announce(ctx context.Context, a domain.Announcement) error {
	msg, err := serializeToMessage(a)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish announcement %s: %w", a.ID, err)
	}
	n.logger.Debug("announcement published", "announcement_id", a.ID, "hazard_id", a.HazardID)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals an Announcement into a Kafka message.
func serializeToMessage(a domain.Announcement) (kafkago.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize announcement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(a.HazardID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "language", Value: []byte(a.Language)},
			{Key: "triggered_at", Value: []byte(a.TriggeredAt.Format(time.RFC3339))},
		},
	}, nil
}

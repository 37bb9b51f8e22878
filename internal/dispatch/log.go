package dispatch

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// LogNotifier writes announcements to the log. It is the default notifier
// and the one the replay tool uses.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Announce(_ context.Context, a domain.Announcement) error {
	n.logger.Info("hazard announcement",
		"announcement_id", a.ID,
		"hazard_id", a.HazardID,
		"road", a.RoadName,
		"speed_limit", a.SpeedLimit,
		"language", a.Language,
		"message", a.Message,
	)
	return nil
}

// Package webhook posts hazard announcements to an HTTP endpoint, such as a
// text-to-speech bridge running on the head unit.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/hazard-alert-service/internal/domain"
)

// Notifier implements dispatch.Notifier by POSTing the announcement as JSON.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier creates a webhook notifier. A zero timeout means the request
// can run as long as the endpoint takes.
func NewNotifier(url string, timeout time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Announce sends a. Any non-2xx response is an error.
func (n *Notifier) Announce(ctx context.Context, a domain.Announcement) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", a.ID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook error: status %d: %s", resp.StatusCode, msg)
	}

	n.logger.Debug("webhook delivered", "announcement_id", a.ID, "status", resp.StatusCode)
	return nil
}

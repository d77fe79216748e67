package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/fortytwo/review-notifier/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Service posts payloads to a Discord webhook
type Service struct {
	webhookURL string
	client     *resty.Client
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// NewService creates a new webhook notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		webhookURL: cfg.DiscordWebhookURL,
		client:     resty.New().SetTimeout(30 * time.Second),
	}
}

// Send posts a payload to the webhook. Any non-2xx response is an error.
func (s *Service) Send(ctx context.Context, payload *models.WebhookPayload) error {
	if s.webhookURL == "" {
		return fmt.Errorf("webhook URL is not configured")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(s.webhookURL)

	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	logrus.Debugf("Webhook delivered with status %d", resp.StatusCode())
	return nil
}

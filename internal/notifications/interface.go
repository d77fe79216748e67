package notifications

import (
	"context"

	"github.com/fortytwo/review-notifier/internal/models"
)

// Notifier defines the contract for chat delivery transports
type Notifier interface {
	Send(ctx context.Context, payload *models.WebhookPayload) error
}

package sources

import (
	"context"
	"time"

	"github.com/fortytwo/review-notifier/internal/models"
)

// Source interface defines the contract for inbound message sources
type Source interface {
	GetName() string
	IsEnabled() bool
	// Search returns messages whose subject contains subjectFilter and that
	// arrived within since. With unreadOnly set, read messages are excluded.
	Search(ctx context.Context, subjectFilter string, since time.Duration, unreadOnly bool) ([]models.Email, error)
}

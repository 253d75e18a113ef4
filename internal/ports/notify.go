package ports

import (
	"context"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// Notifier publishes competition standings after a decision tick. The
// console adapter implements it; anything with a sink could.
type Notifier interface {
	PublishLeaderboard(ctx context.Context, comp domain.Competition, standings []domain.Participant) error
}

package presence

import (
	"context"
	"time"

	"github.com/converse-im/converse/internal/domain"
)

// Store persists liveness state. Online status is TTL-keyed so a user
// whose heartbeats stop is demoted to OFFLINE by expiry rather than by
// an explicit write.
type Store interface {
	SetOnline(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	Get(ctx context.Context, userID string) (*domain.Presence, error)
	GetMany(ctx context.Context, userIDs []string) ([]domain.Presence, error)
}

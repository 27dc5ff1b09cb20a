package presence

import (
	"context"
	"time"

	"github.com/converse-im/converse/internal/domain"
)

// Tracker maps connection events and heartbeats onto the presence
// store. The TTL is the server-side idle timeout; clients are expected
// to heartbeat at no more than two thirds of it so one dropped beat
// does not flap the user offline.
type Tracker struct {
	store Store
	ttl   time.Duration
}

func NewTracker(store Store, ttl time.Duration) *Tracker {
	return &Tracker{store: store, ttl: ttl}
}

// Connected marks the user online on an authenticated connect.
func (t *Tracker) Connected(ctx context.Context, userID string) (*domain.Presence, error) {
	now := time.Now().UTC()
	if err := t.store.SetOnline(ctx, userID, now, t.ttl); err != nil {
		return nil, err
	}
	return &domain.Presence{UserID: userID, Status: domain.PresenceOnline, LastSeenAt: now}, nil
}

// Heartbeat refreshes the online TTL.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	return t.store.SetOnline(ctx, userID, time.Now().UTC(), t.ttl)
}

// Disconnected marks the user offline on session destruction.
func (t *Tracker) Disconnected(ctx context.Context, userID string) (*domain.Presence, error) {
	now := time.Now().UTC()
	if err := t.store.SetOffline(ctx, userID, now); err != nil {
		return nil, err
	}
	return &domain.Presence{UserID: userID, Status: domain.PresenceOffline, LastSeenAt: now}, nil
}

// Get returns the user's current presence.
func (t *Tracker) Get(ctx context.Context, userID string) (*domain.Presence, error) {
	return t.store.Get(ctx, userID)
}

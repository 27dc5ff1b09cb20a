package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/converse-im/converse/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// redisStore implements Store using Redis.
//
// Key patterns:
//
//	presence:online:{user_id}     STRING "1", TTL-bound  - liveness flag
//	presence:last_seen:{user_id}  STRING RFC3339, no TTL - last activity
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed presence store.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func onlineKey(userID string) string {
	return fmt.Sprintf("presence:online:%s", userID)
}

func lastSeenKey(userID string) string {
	return fmt.Sprintf("presence:last_seen:%s", userID)
}

func (s *redisStore) SetOnline(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, onlineKey(userID), "1", ttl)
	pipe.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339Nano), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) SetOffline(ctx context.Context, userID string, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, onlineKey(userID))
	pipe.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339Nano), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, userID string) (*domain.Presence, error) {
	pipe := s.client.TxPipeline()
	onlineCmd := pipe.Exists(ctx, onlineKey(userID))
	lastSeenCmd := pipe.Get(ctx, lastSeenKey(userID))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	p := &domain.Presence{UserID: userID, Status: domain.PresenceOffline}
	if onlineCmd.Val() > 0 {
		p.Status = domain.PresenceOnline
	}
	if raw, err := lastSeenCmd.Result(); err == nil {
		if ts, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			p.LastSeenAt = ts
		}
	}
	return p, nil
}

func (s *redisStore) GetMany(ctx context.Context, userIDs []string) ([]domain.Presence, error) {
	presences := make([]domain.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		presences = append(presences, *p)
	}
	return presences, nil
}

// Close releases the underlying Redis client.
func (s *redisStore) Close() error {
	return s.client.Close()
}

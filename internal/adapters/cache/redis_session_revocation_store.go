package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "auth:session:revoked:"

// revokedTTLFloor keeps a marker alive briefly even when the session's
// access token already expired, covering clock skew between nodes.
const revokedTTLFloor = time.Minute

// RedisSessionRevocationStore keeps revocation markers whose lifetime tracks
// the revoked session's access token. Once the token has expired the marker
// has nothing left to guard and Redis drops it on its own.
type RedisSessionRevocationStore struct {
	client *redis.Client
}

func NewRedisSessionRevocationStore(client *redis.Client) *RedisSessionRevocationStore {
	return &RedisSessionRevocationStore{client: client}
}

func (s *RedisSessionRevocationStore) MarkRevoked(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl < revokedTTLFloor {
		ttl = revokedTTLFloor
	}
	return s.client.Set(ctx, revokedKeyPrefix+sessionID.String(), "1", ttl).Err()
}

func (s *RedisSessionRevocationStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

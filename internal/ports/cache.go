package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionRevocationStore keeps revocation markers with token-aligned TTL.
// This allows immediate logout semantics without a store round-trip on every
// access-token check.
type SessionRevocationStore interface {
	MarkRevoked(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

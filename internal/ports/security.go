package ports

import (
	"time"

	"github.com/google/uuid"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenType distinguishes access and refresh tokens. Tokens are structurally
// identical otherwise, so the type claim is the only thing keeping a refresh
// token out of an access-scoped operation.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// AccountSnapshot is the token-relevant projection of an account at issuance
// time. Authorities are embedded in access tokens only.
type AccountSnapshot struct {
	ID          uuid.UUID
	Username    string
	Email       string
	Authorities []string
}

// TokenClaims is the verified payload of a bearer token. TokenID is set only
// for refresh tokens to support external revocation lists. SessionID ties an
// access token to the session that issued it so revocation markers can be
// checked without a store round-trip.
type TokenClaims struct {
	Subject     uuid.UUID
	Type        TokenType
	SessionID   uuid.UUID
	Username    string
	Email       string
	Authorities []string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec creates and verifies signed self-contained bearer tokens.
// Verify enforces the expected type: presenting a refresh token where an
// access token is required fails, and vice versa. All verification failures
// wrap domain.ErrTokenInvalid so callers cannot distinguish them.
type TokenCodec interface {
	IssueAccess(snapshot AccountSnapshot, sessionID uuid.UUID, ttl time.Duration) (string, error)
	IssueRefresh(snapshot AccountSnapshot, ttl time.Duration) (string, error)
	Verify(raw string, want TokenType) (TokenClaims, error)
}

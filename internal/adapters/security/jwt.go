package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

// Verification failure reasons. All wrap domain.ErrTokenInvalid so callers
// collapse them into one generic failure at the boundary.
var (
	ErrTokenMalformed = fmt.Errorf("%w: malformed", domain.ErrTokenInvalid)
	ErrTokenSignature = fmt.Errorf("%w: bad signature", domain.ErrTokenInvalid)
	ErrTokenExpired   = fmt.Errorf("%w: expired", domain.ErrTokenInvalid)
	ErrTokenWrongType = fmt.Errorf("%w: wrong token type", domain.ErrTokenInvalid)
)

const minSecretBytes = 32

// JWTCodec implements HS512 token signing/verification over a single shared
// symmetric secret. Tokens are self-describing: the type claim is what keeps
// access and refresh tokens apart.
type JWTCodec struct {
	secret []byte
	nowFn  func() time.Time
}

// NewJWTCodec builds a codec from the configured secret. The secret must be
// at least 256 bits; HS512 with a short key is not worth signing with.
func NewJWTCodec(secret string) (*JWTCodec, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	return &JWTCodec{
		secret: []byte(secret),
		nowFn:  time.Now().UTC,
	}, nil
}

type authTokenClaims struct {
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	TokenType   string   `json:"type"`
	SessionID   string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (c *JWTCodec) IssueAccess(snapshot ports.AccountSnapshot, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	now := c.nowFn()
	// The sid claim binds the token to its session so revocation can be
	// checked without a session-store lookup.
	return c.sign(authTokenClaims{
		Username:    snapshot.Username,
		Email:       snapshot.Email,
		Authorities: snapshot.Authorities,
		TokenType:   string(ports.TokenAccess),
		SessionID:   sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snapshot.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

func (c *JWTCodec) IssueRefresh(snapshot ports.AccountSnapshot, ttl time.Duration) (string, error) {
	now := c.nowFn()
	// Refresh tokens carry a per-issuance id so external revocation lists can
	// key on something other than the token string itself.
	return c.sign(authTokenClaims{
		Username:  snapshot.Username,
		TokenType: string(ports.TokenRefresh),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snapshot.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

func (c *JWTCodec) sign(claims authTokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
}

func (c *JWTCodec) Verify(raw string, want ports.TokenType) (ports.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &authTokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(c.nowFn),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ports.TokenClaims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return ports.TokenClaims{}, ErrTokenSignature
		default:
			return ports.TokenClaims{}, ErrTokenMalformed
		}
	}

	claims, ok := parsed.Claims.(*authTokenClaims)
	if !ok || !parsed.Valid {
		return ports.TokenClaims{}, ErrTokenMalformed
	}

	tokenType := ports.TokenType(claims.TokenType)
	if tokenType != ports.TokenAccess && tokenType != ports.TokenRefresh {
		return ports.TokenClaims{}, ErrTokenWrongType
	}
	if tokenType != want {
		return ports.TokenClaims{}, ErrTokenWrongType
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.TokenClaims{}, ErrTokenMalformed
	}
	var sessionID uuid.UUID
	if claims.SessionID != "" {
		sessionID, err = uuid.Parse(claims.SessionID)
		if err != nil {
			return ports.TokenClaims{}, ErrTokenMalformed
		}
	}

	out := ports.TokenClaims{
		Subject:     subject,
		Type:        tokenType,
		SessionID:   sessionID,
		Username:    claims.Username,
		Email:       claims.Email,
		Authorities: claims.Authorities,
		TokenID:     claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

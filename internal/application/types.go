package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
)

// Config holds the tunables of the authentication core. Defaults match the
// service's production posture; bootstrap overrides them from configuration.
type Config struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	MaxConcurrentSessions int
	StoreTimeout          time.Duration
	Lockout               domain.LockoutPolicy
}

// DefaultConfig returns the production defaults: one-hour access tokens,
// seven-day refresh tokens, five concurrent sessions per account.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:        time.Hour,
		RefreshTokenTTL:       7 * 24 * time.Hour,
		MaxConcurrentSessions: 5,
		StoreTimeout:          5 * time.Second,
		Lockout:               domain.DefaultLockoutPolicy(),
	}
}

// DeviceMetadata identifies the client side of an authentication request.
// All fields are optional and recorded verbatim for audit and session listing.
type DeviceMetadata struct {
	IPAddress  string
	UserAgent  string
	DeviceName string
}

type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type LoginRequest struct {
	Login    string
	Password string
	Device   DeviceMetadata
}

// FederatedLoginRequest carries the already-validated identity assertion from
// the OAuth2/OIDC edge: the provider name and the raw attribute map returned
// by the provider's userinfo endpoint.
type FederatedLoginRequest struct {
	Provider   string
	Attributes map[string]any
	Device     DeviceMetadata
}

// AccountResponse is the external projection of an account. Credential and
// lockout fields never leave the application layer.
type AccountResponse struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName,omitempty"`
	LastName      string     `json:"lastName,omitempty"`
	AvatarURL     string     `json:"avatarUrl,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	Provider      string     `json:"provider"`
	Roles         []string   `json:"roles"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// LoginResponse is the successful authentication payload: a fresh token pair
// plus the session that carries it.
type LoginResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	TokenType    string          `json:"tokenType"`
	ExpiresIn    int64           `json:"expiresIn"`
	SessionID    uuid.UUID       `json:"sessionId"`
	Account      AccountResponse `json:"account"`
}

// RefreshResponse returns the replacement access token. The refresh token is
// echoed unchanged: refreshing extends a session, it does not rotate it.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
}

// UpdateProfileRequest carries the self-service profile fields an account
// holder may edit. Empty strings clear the field.
type UpdateProfileRequest struct {
	FirstName string
	LastName  string
	AvatarURL string
}

// SessionResponse is the device-management projection of a session. Token
// values are never included.
type SessionResponse struct {
	ID             uuid.UUID `json:"id"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	UserAgent      string    `json:"userAgent,omitempty"`
	DeviceName     string    `json:"deviceName,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// SessionListResponse pairs a page of sessions with the account's current
// active count so clients can show headroom under the concurrency cap.
type SessionListResponse struct {
	Sessions    []SessionResponse `json:"sessions"`
	ActiveCount int64             `json:"activeCount"`
}

type LoginHistoryQuery struct {
	Limit   int
	Offset  int
	Since   *time.Time
	Success *bool
}

type LoginHistoryEntry struct {
	AttemptAt     time.Time `json:"attemptAt"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
	Provider      string    `json:"provider,omitempty"`
}

func accountResponse(acct domain.Account) AccountResponse {
	roles := acct.Roles
	if roles == nil {
		roles = []string{}
	}
	return AccountResponse{
		ID:            acct.ID,
		Username:      acct.Username,
		Email:         acct.Email,
		FirstName:     acct.FirstName,
		LastName:      acct.LastName,
		AvatarURL:     acct.AvatarURL,
		EmailVerified: acct.EmailVerified,
		Provider:      string(acct.Provider),
		Roles:         roles,
		LastLoginAt:   acct.LastLoginAt,
		CreatedAt:     acct.CreatedAt,
	}
}

func sessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:             s.ID,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		DeviceName:     s.DeviceName,
		Active:         s.Active,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		ExpiresAt:      s.RefreshExpiresAt,
	}
}

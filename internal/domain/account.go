package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the canonical identity aggregate for the auth service.
// PasswordHash is empty for federated-only accounts; lockout state lives on
// the row so the store can update it with a single conditional write.
type Account struct {
	ID                  uuid.UUID
	Username            string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	AvatarURL           string
	Enabled             bool
	EmailVerified       bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	Provider            Provider
	ProviderID          string
	Roles               []string
	LastLoginAt         *time.Time
	LastLoginIP         string
	LastLoginUserAgent  string
	// Version guards the failure counter and lock timestamp against
	// concurrent read-modify-write cycles.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFederated reports whether the account's credential authority is an
// external provider rather than a local password.
func (a Account) IsFederated() bool {
	return a.Provider != ProviderLocal
}

// FailureState extracts the lockout-relevant slice of the account.
func (a Account) FailureState() FailureState {
	return FailureState{
		FailedAttempts: a.FailedLoginAttempts,
		LockedUntil:    a.LockedUntil,
	}
}

// Session models one authenticated device/browser instance. The session id is
// its identity; the token columns are the credentials it currently holds and
// the access token is replaced in place on refresh.
type Session struct {
	ID               uuid.UUID
	AccountID        uuid.UUID
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Active           bool
	IPAddress        string
	UserAgent        string
	DeviceName       string
	CreatedAt        time.Time
	LastAccessedAt   time.Time
}

// RefreshExpired reports whether the session's refresh window has closed.
func (s Session) RefreshExpired(now time.Time) bool {
	return !s.RefreshExpiresAt.After(now)
}

// LoginAttempt records an authentication outcome for audit and history.
// Rows are append-only; retention is an external concern.
type LoginAttempt struct {
	ID            int64
	AccountID     *uuid.UUID
	AttemptAt     time.Time
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Provider      Provider
}

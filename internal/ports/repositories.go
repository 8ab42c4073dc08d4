package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
)

// ProfileUpdate carries the mutable profile fields refreshed on federated
// re-login. ProviderID is written only when the stored value is empty.
type ProfileUpdate struct {
	FirstName  string
	LastName   string
	AvatarURL  string
	ProviderID string
}

// AccountStore defines persistence operations for accounts.
// UpdateFailureState is a conditional write keyed on the account version so
// lockout transitions stay linearizable per account under concurrent logins.
type AccountStore interface {
	Create(ctx context.Context, acct domain.Account) (domain.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetByLogin(ctx context.Context, usernameOrEmail string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByProvider(ctx context.Context, provider domain.Provider, providerID string) (domain.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time, ip, userAgent string) error
	UpdateFailureState(ctx context.Context, id uuid.UUID, expectedVersion int64, st domain.FailureState, at time.Time) error
}

// SessionCreateParams captures everything required to persist a new session.
// The session id is assigned by the caller so it can be embedded in the access
// token before the row exists. Device and network fields are stored for
// auditability and device management.
type SessionCreateParams struct {
	SessionID        uuid.UUID
	AccountID        uuid.UUID
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	IPAddress        string
	UserAgent        string
	DeviceName       string
	CreatedAt        time.Time
}

// SessionStore manages persistent session lifecycle.
// CreateWithEviction runs count, evict, and insert inside one per-account
// transaction so the concurrency cap holds under racing logins; the evicted
// session, if any, is returned for revocation-marker and audit purposes.
type SessionStore interface {
	CreateWithEviction(ctx context.Context, params SessionCreateParams, maxActive int) (domain.Session, *domain.Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Session, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Session, error)
	CountActiveByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	UpdateAccessToken(ctx context.Context, id uuid.UUID, accessToken string, accessExpiresAt, touchedAt time.Time) error
	DeactivateByRefreshToken(ctx context.Context, refreshToken string, at time.Time) (*domain.Session, error)
	DeactivateByID(ctx context.Context, id uuid.UUID, at time.Time) error
	DeactivateAllByAccount(ctx context.Context, accountID uuid.UUID, at time.Time) ([]domain.Session, error)
}

// LoginAttemptStore is the append-only audit sink for authentication
// outcomes. Record failures must never fail the login path.
type LoginAttemptStore interface {
	Record(ctx context.Context, attempt domain.LoginAttempt) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int, since *time.Time, success *bool) ([]domain.LoginAttempt, error)
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for security events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

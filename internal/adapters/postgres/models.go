package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID           uuid.UUID  `gorm:"column:account_id;type:uuid;primaryKey"`
	Username            string     `gorm:"column:username"`
	Email               string     `gorm:"column:email"`
	PasswordHash        *string    `gorm:"column:password_hash"`
	FirstName           string     `gorm:"column:first_name"`
	LastName            string     `gorm:"column:last_name"`
	AvatarURL           string     `gorm:"column:avatar_url"`
	Enabled             bool       `gorm:"column:enabled"`
	EmailVerified       bool       `gorm:"column:email_verified"`
	FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
	LockedUntil         *time.Time `gorm:"column:locked_until"`
	Provider            string     `gorm:"column:provider"`
	ProviderID          *string    `gorm:"column:provider_id"`
	Roles               string     `gorm:"column:roles"`
	LastLoginAt         *time.Time `gorm:"column:last_login_at"`
	LastLoginIP         *string    `gorm:"column:last_login_ip"`
	LastLoginUserAgent  string     `gorm:"column:last_login_user_agent"`
	Version             int64      `gorm:"column:version"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type sessionModel struct {
	SessionID        uuid.UUID `gorm:"column:session_id;type:uuid;primaryKey"`
	AccountID        uuid.UUID `gorm:"column:account_id"`
	AccessToken      string    `gorm:"column:access_token"`
	RefreshToken     string    `gorm:"column:refresh_token"`
	AccessExpiresAt  time.Time `gorm:"column:access_expires_at"`
	RefreshExpiresAt time.Time `gorm:"column:refresh_expires_at"`
	Active           bool      `gorm:"column:active"`
	IPAddress        *string   `gorm:"column:ip_address"`
	UserAgent        string    `gorm:"column:user_agent"`
	DeviceName       string    `gorm:"column:device_name"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	LastAccessedAt   time.Time `gorm:"column:last_accessed_at"`
}

func (sessionModel) TableName() string { return "account_sessions" }

type loginAttemptModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID     *uuid.UUID `gorm:"column:account_id"`
	AttemptAt     time.Time  `gorm:"column:attempt_at"`
	IPAddress     *string    `gorm:"column:ip_address"`
	UserAgent     string     `gorm:"column:user_agent"`
	Success       bool       `gorm:"column:success"`
	FailureReason string     `gorm:"column:failure_reason"`
	Provider      string     `gorm:"column:provider"`
}

func (loginAttemptModel) TableName() string { return "login_attempts" }

type authOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (authOutboxModel) TableName() string { return "auth_outbox" }

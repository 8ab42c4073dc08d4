package application

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/clouddev-platform/auth-service/internal/ports"
)

// Dependencies lists the ports the service is wired against. Every field is
// required; NewService fails fast on a missing one so misconfiguration shows
// up at boot rather than on the first request.
type Dependencies struct {
	Accounts      ports.AccountStore
	Sessions      ports.SessionStore
	LoginAttempts ports.LoginAttemptStore
	Revocations   ports.SessionRevocationStore
	Outbox        ports.OutboxRepository
	Hasher        ports.PasswordHasher
	Tokens        ports.TokenCodec
	Logger        *slog.Logger
}

// Service implements the credential and session lifecycle: local and
// federated authentication, lockout, token refresh, and session management.
type Service struct {
	cfg           Config
	accounts      ports.AccountStore
	sessions      ports.SessionStore
	loginAttempts ports.LoginAttemptStore
	revocations   ports.SessionRevocationStore
	outbox        ports.OutboxRepository
	hasher        ports.PasswordHasher
	tokens        ports.TokenCodec
	logger        *slog.Logger

	// nowFn is swappable in tests so time-dependent transitions (lockout
	// expiry, token TTLs) can be driven deterministically.
	nowFn func() time.Time
}

func NewService(cfg Config, deps Dependencies) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, fmt.Errorf("application: account store is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("application: session store is required")
	case deps.LoginAttempts == nil:
		return nil, fmt.Errorf("application: login attempt store is required")
	case deps.Revocations == nil:
		return nil, fmt.Errorf("application: session revocation store is required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("application: outbox repository is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("application: password hasher is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("application: token codec is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("application: token TTLs must be positive")
	}
	if cfg.AccessTokenTTL > cfg.RefreshTokenTTL {
		return nil, fmt.Errorf("application: access token TTL exceeds refresh token TTL")
	}
	if cfg.MaxConcurrentSessions <= 0 {
		return nil, fmt.Errorf("application: max concurrent sessions must be positive")
	}
	if cfg.Lockout.MaxAttempts <= 0 || cfg.Lockout.Duration <= 0 {
		return nil, fmt.Errorf("application: lockout policy must be positive")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:           cfg,
		accounts:      deps.Accounts,
		sessions:      deps.Sessions,
		loginAttempts: deps.LoginAttempts,
		revocations:   deps.Revocations,
		outbox:        deps.Outbox,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		logger:        logger.With(slog.String("module", "application")),
		nowFn:         func() time.Time { return time.Now().UTC() },
	}, nil
}

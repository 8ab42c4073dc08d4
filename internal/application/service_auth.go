package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

// Register creates a local account with a hashed password and the default
// role. Uniqueness of username and email is enforced by the store.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (AccountResponse, error) {
	username := normalizeUsername(req.Username)
	email := normalizeEmail(req.Email)
	if username == "" || email == "" {
		return AccountResponse{}, fmt.Errorf("%w: username and email are required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return AccountResponse{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AccountResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	acct := domain.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Enabled:      true,
		Provider:     domain.ProviderLocal,
		Roles:        []string{"USER"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	created, err := s.accounts.Create(storeCtx, acct)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return AccountResponse{}, err
		}
		return AccountResponse{}, s.storeError("create account", err)
	}

	s.enqueueEvent(ctx, EventAccountRegistered, created.ID, map[string]any{
		"accountId": created.ID,
		"username":  created.Username,
		"provider":  created.Provider,
	})
	s.logger.Info("account registered",
		slog.String("account_id", created.ID.String()),
		slog.String("operation", "register"))
	return accountResponse(created), nil
}

// Login authenticates a local credential pair and establishes a session.
//
// The order of checks is deliberate: the lock gate runs before the password
// comparison so a locked account rejects even correct credentials, and
// account-existence, disabled, and wrong-password outcomes all collapse into
// the same generic error to close the enumeration side channel.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	login := normalizeUsername(req.Login)
	if login == "" || req.Password == "" {
		return LoginResponse{}, fmt.Errorf("%w: login and password are required", domain.ErrInvalidInput)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	acct, err := s.accounts.GetByLogin(storeCtx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.recordAttempt(ctx, nil, req.Device, domain.ProviderLocal, false, reasonAccountNotFound)
			return LoginResponse{}, domain.ErrBadCredentials
		}
		return LoginResponse{}, s.storeError("load account", err)
	}

	now := s.nowFn()
	if domain.IsLocked(acct.FailureState(), now) {
		s.recordAttempt(ctx, &acct.ID, req.Device, domain.ProviderLocal, false, reasonAccountLocked)
		s.logger.Warn("login rejected on locked account",
			slog.String("account_id", acct.ID.String()),
			slog.String("operation", "login"))
		return LoginResponse{}, domain.ErrAccountLocked
	}
	if !acct.Enabled {
		s.recordAttempt(ctx, &acct.ID, req.Device, domain.ProviderLocal, false, reasonAccountDisabled)
		return LoginResponse{}, domain.ErrBadCredentials
	}
	if acct.PasswordHash == "" {
		// Federated-only account: there is no local password to check.
		s.recordAttempt(ctx, &acct.ID, req.Device, domain.ProviderLocal, false, reasonFederatedOnly)
		return LoginResponse{}, domain.ErrBadCredentials
	}

	if err := s.hasher.Compare(acct.PasswordHash, req.Password); err != nil {
		locked := s.applyFailure(ctx, acct)
		s.recordAttempt(ctx, &acct.ID, req.Device, domain.ProviderLocal, false, reasonInvalidPassword)
		if locked {
			s.enqueueEvent(ctx, EventAccountLocked, acct.ID, map[string]any{
				"accountId": acct.ID,
				"username":  acct.Username,
			})
			s.logger.Warn("account locked after repeated failures",
				slog.String("account_id", acct.ID.String()),
				slog.String("operation", "login"))
		}
		return LoginResponse{}, domain.ErrBadCredentials
	}

	s.applySuccess(ctx, acct)
	if err := s.accounts.UpdateLastLogin(storeCtx, acct.ID, now, req.Device.IPAddress, req.Device.UserAgent); err != nil {
		s.logger.Warn("last login update failed",
			slog.String("account_id", acct.ID.String()),
			slog.String("error", err.Error()))
	}
	s.recordAttempt(ctx, &acct.ID, req.Device, domain.ProviderLocal, true, "")

	resp, err := s.establishSession(ctx, acct, req.Device)
	if err != nil {
		return LoginResponse{}, err
	}
	s.logger.Info("login succeeded",
		slog.String("account_id", acct.ID.String()),
		slog.String("session_id", resp.SessionID.String()),
		slog.String("operation", "login"))
	return resp, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; the session's access token is
// replaced in place and its activity timestamp advanced.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResponse, error) {
	claims, err := s.tokens.Verify(refreshToken, ports.TokenRefresh)
	if err != nil {
		return RefreshResponse{}, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, err := s.sessions.GetByRefreshToken(storeCtx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RefreshResponse{}, domain.ErrSessionInvalid
		}
		return RefreshResponse{}, s.storeError("load session", err)
	}

	now := s.nowFn()
	if !session.Active || session.RefreshExpired(now) || session.AccountID != claims.Subject {
		return RefreshResponse{}, domain.ErrSessionInvalid
	}
	if revoked, err := s.revocations.IsRevoked(ctx, session.ID); err != nil {
		s.logger.Warn("revocation check failed",
			slog.String("session_id", session.ID.String()),
			slog.String("error", err.Error()))
	} else if revoked {
		return RefreshResponse{}, domain.ErrSessionInvalid
	}

	acct, err := s.accounts.GetByID(storeCtx, session.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RefreshResponse{}, domain.ErrSessionInvalid
		}
		return RefreshResponse{}, s.storeError("load account", err)
	}
	if !acct.Enabled {
		return RefreshResponse{}, domain.ErrSessionInvalid
	}

	// Re-issue from current account state so role changes since login are
	// reflected in the new access token.
	accessToken, err := s.tokens.IssueAccess(accountSnapshot(acct), session.ID, s.cfg.AccessTokenTTL)
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("issue access token: %w", err)
	}
	if err := s.sessions.UpdateAccessToken(storeCtx, session.ID, accessToken, now.Add(s.cfg.AccessTokenTTL), now); err != nil {
		return RefreshResponse{}, s.storeError("update session token", err)
	}

	s.logger.Info("session refreshed",
		slog.String("account_id", acct.ID.String()),
		slog.String("session_id", session.ID.String()),
		slog.String("operation", "refresh"))
	return RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout invalidates the session holding the given refresh token. The
// operation is idempotent: an unknown or already-invalidated token is a
// successful no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, err := s.sessions.DeactivateByRefreshToken(storeCtx, refreshToken, s.nowFn())
	if err != nil {
		return s.storeError("deactivate session", err)
	}
	if session == nil {
		return nil
	}
	s.markRevoked(ctx, *session)
	s.logger.Info("logout",
		slog.String("account_id", session.AccountID.String()),
		slog.String("session_id", session.ID.String()),
		slog.String("operation", "logout"))
	return nil
}

// ChangePassword verifies the current password, installs the new hash, and
// unconditionally invalidates every session of the account. Invalidation is
// not conditional on anything: a password change means every outstanding
// credential derived from the old one is dead.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, req ChangePasswordRequest) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	acct, err := s.accounts.GetByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return s.storeError("load account", err)
	}
	if acct.PasswordHash == "" {
		return fmt.Errorf("%w: account has no local password", domain.ErrInvalidInput)
	}
	if err := s.hasher.Compare(acct.PasswordHash, req.CurrentPassword); err != nil {
		return domain.ErrBadCredentials
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.nowFn()
	if err := s.accounts.UpdatePassword(storeCtx, acct.ID, hash, now); err != nil {
		return s.storeError("update password", err)
	}

	// Invalidation is part of the operation, not a best-effort side effect:
	// success here must mean every credential derived from the old password
	// is dead. A store failure fails the call so the client retries.
	revoked, err := s.invalidateAll(ctx, acct.ID, now)
	if err != nil {
		return err
	}
	s.enqueueEvent(ctx, EventPasswordChanged, acct.ID, map[string]any{
		"accountId":       acct.ID,
		"sessionsRevoked": revoked,
	})
	s.logger.Info("password changed",
		slog.String("account_id", acct.ID.String()),
		slog.Int("sessions_revoked", revoked),
		slog.String("operation", "change_password"))
	return nil
}

// Authenticate verifies an access token and returns its claims. This is the
// entry point for the HTTP middleware guarding authenticated routes.
//
// Signature verification alone is not enough: logout, eviction, and password
// change all leave revocation markers keyed by session id, and an access
// token from a revoked session must stop working before it expires.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (ports.TokenClaims, error) {
	claims, err := s.tokens.Verify(accessToken, ports.TokenAccess)
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if claims.SessionID != uuid.Nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			s.logger.Warn("revocation check failed",
				slog.String("session_id", claims.SessionID.String()),
				slog.String("error", err.Error()))
		} else if revoked {
			return ports.TokenClaims{}, fmt.Errorf("%w: session revoked", domain.ErrUnauthorized)
		}
	}
	return claims, nil
}

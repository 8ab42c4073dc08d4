package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

// Audit failure reasons recorded in the login history. These are internal
// classifications; callers only ever see the generic credential error.
const (
	reasonAccountNotFound = "ACCOUNT_NOT_FOUND"
	reasonAccountLocked   = "ACCOUNT_LOCKED"
	reasonAccountDisabled = "ACCOUNT_DISABLED"
	reasonFederatedOnly   = "FEDERATED_ONLY"
	reasonInvalidPassword = "INVALID_PASSWORD"
)

// failureStateRetries bounds the optimistic-concurrency retry loop on the
// account failure state. Contention here means several near-simultaneous
// logins for one account; three retries is plenty.
const failureStateRetries = 3

// storeError shields the caller from infrastructure detail. Timeouts and
// cancellations become the retryable unavailability error; ErrNotFound passes
// through for the caller to interpret.
func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.Warn("store operation timed out",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %s", domain.ErrAuthUnavailable, op)
	}
	s.logger.Error("store operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// recordAttempt appends to the audit trail. Audit writes are best-effort:
// a failed write is logged, never surfaced, so audit outages cannot take
// down the login path.
func (s *Service) recordAttempt(ctx context.Context, accountID *uuid.UUID, device DeviceMetadata, provider domain.Provider, success bool, failureReason string) {
	attempt := domain.LoginAttempt{
		AccountID:     accountID,
		AttemptAt:     s.nowFn(),
		IPAddress:     device.IPAddress,
		UserAgent:     device.UserAgent,
		Success:       success,
		FailureReason: failureReason,
		Provider:      provider,
	}
	if err := s.loginAttempts.Record(ctx, attempt); err != nil {
		s.logger.Warn("login attempt audit write failed",
			slog.Bool("success", success),
			slog.String("error", err.Error()))
	}
}

// applyFailure advances the account's failure state through the lockout
// policy with a version-guarded write, re-reading and retrying on conflict.
// It reports whether this failure transitioned the account into lockout.
func (s *Service) applyFailure(ctx context.Context, acct domain.Account) bool {
	for i := 0; i < failureStateRetries; i++ {
		now := s.nowFn()
		next := s.cfg.Lockout.OnFailure(acct.FailureState(), now)
		err := s.accounts.UpdateFailureState(ctx, acct.ID, acct.Version, next, now)
		if err == nil {
			return next.LockedUntil != nil && next.LockedUntil.After(now) &&
				!domain.IsLocked(acct.FailureState(), now)
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Error("failure state update failed",
				slog.String("account_id", acct.ID.String()),
				slog.String("error", err.Error()))
			return false
		}
		fresh, readErr := s.accounts.GetByID(ctx, acct.ID)
		if readErr != nil {
			s.logger.Error("failure state re-read failed",
				slog.String("account_id", acct.ID.String()),
				slog.String("error", readErr.Error()))
			return false
		}
		acct = fresh
	}
	s.logger.Warn("failure state retries exhausted",
		slog.String("account_id", acct.ID.String()))
	return false
}

// applySuccess clears the failure counter after a successful credential
// check. A clean state skips the write entirely.
func (s *Service) applySuccess(ctx context.Context, acct domain.Account) {
	if acct.FailedLoginAttempts == 0 && acct.LockedUntil == nil {
		return
	}
	for i := 0; i < failureStateRetries; i++ {
		err := s.accounts.UpdateFailureState(ctx, acct.ID, acct.Version, s.cfg.Lockout.OnSuccess(acct.FailureState()), s.nowFn())
		if err == nil {
			return
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Error("failure state reset failed",
				slog.String("account_id", acct.ID.String()),
				slog.String("error", err.Error()))
			return
		}
		fresh, readErr := s.accounts.GetByID(ctx, acct.ID)
		if readErr != nil {
			return
		}
		if fresh.FailedLoginAttempts == 0 && fresh.LockedUntil == nil {
			return
		}
		acct = fresh
	}
}

func accountSnapshot(acct domain.Account) ports.AccountSnapshot {
	return ports.AccountSnapshot{
		ID:          acct.ID,
		Username:    acct.Username,
		Email:       acct.Email,
		Authorities: acct.Roles,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

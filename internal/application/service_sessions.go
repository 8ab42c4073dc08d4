package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

// establishSession issues a token pair and persists the session, evicting
// the oldest active session when the account is at its concurrency cap.
// The session id is assigned here so the access token can carry it.
func (s *Service) establishSession(ctx context.Context, acct domain.Account, device DeviceMetadata) (LoginResponse, error) {
	snapshot := accountSnapshot(acct)
	sessionID := uuid.New()
	accessToken, err := s.tokens.IssueAccess(snapshot, sessionID, s.cfg.AccessTokenTTL)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefresh(snapshot, s.cfg.RefreshTokenTTL)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("issue refresh token: %w", err)
	}

	now := s.nowFn()
	params := ports.SessionCreateParams{
		SessionID:        sessionID,
		AccountID:        acct.ID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		DeviceName:       device.DeviceName,
		CreatedAt:        now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, evicted, err := s.sessions.CreateWithEviction(storeCtx, params, s.cfg.MaxConcurrentSessions)
	if err != nil {
		return LoginResponse{}, s.storeError("create session", err)
	}
	if evicted != nil {
		s.markRevoked(ctx, *evicted)
		s.enqueueEvent(ctx, EventSessionEvicted, acct.ID, map[string]any{
			"accountId": acct.ID,
			"sessionId": evicted.ID,
		})
		s.logger.Info("oldest session evicted at concurrency cap",
			slog.String("account_id", acct.ID.String()),
			slog.String("evicted_session_id", evicted.ID.String()))
	}

	return LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		SessionID:    session.ID,
		Account:      accountResponse(acct),
	}, nil
}

// markRevoked writes a revocation marker aligned with the session's access
// token lifetime. Marker failures are logged, not surfaced: the session row
// is already inactive, the marker only closes the stateless-verification gap.
func (s *Service) markRevoked(ctx context.Context, session domain.Session) {
	if err := s.revocations.MarkRevoked(ctx, session.ID, session.AccessExpiresAt); err != nil {
		s.logger.Warn("revocation marker write failed",
			slog.String("session_id", session.ID.String()),
			slog.String("error", err.Error()))
	}
}

// invalidateAll deactivates every active session of the account and marks
// each revoked. A failed deactivation is surfaced, not swallowed: callers
// like ChangePassword must not report success while old sessions live on.
func (s *Service) invalidateAll(ctx context.Context, accountID uuid.UUID, at time.Time) (int, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	sessions, err := s.sessions.DeactivateAllByAccount(storeCtx, accountID, at)
	if err != nil {
		return 0, s.storeError("deactivate account sessions", err)
	}
	for _, session := range sessions {
		s.markRevoked(ctx, session)
	}
	return len(sessions), nil
}

// ListSessions returns the account's sessions for device management, plus
// the number currently active so clients can show headroom under the cap.
func (s *Service) ListSessions(ctx context.Context, accountID uuid.UUID, limit, offset int) (SessionListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	sessions, err := s.sessions.ListByAccount(storeCtx, accountID, limit, offset)
	if err != nil {
		return SessionListResponse{}, s.storeError("list sessions", err)
	}
	active, err := s.sessions.CountActiveByAccount(storeCtx, accountID)
	if err != nil {
		return SessionListResponse{}, s.storeError("count active sessions", err)
	}
	out := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionResponse(session))
	}
	return SessionListResponse{Sessions: out, ActiveCount: active}, nil
}

// RevokeSession deactivates one session by id. The session must belong to
// the calling account; revoking an already-inactive session is a no-op.
func (s *Service) RevokeSession(ctx context.Context, accountID, sessionID uuid.UUID) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, err := s.sessions.GetByID(storeCtx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return s.storeError("load session", err)
	}
	if session.AccountID != accountID {
		// Do not reveal that the session exists for someone else.
		return domain.ErrNotFound
	}
	if !session.Active {
		return nil
	}
	if err := s.sessions.DeactivateByID(storeCtx, sessionID, s.nowFn()); err != nil {
		return s.storeError("deactivate session", err)
	}
	s.markRevoked(ctx, session)
	s.logger.Info("session revoked",
		slog.String("account_id", accountID.String()),
		slog.String("session_id", sessionID.String()),
		slog.String("operation", "revoke_session"))
	return nil
}

// RevokeAllSessions logs the account out everywhere.
func (s *Service) RevokeAllSessions(ctx context.Context, accountID uuid.UUID) (int, error) {
	revoked, err := s.invalidateAll(ctx, accountID, s.nowFn())
	if err != nil {
		return 0, err
	}
	if revoked > 0 {
		s.enqueueEvent(ctx, EventSessionsRevoked, accountID, map[string]any{
			"accountId":       accountID,
			"sessionsRevoked": revoked,
		})
	}
	s.logger.Info("all sessions revoked",
		slog.String("account_id", accountID.String()),
		slog.Int("sessions_revoked", revoked),
		slog.String("operation", "revoke_all_sessions"))
	return revoked, nil
}

// ListLoginHistory returns the account's audit trail, newest first.
func (s *Service) ListLoginHistory(ctx context.Context, accountID uuid.UUID, query LoginHistoryQuery) ([]LoginHistoryEntry, error) {
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	attempts, err := s.loginAttempts.ListByAccount(storeCtx, accountID, limit, offset, query.Since, query.Success)
	if err != nil {
		return nil, s.storeError("list login history", err)
	}
	out := make([]LoginHistoryEntry, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, LoginHistoryEntry{
			AttemptAt:     attempt.AttemptAt,
			IPAddress:     attempt.IPAddress,
			UserAgent:     attempt.UserAgent,
			Success:       attempt.Success,
			FailureReason: attempt.FailureReason,
			Provider:      string(attempt.Provider),
		})
	}
	return out, nil
}

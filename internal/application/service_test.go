package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.service.Register(ctx, RegisterRequest{
		Username: "jdoe",
		Email:    "JDoe@Example.com",
		Password: "Str0ng&Secure!",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if acct.ID == uuid.Nil {
		t.Fatalf("register returned empty account id")
	}
	if acct.Email != "jdoe@example.com" {
		t.Fatalf("email not normalized: %s", acct.Email)
	}
	if acct.Provider != string(domain.ProviderLocal) {
		t.Fatalf("provider = %s, want LOCAL", acct.Provider)
	}

	res, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("login returned empty token pair")
	}
	if res.TokenType != "Bearer" {
		t.Fatalf("token type = %s, want Bearer", res.TokenType)
	}
	if res.ExpiresIn != int64(f.service.cfg.AccessTokenTTL.Seconds()) {
		t.Fatalf("expires_in = %d", res.ExpiresIn)
	}

	// Email also works as the login identifier.
	if _, err := f.service.Login(ctx, loginReq("jdoe@example.com", "Str0ng&Secure!")); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Register(ctx, RegisterRequest{Username: "jdoe", Email: "jdoe@example.com", Password: "Str0ng&Secure!"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := f.service.Register(ctx, RegisterRequest{Username: "jdoe", Email: "other@example.com", Password: "Str0ng&Secure!"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate username: got %v, want ErrConflict", err)
	}
	if _, err := f.service.Register(ctx, RegisterRequest{Username: "other", Email: "jdoe@example.com", Password: "Str0ng&Secure!"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}
	if _, err := f.service.Register(ctx, RegisterRequest{Username: "weak", Email: "weak@example.com", Password: "short"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("weak password: got %v, want ErrInvalidInput", err)
	}
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	_, unknownErr := f.service.Login(ctx, loginReq("nobody", "Str0ng&Secure!"))
	_, wrongPwErr := f.service.Login(ctx, loginReq("jdoe", "Wr0ng&Secure!!"))

	if !errors.Is(unknownErr, domain.ErrBadCredentials) {
		t.Fatalf("unknown account: got %v, want ErrBadCredentials", unknownErr)
	}
	if !errors.Is(wrongPwErr, domain.ErrBadCredentials) {
		t.Fatalf("wrong password: got %v, want ErrBadCredentials", wrongPwErr)
	}
	if unknownErr.Error() != wrongPwErr.Error() {
		t.Fatalf("credential failures must be indistinguishable: %q vs %q", unknownErr, wrongPwErr)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	for i := 0; i < 5; i++ {
		if _, err := f.service.Login(ctx, loginReq("jdoe", "Wr0ng&Secure!!")); !errors.Is(err, domain.ErrBadCredentials) {
			t.Fatalf("attempt %d: got %v, want ErrBadCredentials", i+1, err)
		}
	}

	// Correct credentials are rejected while the lock holds.
	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("locked login: got %v, want ErrAccountLocked", err)
	}

	if !f.outbox.hasEvent(EventAccountLocked) {
		t.Fatalf("expected %s event", EventAccountLocked)
	}

	attempts := f.attempts.byAccount(acctID)
	last := attempts[len(attempts)-1]
	if last.Success || last.FailureReason != "ACCOUNT_LOCKED" {
		t.Fatalf("last attempt = %+v, want ACCOUNT_LOCKED failure", last)
	}
}

func TestLockoutExpiresAndResets(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	for i := 0; i < 5; i++ {
		_, _ = f.service.Login(ctx, loginReq("jdoe", "Wr0ng&Secure!!"))
	}
	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lock before window expiry, got %v", err)
	}

	f.advance(16 * time.Minute)

	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); err != nil {
		t.Fatalf("login after lock expiry failed: %v", err)
	}

	acct := f.accounts.get(acctID)
	if acct.FailedLoginAttempts != 0 || acct.LockedUntil != nil {
		t.Fatalf("failure state not reset: attempts=%d locked=%v", acct.FailedLoginAttempts, acct.LockedUntil)
	}
}

func TestFailureCounterResetOnSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	for i := 0; i < 3; i++ {
		_, _ = f.service.Login(ctx, loginReq("jdoe", "Wr0ng&Secure!!"))
	}
	if got := f.accounts.get(acctID).FailedLoginAttempts; got != 3 {
		t.Fatalf("failed attempts = %d, want 3", got)
	}

	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if got := f.accounts.get(acctID).FailedLoginAttempts; got != 0 {
		t.Fatalf("failed attempts after success = %d, want 0", got)
	}
}

func TestFailureStateRetriesOnVersionConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	// First conditional write loses the race; the retry must land.
	f.accounts.conflictNext(1)
	if _, err := f.service.Login(ctx, loginReq("jdoe", "Wr0ng&Secure!!")); !errors.Is(err, domain.ErrBadCredentials) {
		t.Fatalf("login: got %v, want ErrBadCredentials", err)
	}
	if got := f.accounts.get(acctID).FailedLoginAttempts; got != 1 {
		t.Fatalf("failed attempts = %d, want 1 after conflict retry", got)
	}
}

func TestSessionCapEvictsOldest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	var sessionIDs []uuid.UUID
	for i := 0; i < 6; i++ {
		f.advance(time.Second)
		res, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
		if err != nil {
			t.Fatalf("login %d failed: %v", i+1, err)
		}
		sessionIDs = append(sessionIDs, res.SessionID)
	}

	active := f.sessions.activeByAccount(acctID)
	if len(active) != 5 {
		t.Fatalf("active sessions = %d, want 5", len(active))
	}

	oldest := sessionIDs[0]
	for _, s := range active {
		if s.ID == oldest {
			t.Fatalf("oldest session survived past the cap")
		}
	}
	if revoked, _ := f.revocations.IsRevoked(ctx, oldest); !revoked {
		t.Fatalf("evicted session missing revocation marker")
	}
	if !f.outbox.hasEvent(EventSessionEvicted) {
		t.Fatalf("expected %s event", EventSessionEvicted)
	}
}

func TestRefreshKeepsRefreshToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.advance(time.Minute)
	res, err := f.service.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if res.RefreshToken != login.RefreshToken {
		t.Fatalf("refresh must not rotate the refresh token")
	}
	if res.AccessToken == login.AccessToken {
		t.Fatalf("refresh must replace the access token")
	}

	session := f.sessions.get(login.SessionID)
	if session.AccessToken != res.AccessToken {
		t.Fatalf("session access token not updated in place")
	}
	if !session.LastAccessedAt.After(session.CreatedAt) {
		t.Fatalf("refresh did not advance last accessed time")
	}
}

func TestRefreshRejectsWrongTokenAndDeadSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Access token presented as refresh token.
	if _, err := f.service.Refresh(ctx, login.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("access-as-refresh: got %v, want ErrTokenInvalid", err)
	}

	if err := f.service.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := f.service.Refresh(ctx, login.RefreshToken); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("refresh after logout: got %v, want ErrSessionInvalid", err)
	}

	// Logout is idempotent.
	if err := f.service.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("repeated logout: %v", err)
	}
	if err := f.service.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("unknown-token logout: %v", err)
	}
}

func TestRefreshExpiredSessionRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.advance(f.service.cfg.RefreshTokenTTL + time.Minute)
	if _, err := f.service.Refresh(ctx, login.RefreshToken); !errors.Is(err, domain.ErrTokenInvalid) && !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("expired refresh: got %v", err)
	}
}

func TestChangePasswordInvalidatesAllSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	first, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	second, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := f.service.ChangePassword(ctx, acctID, ChangePasswordRequest{
		CurrentPassword: "Wr0ng&Secure!!",
		NewPassword:     "N3w&Secure!Pass",
	}); !errors.Is(err, domain.ErrBadCredentials) {
		t.Fatalf("wrong current password: got %v, want ErrBadCredentials", err)
	}

	if err := f.service.ChangePassword(ctx, acctID, ChangePasswordRequest{
		CurrentPassword: "Str0ng&Secure!",
		NewPassword:     "N3w&Secure!Pass",
	}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	for _, login := range []LoginResponse{first, second} {
		if _, err := f.service.Refresh(ctx, login.RefreshToken); !errors.Is(err, domain.ErrSessionInvalid) {
			t.Fatalf("refresh after password change: got %v, want ErrSessionInvalid", err)
		}
		if revoked, _ := f.revocations.IsRevoked(ctx, login.SessionID); !revoked {
			t.Fatalf("session %s missing revocation marker", login.SessionID)
		}
	}

	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); !errors.Is(err, domain.ErrBadCredentials) {
		t.Fatalf("old password still accepted")
	}
	if _, err := f.service.Login(ctx, loginReq("jdoe", "N3w&Secure!Pass")); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if !f.outbox.hasEvent(EventPasswordChanged) {
		t.Fatalf("expected %s event", EventPasswordChanged)
	}
}

func TestRevokeSessionByID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")
	otherID := f.register(t, "other", "other@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// A session can only be revoked by its owner.
	if err := f.service.RevokeSession(ctx, otherID, login.SessionID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-account revoke: got %v, want ErrNotFound", err)
	}

	if err := f.service.RevokeSession(ctx, acctID, login.SessionID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := f.service.Refresh(ctx, login.RefreshToken); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("refresh after revoke: got %v, want ErrSessionInvalid", err)
	}
	// Revoking again is a no-op.
	if err := f.service.RevokeSession(ctx, acctID, login.SessionID); err != nil {
		t.Fatalf("repeated revoke: %v", err)
	}
}

func TestFederatedProvisioning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.ResolveFederatedIdentity(ctx, FederatedLoginRequest{
		Provider: "google",
		Attributes: map[string]any{
			"sub":            "google-sub-1",
			"email":          "Jane.Doe@example.com",
			"name":           "Jane Doe",
			"given_name":     "Jane",
			"family_name":    "Doe",
			"picture":        "https://example.com/a.png",
			"email_verified": true,
		},
	})
	if err != nil {
		t.Fatalf("federated login failed: %v", err)
	}
	if res.Account.Username != "janedoe" {
		t.Fatalf("username = %s, want janedoe", res.Account.Username)
	}
	if !res.Account.EmailVerified {
		t.Fatalf("federated accounts must be email-verified")
	}
	if res.Account.Provider != string(domain.ProviderGoogle) {
		t.Fatalf("provider = %s, want GOOGLE", res.Account.Provider)
	}

	// Re-login resolves the same account rather than provisioning another.
	again, err := f.service.ResolveFederatedIdentity(ctx, FederatedLoginRequest{
		Provider: "google",
		Attributes: map[string]any{
			"sub":   "google-sub-1",
			"email": "jane.doe@example.com",
			"name":  "Jane Doe",
		},
	})
	if err != nil {
		t.Fatalf("repeat federated login failed: %v", err)
	}
	if again.Account.ID != res.Account.ID {
		t.Fatalf("repeat login provisioned a second account")
	}
}

func TestFederatedUsernameCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "janedoe", "existing@example.com", "Str0ng&Secure!")

	res, err := f.service.ResolveFederatedIdentity(ctx, FederatedLoginRequest{
		Provider: "gitlab",
		Attributes: map[string]any{
			"id":    float64(42),
			"email": "jane@example.com",
			"name":  "Jane Doe",
		},
	})
	if err != nil {
		t.Fatalf("federated login failed: %v", err)
	}
	if res.Account.Username != "janedoe1" {
		t.Fatalf("username = %s, want janedoe1", res.Account.Username)
	}
}

func TestFederatedProviderMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	_, err := f.service.ResolveFederatedIdentity(ctx, FederatedLoginRequest{
		Provider: "github",
		Attributes: map[string]any{
			"id":    float64(7),
			"login": "jdoe",
			"email": "jdoe@example.com",
		},
	})
	if !errors.Is(err, domain.ErrProviderMismatch) {
		t.Fatalf("got %v, want ErrProviderMismatch", err)
	}
}

func TestFederatedMissingEmailRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ResolveFederatedIdentity(ctx, FederatedLoginRequest{
		Provider: "github",
		Attributes: map[string]any{
			"id":    float64(7),
			"login": "ghost",
		},
	})
	if !errors.Is(err, domain.ErrMissingEmailClaim) {
		t.Fatalf("got %v, want ErrMissingEmailClaim", err)
	}
}

func TestFederatedUnknownProviderRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for _, provider := range []string{"facebook", "local", ""} {
		if _, err := f.service.ResolveFederatedIdentity(ctx, FederatedLoginRequest{
			Provider:   provider,
			Attributes: map[string]any{"email": "x@example.com", "sub": "1"},
		}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("provider %q: got %v, want ErrInvalidInput", provider, err)
		}
	}
}

func TestAuthenticateRejectsRevokedSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	claims, err := f.service.Authenticate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if claims.Subject != acctID {
		t.Fatalf("subject = %s, want %s", claims.Subject, acctID)
	}
	if claims.SessionID != login.SessionID {
		t.Fatalf("access token not bound to its session: %s vs %s", claims.SessionID, login.SessionID)
	}

	// Logout leaves the token cryptographically valid; the revocation marker
	// is what must stop it.
	if err := f.service.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := f.service.Authenticate(ctx, login.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("authenticate after logout: got %v, want ErrUnauthorized", err)
	}

	second, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if _, err := f.service.RevokeAllSessions(ctx, acctID); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if _, err := f.service.Authenticate(ctx, second.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("authenticate after revoke-all: got %v, want ErrUnauthorized", err)
	}
}

func TestChangePasswordFailsWhenInvalidationFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.sessions.failNext(context.DeadlineExceeded)
	err = f.service.ChangePassword(ctx, acctID, ChangePasswordRequest{
		CurrentPassword: "Str0ng&Secure!",
		NewPassword:     "N3w&Secure!Pass",
	})
	if !errors.Is(err, domain.ErrAuthUnavailable) {
		t.Fatalf("change password with dead session store: got %v, want ErrAuthUnavailable", err)
	}
	// The old session survived the failed invalidation; the caller must know
	// the operation did not complete.
	if session := f.sessions.get(login.SessionID); !session.Active {
		t.Fatalf("session deactivated despite reported failure")
	}
}

func TestRevokeAllSessionsPropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")
	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	f.sessions.failNext(context.DeadlineExceeded)
	if _, err := f.service.RevokeAllSessions(ctx, acctID); !errors.Is(err, domain.ErrAuthUnavailable) {
		t.Fatalf("revoke all with dead session store: got %v, want ErrAuthUnavailable", err)
	}
}

func TestListSessionsReportsActiveCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	first, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	list, err := f.service.ListSessions(ctx, acctID, 20, 0)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(list.Sessions) != 2 || list.ActiveCount != 2 {
		t.Fatalf("sessions=%d active=%d, want 2/2", len(list.Sessions), list.ActiveCount)
	}

	if err := f.service.RevokeSession(ctx, acctID, first.SessionID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	list, err = f.service.ListSessions(ctx, acctID, 20, 0)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if list.ActiveCount != 1 {
		t.Fatalf("active count after revoke = %d, want 1", list.ActiveCount)
	}
}

func TestGetAccountAndUpdateProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	acct, err := f.service.GetAccount(ctx, acctID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if acct.Username != "jdoe" {
		t.Fatalf("username = %s, want jdoe", acct.Username)
	}

	// An unknown id reads as unauthorized, not as not-found.
	if _, err := f.service.GetAccount(ctx, uuid.New()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("unknown account: got %v, want ErrUnauthorized", err)
	}

	updated, err := f.service.UpdateProfile(ctx, acctID, UpdateProfileRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		AvatarURL: "https://example.com/a.png",
	})
	if err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if updated.FirstName != "Jane" || updated.LastName != "Doe" {
		t.Fatalf("profile not applied: %+v", updated)
	}

	acct, err = f.service.GetAccount(ctx, acctID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if acct.AvatarURL != "https://example.com/a.png" {
		t.Fatalf("avatar not persisted: %s", acct.AvatarURL)
	}
}

func TestStoreWritesAreDeadlineBounded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acctID := f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	login, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!"))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := f.service.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if err := f.service.RevokeSession(ctx, acctID, login.SessionID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := f.service.ChangePassword(ctx, acctID, ChangePasswordRequest{
		CurrentPassword: "Str0ng&Secure!",
		NewPassword:     "N3w&Secure!Pass",
	}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if ops := f.accounts.unbounded(); len(ops) != 0 {
		t.Fatalf("account writes without a deadline: %v", ops)
	}
	if ops := f.sessions.unbounded(); len(ops) != 0 {
		t.Fatalf("session writes without a deadline: %v", ops)
	}
}

func TestStoreTimeoutSurfacesUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "jdoe", "jdoe@example.com", "Str0ng&Secure!")

	f.accounts.failNext(context.DeadlineExceeded)
	if _, err := f.service.Login(ctx, loginReq("jdoe", "Str0ng&Secure!")); !errors.Is(err, domain.ErrAuthUnavailable) {
		t.Fatalf("store timeout: got %v, want ErrAuthUnavailable", err)
	}
}

// --- fixture ---

type fixture struct {
	service     *Service
	accounts    *fakeAccounts
	sessions    *fakeSessions
	attempts    *fakeAttempts
	revocations *fakeRevocations
	outbox      *fakeOutbox

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		accounts:    newFakeAccounts(),
		sessions:    newFakeSessions(),
		attempts:    &fakeAttempts{},
		revocations: &fakeRevocations{revoked: map[uuid.UUID]bool{}},
		outbox:      &fakeOutbox{},
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	tokens := &fakeTokens{issued: map[string]ports.TokenClaims{}, clock: f.clock}
	svc, err := NewService(DefaultConfig(), Dependencies{
		Accounts:      f.accounts,
		Sessions:      f.sessions,
		LoginAttempts: f.attempts,
		Revocations:   f.revocations,
		Outbox:        f.outbox,
		Hasher:        fakeHasher{},
		Tokens:        tokens,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.nowFn = f.clock
	f.service = svc
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) register(t *testing.T, username, email, password string) uuid.UUID {
	t.Helper()
	res, err := f.service.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return res.ID
}

func loginReq(login, password string) LoginRequest {
	return LoginRequest{
		Login:    login,
		Password: password,
		Device:   DeviceMetadata{IPAddress: "127.0.0.1", UserAgent: "unit-test"},
	}
}

// --- fakes ---

// ctxHasDeadline reports whether a store call arrived with a bounded context.
func ctxHasDeadline(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
}

type fakeAccounts struct {
	mu              sync.Mutex
	byID            map[uuid.UUID]domain.Account
	conflict        int
	nextErr         error
	unboundedWrites []string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[uuid.UUID]domain.Account{}}
}

func (f *fakeAccounts) get(id uuid.UUID) domain.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeAccounts) conflictNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflict = n
}

func (f *fakeAccounts) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr = err
}

func (f *fakeAccounts) takeErr() error {
	err := f.nextErr
	f.nextErr = nil
	return err
}

func (f *fakeAccounts) unbounded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unboundedWrites...)
}

func (f *fakeAccounts) noteWrite(ctx context.Context, op string) {
	if !ctxHasDeadline(ctx) {
		f.unboundedWrites = append(f.unboundedWrites, op)
	}
}

func (f *fakeAccounts) Create(_ context.Context, acct domain.Account) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Username == acct.Username || strings.EqualFold(existing.Email, acct.Email) {
			return domain.Account{}, domain.ErrConflict
		}
	}
	f.byID[acct.ID] = acct
	return acct, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return domain.Account{}, err
	}
	acct, ok := f.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return acct, nil
}

func (f *fakeAccounts) GetByLogin(_ context.Context, usernameOrEmail string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return domain.Account{}, err
	}
	for _, acct := range f.byID {
		if acct.Username == usernameOrEmail || strings.EqualFold(acct.Email, usernameOrEmail) {
			return acct, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.byID {
		if strings.EqualFold(acct.Email, email) {
			return acct, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccounts) GetByProvider(_ context.Context, provider domain.Provider, providerID string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.byID {
		if acct.Provider == provider && acct.ProviderID == providerID {
			return acct, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccounts) ExistsByUsername(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.byID {
		if acct.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, id uuid.UUID, update ports.ProfileUpdate, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	acct.FirstName = update.FirstName
	acct.LastName = update.LastName
	acct.AvatarURL = update.AvatarURL
	if update.ProviderID != "" {
		acct.ProviderID = update.ProviderID
	}
	acct.UpdatedAt = at
	f.byID[id] = acct
	return nil
}

func (f *fakeAccounts) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteWrite(ctx, "UpdatePassword")
	acct, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	acct.PasswordHash = passwordHash
	acct.UpdatedAt = at
	f.byID[id] = acct
	return nil
}

func (f *fakeAccounts) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time, ip, userAgent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteWrite(ctx, "UpdateLastLogin")
	acct, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	acct.LastLoginAt = &at
	acct.LastLoginIP = ip
	acct.LastLoginUserAgent = userAgent
	f.byID[id] = acct
	return nil
}

func (f *fakeAccounts) UpdateFailureState(_ context.Context, id uuid.UUID, expectedVersion int64, st domain.FailureState, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if f.conflict > 0 {
		f.conflict--
		return domain.ErrVersionConflict
	}
	if acct.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	acct.FailedLoginAttempts = st.FailedAttempts
	acct.LockedUntil = st.LockedUntil
	acct.Version++
	acct.UpdatedAt = at
	f.byID[id] = acct
	return nil
}

type fakeSessions struct {
	mu              sync.Mutex
	byID            map[uuid.UUID]domain.Session
	nextErr         error
	unboundedWrites []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[uuid.UUID]domain.Session{}}
}

func (f *fakeSessions) get(id uuid.UUID) domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeSessions) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr = err
}

func (f *fakeSessions) takeErr() error {
	err := f.nextErr
	f.nextErr = nil
	return err
}

func (f *fakeSessions) unbounded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unboundedWrites...)
}

func (f *fakeSessions) noteWrite(ctx context.Context, op string) {
	if !ctxHasDeadline(ctx) {
		f.unboundedWrites = append(f.unboundedWrites, op)
	}
}

func (f *fakeSessions) activeByAccount(accountID uuid.UUID) []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.byID {
		if s.AccountID == accountID && s.Active {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSessions) CreateWithEviction(_ context.Context, params ports.SessionCreateParams, maxActive int) (domain.Session, *domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var evicted *domain.Session
	var active []domain.Session
	for _, s := range f.byID {
		if s.AccountID == params.AccountID && s.Active {
			active = append(active, s)
		}
	}
	if maxActive > 0 && len(active) >= maxActive {
		oldest := active[0]
		for _, s := range active[1:] {
			if s.CreatedAt.Before(oldest.CreatedAt) {
				oldest = s
			}
		}
		oldest.Active = false
		f.byID[oldest.ID] = oldest
		evicted = &oldest
	}

	sessionID := params.SessionID
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}
	session := domain.Session{
		ID:               sessionID,
		AccountID:        params.AccountID,
		AccessToken:      params.AccessToken,
		RefreshToken:     params.RefreshToken,
		AccessExpiresAt:  params.AccessExpiresAt,
		RefreshExpiresAt: params.RefreshExpiresAt,
		Active:           true,
		IPAddress:        params.IPAddress,
		UserAgent:        params.UserAgent,
		DeviceName:       params.DeviceName,
		CreatedAt:        params.CreatedAt,
		LastAccessedAt:   params.CreatedAt,
	}
	f.byID[session.ID] = session
	return session, evicted, nil
}

func (f *fakeSessions) GetByRefreshToken(_ context.Context, refreshToken string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.RefreshToken == refreshToken {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.byID {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) CountActiveByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	return int64(len(f.activeByAccount(accountID))), nil
}

func (f *fakeSessions) UpdateAccessToken(ctx context.Context, id uuid.UUID, accessToken string, accessExpiresAt, touchedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteWrite(ctx, "UpdateAccessToken")
	s, ok := f.byID[id]
	if !ok || !s.Active {
		return domain.ErrNotFound
	}
	s.AccessToken = accessToken
	s.AccessExpiresAt = accessExpiresAt
	s.LastAccessedAt = touchedAt
	f.byID[id] = s
	return nil
}

func (f *fakeSessions) DeactivateByRefreshToken(_ context.Context, refreshToken string, at time.Time) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.RefreshToken == refreshToken && s.Active {
			s.Active = false
			s.LastAccessedAt = at
			f.byID[s.ID] = s
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) DeactivateByID(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteWrite(ctx, "DeactivateByID")
	s, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Active = false
	s.LastAccessedAt = at
	f.byID[id] = s
	return nil
}

func (f *fakeSessions) DeactivateAllByAccount(ctx context.Context, accountID uuid.UUID, at time.Time) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteWrite(ctx, "DeactivateAllByAccount")
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var out []domain.Session
	for _, s := range f.byID {
		if s.AccountID == accountID && s.Active {
			s.Active = false
			s.LastAccessedAt = at
			f.byID[s.ID] = s
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (f *fakeAttempts) Record(_ context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeAttempts) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int, since *time.Time, success *bool) ([]domain.LoginAttempt, error) {
	return f.byAccount(accountID), nil
}

func (f *fakeAttempts) byAccount(accountID uuid.UUID) []domain.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LoginAttempt
	for _, a := range f.attempts {
		if a.AccountID != nil && *a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func (f *fakeRevocations) MarkRevoked(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sessionID] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sessionID], nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) hasEvent(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hash$" + password, nil }

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hash$"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeTokens struct {
	mu     sync.Mutex
	seq    int
	issued map[string]ports.TokenClaims
	clock  func() time.Time
}

func (f *fakeTokens) issue(snapshot ports.AccountSnapshot, tokenType ports.TokenType, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := f.clock()
	raw := fmt.Sprintf("%s-%d-%s", tokenType, f.seq, snapshot.ID)
	f.issued[raw] = ports.TokenClaims{
		Subject:     snapshot.ID,
		Type:        tokenType,
		SessionID:   sessionID,
		Username:    snapshot.Username,
		Email:       snapshot.Email,
		Authorities: snapshot.Authorities,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	return raw, nil
}

func (f *fakeTokens) IssueAccess(snapshot ports.AccountSnapshot, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	return f.issue(snapshot, ports.TokenAccess, sessionID, ttl)
}

func (f *fakeTokens) IssueRefresh(snapshot ports.AccountSnapshot, ttl time.Duration) (string, error) {
	return f.issue(snapshot, ports.TokenRefresh, uuid.Nil, ttl)
}

func (f *fakeTokens) Verify(raw string, want ports.TokenType) (ports.TokenClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.issued[raw]
	if !ok || claims.Type != want {
		return ports.TokenClaims{}, domain.ErrTokenInvalid
	}
	if !claims.ExpiresAt.After(f.clock()) {
		return ports.TokenClaims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}

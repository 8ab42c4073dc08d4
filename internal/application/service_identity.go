package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

// profileExtractor maps a provider's raw userinfo attribute map onto the
// normalized profile. Extractors are pure; they never touch the store.
type profileExtractor func(attrs map[string]any) domain.ProviderProfile

// providerExtractors is the closed extraction table. Adding a provider means
// adding its entry here and its constant to the domain enum, nothing else.
var providerExtractors = map[domain.Provider]profileExtractor{
	domain.ProviderGoogle: googleProfile,
	domain.ProviderGithub: githubProfile,
	domain.ProviderGitlab: gitlabProfile,
}

// ResolveFederatedIdentity maps an externally-verified provider identity onto
// a local account and establishes a session for it. Resolution order is
// provider id first, then email; a new account is provisioned when neither
// matches. An email owned by a different provider is rejected outright.
func (s *Service) ResolveFederatedIdentity(ctx context.Context, req FederatedLoginRequest) (LoginResponse, error) {
	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		return LoginResponse{}, err
	}
	if provider == domain.ProviderLocal {
		return LoginResponse{}, fmt.Errorf("%w: local is not a federated provider", domain.ErrInvalidInput)
	}
	extract, ok := providerExtractors[provider]
	if !ok {
		return LoginResponse{}, fmt.Errorf("%w: no extractor for provider %s", domain.ErrInvalidInput, provider)
	}

	profile := extract(req.Attributes)
	profile.Email = normalizeEmail(profile.Email)
	if profile.Email == "" {
		return LoginResponse{}, domain.ErrMissingEmailClaim
	}
	if profile.ProviderID == "" {
		return LoginResponse{}, fmt.Errorf("%w: provider returned no subject id", domain.ErrInvalidInput)
	}

	acct, err := s.resolveAccount(ctx, provider, profile)
	if err != nil {
		s.recordAttempt(ctx, nil, req.Device, provider, false, failureReasonFor(err))
		return LoginResponse{}, err
	}

	now := s.nowFn()
	if domain.IsLocked(acct.FailureState(), now) {
		s.recordAttempt(ctx, &acct.ID, req.Device, provider, false, reasonAccountLocked)
		return LoginResponse{}, domain.ErrAccountLocked
	}
	if !acct.Enabled {
		s.recordAttempt(ctx, &acct.ID, req.Device, provider, false, reasonAccountDisabled)
		return LoginResponse{}, domain.ErrBadCredentials
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.accounts.UpdateLastLogin(storeCtx, acct.ID, now, req.Device.IPAddress, req.Device.UserAgent); err != nil {
		s.logger.Warn("last login update failed",
			slog.String("account_id", acct.ID.String()),
			slog.String("error", err.Error()))
	}
	s.recordAttempt(ctx, &acct.ID, req.Device, provider, true, "")

	resp, err := s.establishSession(ctx, acct, req.Device)
	if err != nil {
		return LoginResponse{}, err
	}
	s.logger.Info("federated login succeeded",
		slog.String("account_id", acct.ID.String()),
		slog.String("provider", string(provider)),
		slog.String("operation", "federated_login"))
	return resp, nil
}

// resolveAccount finds or provisions the account for a federated identity.
func (s *Service) resolveAccount(ctx context.Context, provider domain.Provider, profile domain.ProviderProfile) (domain.Account, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	acct, err := s.accounts.GetByProvider(storeCtx, provider, profile.ProviderID)
	if err == nil {
		return s.refreshProfile(ctx, acct, profile), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, s.storeError("load account by provider", err)
	}

	acct, err = s.accounts.GetByEmail(storeCtx, profile.Email)
	if err == nil {
		if acct.Provider != provider {
			s.logger.Warn("federated login rejected on provider mismatch",
				slog.String("account_id", acct.ID.String()),
				slog.String("account_provider", string(acct.Provider)),
				slog.String("asserted_provider", string(provider)))
			return domain.Account{}, domain.ErrProviderMismatch
		}
		return s.refreshProfile(ctx, acct, profile), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, s.storeError("load account by email", err)
	}

	return s.provisionAccount(ctx, provider, profile)
}

// refreshProfile mirrors the provider's current profile fields onto the
// account on every re-login. Provider id is backfilled only when empty.
func (s *Service) refreshProfile(ctx context.Context, acct domain.Account, profile domain.ProviderProfile) domain.Account {
	update := ports.ProfileUpdate{
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		AvatarURL: profile.AvatarURL,
	}
	if acct.ProviderID == "" {
		update.ProviderID = profile.ProviderID
		acct.ProviderID = profile.ProviderID
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.accounts.UpdateProfile(storeCtx, acct.ID, update, s.nowFn()); err != nil {
		s.logger.Warn("profile refresh failed",
			slog.String("account_id", acct.ID.String()),
			slog.String("error", err.Error()))
		return acct
	}
	acct.FirstName = profile.FirstName
	acct.LastName = profile.LastName
	acct.AvatarURL = profile.AvatarURL
	return acct
}

// provisionAccount creates a federated account with a generated unique
// username, no local password, and verified email.
func (s *Service) provisionAccount(ctx context.Context, provider domain.Provider, profile domain.ProviderProfile) (domain.Account, error) {
	username, err := s.generateUsername(ctx, profile)
	if err != nil {
		return domain.Account{}, err
	}

	now := s.nowFn()
	acct := domain.Account{
		ID:        uuid.New(),
		Username:  username,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		AvatarURL: profile.AvatarURL,
		Enabled:   true,
		// The provider already verified ownership of this address.
		EmailVerified: true,
		Provider:      provider,
		ProviderID:    profile.ProviderID,
		Roles:         []string{"USER"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	created, err := s.accounts.Create(storeCtx, acct)
	if err != nil {
		return domain.Account{}, s.storeError("provision federated account", err)
	}
	s.enqueueEvent(ctx, EventAccountRegistered, created.ID, map[string]any{
		"accountId": created.ID,
		"username":  created.Username,
		"provider":  created.Provider,
	})
	s.logger.Info("federated account provisioned",
		slog.String("account_id", created.ID.String()),
		slog.String("provider", string(provider)))
	return created, nil
}

// generateUsername derives a username from the display name, falling back to
// the email local part, and appends a numeric suffix until it is unique.
func (s *Service) generateUsername(ctx context.Context, profile domain.ProviderProfile) (string, error) {
	base := strings.ToLower(strings.Join(strings.Fields(profile.DisplayName), ""))
	if base == "" {
		base = strings.ToLower(strings.SplitN(profile.Email, "@", 2)[0])
	}
	if base == "" {
		base = "user"
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	candidate := base
	for suffix := 1; ; suffix++ {
		exists, err := s.accounts.ExistsByUsername(storeCtx, candidate)
		if err != nil {
			return "", s.storeError("check username", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(suffix)
	}
}

func failureReasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderMismatch):
		return "PROVIDER_MISMATCH"
	case errors.Is(err, domain.ErrMissingEmailClaim):
		return "MISSING_EMAIL_CLAIM"
	default:
		return "FEDERATED_RESOLUTION_FAILED"
	}
}

func googleProfile(attrs map[string]any) domain.ProviderProfile {
	return domain.ProviderProfile{
		ProviderID:    attrString(attrs, "sub"),
		Email:         attrString(attrs, "email"),
		DisplayName:   attrString(attrs, "name"),
		FirstName:     attrString(attrs, "given_name"),
		LastName:      attrString(attrs, "family_name"),
		AvatarURL:     attrString(attrs, "picture"),
		EmailVerified: attrBool(attrs, "email_verified"),
	}
}

func githubProfile(attrs map[string]any) domain.ProviderProfile {
	display := attrString(attrs, "name")
	if display == "" {
		display = attrString(attrs, "login")
	}
	return domain.ProviderProfile{
		ProviderID:    attrID(attrs, "id"),
		Email:         attrString(attrs, "email"),
		DisplayName:   display,
		AvatarURL:     attrString(attrs, "avatar_url"),
		EmailVerified: true,
	}
}

func gitlabProfile(attrs map[string]any) domain.ProviderProfile {
	return domain.ProviderProfile{
		ProviderID:    attrID(attrs, "id"),
		Email:         attrString(attrs, "email"),
		DisplayName:   attrString(attrs, "name"),
		AvatarURL:     attrString(attrs, "avatar_url"),
		EmailVerified: true,
	}
}

func attrString(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

func attrBool(attrs map[string]any, key string) bool {
	switch v := attrs[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// attrID tolerates the numeric subject ids some providers return; JSON
// decoding hands them over as float64.
func attrID(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

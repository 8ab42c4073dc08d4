package postgres

import (
	"strings"

	"github.com/clouddev-platform/auth-service/internal/domain"
)

func toDomainAccount(row accountModel) domain.Account {
	return domain.Account{
		ID:                  row.AccountID,
		Username:            row.Username,
		Email:               row.Email,
		PasswordHash:        deref(row.PasswordHash),
		FirstName:           row.FirstName,
		LastName:            row.LastName,
		AvatarURL:           row.AvatarURL,
		Enabled:             row.Enabled,
		EmailVerified:       row.EmailVerified,
		FailedLoginAttempts: row.FailedLoginAttempts,
		LockedUntil:         row.LockedUntil,
		Provider:            domain.Provider(row.Provider),
		ProviderID:          deref(row.ProviderID),
		Roles:               splitRoles(row.Roles),
		LastLoginAt:         row.LastLoginAt,
		LastLoginIP:         deref(row.LastLoginIP),
		LastLoginUserAgent:  row.LastLoginUserAgent,
		Version:             row.Version,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func toAccountModel(acct domain.Account) accountModel {
	return accountModel{
		AccountID:           acct.ID,
		Username:            acct.Username,
		Email:               acct.Email,
		PasswordHash:        nullableString(acct.PasswordHash),
		FirstName:           acct.FirstName,
		LastName:            acct.LastName,
		AvatarURL:           acct.AvatarURL,
		Enabled:             acct.Enabled,
		EmailVerified:       acct.EmailVerified,
		FailedLoginAttempts: acct.FailedLoginAttempts,
		LockedUntil:         acct.LockedUntil,
		Provider:            string(acct.Provider),
		ProviderID:          nullableString(acct.ProviderID),
		Roles:               joinRoles(acct.Roles),
		LastLoginAt:         acct.LastLoginAt,
		LastLoginIP:         nullableString(acct.LastLoginIP),
		LastLoginUserAgent:  acct.LastLoginUserAgent,
		Version:             acct.Version,
		CreatedAt:           acct.CreatedAt,
		UpdatedAt:           acct.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	return domain.Session{
		ID:               row.SessionID,
		AccountID:        row.AccountID,
		AccessToken:      row.AccessToken,
		RefreshToken:     row.RefreshToken,
		AccessExpiresAt:  row.AccessExpiresAt,
		RefreshExpiresAt: row.RefreshExpiresAt,
		Active:           row.Active,
		IPAddress:        deref(row.IPAddress),
		UserAgent:        row.UserAgent,
		DeviceName:       row.DeviceName,
		CreatedAt:        row.CreatedAt,
		LastAccessedAt:   row.LastAccessedAt,
	}
}

func toDomainLoginAttempt(row loginAttemptModel) domain.LoginAttempt {
	return domain.LoginAttempt{
		ID:            row.ID,
		AccountID:     row.AccountID,
		AttemptAt:     row.AttemptAt,
		IPAddress:     deref(row.IPAddress),
		UserAgent:     row.UserAgent,
		Success:       row.Success,
		FailureReason: row.FailureReason,
		Provider:      domain.Provider(row.Provider),
	}
}

// Roles are persisted as a comma-joined list; role names never contain commas.
func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

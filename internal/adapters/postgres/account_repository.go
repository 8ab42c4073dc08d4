package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) Create(ctx context.Context, acct domain.Account) (domain.Account, error) {
	rec := toAccountModel(acct)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, domain.ErrConflict
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

// GetByLogin resolves a login identifier that may be a username or an email.
// Email comparison is case-insensitive; usernames match exactly.
func (r *accountRepository) GetByLogin(ctx context.Context, usernameOrEmail string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).
		Where("username = ? OR LOWER(email) = LOWER(?)", usernameOrEmail, usernameOrEmail).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByProvider(ctx context.Context, provider domain.Provider, providerID string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).
		Where("provider = ?", string(provider)).
		Where("provider_id = ?", providerID).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update ports.ProfileUpdate, at time.Time) error {
	fields := map[string]any{
		"first_name": update.FirstName,
		"last_name":  update.LastName,
		"avatar_url": update.AvatarURL,
		"updated_at": at,
	}
	if update.ProviderID != "" {
		fields["provider_id"] = update.ProviderID
	}
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", id).
		Updates(map[string]any{
			"password_hash": passwordHash,
			"updated_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time, ip, userAgent string) error {
	return r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", id).
		Updates(map[string]any{
			"last_login_at":         at,
			"last_login_ip":         nullableString(ip),
			"last_login_user_agent": userAgent,
			"updated_at":            at,
		}).Error
}

// UpdateFailureState is a compare-and-swap on the version column. A zero
// RowsAffected means another writer advanced the row first; the caller
// re-reads and retries.
func (r *accountRepository) UpdateFailureState(ctx context.Context, id uuid.UUID, expectedVersion int64, st domain.FailureState, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", id).
		Where("version = ?", expectedVersion).
		Updates(map[string]any{
			"failed_login_attempts": st.FailedAttempts,
			"locked_until":          st.LockedUntil,
			"version":               gorm.Expr("version + 1"),
			"updated_at":            at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&accountModel{}).Where("account_id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}

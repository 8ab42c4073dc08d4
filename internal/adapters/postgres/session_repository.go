package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clouddev-platform/auth-service/internal/domain"
	"github.com/clouddev-platform/auth-service/internal/ports"
)

type sessionRepository struct {
	db *gorm.DB
}

// CreateWithEviction inserts a session and enforces the per-account active
// session cap inside one transaction. The account's active rows are locked
// for the duration so two racing logins cannot both squeeze under the cap;
// when at capacity the oldest active session is deactivated first.
func (r *sessionRepository) CreateWithEviction(ctx context.Context, params ports.SessionCreateParams, maxActive int) (domain.Session, *domain.Session, error) {
	var (
		created domain.Session
		evicted *domain.Session
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []sessionModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", params.AccountID).
			Where("active = ?", true).
			Order("created_at ASC").
			Find(&active).Error; err != nil {
			return err
		}

		if maxActive > 0 && len(active) >= maxActive {
			oldest := active[0]
			if err := tx.Model(&sessionModel{}).
				Where("session_id = ?", oldest.SessionID).
				Updates(map[string]any{
					"active":           false,
					"last_accessed_at": params.CreatedAt,
				}).Error; err != nil {
				return err
			}
			out := toDomainSession(oldest)
			out.Active = false
			evicted = &out
		}

		sessionID := params.SessionID
		if sessionID == uuid.Nil {
			sessionID = uuid.New()
		}
		rec := sessionModel{
			SessionID:        sessionID,
			AccountID:        params.AccountID,
			AccessToken:      params.AccessToken,
			RefreshToken:     params.RefreshToken,
			AccessExpiresAt:  params.AccessExpiresAt,
			RefreshExpiresAt: params.RefreshExpiresAt,
			Active:           true,
			IPAddress:        nullableString(params.IPAddress),
			UserAgent:        params.UserAgent,
			DeviceName:       params.DeviceName,
			CreatedAt:        params.CreatedAt,
			LastAccessedAt:   params.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		created = toDomainSession(rec)
		return nil
	})
	if err != nil {
		return domain.Session{}, nil, err
	}
	return created, evicted, nil
}

func (r *sessionRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	var rec sessionModel
	if err := r.db.WithContext(ctx).
		Where("refresh_token = ?", refreshToken).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Session, error) {
	var rec sessionModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	var rows []sessionModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSession(row))
	}
	return result, nil
}

func (r *sessionRepository) CountActiveByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("account_id = ?", accountID).
		Where("active = ?", true).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sessionRepository) UpdateAccessToken(ctx context.Context, id uuid.UUID, accessToken string, accessExpiresAt, touchedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", id).
		Where("active = ?", true).
		Updates(map[string]any{
			"access_token":      accessToken,
			"access_expires_at": accessExpiresAt,
			"last_accessed_at":  touchedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeactivateByRefreshToken returns the session it deactivated, or nil when
// no active session holds the token. The nil return is what makes logout
// idempotent at the application layer.
func (r *sessionRepository) DeactivateByRefreshToken(ctx context.Context, refreshToken string, at time.Time) (*domain.Session, error) {
	var out *domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec sessionModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("refresh_token = ?", refreshToken).
			Where("active = ?", true).
			Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Model(&sessionModel{}).
			Where("session_id = ?", rec.SessionID).
			Updates(map[string]any{
				"active":           false,
				"last_accessed_at": at,
			}).Error; err != nil {
			return err
		}
		session := toDomainSession(rec)
		session.Active = false
		out = &session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepository) DeactivateByID(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", id).
		Where("active = ?", true).
		Updates(map[string]any{
			"active":           false,
			"last_accessed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&sessionModel{}).Where("session_id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *sessionRepository) DeactivateAllByAccount(ctx context.Context, accountID uuid.UUID, at time.Time) ([]domain.Session, error) {
	var deactivated []domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []sessionModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", accountID).
			Where("active = ?", true).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Model(&sessionModel{}).
			Where("account_id = ?", accountID).
			Where("active = ?", true).
			Updates(map[string]any{
				"active":           false,
				"last_accessed_at": at,
			}).Error; err != nil {
			return err
		}
		deactivated = make([]domain.Session, 0, len(rows))
		for _, row := range rows {
			session := toDomainSession(row)
			session.Active = false
			deactivated = append(deactivated, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deactivated, nil
}

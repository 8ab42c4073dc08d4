package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clouddev-platform/auth-service/internal/domain"
)

type loginAttemptRepository struct {
	db *gorm.DB
}

func (r *loginAttemptRepository) Record(ctx context.Context, attempt domain.LoginAttempt) error {
	rec := loginAttemptModel{
		AccountID:     attempt.AccountID,
		AttemptAt:     attempt.AttemptAt,
		IPAddress:     nullableString(attempt.IPAddress),
		UserAgent:     attempt.UserAgent,
		Success:       attempt.Success,
		FailureReason: attempt.FailureReason,
		Provider:      string(attempt.Provider),
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *loginAttemptRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int, since *time.Time, success *bool) ([]domain.LoginAttempt, error) {
	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if since != nil {
		query = query.Where("attempt_at >= ?", *since)
	}
	if success != nil {
		query = query.Where("success = ?", *success)
	}

	var rows []loginAttemptModel
	if err := query.Order("attempt_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainLoginAttempt(row))
	}
	return result, nil
}

package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clouddev-platform/auth-service/internal/ports"
)

type Repositories struct {
	Accounts      ports.AccountStore
	Sessions      ports.SessionStore
	LoginAttempts ports.LoginAttemptStore
	Outbox        ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:      &accountRepository{db: db},
		Sessions:      &sessionRepository{db: db},
		LoginAttempts: &loginAttemptRepository{db: db},
		Outbox:        &outboxRepository{db: db},
	}
}

// Relies on gorm's TranslateError to normalize driver-specific constraint
// errors.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

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

// GetAccount returns the account behind an authenticated token. A vanished
// account reads as unauthorized rather than not-found: the caller presented
// a token for it, so "it does not exist" would leak more than it helps.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (AccountResponse, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	acct, err := s.accounts.GetByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccountResponse{}, domain.ErrUnauthorized
		}
		return AccountResponse{}, s.storeError("load account", err)
	}
	if !acct.Enabled {
		return AccountResponse{}, domain.ErrUnauthorized
	}
	return accountResponse(acct), nil
}

// UpdateProfile applies self-service profile edits. Provider id is never
// touched here; only federated re-login backfills it.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, req UpdateProfileRequest) (AccountResponse, error) {
	if len(req.FirstName) > 100 || len(req.LastName) > 100 {
		return AccountResponse{}, fmt.Errorf("%w: name too long", domain.ErrInvalidInput)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	acct, err := s.accounts.GetByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccountResponse{}, domain.ErrUnauthorized
		}
		return AccountResponse{}, s.storeError("load account", err)
	}

	now := s.nowFn()
	update := ports.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarURL: req.AvatarURL,
	}
	if err := s.accounts.UpdateProfile(storeCtx, acct.ID, update, now); err != nil {
		return AccountResponse{}, s.storeError("update profile", err)
	}

	acct.FirstName = req.FirstName
	acct.LastName = req.LastName
	acct.AvatarURL = req.AvatarURL
	acct.UpdatedAt = now
	s.logger.Info("profile updated",
		slog.String("account_id", acct.ID.String()),
		slog.String("operation", "update_profile"))
	return accountResponse(acct), nil
}

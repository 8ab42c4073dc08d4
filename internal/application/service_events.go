package application

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/ports"
)

// Security event types published through the transactional outbox.
// Partition key is always the account id so per-account ordering holds.
const (
	EventAccountRegistered = "auth.account.registered"
	EventAccountLocked     = "auth.account.locked"
	EventPasswordChanged   = "auth.password.changed"
	EventSessionEvicted    = "auth.session.evicted"
	EventSessionsRevoked   = "auth.sessions.revoked"
)

// enqueueEvent stores a security event for asynchronous publication.
// Event delivery is best-effort relative to the triggering operation: an
// enqueue failure is logged and the operation still succeeds.
func (s *Service) enqueueEvent(ctx context.Context, eventType string, accountID uuid.UUID, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("event payload marshal failed",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}
	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: accountID.String(),
		Payload:      body,
		OccurredAt:   s.nowFn(),
	}
	if err := s.outbox.Enqueue(ctx, event); err != nil {
		s.logger.Warn("event enqueue failed",
			slog.String("event_type", eventType),
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/application"
)

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_sessions")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	list, err := h.service.ListSessions(r.Context(), claims.Subject, limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_sessions", err)
		return
	}
	writeSuccess(w, http.StatusOK, list)
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_session")
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid session_id")
		return
	}

	if err := h.service.RevokeSession(r.Context(), claims.Subject, sessionID); err != nil {
		writeMappedError(r.Context(), w, "revoke_session", err)
		return
	}
	writeMessage(w, http.StatusOK, "Session revoked successfully")
}

func (h *Handler) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_all_sessions")
		return
	}

	revoked, err := h.service.RevokeAllSessions(r.Context(), claims.Subject)
	if err != nil {
		writeMappedError(r.Context(), w, "revoke_all_sessions", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revoked": revoked})
}

func (h *Handler) loginHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "login_history")
		return
	}

	query := application.LoginHistoryQuery{
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 20),
		Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
	}
	if days := parseIntDefault(r.URL.Query().Get("days"), 0); days > 0 {
		since := time.Now().UTC().AddDate(0, 0, -days)
		query.Since = &since
	}
	switch r.URL.Query().Get("outcome") {
	case "success":
		yes := true
		query.Success = &yes
	case "failure":
		no := false
		query.Success = &no
	}

	items, err := h.service.ListLoginHistory(r.Context(), claims.Subject, query)
	if err != nil {
		writeMappedError(r.Context(), w, "login_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"attempts": items})
}

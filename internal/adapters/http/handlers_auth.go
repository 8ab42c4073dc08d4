package http

import (
	"net/http"

	"github.com/clouddev-platform/auth-service/internal/application"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}

	res, err := h.service.Register(r.Context(), application.RegisterRequest{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login      string `json:"login"`
		Password   string `json:"password"`
		DeviceName string `json:"deviceName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.service.Login(r.Context(), application.LoginRequest{
		Login:    req.Login,
		Password: req.Password,
		Device:   deviceFromRequest(r, req.DeviceName),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// federatedLogin accepts the identity assertion produced by the OAuth2 edge
// after it has completed the provider handshake. The token exchange itself
// happens upstream; this endpoint only resolves the asserted identity.
func (h *Handler) federatedLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider   string         `json:"provider"`
		Attributes map[string]any `json:"attributes"`
		DeviceName string         `json:"deviceName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "federated_login", err)
		return
	}

	res, err := h.service.ResolveFederatedIdentity(r.Context(), application.FederatedLoginRequest{
		Provider:   req.Provider,
		Attributes: req.Attributes,
		Device:     deviceFromRequest(r, req.DeviceName),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "federated_login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "refresh", err)
		return
	}

	res, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "logout", err)
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "change_password")
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "change_password", err)
		return
	}

	err := h.service.ChangePassword(r.Context(), claims.Subject, application.ChangePasswordRequest{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully. Please log in again.")
}

func deviceFromRequest(r *http.Request, deviceName string) application.DeviceMetadata {
	return application.DeviceMetadata{
		IPAddress:  readIP(r),
		UserAgent:  r.UserAgent(),
		DeviceName: deviceName,
	}
}

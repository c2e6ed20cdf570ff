package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/clients"
)

type Handler struct {
	keys      *KeyManager
	clientSvc *clients.Service
	validate  *validator.Validate
}

func NewHandler(keys *KeyManager, clientSvc *clients.Service) *Handler {
	return &Handler{
		keys:      keys,
		clientSvc: clientSvc,
		validate:  validator.New(),
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Login exchanges tenant credentials for a bearer API key. Inactive,
// revoked and expired tenants are rejected here with the same checks the
// key middleware applies on every later request.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("username and password required"))
		return
	}

	client, err := h.clientSvc.GetByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("getting client by username", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if client == nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if err := ComparePassword(client.PasswordHash, req.Password); err != nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if !client.IsActive || client.IsKeyRevoked {
		api.HandleError(w, api.ErrClientInactive)
		return
	}
	if client.Expired(time.Now().UTC()) {
		api.HandleError(w, api.ErrPlanExpired)
		return
	}

	token, err := h.keys.Issue(client.ID.String())
	if err != nil {
		slog.Error("issuing API key", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	resp := map[string]any{
		"token":     token,
		"client_id": client.ID,
		"name":      client.Name,
	}
	if client.Plan != nil {
		resp["plan"] = client.Plan.Name
	}
	if client.PlanExpiry != nil {
		resp["plan_expiry"] = client.PlanExpiry.Format(time.RFC3339)
	}

	api.JSON(w, http.StatusOK, resp)
}

// ChangePassword lets an authenticated tenant rotate its own password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	client := ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("both old and new passwords are required"))
		return
	}

	if req.OldPassword == req.NewPassword {
		api.HandleError(w, api.NewBadRequestError("new password must be different from old password"))
		return
	}

	if !IsStrongPassword(req.NewPassword) {
		api.HandleError(w, api.NewBadRequestError(
			"password must be at least 8 characters long and include an uppercase letter, a lowercase letter, a digit, and a special character"))
		return
	}

	if err := ComparePassword(client.PasswordHash, req.OldPassword); err != nil {
		api.HandleError(w, &api.AppError{Code: http.StatusUnauthorized, Message: "old password is incorrect"})
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if err := h.clientSvc.UpdatePassword(r.Context(), client.ID, hash); err != nil {
		slog.Error("updating password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "password updated successfully")
}

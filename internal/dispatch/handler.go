package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

type Handler struct {
	coordinator *Coordinator
	tiers       *TierResolver
	log         messagelog.Repository
	validate    *validator.Validate
}

func NewHandler(coordinator *Coordinator, tiers *TierResolver, log messagelog.Repository) *Handler {
	return &Handler{
		coordinator: coordinator,
		tiers:       tiers,
		log:         log,
		validate:    validator.New(),
	}
}

// Send handles POST /messages/send. Malformed requests are rejected
// before any gate or provider call; batch-level quota denials return a
// single 403; otherwise the response enumerates every recipient's fate
// with 200 when errors is empty and 207 when it is not.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(validationMessage(&req, err)))
		return
	}

	outcome, err := h.coordinator.Dispatch(r.Context(), client, &req)
	if err != nil {
		var quotaErr *QuotaError
		if errors.As(err, &quotaErr) {
			api.HandleError(w, api.NewForbiddenError(quotaErr.Message))
			return
		}
		slog.Error("dispatching batch", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONRaw(w, outcome.HTTPStatus(), outcome)
}

// validationMessage keeps the original field-oriented error strings
// instead of validator's struct-path phrasing.
func validationMessage(req *SendRequest, err error) string {
	if len(req.To) == 0 {
		return "Missing 'to' or 'type' field"
	}
	switch req.Type {
	case "":
		return "Missing 'to' or 'type' field"
	case KindText, KindTemplate:
	default:
		return "Invalid 'type', must be 'text' or 'template'"
	}
	if req.Type == KindText && req.Text == "" {
		return "Missing 'text' field"
	}
	if req.Type == KindTemplate && req.Name == "" {
		return "Missing 'name' field for template"
	}
	return err.Error()
}

// Tier handles GET /messages/tier: the resolved 24-hour unique-recipient
// ceiling for the account.
func (h *Handler) Tier(w http.ResponseWriter, r *http.Request) {
	tier := h.tiers.Resolve(r.Context())

	resp := map[string]any{"tier": tier.Name}
	if tier.Unlimited {
		resp["limit"] = "unlimited"
	} else {
		resp["limit"] = tier.Cap
	}
	api.JSON(w, http.StatusOK, resp)
}

// Recipients handles GET /messages/recipients: every number this tenant
// has exchanged messages with.
func (h *Handler) Recipients(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	nums, err := h.log.DistinctRecipients(r.Context(), client.ID)
	if err != nil {
		slog.Error("listing recipients", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if nums == nil {
		nums = []string{}
	}

	api.JSON(w, http.StatusOK, map[string]any{"registered_numbers": nums})
}

// Log handles GET /messages/log with optional status, direction and
// recipient filters, newest first.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	filter := messagelog.ListFilter{
		Status:    r.URL.Query().Get("status"),
		Direction: r.URL.Query().Get("direction"),
		Recipient: r.URL.Query().Get("recipient"),
	}

	entries, err := h.log.List(r.Context(), client.ID, filter)
	if err != nil {
		slog.Error("listing message log", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if entries == nil {
		entries = []*messagelog.Entry{}
	}

	api.JSON(w, http.StatusOK, map[string]any{"messages": entries})
}

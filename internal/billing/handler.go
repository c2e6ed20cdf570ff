package billing

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/clients"
)

type Handler struct {
	repo      Repository
	clientSvc *clients.Service
}

func NewHandler(repo Repository, clientSvc *clients.Service) *Handler {
	return &Handler{repo: repo, clientSvc: clientSvc}
}

// Subscription returns the authenticated client's plan, cycle usage and
// renewal state.
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	resp := map[string]any{
		"client_id":   client.ID,
		"name":        client.Name,
		"usage_count": client.UsageCount,
		"remaining":   client.Remaining(),
		"plan_expiry": client.PlanExpiry,
		"auto_renew":  client.AutoRenew,
		"is_active":   client.IsActive,
	}
	if client.Plan != nil {
		resp["plan"] = client.Plan
	}
	api.JSON(w, http.StatusOK, resp)
}

// BillingHistory lists the client's billing records, newest first.
func (h *Handler) BillingHistory(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	records, err := h.repo.ListRecordsByClient(r.Context(), client.ID)
	if err != nil {
		slog.Error("listing billing records", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if records == nil {
		records = []*BillingRecord{}
	}
	api.JSON(w, http.StatusOK, map[string]any{"records": records})
}

type createRequestInput struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

// CreateRequest files a subscription change request for later operator
// processing. One pending request per type per client.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var input createRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if !ValidRequestType(input.Type) {
		api.HandleError(w, api.NewBadRequestError(fmt.Sprintf("unknown request type %q", input.Type)))
		return
	}
	if input.Type == RequestChangePlan {
		if input.Details == "" {
			api.HandleError(w, api.NewBadRequestError("change_plan requires the target plan name in details"))
			return
		}
		plan, err := h.clientSvc.GetPlanByName(r.Context(), input.Details)
		if err != nil {
			slog.Error("looking up plan", "plan", input.Details, "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if plan == nil {
			api.HandleError(w, api.NewBadRequestError(fmt.Sprintf("unknown plan %q", input.Details)))
			return
		}
	}

	pending, err := h.repo.HasPendingRequest(r.Context(), client.ID, input.Type)
	if err != nil {
		slog.Error("checking pending request", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if pending {
		api.HandleError(w, api.NewConflictError("a request of this type is already pending"))
		return
	}

	req := &SubscriptionRequest{
		ID:          uuid.New(),
		ClientID:    client.ID,
		RequestType: input.Type,
		Status:      StatusPending,
		Details:     input.Details,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.repo.CreateRequest(r.Context(), req); err != nil {
		slog.Error("creating subscription request", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusCreated, req)
}

// ListRequests returns the client's own subscription requests.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	requests, err := h.repo.ListRequestsByClient(r.Context(), client.ID)
	if err != nil {
		slog.Error("listing subscription requests", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if requests == nil {
		requests = []*SubscriptionRequest{}
	}
	api.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// Plans lists the available subscription plans. Public: prospective
// tenants browse plans before onboarding.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.clientSvc.ListPlans(r.Context())
	if err != nil {
		slog.Error("listing plans", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if plans == nil {
		plans = []*clients.Plan{}
	}
	api.JSON(w, http.StatusOK, map[string]any{"plans": plans})
}

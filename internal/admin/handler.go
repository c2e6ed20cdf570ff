package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/billing"
	"github.com/relaygate-platform/relaygate/internal/clients"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
	"github.com/relaygate-platform/relaygate/internal/provider"
)

// renewalDays is the cycle length granted by an approved renewal or
// plan change.
const renewalDays = 30

// AccountReader reports provider account health for the operator view.
type AccountReader interface {
	AccountStatus(ctx context.Context) (*provider.AccountStatus, error)
}

type Handler struct {
	clientSvc *clients.Service
	billing   billing.Repository
	log       messagelog.Repository
	keys      *auth.KeyManager
	account   AccountReader
	validate  *validator.Validate
}

func NewHandler(clientSvc *clients.Service, billingRepo billing.Repository, log messagelog.Repository, keys *auth.KeyManager, account AccountReader) *Handler {
	return &Handler{
		clientSvc: clientSvc,
		billing:   billingRepo,
		log:       log,
		keys:      keys,
		account:   account,
		validate:  validator.New(),
	}
}

type onboardRequest struct {
	Name      string `json:"name" validate:"required"`
	Username  string `json:"username" validate:"required,min=3"`
	Password  string `json:"password" validate:"required"`
	Plan      string `json:"plan" validate:"required"`
	ValidDays int    `json:"valid_days"`
}

// Onboard registers a tenant on a plan and returns its first API key.
func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if !auth.IsStrongPassword(req.Password) {
		api.HandleError(w, api.NewBadRequestError("password must be at least 8 characters with upper, lower, digit and symbol"))
		return
	}
	if req.ValidDays <= 0 {
		req.ValidDays = renewalDays
	}

	exists, err := h.clientSvc.ExistsByNameOrUsername(r.Context(), req.Name, req.Username)
	if err != nil {
		slog.Error("checking client uniqueness", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.NewConflictError("client name or username already taken"))
		return
	}

	plan, err := h.clientSvc.GetPlanByName(r.Context(), req.Plan)
	if err != nil {
		slog.Error("looking up plan", "plan", req.Plan, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if plan == nil {
		api.HandleError(w, api.NewBadRequestError(fmt.Sprintf("unknown plan %q", req.Plan)))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	client, err := h.clientSvc.Onboard(r.Context(), req.Name, req.Username, hash, plan, req.ValidDays)
	if err != nil {
		slog.Error("onboarding client", "username", req.Username, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	key, err := h.keys.Issue(client.ID.String())
	if err != nil {
		slog.Error("issuing API key", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("client onboarded", "client_id", client.ID, "plan", plan.Name)
	api.JSON(w, http.StatusCreated, map[string]any{
		"client":  client,
		"api_key": key,
	})
}

type createPlanRequest struct {
	Name        string `json:"name" validate:"required"`
	MonthlyCap  *int   `json:"monthly_cap" validate:"omitempty,gt=0"`
	PriceCents  int    `json:"price_cents" validate:"gte=0"`
	Description string `json:"description"`
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	existing, err := h.clientSvc.GetPlanByName(r.Context(), req.Name)
	if err != nil {
		slog.Error("looking up plan", "plan", req.Name, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if existing != nil {
		api.HandleError(w, api.NewConflictError("plan already exists"))
		return
	}

	plan, err := h.clientSvc.CreatePlan(r.Context(), req.Name, req.MonthlyCap, req.PriceCents, req.Description)
	if err != nil {
		slog.Error("creating plan", "plan", req.Name, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.clientSvc.List(r.Context())
	if err != nil {
		slog.Error("listing clients", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if list == nil {
		list = []*clients.Client{}
	}
	api.JSON(w, http.StatusOK, map[string]any{"clients": list})
}

type updateClientRequest struct {
	IsActive  *bool   `json:"is_active"`
	AutoRenew *bool   `json:"auto_renew"`
	Plan      *string `json:"plan"`
}

// UpdateClient patches activation, auto-renew and plan assignment.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFromPath(w, r)
	if !ok {
		return
	}

	var req updateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}

	if req.IsActive != nil {
		client.IsActive = *req.IsActive
	}
	if req.AutoRenew != nil {
		client.AutoRenew = *req.AutoRenew
	}
	if req.Plan != nil {
		plan, err := h.clientSvc.GetPlanByName(r.Context(), *req.Plan)
		if err != nil {
			slog.Error("looking up plan", "plan", *req.Plan, "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if plan == nil {
			api.HandleError(w, api.NewBadRequestError(fmt.Sprintf("unknown plan %q", *req.Plan)))
			return
		}
		client.PlanID = &plan.ID
		client.Plan = plan
	}

	if err := h.clientSvc.Update(r.Context(), client); err != nil {
		slog.Error("updating client", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, client)
}

func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFromPath(w, r)
	if !ok {
		return
	}
	if err := h.clientSvc.Delete(r.Context(), client.ID); err != nil {
		slog.Error("deleting client", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	slog.Info("client deleted", "client_id", client.ID)
	api.JSONMessage(w, http.StatusOK, "client deleted")
}

// RevokeKey invalidates all keys issued to a client until restored.
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	h.setKeyRevoked(w, r, true)
}

// RestoreKey re-enables a revoked client's keys.
func (h *Handler) RestoreKey(w http.ResponseWriter, r *http.Request) {
	h.setKeyRevoked(w, r, false)
}

func (h *Handler) setKeyRevoked(w http.ResponseWriter, r *http.Request, revoked bool) {
	client, ok := h.clientFromPath(w, r)
	if !ok {
		return
	}
	client.IsKeyRevoked = revoked
	if err := h.clientSvc.Update(r.Context(), client); err != nil {
		slog.Error("updating client key state", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if revoked {
		api.JSONMessage(w, http.StatusOK, "key revoked")
		return
	}

	key, err := h.keys.Issue(client.ID.String())
	if err != nil {
		slog.Error("issuing API key", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"api_key": key})
}

// Analytics returns fleet-wide counts for the operator dashboard.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	total, active, expired, err := h.clientSvc.Stats(r.Context())
	if err != nil {
		slog.Error("computing client stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	sent24h, err := h.log.CountSentSince(r.Context(), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		slog.Error("counting sent messages", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"clients": map[string]int64{
			"total":   total,
			"active":  active,
			"expired": expired,
		},
		"messages": map[string]int64{
			"sent_24h": sent24h,
		},
	})
}

// ProviderStatus surfaces upstream account health: display number,
// quality rating and current messaging tier.
func (h *Handler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.account.AccountStatus(r.Context())
	if err != nil {
		slog.Error("fetching provider account status", "error", err)
		api.HandleError(w, api.NewBadRequestError("provider account status unavailable"))
		return
	}
	api.JSON(w, http.StatusOK, status)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.billing.ListAllRequests(r.Context())
	if err != nil {
		slog.Error("listing subscription requests", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if requests == nil {
		requests = []*billing.SubscriptionRequest{}
	}
	api.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

type processRequestInput struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

// ProcessRequest resolves a pending subscription request. Approving a
// renewal or plan change bills the closed cycle, extends expiry by 30
// days and resets the usage counter.
func (h *Handler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request id"))
		return
	}

	var input processRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	req, err := h.billing.GetRequestByID(r.Context(), id)
	if err != nil {
		slog.Error("loading subscription request", "request_id", id, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if req == nil {
		api.HandleError(w, api.NewNotFoundError("subscription request not found"))
		return
	}
	if req.Status != billing.StatusPending {
		api.HandleError(w, api.NewConflictError("request already processed"))
		return
	}

	if input.Action == "reject" {
		if err := h.billing.UpdateRequestStatus(r.Context(), req.ID, billing.StatusRejected, time.Now().UTC()); err != nil {
			slog.Error("rejecting subscription request", "request_id", id, "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		api.JSONMessage(w, http.StatusOK, "request rejected")
		return
	}

	client, err := h.clientSvc.GetByID(r.Context(), req.ClientID)
	if err != nil {
		slog.Error("loading client", "client_id", req.ClientID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if client == nil {
		api.HandleError(w, api.NewNotFoundError("client not found"))
		return
	}

	if err := h.approveRequest(r.Context(), req, client); err != nil {
		slog.Error("approving subscription request", "request_id", id, "type", req.RequestType, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	slog.Info("subscription request approved", "request_id", id, "type", req.RequestType, "client_id", client.ID)
	api.JSONMessage(w, http.StatusOK, "request approved")
}

func (h *Handler) approveRequest(ctx context.Context, req *billing.SubscriptionRequest, client *clients.Client) error {
	now := time.Now().UTC()

	switch req.RequestType {
	case billing.RequestRenew:
		if err := h.billCycle(ctx, client, now); err != nil {
			return err
		}
		if _, err := h.clientSvc.Renew(ctx, client, renewalDays); err != nil {
			return err
		}

	case billing.RequestCancel:
		client.IsActive = false
		client.AutoRenew = false
		if err := h.clientSvc.Update(ctx, client); err != nil {
			return err
		}

	case billing.RequestChangePlan:
		plan, err := h.clientSvc.GetPlanByName(ctx, req.Details)
		if err != nil {
			return err
		}
		if plan == nil {
			return fmt.Errorf("unknown plan %q", req.Details)
		}
		if err := h.billCycle(ctx, client, now); err != nil {
			return err
		}
		client.PlanID = &plan.ID
		client.Plan = plan
		if err := h.clientSvc.Update(ctx, client); err != nil {
			return err
		}
		if _, err := h.clientSvc.Renew(ctx, client, renewalDays); err != nil {
			return err
		}

	case billing.RequestDeleteAccount:
		if err := h.clientSvc.Delete(ctx, client.ID); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown request type %q", req.RequestType)
	}

	return h.billing.UpdateRequestStatus(ctx, req.ID, billing.StatusCompleted, now)
}

// billCycle writes a billing record closing the client's current cycle.
func (h *Handler) billCycle(ctx context.Context, client *clients.Client, now time.Time) error {
	amount := 0
	if client.Plan != nil {
		amount = client.Plan.PriceCents
	}
	return h.billing.CreateRecord(ctx, &billing.BillingRecord{
		ID:            uuid.New(),
		ClientID:      client.ID,
		AmountCents:   amount,
		MessageCount:  client.UsageCount,
		BillingPeriod: now.Format("2006-01"),
		GeneratedAt:   now,
	})
}

func (h *Handler) clientFromPath(w http.ResponseWriter, r *http.Request) (*clients.Client, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid client id"))
		return nil, false
	}
	client, err := h.clientSvc.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("loading client", "client_id", id, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return nil, false
	}
	if client == nil {
		api.HandleError(w, api.NewNotFoundError("client not found"))
		return nil, false
	}
	return client, true
}

package conversations

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

// conversationPageSize bounds one conversation page.
const conversationPageSize = 50

type Handler struct {
	log messagelog.Repository
}

func NewHandler(log messagelog.Repository) *Handler {
	return &Handler{log: log}
}

// List returns the distinct phone numbers this tenant has exchanged
// messages with.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	nums, err := h.log.DistinctRecipients(r.Context(), client.ID)
	if err != nil {
		slog.Error("listing conversations", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if nums == nil {
		nums = []string{}
	}

	api.JSON(w, http.StatusOK, nums)
}

// CanSendText reports whether the free-form window for a number is still
// open, with a preview of the last sent message.
func (h *Handler) CanSendText(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	last, err := h.log.LastSentTo(r.Context(), client.ID, number)
	if err != nil {
		slog.Error("checking text window", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	resp := map[string]any{
		"can_send_text":     false,
		"last_message":      "No messages yet",
		"last_message_time": nil,
	}

	if last != nil {
		resp["can_send_text"] = time.Since(last.SentAt) < 24*time.Hour
		preview := last.TemplateName
		if len(preview) > 50 {
			preview = preview[:50] + "..."
		}
		resp["last_message"] = preview
		resp["last_message_time"] = last.SentAt.Format(time.RFC3339)
	}

	api.JSON(w, http.StatusOK, resp)
}

// Messages returns one conversation's log entries, oldest first.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	client := auth.ClientFromContext(r.Context())
	if client == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	entries, err := h.log.ConversationMessages(r.Context(), client.ID, number, conversationPageSize)
	if err != nil {
		slog.Error("fetching conversation messages", "client_id", client.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if entries == nil {
		entries = []*messagelog.Entry{}
	}

	api.JSON(w, http.StatusOK, map[string]any{"messages": entries})
}

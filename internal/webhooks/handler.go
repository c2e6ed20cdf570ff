package webhooks

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/events"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

const maxPayloadBytes = 1 << 20

type Handler struct {
	verifyToken string
	log         messagelog.Repository
	repo        Repository
	publisher   *events.Publisher
}

func NewHandler(verifyToken string, log messagelog.Repository, repo Repository, publisher *events.Publisher) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		log:         log,
		repo:        repo,
		publisher:   publisher,
	}
}

// Verify answers the provider's subscription handshake by echoing the
// challenge when the verify token matches.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Receive ingests provider notifications: inbound messages append to
// the log (opening the sender's conversation window) and delivery
// receipts stamp the matching outbound entry. The raw payload is kept
// in webhook_events. Always answers 200 so the provider does not
// retry; failures are logged and recoverable from the stored payload.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	var note notification
	if err := json.Unmarshal(body, &note); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	for _, entry := range note.Entry {
		for _, ch := range entry.Changes {
			h.storeEvent(r, ch.Field, body, now)
			for _, msg := range ch.Value.Messages {
				h.handleInbound(r, msg, now)
			}
			for _, st := range ch.Value.Statuses {
				h.handleStatus(r, st, now)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) storeEvent(r *http.Request, field string, payload []byte, now time.Time) {
	if field == "" {
		field = "unknown"
	}
	err := h.repo.InsertEvent(r.Context(), &WebhookEvent{
		ID:         uuid.New(),
		EventType:  field,
		Payload:    payload,
		ReceivedAt: now,
	})
	if err != nil {
		slog.Error("storing webhook event", "field", field, "error", err)
	}
}

func (h *Handler) handleInbound(r *http.Request, msg inboundMessage, now time.Time) {
	if msg.From == "" {
		return
	}

	clientID, err := h.log.LastClientFor(r.Context(), msg.From)
	if err != nil {
		slog.Error("attributing inbound message", "sender", msg.From, "error", err)
		return
	}
	if clientID == nil {
		slog.Warn("inbound message from unknown conversation", "sender", msg.From)
		return
	}

	receivedAt := parseTimestamp(msg.Timestamp, now)
	content := msg.Text.Body
	entry := &messagelog.Entry{
		ID:           uuid.New(),
		ClientID:     *clientID,
		Recipient:    msg.From,
		TemplateName: messagelog.FreeFormName,
		Content:      &content,
		Status:       messagelog.StatusReceived,
		SentAt:       receivedAt,
		Direction:    messagelog.DirectionInbound,
	}
	if msg.ID != "" {
		entry.ProviderMessageID = &msg.ID
	}
	if err := h.log.Insert(r.Context(), entry); err != nil {
		slog.Error("logging inbound message", "sender", msg.From, "error", err)
		return
	}

	h.publisher.InboundReceived(r.Context(), events.InboundReceived{
		ClientID:   *clientID,
		Sender:     msg.From,
		ReceivedAt: receivedAt,
	})
}

func (h *Handler) handleStatus(r *http.Request, st statusUpdate, now time.Time) {
	if st.ID == "" || st.Status != "delivered" {
		return
	}

	deliveredAt := parseTimestamp(st.Timestamp, now)
	matched, err := h.log.SetDeliveryTime(r.Context(), st.ID, deliveredAt)
	if err != nil {
		slog.Error("recording delivery receipt", "provider_message_id", st.ID, "error", err)
		return
	}
	if !matched {
		slog.Warn("delivery receipt for unknown message", "provider_message_id", st.ID)
		return
	}

	h.publisher.DeliveryStatusChanged(r.Context(), events.DeliveryStatusChanged{
		ProviderMessageID: st.ID,
		EventType:         st.Status,
		Timestamp:         deliveredAt,
	})
}

// parseTimestamp converts the provider's unix-seconds string, falling
// back to the receive time.
func parseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}

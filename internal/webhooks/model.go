package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is a stored provider notification, kept raw for audit
// and replay.
type WebhookEvent struct {
	ID         uuid.UUID       `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// notification mirrors the provider's webhook envelope. Only the
// fields the gateway acts on are decoded; the rest stays in the raw
// payload row.
type notification struct {
	Entry []struct {
		Changes []struct {
			Field string `json:"field"`
			Value change `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type change struct {
	Messages []inboundMessage `json:"messages"`
	Statuses []statusUpdate   `json:"statuses"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

type statusUpdate struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

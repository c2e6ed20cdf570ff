package events

import (
	"time"

	"github.com/google/uuid"
)

// Stream names.
const (
	StreamMessages = "RELAYGATE_MESSAGES"
	StreamEvents   = "RELAYGATE_EVENTS"
)

// Subject constants.
const (
	SubjectMessageSent     = "relaygate.messages.sent"
	SubjectMessageFailed   = "relaygate.messages.failed"
	SubjectInboundReceived = "relaygate.messages.inbound"
	SubjectDeliveryStatus  = "relaygate.events.delivery"
)

// MessageSent is published after a dispatch cycle commits, once per
// delivered recipient.
type MessageSent struct {
	ClientID          uuid.UUID `json:"client_id"`
	Recipient         string    `json:"recipient"`
	TemplateName      string    `json:"template_name"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// MessageFailed records a delivery attempt the provider rejected. Failed
// attempts are not persisted to the log, so the event stream is the only
// durable trace of them.
type MessageFailed struct {
	ClientID  uuid.UUID `json:"client_id"`
	Recipient string    `json:"recipient"`
	Status    int       `json:"status"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// InboundReceived is published when the provider webhook delivers an
// inbound message from a recipient.
type InboundReceived struct {
	ClientID   uuid.UUID `json:"client_id"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
}

// DeliveryStatusChanged is published when a delivery receipt arrives for
// a previously sent message.
type DeliveryStatusChanged struct {
	ProviderMessageID string    `json:"provider_message_id"`
	EventType         string    `json:"event_type"`
	Timestamp         time.Time `json:"timestamp"`
}

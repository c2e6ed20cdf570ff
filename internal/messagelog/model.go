package messagelog

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a logged message relative to the gateway.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Delivery status values.
const (
	StatusSent     = "sent"
	StatusReceived = "received"
	StatusFailed   = "failed"
)

// FreeFormName is the template_name value that marks a free-form text
// send. Any other value is a provider-approved template name.
const FreeFormName = "text"

// Entry is one row of the append-only message log. Entries are created
// by the dispatch engine (outbound) and the provider webhook (inbound,
// delivery receipts); they are never mutated afterwards except for
// DeliveryTime, set when the provider confirms delivery.
type Entry struct {
	ID                uuid.UUID  `json:"id"`
	ClientID          uuid.UUID  `json:"-"`
	Recipient         string     `json:"recipient_number"`
	TemplateName      string     `json:"template_name"`
	Content           *string    `json:"content"`
	Status            string     `json:"status"`
	SentAt            time.Time  `json:"sent_at"`
	DeliveryTime      *time.Time `json:"delivery_time"`
	ErrorMessage      *string    `json:"error_message"`
	Direction         string     `json:"direction"`
	ProviderMessageID *string    `json:"-"`
}

// HourlyCount is one bucket of the dashboard's trailing-24h histogram.
type HourlyCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// Totals summarizes a client's lifetime message volume.
type Totals struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

// ListFilter narrows the log listing; zero values mean no filter.
type ListFilter struct {
	Status    string
	Direction string
	Recipient string
}

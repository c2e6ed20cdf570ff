package billing

import (
	"time"

	"github.com/google/uuid"
)

// BillingRecord is one billed cycle for a client. Records are written
// when a renewal or plan change is processed and never mutated.
type BillingRecord struct {
	ID            uuid.UUID `json:"id"`
	ClientID      uuid.UUID `json:"client_id"`
	AmountCents   int       `json:"amount_cents"`
	MessageCount  int       `json:"message_count"`
	BillingPeriod string    `json:"billing_period"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Subscription request types.
const (
	RequestRenew         = "renew"
	RequestCancel        = "cancel"
	RequestChangePlan    = "change_plan"
	RequestDeleteAccount = "delete_account"
)

// Subscription request statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// ValidRequestType reports whether t is an accepted request type.
func ValidRequestType(t string) bool {
	switch t {
	case RequestRenew, RequestCancel, RequestChangePlan, RequestDeleteAccount:
		return true
	}
	return false
}

// SubscriptionRequest is a tenant-initiated change processed by an
// operator through the admin surface.
type SubscriptionRequest struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	RequestType string     `json:"type"`
	Status      string     `json:"status"`
	Details     string     `json:"details,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

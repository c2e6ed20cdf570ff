package clients

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a subscription tier. MonthlyCap nil means unlimited template
// sends. Plans are referenced by clients and billing records, never
// mutated once billed against.
type Plan struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	MonthlyCap  *int      `json:"monthly_cap"`
	PriceCents  int       `json:"price_cents"`
	Description string    `json:"description,omitempty"`
}

// Client is an onboarded tenant sending messages through the gateway.
type Client struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	UsageCount   int        `json:"usage_count"`
	CreatedAt    time.Time  `json:"created_at"`
	IsActive     bool       `json:"is_active"`
	IsKeyRevoked bool       `json:"is_key_revoked"`
	PlanExpiry   *time.Time `json:"plan_expiry"`
	AutoRenew    bool       `json:"auto_renew"`
	PlanID       *uuid.UUID `json:"plan_id"`
	Plan         *Plan      `json:"plan,omitempty"`
}

// Expired reports whether the client's plan expiry has passed at the
// given instant. A client without an expiry never expires.
func (c *Client) Expired(now time.Time) bool {
	return c.PlanExpiry != nil && c.PlanExpiry.Before(now)
}

// Remaining returns the number of template sends left this cycle, or
// nil for unlimited plans.
func (c *Client) Remaining() *int {
	if c.Plan == nil || c.Plan.MonthlyCap == nil {
		return nil
	}
	left := *c.Plan.MonthlyCap - c.UsageCount
	if left < 0 {
		left = 0
	}
	return &left
}

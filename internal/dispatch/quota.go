package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/relaygate-platform/relaygate/internal/clients"
	"github.com/relaygate-platform/relaygate/internal/metrics"
)

// Denial reasons surfaced to callers and metrics.
const (
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonMonthlyCapExceeded  = "monthly_cap_exceeded"
	ReasonTierLimitExceeded   = "tier_limit_exceeded"
	ReasonNoActiveWindow      = "no_active_window"
)

// QuotaError denies an entire batch before any delivery attempt.
type QuotaError struct {
	Reason  string
	Message string
}

func (e *QuotaError) Error() string {
	return e.Message
}

// Denial is a single recipient rejected by the per-recipient window
// gate; the rest of the batch proceeds.
type Denial struct {
	Recipient string
	Reason    string
	Message   string
}

// Evaluation is the admit/deny decision for one batch, computed before
// any network delivery attempt.
type Evaluation struct {
	Admitted []string
	Denied   []Denial
	Tier     Tier
	Now      time.Time
}

// Evaluator combines the monthly cap, the 24h unique-recipient tier cap
// and conversation-window eligibility into per-batch decisions.
type Evaluator struct {
	tiers   *TierResolver
	windows *WindowTracker
}

func NewEvaluator(tiers *TierResolver, windows *WindowTracker) *Evaluator {
	return &Evaluator{tiers: tiers, windows: windows}
}

// Evaluate runs the gates in order, short-circuiting at the tenant level
// before any per-recipient check. A *QuotaError denies the whole batch;
// window denials land in Evaluation.Denied with the remaining recipients
// admitted.
func (e *Evaluator) Evaluate(ctx context.Context, client *clients.Client, recipients []string, kind Kind, now time.Time) (*Evaluation, error) {
	// Gate 1: tenant expiry.
	if client.Expired(now) {
		metrics.DispatchDenialsTotal.WithLabelValues(ReasonSubscriptionExpired).Add(float64(len(recipients)))
		return nil, &QuotaError{
			Reason:  ReasonSubscriptionExpired,
			Message: "Subscription expired. Renew to continue messaging.",
		}
	}

	// Gate 2: monthly cap. Free-form text never consumes monthly quota.
	// A nil or zero cap means unlimited.
	if kind == KindTemplate && client.Plan != nil && client.Plan.MonthlyCap != nil && *client.Plan.MonthlyCap > 0 {
		if client.UsageCount+len(recipients) > *client.Plan.MonthlyCap {
			metrics.DispatchDenialsTotal.WithLabelValues(ReasonMonthlyCapExceeded).Add(float64(len(recipients)))
			return nil, &QuotaError{
				Reason:  ReasonMonthlyCapExceeded,
				Message: "Monthly usage cap exceeded.",
			}
		}
	}

	tier := e.tiers.Resolve(ctx)
	eval := &Evaluation{Tier: tier, Now: now}

	// Gate 3: 24h unique-recipient tier cap, template only. A batch-level
	// gate: partially admitting an over-limit batch is not supported.
	if kind == KindTemplate {
		already, err := e.windows.TemplatedWithin24h(ctx, client.ID, now)
		if err != nil {
			return nil, fmt.Errorf("loading 24h template recipients: %w", err)
		}

		// The cap is on unique recipients: the batch is deduped and
		// unioned with the already-messaged set.
		fresh := make(map[string]struct{})
		for _, r := range recipients {
			if _, ok := already[r]; !ok {
				fresh[r] = struct{}{}
			}
		}
		if !tier.Allows(len(already) + len(fresh)) {
			metrics.DispatchDenialsTotal.WithLabelValues(ReasonTierLimitExceeded).Add(float64(len(recipients)))
			return nil, &QuotaError{
				Reason: ReasonTierLimitExceeded,
				Message: fmt.Sprintf(
					"24-hour unique recipient limit exceeded. Tier: %s, Limit: %d, Used: %d",
					tier.Name, tier.Cap, len(already)),
			}
		}

		eval.Admitted = recipients
		return eval, nil
	}

	// Gate 4: per-recipient conversation window, text only. Free-form
	// replies are scoped to an individual conversation, so this is the
	// one gate that rejects recipients individually.
	inbound, err := e.windows.InboundWithin24h(ctx, client.ID, now)
	if err != nil {
		return nil, fmt.Errorf("loading 24h inbound recipients: %w", err)
	}

	for _, r := range recipients {
		if _, ok := inbound[r]; !ok {
			metrics.DispatchDenialsTotal.WithLabelValues(ReasonNoActiveWindow).Inc()
			eval.Denied = append(eval.Denied, Denial{
				Recipient: r,
				Reason:    ReasonNoActiveWindow,
				Message:   "Cannot send freeform text. No inbound message from recipient in the last 24 hours.",
			})
			continue
		}
		eval.Admitted = append(eval.Admitted, r)
	}

	return eval, nil
}

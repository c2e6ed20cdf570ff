package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

// conversationWindow is the period after a recipient's inbound message
// during which free-form replies are permitted, and the span over which
// the provider counts distinct template recipients.
const conversationWindow = 24 * time.Hour

// WindowTracker derives conversation-window state from the append-only
// message log. Both queries take the dispatch cycle's single "now" so a
// cycle cannot straddle the window boundary.
type WindowTracker struct {
	log messagelog.Repository
}

func NewWindowTracker(log messagelog.Repository) *WindowTracker {
	return &WindowTracker{log: log}
}

// InboundWithin24h returns the recipients with an inbound message inside
// the trailing window, i.e. those eligible for free-form text replies.
func (t *WindowTracker) InboundWithin24h(ctx context.Context, clientID uuid.UUID, now time.Time) (map[string]struct{}, error) {
	return t.log.InboundSince(ctx, clientID, now.Add(-conversationWindow))
}

// TemplatedWithin24h returns the distinct recipients already counted
// against the tier cap: successful outbound template sends inside the
// trailing window.
func (t *WindowTracker) TemplatedWithin24h(ctx context.Context, clientID uuid.UUID, now time.Time) (map[string]struct{}, error) {
	return t.log.TemplatedSince(ctx, clientID, now.Add(-conversationWindow))
}

package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed, best-effort publishing to JetStream. A nil
// Publisher is valid and drops every event, so callers never need to
// branch on whether eventing is configured.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) publish(ctx context.Context, subject string, payload any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("marshaling event", "subject", subject, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		slog.Warn("publishing event", "subject", subject, "error", err)
	}
}

func (p *Publisher) MessageSent(ctx context.Context, ev MessageSent) {
	p.publish(ctx, SubjectMessageSent, ev)
}

func (p *Publisher) MessageFailed(ctx context.Context, ev MessageFailed) {
	p.publish(ctx, SubjectMessageFailed, ev)
}

func (p *Publisher) InboundReceived(ctx context.Context, ev InboundReceived) {
	p.publish(ctx, SubjectInboundReceived, ev)
}

func (p *Publisher) DeliveryStatusChanged(ctx context.Context, ev DeliveryStatusChanged) {
	p.publish(ctx, SubjectDeliveryStatus, ev)
}

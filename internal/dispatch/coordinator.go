package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/clients"
	"github.com/relaygate-platform/relaygate/internal/events"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
	"github.com/relaygate-platform/relaygate/internal/metrics"
	"github.com/relaygate-platform/relaygate/internal/provider"
)

// defaultMaxInFlight bounds concurrent provider calls within one batch.
const defaultMaxInFlight = 8

// Coordinator orchestrates one dispatch cycle: evaluate quotas, fan out
// one delivery attempt per admitted recipient, classify each outcome,
// and commit log entries plus the usage delta atomically iff at least
// one recipient succeeded.
type Coordinator struct {
	evaluator   *Evaluator
	sender      provider.Sender
	store       Store
	publisher   *events.Publisher
	maxInFlight int
}

func NewCoordinator(evaluator *Evaluator, sender provider.Sender, store Store, publisher *events.Publisher) *Coordinator {
	return &Coordinator{
		evaluator:   evaluator,
		sender:      sender,
		store:       store,
		publisher:   publisher,
		maxInFlight: defaultMaxInFlight,
	}
}

// attempt is one recipient's delivery attempt, kept in batch order so
// concurrent sends produce a deterministic response.
type attempt struct {
	result Result
	entry  *messagelog.Entry // staged on success only
	failed bool
}

// Dispatch runs the full cycle. A returned *QuotaError means the whole
// batch was denied before any provider call. Any other error is an
// internal failure after delivery attempts may have been made.
func (c *Coordinator) Dispatch(ctx context.Context, client *clients.Client, req *SendRequest) (*Outcome, error) {
	now := time.Now().UTC()

	eval, err := c.evaluator.Evaluate(ctx, client, req.To, req.Type, now)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Results: []Result{}, Errors: []Result{}}
	for _, d := range eval.Denied {
		outcome.Errors = append(outcome.Errors, Result{
			Recipient: d.Recipient,
			Status:    http.StatusForbidden,
			Response:  d.Message,
		})
	}

	attempts := c.deliver(ctx, client, req, eval.Admitted, now)

	var staged []*messagelog.Entry
	successes := 0
	for _, a := range attempts {
		if a.failed {
			outcome.Errors = append(outcome.Errors, a.result)
			c.publisher.MessageFailed(ctx, events.MessageFailed{
				ClientID:  client.ID,
				Recipient: a.result.Recipient,
				Status:    a.result.Status,
				Reason:    fmt.Sprint(a.result.Response),
				FailedAt:  now,
			})
			continue
		}
		outcome.Results = append(outcome.Results, a.result)
		staged = append(staged, a.entry)
		successes++
	}

	// Commit discipline: a fully failed batch writes nothing, so usage
	// accounting never advances for recipients that got no message.
	if successes > 0 {
		usageDelta := 0
		if req.Type == KindTemplate {
			usageDelta = successes
		}
		if err := c.store.CommitOutcome(ctx, client.ID, staged, usageDelta); err != nil {
			slog.Error("dispatch commit failed after provider accepted deliveries",
				"client_id", client.ID, "successes", successes, "error", err)
			return nil, err
		}
		c.publishCommitted(ctx, client.ID, staged)
	}

	return outcome, nil
}

// deliver fans out provider calls for admitted recipients. Attempts are
// independent: one recipient's failure never aborts the others.
func (c *Coordinator) deliver(ctx context.Context, client *clients.Client, req *SendRequest, admitted []string, now time.Time) []attempt {
	attempts := make([]attempt, len(admitted))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxInFlight)

	for i, recipient := range admitted {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, recipient string) {
			defer wg.Done()
			defer func() { <-sem }()
			attempts[i] = c.attemptOne(ctx, client, req, recipient, now)
		}(i, recipient)
	}
	wg.Wait()

	return attempts
}

func (c *Coordinator) attemptOne(ctx context.Context, client *clients.Client, req *SendRequest, recipient string, now time.Time) attempt {
	var resp *provider.SendResponse
	var err error
	templateName := req.Name
	var content *string

	if req.Type == KindText {
		resp, err = c.sender.SendText(ctx, recipient, req.Text)
		templateName = messagelog.FreeFormName
		text := req.Text
		content = &text
	} else {
		resp, err = c.sender.SendTemplate(ctx, recipient, req.Name, req.Language, req.Components)
	}

	if err != nil {
		metrics.MessagesDispatchedTotal.WithLabelValues(string(req.Type), "failed").Inc()
		return attempt{result: classifyFailure(recipient, err), failed: true}
	}

	metrics.MessagesDispatchedTotal.WithLabelValues(string(req.Type), "sent").Inc()

	entry := &messagelog.Entry{
		ID:           uuid.New(),
		ClientID:     client.ID,
		Recipient:    recipient,
		TemplateName: templateName,
		Content:      content,
		Status:       messagelog.StatusSent,
		SentAt:       now,
		Direction:    messagelog.DirectionOutbound,
	}
	if id := resp.MessageID(); id != "" {
		entry.ProviderMessageID = &id
	}

	return attempt{
		result: Result{Recipient: recipient, Status: http.StatusOK, Response: resp},
		entry:  entry,
	}
}

// classifyFailure maps provider errors into the response taxonomy:
// HTTP-level status verbatim, embedded application errors as 400, and
// everything else as a generic 500.
func classifyFailure(recipient string, err error) Result {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		return Result{Recipient: recipient, Status: statusErr.Code, Response: statusErr.Body}
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return Result{Recipient: recipient, Status: http.StatusBadRequest, Response: apiErr.Message}
	}

	slog.Error("unexpected error dispatching to recipient", "recipient", recipient, "error", err)
	return Result{Recipient: recipient, Status: http.StatusInternalServerError, Response: "Internal server error"}
}

func (c *Coordinator) publishCommitted(ctx context.Context, clientID uuid.UUID, entries []*messagelog.Entry) {
	for _, e := range entries {
		ev := events.MessageSent{
			ClientID:     clientID,
			Recipient:    e.Recipient,
			TemplateName: e.TemplateName,
			SentAt:       e.SentAt,
		}
		if e.ProviderMessageID != nil {
			ev.ProviderMessageID = *e.ProviderMessageID
		}
		c.publisher.MessageSent(ctx, ev)
	}
}

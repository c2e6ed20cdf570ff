package webhooks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	InsertEvent(ctx context.Context, event *WebhookEvent) error
	ListRecentEvents(ctx context.Context, limit int) ([]*WebhookEvent, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) InsertEvent(ctx context.Context, event *WebhookEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_events (id, event_type, payload, received_at) VALUES ($1, $2, $3, $4)`,
		event.ID, event.EventType, event.Payload, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("inserting webhook event: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListRecentEvents(ctx context.Context, limit int) ([]*WebhookEvent, error) {
	query := `
		SELECT id, event_type, payload, received_at
		FROM webhook_events
		ORDER BY received_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing webhook events: %w", err)
	}
	defer rows.Close()

	var out []*WebhookEvent
	for rows.Next() {
		ev := &WebhookEvent{}
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning webhook event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

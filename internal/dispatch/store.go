package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

// Store persists a dispatch cycle's outcome: the staged log entries and
// the tenant's usage delta, as one atomic unit.
type Store interface {
	CommitOutcome(ctx context.Context, clientID uuid.UUID, entries []*messagelog.Entry, usageDelta int) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// CommitOutcome writes every staged entry and advances usage_count in a
// single transaction. The increment is relative, so two interleaved
// commits for one tenant cannot lose updates.
func (s *pgStore) CommitOutcome(ctx context.Context, clientID uuid.UUID, entries []*messagelog.Entry, usageDelta int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning dispatch commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, entry := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO message_logs (id, client_id, recipient_number, template_name, content,
			                          status, sent_at, delivery_time, error_message, direction,
			                          provider_message_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			entry.ID, entry.ClientID, entry.Recipient, entry.TemplateName, entry.Content,
			entry.Status, entry.SentAt, entry.DeliveryTime, entry.ErrorMessage,
			entry.Direction, entry.ProviderMessageID)
		if err != nil {
			return fmt.Errorf("inserting log entry for %s: %w", entry.Recipient, err)
		}
	}

	if usageDelta > 0 {
		_, err := tx.Exec(ctx,
			`UPDATE clients SET usage_count = usage_count + $2 WHERE id = $1`,
			clientID, usageDelta)
		if err != nil {
			return fmt.Errorf("incrementing usage count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing dispatch outcome: %w", err)
	}
	return nil
}

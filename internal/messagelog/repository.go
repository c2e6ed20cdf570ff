package messagelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	// TemplatedSince returns the distinct recipients of successful
	// outbound template sends at or after the cutoff.
	TemplatedSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error)
	// InboundSince returns the distinct recipients with an inbound
	// message at or after the cutoff.
	InboundSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error)
	DistinctRecipients(ctx context.Context, clientID uuid.UUID) ([]string, error)
	List(ctx context.Context, clientID uuid.UUID, filter ListFilter) ([]*Entry, error)
	ConversationMessages(ctx context.Context, clientID uuid.UUID, recipient string, limit int) ([]*Entry, error)
	LastSentTo(ctx context.Context, clientID uuid.UUID, recipient string) (*Entry, error)
	// LastClientFor returns the client that most recently sent an
	// outbound message to the recipient, or nil if nobody has.
	LastClientFor(ctx context.Context, recipient string) (*uuid.UUID, error)
	HourlyCounts(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]int, error)
	CountTotals(ctx context.Context, clientID uuid.UUID) (*Totals, error)
	// CountSentSince counts successful outbound sends across all
	// clients at or after the cutoff.
	CountSentSince(ctx context.Context, since time.Time) (int64, error)
	SetDeliveryTime(ctx context.Context, providerMessageID string, deliveredAt time.Time) (bool, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const entryColumns = `
	id, client_id, recipient_number, template_name, content, status,
	sent_at, delivery_time, error_message, direction, provider_message_id`

func (r *postgresRepository) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO message_logs (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.ClientID, entry.Recipient, entry.TemplateName,
		entry.Content, entry.Status, entry.SentAt, entry.DeliveryTime,
		entry.ErrorMessage, entry.Direction, entry.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

func (r *postgresRepository) TemplatedSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	query := `
		SELECT DISTINCT recipient_number
		FROM message_logs
		WHERE client_id = $1
		  AND status = $2
		  AND direction = $3
		  AND template_name != $4
		  AND sent_at >= $5`

	rows, err := r.pool.Query(ctx, query, clientID, StatusSent, DirectionOutbound, FreeFormName, since)
	if err != nil {
		return nil, fmt.Errorf("querying templated recipients: %w", err)
	}
	defer rows.Close()

	return scanRecipientSet(rows)
}

func (r *postgresRepository) InboundSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	query := `
		SELECT DISTINCT recipient_number
		FROM message_logs
		WHERE client_id = $1
		  AND direction = $2
		  AND sent_at >= $3`

	rows, err := r.pool.Query(ctx, query, clientID, DirectionInbound, since)
	if err != nil {
		return nil, fmt.Errorf("querying inbound recipients: %w", err)
	}
	defer rows.Close()

	return scanRecipientSet(rows)
}

func scanRecipientSet(rows pgx.Rows) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for rows.Next() {
		var recipient string
		if err := rows.Scan(&recipient); err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		set[recipient] = struct{}{}
	}
	return set, rows.Err()
}

func (r *postgresRepository) DistinctRecipients(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	query := `SELECT DISTINCT recipient_number FROM message_logs WHERE client_id = $1`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("querying distinct recipients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var recipient string
		if err := rows.Scan(&recipient); err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		out = append(out, recipient)
	}
	return out, rows.Err()
}

func (r *postgresRepository) List(ctx context.Context, clientID uuid.UUID, filter ListFilter) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM message_logs WHERE client_id = $1`
	args := []any{clientID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Direction != "" {
		args = append(args, filter.Direction)
		query += fmt.Sprintf(" AND direction = $%d", len(args))
	}
	if filter.Recipient != "" {
		args = append(args, filter.Recipient)
		query += fmt.Sprintf(" AND recipient_number = $%d", len(args))
	}
	query += " ORDER BY sent_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing log entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *postgresRepository) ConversationMessages(ctx context.Context, clientID uuid.UUID, recipient string, limit int) ([]*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM message_logs
		WHERE client_id = $1 AND recipient_number = $2
		ORDER BY sent_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, clientID, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversation messages: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *postgresRepository) LastSentTo(ctx context.Context, clientID uuid.UUID, recipient string) (*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM message_logs
		WHERE client_id = $1 AND recipient_number = $2 AND status = $3
		ORDER BY sent_at DESC
		LIMIT 1`

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, clientID, recipient, StatusSent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying last sent entry: %w", err)
	}
	return entry, nil
}

func (r *postgresRepository) LastClientFor(ctx context.Context, recipient string) (*uuid.UUID, error) {
	query := `
		SELECT client_id FROM message_logs
		WHERE recipient_number = $1 AND direction = $2
		ORDER BY sent_at DESC
		LIMIT 1`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, recipient, DirectionOutbound).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying last client for recipient: %w", err)
	}
	return &id, nil
}

func (r *postgresRepository) HourlyCounts(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]int, error) {
	query := `
		SELECT to_char(sent_at, 'HH24') AS hour, COUNT(*)
		FROM message_logs
		WHERE client_id = $1 AND status = $2 AND sent_at >= $3
		GROUP BY hour
		ORDER BY hour`

	rows, err := r.pool.Query(ctx, query, clientID, StatusSent, since)
	if err != nil {
		return nil, fmt.Errorf("querying hourly counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var hour string
		var count int
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("scanning hourly count: %w", err)
		}
		counts[hour] = count
	}
	return counts, rows.Err()
}

func (r *postgresRepository) CountTotals(ctx context.Context, clientID uuid.UUID) (*Totals, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM message_logs
		WHERE client_id = $1`

	t := &Totals{}
	err := r.pool.QueryRow(ctx, query, clientID, StatusSent, StatusReceived).Scan(&t.Sent, &t.Received)
	if err != nil {
		return nil, fmt.Errorf("counting totals: %w", err)
	}
	return t, nil
}

func (r *postgresRepository) CountSentSince(ctx context.Context, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM message_logs
		WHERE status = $1 AND direction = $2 AND sent_at >= $3`

	var n int64
	err := r.pool.QueryRow(ctx, query, StatusSent, DirectionOutbound, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting sent messages: %w", err)
	}
	return n, nil
}

// SetDeliveryTime stamps the entry matching the provider's message ID.
// Returns false if no outbound entry carries that ID.
func (r *postgresRepository) SetDeliveryTime(ctx context.Context, providerMessageID string, deliveredAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx,
		`UPDATE message_logs SET delivery_time = $2 WHERE provider_message_id = $1`,
		providerMessageID, deliveredAt)
	if err != nil {
		return false, fmt.Errorf("setting delivery time: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(
		&e.ID, &e.ClientID, &e.Recipient, &e.TemplateName, &e.Content,
		&e.Status, &e.SentAt, &e.DeliveryTime, &e.ErrorMessage,
		&e.Direction, &e.ProviderMessageID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

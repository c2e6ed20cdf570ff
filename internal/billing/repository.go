package billing

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
	CreateRecord(ctx context.Context, record *BillingRecord) error
	ListRecordsByClient(ctx context.Context, clientID uuid.UUID) ([]*BillingRecord, error)

	CreateRequest(ctx context.Context, req *SubscriptionRequest) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*SubscriptionRequest, error)
	ListRequestsByClient(ctx context.Context, clientID uuid.UUID) ([]*SubscriptionRequest, error)
	ListAllRequests(ctx context.Context) ([]*SubscriptionRequest, error)
	HasPendingRequest(ctx context.Context, clientID uuid.UUID, requestType string) (bool, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status string, completedAt time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) CreateRecord(ctx context.Context, record *BillingRecord) error {
	query := `
		INSERT INTO billing_records (id, client_id, amount_cents, message_count, billing_period, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		record.ID, record.ClientID, record.AmountCents,
		record.MessageCount, record.BillingPeriod, record.GeneratedAt)
	if err != nil {
		return fmt.Errorf("inserting billing record: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListRecordsByClient(ctx context.Context, clientID uuid.UUID) ([]*BillingRecord, error) {
	query := `
		SELECT id, client_id, amount_cents, message_count, billing_period, generated_at
		FROM billing_records
		WHERE client_id = $1
		ORDER BY generated_at DESC`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing billing records: %w", err)
	}
	defer rows.Close()

	var out []*BillingRecord
	for rows.Next() {
		rec := &BillingRecord{}
		err := rows.Scan(&rec.ID, &rec.ClientID, &rec.AmountCents,
			&rec.MessageCount, &rec.BillingPeriod, &rec.GeneratedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning billing record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *postgresRepository) CreateRequest(ctx context.Context, req *SubscriptionRequest) error {
	query := `
		INSERT INTO subscription_requests (id, client_id, request_type, status, details, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.ClientID, req.RequestType, req.Status,
		req.Details, req.CreatedAt, req.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting subscription request: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*SubscriptionRequest, error) {
	query := `
		SELECT id, client_id, request_type, status, details, created_at, completed_at
		FROM subscription_requests
		WHERE id = $1`

	req := &SubscriptionRequest{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.ClientID, &req.RequestType, &req.Status,
		&req.Details, &req.CreatedAt, &req.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription request: %w", err)
	}
	return req, nil
}

func (r *postgresRepository) ListRequestsByClient(ctx context.Context, clientID uuid.UUID) ([]*SubscriptionRequest, error) {
	query := `
		SELECT id, client_id, request_type, status, details, created_at, completed_at
		FROM subscription_requests
		WHERE client_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing subscription requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func (r *postgresRepository) ListAllRequests(ctx context.Context) ([]*SubscriptionRequest, error) {
	query := `
		SELECT id, client_id, request_type, status, details, created_at, completed_at
		FROM subscription_requests
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing subscription requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func (r *postgresRepository) HasPendingRequest(ctx context.Context, clientID uuid.UUID, requestType string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM subscription_requests
			WHERE client_id = $1 AND request_type = $2 AND status = $3)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, clientID, requestType, StatusPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending request: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status string, completedAt time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE subscription_requests SET status = $2, completed_at = $3 WHERE id = $1`,
		id, status, completedAt)
	if err != nil {
		return fmt.Errorf("updating subscription request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscription request not found")
	}
	return nil
}

func scanRequests(rows pgx.Rows) ([]*SubscriptionRequest, error) {
	var out []*SubscriptionRequest
	for rows.Next() {
		req := &SubscriptionRequest{}
		err := rows.Scan(&req.ID, &req.ClientID, &req.RequestType, &req.Status,
			&req.Details, &req.CreatedAt, &req.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

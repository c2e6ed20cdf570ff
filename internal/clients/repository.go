package clients

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
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByUsername(ctx context.Context, username string) (*Client, error)
	ExistsByNameOrUsername(ctx context.Context, name, username string) (bool, error)
	List(ctx context.Context) ([]*Client, error)
	Update(ctx context.Context, client *Client) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementUsage(ctx context.Context, id uuid.UUID, delta int) error
	Renew(ctx context.Context, id uuid.UUID, newExpiry time.Time) error
	CountAll(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	CountExpired(ctx context.Context, now time.Time) (int64, error)

	CreatePlan(ctx context.Context, plan *Plan) error
	GetPlanByName(ctx context.Context, name string) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const clientColumns = `
	c.id, c.name, c.username, c.password_hash, c.usage_count, c.created_at,
	c.is_active, c.is_key_revoked, c.plan_expiry, c.auto_renew, c.plan_id,
	p.id, p.name, p.monthly_cap, p.price_cents, p.description`

const clientFrom = ` FROM clients c LEFT JOIN plans p ON p.id = c.plan_id`

func scanClient(row pgx.Row) (*Client, error) {
	c := &Client{}
	var planID, pID *uuid.UUID
	var pName, pDesc *string
	var pCap *int
	var pPrice *int

	err := row.Scan(
		&c.ID, &c.Name, &c.Username, &c.PasswordHash, &c.UsageCount, &c.CreatedAt,
		&c.IsActive, &c.IsKeyRevoked, &c.PlanExpiry, &c.AutoRenew, &planID,
		&pID, &pName, &pCap, &pPrice, &pDesc)
	if err != nil {
		return nil, err
	}

	c.PlanID = planID
	if pID != nil {
		plan := &Plan{ID: *pID, MonthlyCap: pCap}
		if pName != nil {
			plan.Name = *pName
		}
		if pPrice != nil {
			plan.PriceCents = *pPrice
		}
		if pDesc != nil {
			plan.Description = *pDesc
		}
		c.Plan = plan
	}
	return c, nil
}

func (r *postgresRepository) Create(ctx context.Context, client *Client) error {
	query := `
		INSERT INTO clients (id, name, username, password_hash, usage_count, created_at,
		                     is_active, is_key_revoked, plan_expiry, auto_renew, plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		client.ID, client.Name, client.Username, client.PasswordHash,
		client.UsageCount, client.CreatedAt, client.IsActive, client.IsKeyRevoked,
		client.PlanExpiry, client.AutoRenew, client.PlanID)
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	query := `SELECT` + clientColumns + clientFrom + ` WHERE c.id = $1`

	client, err := scanClient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying client by id: %w", err)
	}
	return client, nil
}

func (r *postgresRepository) GetByUsername(ctx context.Context, username string) (*Client, error) {
	query := `SELECT` + clientColumns + clientFrom + ` WHERE c.username = $1`

	client, err := scanClient(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying client by username: %w", err)
	}
	return client, nil
}

func (r *postgresRepository) ExistsByNameOrUsername(ctx context.Context, name, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM clients WHERE name = $1 OR username = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, name, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking client existence: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]*Client, error) {
	query := `SELECT` + clientColumns + clientFrom + ` ORDER BY c.created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var out []*Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client row: %w", err)
		}
		out = append(out, client)
	}
	return out, rows.Err()
}

func (r *postgresRepository) Update(ctx context.Context, client *Client) error {
	query := `
		UPDATE clients
		SET is_active = $2, is_key_revoked = $3, auto_renew = $4,
		    plan_id = $5, plan_expiry = $6, usage_count = $7
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		client.ID, client.IsActive, client.IsKeyRevoked, client.AutoRenew,
		client.PlanID, client.PlanExpiry, client.UsageCount)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("client not found")
	}
	return nil
}

func (r *postgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE clients SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating client password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("client not found")
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("client not found")
	}
	return nil
}

// IncrementUsage advances the monthly usage counter atomically. Callers
// pass the count of successful template sends, never the attempted count.
func (r *postgresRepository) IncrementUsage(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE clients SET usage_count = usage_count + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("incrementing usage count: %w", err)
	}
	return nil
}

// Renew extends the plan expiry and resets the usage counter for a new
// billing cycle.
func (r *postgresRepository) Renew(ctx context.Context, id uuid.UUID, newExpiry time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE clients SET plan_expiry = $2, usage_count = 0 WHERE id = $1`, id, newExpiry)
	if err != nil {
		return fmt.Errorf("renewing client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("client not found")
	}
	return nil
}

func (r *postgresRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting clients: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE is_active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active clients: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE plan_expiry IS NOT NULL AND plan_expiry < $1`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting expired clients: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CreatePlan(ctx context.Context, plan *Plan) error {
	query := `
		INSERT INTO plans (id, name, monthly_cap, price_cents, description)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		plan.ID, plan.Name, plan.MonthlyCap, plan.PriceCents, plan.Description)
	if err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetPlanByName(ctx context.Context, name string) (*Plan, error) {
	query := `SELECT id, name, monthly_cap, price_cents, description FROM plans WHERE name = $1`

	plan := &Plan{}
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&plan.ID, &plan.Name, &plan.MonthlyCap, &plan.PriceCents, &plan.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying plan by name: %w", err)
	}
	return plan, nil
}

func (r *postgresRepository) ListPlans(ctx context.Context) ([]*Plan, error) {
	query := `SELECT id, name, monthly_cap, price_cents, description FROM plans ORDER BY price_cents`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan := &Plan{}
		err := rows.Scan(&plan.ID, &plan.Name, &plan.MonthlyCap, &plan.PriceCents, &plan.Description)
		if err != nil {
			return nil, fmt.Errorf("scanning plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

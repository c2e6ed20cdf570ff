package clients

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Onboard creates a tenant bound to the given plan with an expiry
// validDays from now.
func (s *Service) Onboard(ctx context.Context, name, username, passwordHash string, plan *Plan, validDays int) (*Client, error) {
	now := time.Now().UTC()
	expiry := now.Add(time.Duration(validDays) * 24 * time.Hour)
	client := &Client{
		ID:           uuid.New(),
		Name:         name,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		IsActive:     true,
		AutoRenew:    true,
		PlanExpiry:   &expiry,
		PlanID:       &plan.ID,
		Plan:         plan,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*Client, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *Service) List(ctx context.Context) ([]*Client, error) {
	return s.repo.List(ctx)
}

func (s *Service) ExistsByNameOrUsername(ctx context.Context, name, username string) (bool, error) {
	return s.repo.ExistsByNameOrUsername(ctx, name, username)
}

func (s *Service) Update(ctx context.Context, client *Client) error {
	return s.repo.Update(ctx, client)
}

func (s *Service) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return s.repo.UpdatePassword(ctx, id, passwordHash)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Renew extends the plan expiry by extraDays from the later of now and
// the current expiry, and resets the usage counter.
func (s *Service) Renew(ctx context.Context, client *Client, extraDays int) (time.Time, error) {
	base := time.Now().UTC()
	if client.PlanExpiry != nil && client.PlanExpiry.After(base) {
		base = *client.PlanExpiry
	}
	newExpiry := base.Add(time.Duration(extraDays) * 24 * time.Hour)
	if err := s.repo.Renew(ctx, client.ID, newExpiry); err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

// Stats returns fleet counts for the operator dashboard.
func (s *Service) Stats(ctx context.Context) (total, active, expired int64, err error) {
	if total, err = s.repo.CountAll(ctx); err != nil {
		return 0, 0, 0, err
	}
	if active, err = s.repo.CountActive(ctx); err != nil {
		return 0, 0, 0, err
	}
	if expired, err = s.repo.CountExpired(ctx, time.Now().UTC()); err != nil {
		return 0, 0, 0, err
	}
	return total, active, expired, nil
}

func (s *Service) CreatePlan(ctx context.Context, name string, monthlyCap *int, priceCents int, description string) (*Plan, error) {
	plan := &Plan{
		ID:          uuid.New(),
		Name:        name,
		MonthlyCap:  monthlyCap,
		PriceCents:  priceCents,
		Description: description,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) GetPlanByName(ctx context.Context, name string) (*Plan, error) {
	return s.repo.GetPlanByName(ctx, name)
}

func (s *Service) ListPlans(ctx context.Context) ([]*Plan, error) {
	return s.repo.ListPlans(ctx)
}

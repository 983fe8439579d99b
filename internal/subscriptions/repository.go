// Package subscriptions manages plan subscriptions and their credit
// balances.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserva_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusCanceled Status = "CANCELED"
)

// Subscription links a user to a plan with a credit balance.
type Subscription struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	UserID           uuid.UUID
	PlanID           uuid.UUID
	Status           Status
	CreditsRemaining int
	StartDate        time.Time
	EndDate          time.Time
	CreatedAt        time.Time
}

const subscriptionColumns = `id, tenant_id, user_id, plan_id, status, credits_remaining, start_date, end_date, created_at`

// Repository persists subscriptions in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new subscriptions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateParams describe a new subscription.
type CreateParams struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	PlanID   uuid.UUID
	Status   Status
	Credits  int
	Start    time.Time
	End      time.Time
}

// Create inserts a subscription, cancelling any prior active one for the
// same user in the same transaction so at most one ACTIVE subscription
// exists per user and tenant.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Subscription{}, fmt.Errorf("begin create subscription: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = NOW()
		 WHERE tenant_id = $2 AND user_id = $3 AND status = $4`,
		StatusCanceled, params.TenantID, params.UserID, StatusActive,
	)
	if err != nil {
		return Subscription{}, fmt.Errorf("cancel prior subscriptions: %w", err)
	}

	var sub Subscription
	err = tx.QueryRow(ctx,
		`INSERT INTO subscriptions (tenant_id, user_id, plan_id, status, credits_remaining, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+subscriptionColumns,
		params.TenantID, params.UserID, params.PlanID, params.Status, params.Credits, params.Start, params.End,
	).Scan(&sub.ID, &sub.TenantID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.CreditsRemaining, &sub.StartDate, &sub.EndDate, &sub.CreatedAt)
	if err != nil {
		return Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Subscription{}, fmt.Errorf("commit create subscription: %w", err)
	}
	return sub, nil
}

// GetByID fetches one subscription.
func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Subscription, error) {
	var sub Subscription
	err := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&sub.ID, &sub.TenantID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.CreditsRemaining, &sub.StartDate, &sub.EndDate, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.NotFound("subscription not found")
		}
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// GetActiveForUser returns the user's single active subscription.
func (r *Repository) GetActiveForUser(ctx context.Context, tenantID, userID uuid.UUID) (Subscription, error) {
	var sub Subscription
	err := r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE tenant_id = $1 AND user_id = $2 AND status = $3
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, userID, StatusActive,
	).Scan(&sub.ID, &sub.TenantID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.CreditsRemaining, &sub.StartDate, &sub.EndDate, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.NotFound("no active subscription")
		}
		return Subscription{}, fmt.Errorf("get active subscription: %w", err)
	}
	return sub, nil
}

// Activate marks a subscription active.
func (r *Repository) Activate(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND tenant_id = $3`,
		StatusActive, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("subscription not found")
	}
	return nil
}

// ConsumeCredit atomically takes one credit from the user's active
// subscription. The conditional WHERE clause is what keeps the balance
// non-negative under concurrent attempts; there is no read-then-write.
// Returns the subscription the credit was taken from, or BadRequest when
// no active subscription has credits left.
func (r *Repository) ConsumeCredit(ctx context.Context, tenantID, userID uuid.UUID) (Subscription, error) {
	var sub Subscription
	err := r.pool.QueryRow(ctx,
		`UPDATE subscriptions
		 SET credits_remaining = credits_remaining - 1, updated_at = NOW()
		 WHERE id = (
		   SELECT id FROM subscriptions
		   WHERE tenant_id = $1 AND user_id = $2 AND status = $3 AND credits_remaining > 0
		   ORDER BY created_at DESC LIMIT 1
		 )
		 RETURNING `+subscriptionColumns,
		tenantID, userID, StatusActive,
	).Scan(&sub.ID, &sub.TenantID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.CreditsRemaining, &sub.StartDate, &sub.EndDate, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.BadRequest("no active subscription with credits remaining")
		}
		return Subscription{}, fmt.Errorf("consume subscription credit: %w", err)
	}
	return sub, nil
}

// Package catalog provides read access to tenant-owned services,
// professionals and plans. Management of these records lives in the
// admin surface; the booking and payment flows only ever read them.
package catalog

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

// Service is a bookable service offering.
type Service struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// Professional is a staff member appointments can be assigned to.
type Professional struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Email    *string
}

// Plan is a subscription plan definition.
type Plan struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Interval string
	Credits  int
}

// Repository reads catalog entities from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new catalog repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ServiceByID fetches one service.
func (r *Repository) ServiceByID(ctx context.Context, tenantID, id uuid.UUID) (Service, error) {
	var svc Service
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, duration_minutes, price_cents
		 FROM services WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, apperr.NotFound("service not found")
		}
		return Service{}, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

// ServicesByIDs fetches a batch of services in one query. Missing IDs are
// simply absent from the result.
func (r *Repository) ServicesByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, duration_minutes, price_cents
		 FROM services WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// ListServices returns every service of a tenant ordered by name.
func (r *Repository) ListServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, duration_minutes, price_cents
		 FROM services WHERE tenant_id = $1 ORDER BY name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// ServiceDuration returns the duration of one service.
func (r *Repository) ServiceDuration(ctx context.Context, tenantID, serviceID uuid.UUID) (time.Duration, error) {
	svc, err := r.ServiceByID(ctx, tenantID, serviceID)
	if err != nil {
		return 0, err
	}
	return time.Duration(svc.DurationMinutes) * time.Minute, nil
}

// ProfessionalByID fetches one professional.
func (r *Repository) ProfessionalByID(ctx context.Context, tenantID, id uuid.UUID) (Professional, error) {
	var pro Professional
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, email
		 FROM professionals WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&pro.ID, &pro.TenantID, &pro.Name, &pro.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Professional{}, apperr.NotFound("professional not found")
		}
		return Professional{}, fmt.Errorf("get professional: %w", err)
	}
	return pro, nil
}

// ListProfessionals returns every professional of a tenant ordered by name.
func (r *Repository) ListProfessionals(ctx context.Context, tenantID uuid.UUID) ([]Professional, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, email
		 FROM professionals WHERE tenant_id = $1 ORDER BY name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()

	var professionals []Professional
	for rows.Next() {
		var pro Professional
		if err := rows.Scan(&pro.ID, &pro.TenantID, &pro.Name, &pro.Email); err != nil {
			return nil, fmt.Errorf("scan professional: %w", err)
		}
		professionals = append(professionals, pro)
	}
	return professionals, rows.Err()
}

// ProfessionalEmail returns the email of one professional, or NotFound when
// the professional does not exist. A professional without an email resolves
// to an empty string.
func (r *Repository) ProfessionalEmail(ctx context.Context, tenantID, professionalID uuid.UUID) (string, error) {
	pro, err := r.ProfessionalByID(ctx, tenantID, professionalID)
	if err != nil {
		return "", err
	}
	if pro.Email == nil {
		return "", nil
	}
	return *pro.Email, nil
}

// PlanByID fetches one subscription plan.
func (r *Repository) PlanByID(ctx context.Context, tenantID, id uuid.UUID) (Plan, error) {
	var plan Plan
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, interval, credits
		 FROM plans WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&plan.ID, &plan.TenantID, &plan.Name, &plan.Interval, &plan.Credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Plan{}, apperr.NotFound("plan not found")
		}
		return Plan{}, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

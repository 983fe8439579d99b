// Package repository persists payment records.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reserva_backend/internal/payments/transport"
	"reserva_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Payment is the persisted payment record. Amount and method are immutable
// after creation.
type Payment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	Method         transport.PaymentMethod
	Status         transport.PaymentStatus
	Type           transport.PaymentType
	AppointmentID  *uuid.UUID
	SubscriptionID *uuid.UUID
	CreatedAt      time.Time
}

const paymentColumns = `id, tenant_id, user_id, amount_cents, method, status, type, appointment_id, subscription_id, created_at`

// Repository handles database operations for payments.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new payments repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateParams describe a new payment record.
type CreateParams struct {
	TenantID       uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	Method         transport.PaymentMethod
	Status         transport.PaymentStatus
	Type           transport.PaymentType
	AppointmentID  *uuid.UUID
	SubscriptionID *uuid.UUID
}

// Create inserts a payment record.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Payment, error) {
	var payment Payment
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (tenant_id, user_id, amount_cents, method, status, type, appointment_id, subscription_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+paymentColumns,
		params.TenantID, params.UserID, params.AmountCents, params.Method,
		params.Status, params.Type, params.AppointmentID, params.SubscriptionID,
	).Scan(&payment.ID, &payment.TenantID, &payment.UserID, &payment.AmountCents,
		&payment.Method, &payment.Status, &payment.Type,
		&payment.AppointmentID, &payment.SubscriptionID, &payment.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return payment, nil
}

// GetByID fetches one payment.
func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Payment, error) {
	var payment Payment
	err := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&payment.ID, &payment.TenantID, &payment.UserID, &payment.AmountCents,
		&payment.Method, &payment.Status, &payment.Type,
		&payment.AppointmentID, &payment.SubscriptionID, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, apperr.NotFound("payment not found")
		}
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

// HasCompletedForAppointment reports whether a completed payment already
// exists for the appointment. This is the webhook deduplication guard:
// gateway delivery is at-least-once, and this check is the only thing
// standing between a redelivered notification and a duplicate payment row.
func (r *Repository) HasCompletedForAppointment(ctx context.Context, tenantID, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM payments
		   WHERE tenant_id = $1 AND appointment_id = $2 AND status = $3
		 )`,
		tenantID, appointmentID, transport.StatusCompleted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check completed payment: %w", err)
	}
	return exists, nil
}

// ListForUser returns a user's payments, newest first.
func (r *Repository) ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY created_at DESC`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var payment Payment
		if err := rows.Scan(&payment.ID, &payment.TenantID, &payment.UserID, &payment.AmountCents,
			&payment.Method, &payment.Status, &payment.Type,
			&payment.AppointmentID, &payment.SubscriptionID, &payment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

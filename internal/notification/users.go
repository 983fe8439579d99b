package notification

import (
	"context"
	"errors"
	"fmt"

	"reserva_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recipient is the contact surface of a user: where notifications can go.
type Recipient struct {
	ID               uuid.UUID
	Name             string
	Email            string
	ChatSubscriberID string
}

// userReader resolves notification recipients from the users table.
type userReader struct {
	pool *pgxpool.Pool
}

func newUserReader(pool *pgxpool.Pool) *userReader {
	return &userReader{pool: pool}
}

func (r *userReader) Recipient(ctx context.Context, tenantID, userID uuid.UUID) (Recipient, error) {
	var rec Recipient
	var email, chatID *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, chat_subscriber_id
		 FROM users WHERE id = $1 AND tenant_id = $2`,
		userID, tenantID,
	).Scan(&rec.ID, &rec.Name, &email, &chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipient{}, apperr.NotFound("user not found")
		}
		return Recipient{}, fmt.Errorf("get notification recipient: %w", err)
	}
	if email != nil {
		rec.Email = *email
	}
	if chatID != nil {
		rec.ChatSubscriberID = *chatID
	}
	return rec, nil
}

// Package tenants provides access to per-tenant configuration: payment
// gateway credentials, chat API keys, SMTP settings and notification
// template overrides.
package tenants

import (
	"context"
	"errors"
	"fmt"

	"reserva_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SMTPSettings holds a tenant's outbound mail credentials. All fields must
// be set for the tenant-specific sender to be used.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether the settings are complete enough to dial.
func (s SMTPSettings) Configured() bool {
	return s.Host != "" && s.Port > 0 && s.From != ""
}

// Settings is a tenant's configuration blob.
type Settings struct {
	TenantID          uuid.UUID
	Name              string
	GatewayToken      string
	ChatAPIKey        string
	SMTP              SMTPSettings
	TemplateOverrides map[string]TemplateOverride
}

// TemplateOverride replaces a built-in notification template.
type TemplateOverride struct {
	Subject string
	Body    string
}

// Repository reads tenant settings from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new tenant settings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSettings loads a tenant's configuration, including template overrides.
func (r *Repository) GetSettings(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	settings := Settings{TenantID: tenantID}
	var gatewayToken, chatAPIKey, smtpHost, smtpUsername, smtpPassword, smtpFrom *string
	var smtpPort *int

	err := r.pool.QueryRow(ctx,
		`SELECT name, gateway_access_token, chat_api_key,
		        smtp_host, smtp_port, smtp_username, smtp_password, smtp_from
		 FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&settings.Name, &gatewayToken, &chatAPIKey,
		&smtpHost, &smtpPort, &smtpUsername, &smtpPassword, &smtpFrom)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, apperr.NotFound("tenant not found")
		}
		return Settings{}, fmt.Errorf("get tenant settings: %w", err)
	}

	settings.GatewayToken = deref(gatewayToken)
	settings.ChatAPIKey = deref(chatAPIKey)
	settings.SMTP = SMTPSettings{
		Host:     deref(smtpHost),
		Username: deref(smtpUsername),
		Password: deref(smtpPassword),
		From:     deref(smtpFrom),
	}
	if smtpPort != nil {
		settings.SMTP.Port = *smtpPort
	}

	overrides, err := r.templateOverrides(ctx, tenantID)
	if err != nil {
		return Settings{}, err
	}
	settings.TemplateOverrides = overrides
	return settings, nil
}

func (r *Repository) templateOverrides(ctx context.Context, tenantID uuid.UUID) (map[string]TemplateOverride, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT template_key, subject, body
		 FROM tenant_templates WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tenant templates: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]TemplateOverride)
	for rows.Next() {
		var key string
		var override TemplateOverride
		if err := rows.Scan(&key, &override.Subject, &override.Body); err != nil {
			return nil, fmt.Errorf("scan tenant template: %w", err)
		}
		overrides[key] = override
	}
	return overrides, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

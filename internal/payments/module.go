// Package payments provides the payments domain module.
package payments

import (
	apptservice "reserva_backend/internal/appointments/service"
	"reserva_backend/internal/catalog"
	"reserva_backend/internal/events"
	apphttp "reserva_backend/internal/http"
	"reserva_backend/internal/mercadopago"
	"reserva_backend/internal/payments/handler"
	"reserva_backend/internal/payments/repository"
	"reserva_backend/internal/payments/service"
	"reserva_backend/internal/subscriptions"
	"reserva_backend/internal/tenants"
	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"
	"reserva_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the payments domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new payments module with all dependencies wired.
func NewModule(
	pool *pgxpool.Pool,
	val *validator.Validator,
	appointments *apptservice.Service,
	subs *subscriptions.Repository,
	gateway *mercadopago.Client,
	cat *catalog.Repository,
	settings tenants.SettingsReader,
	bus events.Bus,
	cfg config.PaymentsConfig,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, appointments, subs, gateway, cat, settings, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "payments"
}

// RegisterRoutes registers the module's routes. The gateway webhook is
// public (authenticated gateways cannot carry our JWTs) but rate limited.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	payments := ctx.Protected.Group("/payments")
	m.handler.RegisterRoutes(payments)
	m.handler.RegisterWebhookRoutes(ctx.V1, ctx.WebhookRateLimiter.RateLimit())
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

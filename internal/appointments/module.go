// Package appointments provides the appointments domain module.
package appointments

import (
	"reserva_backend/internal/appointments/handler"
	"reserva_backend/internal/appointments/repository"
	"reserva_backend/internal/appointments/service"
	apphttp "reserva_backend/internal/http"
	"reserva_backend/internal/events"
	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"
	"reserva_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the appointments domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new appointments module with all dependencies wired.
// The plan credit charger is injected later via Service.SetPlanCreditCharger
// once the payments module exists.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, catalog service.CatalogReader, bus events.Bus, cfg config.BookingConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, catalog, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "appointments"
}

// RegisterRoutes registers the module's routes under /api/v1/appointments
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	appointments := ctx.Protected.Group("/appointments")
	m.handler.RegisterRoutes(appointments)
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

// Package chatbot exposes a webhook the external chat platform calls to
// run booking commands on behalf of a conversation. The endpoint is
// unauthenticated; commands run as a service-role requester scoped to
// the tenant named in the request.
package chatbot

import (
	"context"
	"net/http"
	"time"

	apptservice "reserva_backend/internal/appointments/service"
	appttransport "reserva_backend/internal/appointments/transport"
	"reserva_backend/internal/catalog"
	apphttp "reserva_backend/internal/http"
	"reserva_backend/platform/apperr"
	"reserva_backend/platform/httpkit"
	"reserva_backend/platform/logger"
	"reserva_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Recognized actions.
const (
	actionCheckAvailability   = "check_availability"
	actionCreateAppointment   = "create_appointment"
	actionGetServices         = "get_services"
	actionGetProfessionals    = "get_professionals"
	actionGetUserAppointments = "get_user_appointments"
)

// AppointmentService is the slice of the appointments service the bot uses.
type AppointmentService interface {
	Create(ctx context.Context, requester apptservice.Requester, tenantID uuid.UUID, req appttransport.CreateAppointmentRequest) (appttransport.AppointmentResponse, error)
	List(ctx context.Context, requester apptservice.Requester, tenantID uuid.UUID, req appttransport.ListAppointmentsRequest) (appttransport.AppointmentListResponse, error)
	AvailableSlots(ctx context.Context, tenantID uuid.UUID, req appttransport.GetAvailableSlotsRequest) (appttransport.AvailableSlotsResponse, error)
}

// CatalogReader lists the tenant's bookable services and professionals.
type CatalogReader interface {
	ListServices(ctx context.Context, tenantID uuid.UUID) ([]catalog.Service, error)
	ListProfessionals(ctx context.Context, tenantID uuid.UUID) ([]catalog.Professional, error)
}

// CommandRequest is the webhook body sent by the chat platform. Fields
// beyond Action are interpreted per action.
type CommandRequest struct {
	Action         string      `json:"action" validate:"required"`
	TenantID       *uuid.UUID  `json:"tenantId,omitempty"`
	UserID         *uuid.UUID  `json:"userId,omitempty"`
	Date           string      `json:"date,omitempty"`
	ServiceID      *uuid.UUID  `json:"serviceId,omitempty"`
	ServiceIDs     []uuid.UUID `json:"serviceIds,omitempty"`
	ProfessionalID *uuid.UUID  `json:"professionalId,omitempty"`
	PaymentMethod  string      `json:"paymentMethod,omitempty"`
}

// Module wires the chatbot webhook.
type Module struct {
	appointments AppointmentService
	catalog      CatalogReader
	val          *validator.Validator
	log          *logger.Logger
}

// NewModule creates the chatbot module.
func NewModule(appointments AppointmentService, cat CatalogReader, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{appointments: appointments, catalog: cat, val: val, log: log}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "chatbot"
}

// RegisterRoutes mounts the webhook on the public API group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/integrations/chatbot")
	if ctx.WebhookRateLimiter != nil {
		group.Use(ctx.WebhookRateLimiter.RateLimit())
	}
	group.POST("/webhook", m.HandleWebhook)
}

// HandleWebhook handles POST /api/v1/integrations/chatbot/webhook.
// Unknown actions are acknowledged and ignored so the chat platform
// never retries commands this backend does not understand.
func (m *Module) HandleWebhook(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	tenantID, err := resolveTenant(c, req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	result, handled, err := m.dispatch(c.Request.Context(), tenantID, req)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	if !handled {
		m.log.Info("chatbot action ignored", "action", req.Action, "tenant_id", tenantID)
		httpkit.OK(c, gin.H{"status": "ignored"})
		return
	}

	httpkit.OK(c, gin.H{"status": "ok", "data": result})
}

// resolveTenant takes the tenant from the body, falling back to the
// x-tenant-id header.
func resolveTenant(c *gin.Context, req CommandRequest) (uuid.UUID, error) {
	if req.TenantID != nil {
		return *req.TenantID, nil
	}
	header := c.GetHeader("x-tenant-id")
	if header == "" {
		return uuid.Nil, apperr.BadRequest("tenantId is required")
	}
	tenantID, err := uuid.Parse(header)
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid tenant ID")
	}
	return tenantID, nil
}

func (m *Module) dispatch(ctx context.Context, tenantID uuid.UUID, req CommandRequest) (any, bool, error) {
	switch req.Action {
	case actionCheckAvailability:
		result, err := m.checkAvailability(ctx, tenantID, req)
		return result, true, err
	case actionCreateAppointment:
		result, err := m.createAppointment(ctx, tenantID, req)
		return result, true, err
	case actionGetServices:
		result, err := m.catalog.ListServices(ctx, tenantID)
		return result, true, err
	case actionGetProfessionals:
		result, err := m.catalog.ListProfessionals(ctx, tenantID)
		return result, true, err
	case actionGetUserAppointments:
		result, err := m.userAppointments(ctx, tenantID, req)
		return result, true, err
	default:
		return nil, false, nil
	}
}

func (m *Module) checkAvailability(ctx context.Context, tenantID uuid.UUID, req CommandRequest) (appttransport.AvailableSlotsResponse, error) {
	return m.appointments.AvailableSlots(ctx, tenantID, appttransport.GetAvailableSlotsRequest{
		Date:           req.Date,
		ServiceID:      req.ServiceID,
		ProfessionalID: req.ProfessionalID,
	})
}

func (m *Module) createAppointment(ctx context.Context, tenantID uuid.UUID, req CommandRequest) (appttransport.AppointmentResponse, error) {
	if req.UserID == nil {
		return appttransport.AppointmentResponse{}, apperr.BadRequest("userId is required")
	}
	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		return appttransport.AppointmentResponse{}, apperr.BadRequest("date must be an RFC 3339 timestamp")
	}

	method := appttransport.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = appttransport.PaymentMethodCash
	}

	serviceIDs := req.ServiceIDs
	if len(serviceIDs) == 0 && req.ServiceID != nil {
		serviceIDs = []uuid.UUID{*req.ServiceID}
	}

	return m.appointments.Create(ctx, apptservice.ServiceRequester(), tenantID, appttransport.CreateAppointmentRequest{
		UserID:         req.UserID,
		ProfessionalID: req.ProfessionalID,
		Date:           date,
		PaymentMethod:  method,
		ServiceIDs:     serviceIDs,
	})
}

// userAppointments lists a user's bookings by impersonating them as a
// client, which reuses the service's own scoping rules.
func (m *Module) userAppointments(ctx context.Context, tenantID uuid.UUID, req CommandRequest) (appttransport.AppointmentListResponse, error) {
	if req.UserID == nil {
		return appttransport.AppointmentListResponse{}, apperr.BadRequest("userId is required")
	}
	requester := apptservice.Requester{UserID: *req.UserID, Role: apptservice.RoleClient}
	return m.appointments.List(ctx, requester, tenantID, appttransport.ListAppointmentsRequest{Date: req.Date})
}

package handler

import (
	"net/http"

	apptservice "reserva_backend/internal/appointments/service"
	"reserva_backend/internal/payments/service"
	"reserva_backend/internal/payments/transport"
	"reserva_backend/platform/httpkit"
	"reserva_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for payments
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new payments handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the authenticated payment routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListMine)
	rg.POST("", h.CreateDirect)
	rg.POST("/preference", h.CreatePreference)
}

// RegisterWebhookRoutes registers the public gateway callback.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup, limiter gin.HandlerFunc) {
	rg.POST("/payments/webhook/mercadopago", limiter, h.HandleWebhook)
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (uuid.UUID, bool) {
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return *tenantID, true
}

func requesterFrom(identity httpkit.Identity) apptservice.Requester {
	return apptservice.Requester{
		UserID: identity.UserID(),
		Role:   apptservice.Role(identity.Role()),
		Email:  identity.Email(),
	}
}

// CreateDirect handles POST /api/v1/payments
func (h *Handler) CreateDirect(c *gin.Context) {
	var req transport.CreateDirectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.svc.CreateDirect(c.Request.Context(), requesterFrom(identity), tenantID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

// CreatePreference handles POST /api/v1/payments/preference
func (h *Handler) CreatePreference(c *gin.Context) {
	var req transport.CreatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.svc.CreatePreference(c.Request.Context(), requesterFrom(identity), tenantID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

// ListMine handles GET /api/v1/payments
func (h *Handler) ListMine(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.svc.ListMine(c.Request.Context(), requesterFrom(identity), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// HandleWebhook handles POST /api/v1/payments/webhook/mercadopago.
// The response is always 200; gateway retries must never be triggered by
// internal failures.
func (h *Handler) HandleWebhook(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenantId"))
	if err != nil {
		// Malformed tenant: acknowledge anyway, nothing to reconcile.
		httpkit.OK(c, transport.WebhookAck{Status: "received"})
		return
	}

	var req transport.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.OK(c, transport.WebhookAck{Status: "received"})
		return
	}

	ack := h.svc.HandleWebhook(c.Request.Context(), tenantID, req)
	httpkit.OK(c, ack)
}

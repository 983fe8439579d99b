package subscriptions

import (
	"net/http"
	"time"

	apphttp "reserva_backend/internal/http"
	"reserva_backend/internal/catalog"
	"reserva_backend/internal/events"
	"reserva_backend/platform/httpkit"
	"reserva_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateSubscriptionRequest is the request body for subscribing to a plan.
type CreateSubscriptionRequest struct {
	PlanID uuid.UUID `json:"planId" validate:"required"`
}

// SubscriptionResponse is the response body for a subscription.
type SubscriptionResponse struct {
	ID               uuid.UUID `json:"id"`
	PlanID           uuid.UUID `json:"planId"`
	Status           Status    `json:"status"`
	CreditsRemaining int       `json:"creditsRemaining"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
}

// Module represents the subscriptions domain module
type Module struct {
	Repo    *Repository
	catalog *catalog.Repository
	bus     events.Bus
	val     *validator.Validator
}

// NewModule creates a new subscriptions module.
func NewModule(pool *pgxpool.Pool, cat *catalog.Repository, bus events.Bus, val *validator.Validator) *Module {
	return &Module{
		Repo:    NewRepository(pool),
		catalog: cat,
		bus:     bus,
		val:     val,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "subscriptions"
}

// RegisterRoutes registers the module's routes under /api/v1/subscriptions
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/subscriptions")
	group.POST("", m.create)
	group.GET("/me", m.getMine)
}

// create handles POST /api/v1/subscriptions. The subscription starts
// pending; the payment flow activates it once settled.
func (m *Module) create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return
	}

	plan, err := m.catalog.PlanByID(c.Request.Context(), *tenantID, req.PlanID)
	if httpkit.HandleError(c, err) {
		return
	}

	start := time.Now()
	end := start.AddDate(0, 1, 0)
	if plan.Interval == "YEARLY" {
		end = start.AddDate(1, 0, 0)
	}

	sub, err := m.Repo.Create(c.Request.Context(), CreateParams{
		TenantID: *tenantID,
		UserID:   identity.UserID(),
		PlanID:   plan.ID,
		Status:   StatusPending,
		Credits:  plan.Credits,
		Start:    start,
		End:      end,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, toResponse(sub))
}

// getMine handles GET /api/v1/subscriptions/me
func (m *Module) getMine(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return
	}

	sub, err := m.Repo.GetActiveForUser(c.Request.Context(), *tenantID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toResponse(sub))
}

func toResponse(sub Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:               sub.ID,
		PlanID:           sub.PlanID,
		Status:           sub.Status,
		CreditsRemaining: sub.CreditsRemaining,
		StartDate:        sub.StartDate,
		EndDate:          sub.EndDate,
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

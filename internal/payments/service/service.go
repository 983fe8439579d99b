// Package service implements direct payment creation, hosted checkout
// sessions and webhook reconciliation.
package service

import (
	"context"
	"fmt"

	apptservice "reserva_backend/internal/appointments/service"
	appttransport "reserva_backend/internal/appointments/transport"
	"reserva_backend/internal/catalog"
	"reserva_backend/internal/events"
	"reserva_backend/internal/mercadopago"
	"reserva_backend/internal/payments/repository"
	"reserva_backend/internal/payments/transport"
	"reserva_backend/internal/subscriptions"
	"reserva_backend/internal/tenants"
	"reserva_backend/platform/apperr"
	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the persistence surface the service needs.
type Repository interface {
	Create(ctx context.Context, params repository.CreateParams) (repository.Payment, error)
	HasCompletedForAppointment(ctx context.Context, tenantID, appointmentID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]repository.Payment, error)
}

// AppointmentDirectory is the slice of the appointments module the payment
// flows need: reading a booking for checkout itemization and confirming it
// after settlement.
type AppointmentDirectory interface {
	GetByID(ctx context.Context, requester apptservice.Requester, tenantID, id uuid.UUID) (appttransport.AppointmentResponse, error)
	UpdateStatus(ctx context.Context, requester apptservice.Requester, tenantID, id uuid.UUID, status appttransport.AppointmentStatus) (appttransport.AppointmentResponse, error)
}

// SubscriptionStore manages subscription activation and credit consumption.
type SubscriptionStore interface {
	ConsumeCredit(ctx context.Context, tenantID, userID uuid.UUID) (subscriptions.Subscription, error)
	Activate(ctx context.Context, tenantID, id uuid.UUID) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (subscriptions.Subscription, error)
}

// Gateway is the external payment gateway client.
type Gateway interface {
	GetPayment(ctx context.Context, accessToken, paymentID string) (mercadopago.Payment, error)
	CreatePreference(ctx context.Context, accessToken string, pref mercadopago.PreferenceRequest) (mercadopago.Preference, error)
}

// CatalogReader resolves the services of an appointment for itemization.
type CatalogReader interface {
	ServicesByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]catalog.Service, error)
}

// Service provides business logic for payments.
type Service struct {
	repo         Repository
	appointments AppointmentDirectory
	subs         SubscriptionStore
	gateway      Gateway
	catalog      CatalogReader
	settings     tenants.SettingsReader
	bus          events.Bus
	cfg          config.PaymentsConfig
	log          *logger.Logger
}

// New creates a new payments service.
func New(
	repo Repository,
	appointments AppointmentDirectory,
	subs SubscriptionStore,
	gateway Gateway,
	cat CatalogReader,
	settings tenants.SettingsReader,
	bus events.Bus,
	cfg config.PaymentsConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		subs:         subs,
		gateway:      gateway,
		catalog:      cat,
		settings:     settings,
		bus:          bus,
		cfg:          cfg,
		log:          log,
	}
}

// CreateDirect settles a cash, card or plan-credit payment. Direct payments
// are treated as instantly completed; there is no pending state outside the
// online flow.
func (s *Service) CreateDirect(ctx context.Context, requester apptservice.Requester, tenantID uuid.UUID, req transport.CreateDirectPaymentRequest) (transport.PaymentResponse, error) {
	userID := requester.UserID
	if req.UserID != nil {
		if requester.Role != apptservice.RoleAdmin && requester.Role != apptservice.RoleService {
			return transport.PaymentResponse{}, apperr.Forbidden("cannot create payments for other users")
		}
		userID = *req.UserID
	}
	if userID == uuid.Nil {
		return transport.PaymentResponse{}, apperr.BadRequest("userId is required")
	}

	params := repository.CreateParams{
		TenantID:       tenantID,
		UserID:         userID,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		Status:         transport.StatusCompleted,
		Type:           req.Type,
		AppointmentID:  req.AppointmentID,
		SubscriptionID: req.SubscriptionID,
	}

	if req.Method == transport.MethodPlanCredit {
		sub, err := s.subs.ConsumeCredit(ctx, tenantID, userID)
		if err != nil {
			return transport.PaymentResponse{}, err
		}
		subID := sub.ID
		params.SubscriptionID = &subID
		params.AmountCents = 0
	} else if req.SubscriptionID != nil {
		// A money payment referencing a subscription settles it.
		if err := s.subs.Activate(ctx, tenantID, *req.SubscriptionID); err != nil {
			return transport.PaymentResponse{}, err
		}
		s.publishActivation(ctx, tenantID, userID, *req.SubscriptionID)
	}

	payment, err := s.repo.Create(ctx, params)
	if err != nil {
		return transport.PaymentResponse{}, err
	}

	s.publishCompleted(ctx, payment)
	return toResponse(payment), nil
}

// ChargePlanCredit settles an appointment against the user's active
// subscription. Called by the appointments module for plan-credit bookings.
func (s *Service) ChargePlanCredit(ctx context.Context, tenantID, userID, appointmentID uuid.UUID) error {
	sub, err := s.subs.ConsumeCredit(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	subID := sub.ID
	apptID := appointmentID
	payment, err := s.repo.Create(ctx, repository.CreateParams{
		TenantID:       tenantID,
		UserID:         userID,
		AmountCents:    0,
		Method:         transport.MethodPlanCredit,
		Status:         transport.StatusCompleted,
		Type:           transport.TypeAppointment,
		AppointmentID:  &apptID,
		SubscriptionID: &subID,
	})
	if err != nil {
		return err
	}

	s.publishCompleted(ctx, payment)
	return nil
}

// CreatePreference builds a hosted checkout session for an appointment,
// itemizing its services and tagging the session with the appointment ID so
// the webhook can correlate the settlement back.
func (s *Service) CreatePreference(ctx context.Context, requester apptservice.Requester, tenantID uuid.UUID, req transport.CreatePreferenceRequest) (transport.PreferenceResponse, error) {
	settings, err := s.settings.GetSettings(ctx, tenantID)
	if err != nil {
		return transport.PreferenceResponse{}, err
	}
	if settings.GatewayToken == "" {
		return transport.PreferenceResponse{}, apperr.BadRequest("payment gateway is not configured for this tenant")
	}

	appt, err := s.appointments.GetByID(ctx, requester, tenantID, req.AppointmentID)
	if err != nil {
		return transport.PreferenceResponse{}, err
	}

	items, err := s.preferenceItems(ctx, tenantID, appt.ServiceIDs)
	if err != nil {
		return transport.PreferenceResponse{}, err
	}

	notificationURL := fmt.Sprintf("%s/api/v1/payments/webhook/mercadopago?tenantId=%s",
		s.cfg.GetWebhookBaseURL(), tenantID)

	pref, err := s.gateway.CreatePreference(ctx, settings.GatewayToken, mercadopago.PreferenceRequest{
		Items:             items,
		ExternalReference: appt.ID.String(),
		NotificationURL:   notificationURL,
	})
	if err != nil {
		return transport.PreferenceResponse{}, err
	}

	return transport.PreferenceResponse{
		PreferenceID: pref.ID,
		CheckoutURL:  pref.InitPoint,
	}, nil
}

func (s *Service) preferenceItems(ctx context.Context, tenantID uuid.UUID, serviceIDs []uuid.UUID) ([]mercadopago.PreferenceItem, error) {
	services, err := s.catalog.ServicesByIDs(ctx, tenantID, serviceIDs)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, apperr.BadRequest("appointment has no billable services")
	}
	items := make([]mercadopago.PreferenceItem, 0, len(services))
	for _, svc := range services {
		items = append(items, mercadopago.PreferenceItem{
			Title:     svc.Name,
			Quantity:  1,
			UnitPrice: float64(svc.PriceCents) / 100,
		})
	}
	return items, nil
}

// HandleWebhook reconciles an inbound gateway notification. Delivery is
// at-least-once and may be duplicated; the existing-completed-payment
// check is the sole deduplication guard. The method never returns an
// error: the gateway must always receive an acknowledgment, otherwise it
// retries in storms. Internal failures are logged and swallowed.
func (s *Service) HandleWebhook(ctx context.Context, tenantID uuid.UUID, req transport.WebhookRequest) transport.WebhookAck {
	if req.Type != "payment" || req.Data.ID == "" {
		// Test pings and non-payment topics are acknowledged untouched.
		return transport.WebhookAck{Status: "received"}
	}

	if err := s.reconcilePayment(ctx, tenantID, req.Data.ID); err != nil {
		s.log.Error("webhook reconciliation failed",
			"tenant_id", tenantID, "gateway_payment_id", req.Data.ID, "error", err.Error())
	}
	return transport.WebhookAck{Status: "ok"}
}

func (s *Service) reconcilePayment(ctx context.Context, tenantID uuid.UUID, gatewayPaymentID string) error {
	settings, err := s.settings.GetSettings(ctx, tenantID)
	if err != nil {
		return err
	}
	if settings.GatewayToken == "" {
		return apperr.BadRequest("payment gateway is not configured for this tenant")
	}

	payment, err := s.gateway.GetPayment(ctx, settings.GatewayToken, gatewayPaymentID)
	if err != nil {
		return err
	}
	if !payment.Approved() {
		s.log.Info("ignoring non-approved gateway payment",
			"tenant_id", tenantID, "gateway_payment_id", gatewayPaymentID, "status", payment.Status)
		return nil
	}
	if payment.ExternalReference == "" {
		return nil
	}

	appointmentID, err := uuid.Parse(payment.ExternalReference)
	if err != nil {
		return fmt.Errorf("invalid external reference %q: %w", payment.ExternalReference, err)
	}

	// Deduplication guard: a completed payment already linked to this
	// appointment means the notification was processed before.
	processed, err := s.repo.HasCompletedForAppointment(ctx, tenantID, appointmentID)
	if err != nil {
		return err
	}
	if processed {
		s.log.Info("duplicate webhook delivery ignored",
			"tenant_id", tenantID, "appointment_id", appointmentID)
		return nil
	}

	appt, err := s.appointments.GetByID(ctx, apptservice.ServiceRequester(), tenantID, appointmentID)
	if err != nil {
		return err
	}
	if appt.Status == appttransport.StatusPending {
		if _, err := s.appointments.UpdateStatus(ctx, apptservice.ServiceRequester(), tenantID, appointmentID, appttransport.StatusConfirmed); err != nil {
			return err
		}
	}

	apptID := appointmentID
	record, err := s.repo.Create(ctx, repository.CreateParams{
		TenantID:      tenantID,
		UserID:        appt.UserID,
		AmountCents:   int64(payment.TransactionAmount * 100),
		Method:        transport.MethodOnline,
		Status:        transport.StatusCompleted,
		Type:          transport.TypeAppointment,
		AppointmentID: &apptID,
	})
	if err != nil {
		return err
	}

	s.publishCompleted(ctx, record)
	return nil
}

// ListMine returns the requester's own payments.
func (s *Service) ListMine(ctx context.Context, requester apptservice.Requester, tenantID uuid.UUID) ([]transport.PaymentResponse, error) {
	payments, err := s.repo.ListForUser(ctx, tenantID, requester.UserID)
	if err != nil {
		return nil, err
	}
	responses := make([]transport.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, toResponse(p))
	}
	return responses, nil
}

func (s *Service) publishCompleted(ctx context.Context, payment repository.Payment) {
	s.bus.Publish(ctx, events.PaymentCompleted{
		BaseEvent:      events.NewBaseEvent(),
		PaymentID:      payment.ID,
		TenantID:       payment.TenantID,
		UserID:         payment.UserID,
		AppointmentID:  payment.AppointmentID,
		SubscriptionID: payment.SubscriptionID,
		AmountCents:    payment.AmountCents,
		Method:         string(payment.Method),
	})
}

func (s *Service) publishActivation(ctx context.Context, tenantID, userID, subscriptionID uuid.UUID) {
	sub, err := s.subs.GetByID(ctx, tenantID, subscriptionID)
	if err != nil {
		s.log.Error("failed to load activated subscription", "subscription_id", subscriptionID, "error", err.Error())
		return
	}
	s.bus.Publish(ctx, events.SubscriptionActivated{
		BaseEvent:      events.NewBaseEvent(),
		SubscriptionID: sub.ID,
		TenantID:       tenantID,
		UserID:         userID,
		PlanID:         sub.PlanID,
	})
}

func toResponse(payment repository.Payment) transport.PaymentResponse {
	return transport.PaymentResponse{
		ID:             payment.ID,
		UserID:         payment.UserID,
		AmountCents:    payment.AmountCents,
		Method:         payment.Method,
		Status:         payment.Status,
		Type:           payment.Type,
		AppointmentID:  payment.AppointmentID,
		SubscriptionID: payment.SubscriptionID,
		CreatedAt:      payment.CreatedAt,
	}
}

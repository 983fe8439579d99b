// Package service implements the appointment lifecycle and the
// availability engine.
package service

import (
	"context"
	"fmt"
	"time"

	"reserva_backend/internal/appointments/repository"
	"reserva_backend/internal/appointments/transport"
	"reserva_backend/internal/events"
	"reserva_backend/platform/apperr"
	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Repository is the persistence surface the service needs. Implemented by
// repository.Repository; narrowed to an interface so tests can fake it.
type Repository interface {
	Create(ctx context.Context, params repository.CreateParams) (repository.Appointment, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (repository.Appointment, error)
	Update(ctx context.Context, params repository.UpdateParams) (repository.Appointment, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status transport.AppointmentStatus) error
	List(ctx context.Context, params repository.ListParams) (repository.ListResult, error)
	ListForDay(ctx context.Context, tenantID uuid.UUID, dayStart, dayEnd time.Time, professionalID *uuid.UUID) ([]repository.Appointment, error)
	ExistsAt(ctx context.Context, tenantID, professionalID uuid.UUID, date time.Time, excludeID *uuid.UUID) (bool, error)
	StatusesByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]transport.AppointmentStatus, error)
	DeleteManyWithPayments(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// CatalogReader resolves catalog entities owned by another module.
type CatalogReader interface {
	ServiceDuration(ctx context.Context, tenantID, serviceID uuid.UUID) (time.Duration, error)
	ProfessionalEmail(ctx context.Context, tenantID, professionalID uuid.UUID) (string, error)
}

// PlanCreditCharger settles a booking against the user's active
// subscription. Implemented by the payments module; injected after
// construction to break the module cycle.
type PlanCreditCharger interface {
	ChargePlanCredit(ctx context.Context, tenantID, userID, appointmentID uuid.UUID) error
}

// Service provides business logic for appointments.
type Service struct {
	repo       Repository
	catalog    CatalogReader
	bus        events.Bus
	cfg        config.BookingConfig
	log        *logger.Logger
	planCredit PlanCreditCharger
}

// New creates a new appointments service.
func New(repo Repository, catalog CatalogReader, bus events.Bus, cfg config.BookingConfig, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		bus:     bus,
		cfg:     cfg,
		log:     log,
	}
}

// SetPlanCreditCharger wires the payments module in. Optional; when absent
// plan-credit bookings are created without a settlement attempt.
func (s *Service) SetPlanCreditCharger(charger PlanCreditCharger) {
	s.planCredit = charger
}

// Create books an appointment. If a professional is assigned, the exact
// instant is pre-checked for a non-canceled collision; the partial unique
// index closes the remaining race between check and insert.
func (s *Service) Create(ctx context.Context, requester Requester, tenantID uuid.UUID, req transport.CreateAppointmentRequest) (transport.AppointmentResponse, error) {
	userID, err := resolveBookingUser(requester, req.UserID)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}

	if req.ProfessionalID != nil {
		taken, err := s.repo.ExistsAt(ctx, tenantID, *req.ProfessionalID, req.Date, nil)
		if err != nil {
			return transport.AppointmentResponse{}, err
		}
		if taken {
			return transport.AppointmentResponse{}, apperr.Conflict("professional is already booked at this time")
		}
	}

	appt, err := s.repo.Create(ctx, repository.CreateParams{
		TenantID:       tenantID,
		UserID:         userID,
		ProfessionalID: req.ProfessionalID,
		LocationID:     req.LocationID,
		Date:           req.Date,
		Status:         initialStatus(req.PaymentMethod),
		PaymentMethod:  req.PaymentMethod,
		ServiceIDs:     req.ServiceIDs,
	})
	if err != nil {
		return transport.AppointmentResponse{}, err
	}

	if req.PaymentMethod == transport.PaymentMethodPlanCredit && s.planCredit != nil {
		// Best effort: the booking stands even when the credit cannot
		// be consumed.
		if err := s.planCredit.ChargePlanCredit(ctx, tenantID, userID, appt.ID); err != nil {
			s.log.Error("plan credit settlement failed",
				"appointment_id", appt.ID, "user_id", userID, "error", err.Error())
		}
	}

	s.bus.Publish(ctx, events.AppointmentCreated{
		BaseEvent:      events.NewBaseEvent(),
		AppointmentID:  appt.ID,
		TenantID:       tenantID,
		UserID:         userID,
		ProfessionalID: appt.ProfessionalID,
		Date:           appt.Date,
		PaymentMethod:  string(appt.PaymentMethod),
		ServiceIDs:     appt.ServiceIDs,
		Confirmed:      appt.Status == transport.StatusConfirmed,
	})

	return toResponse(appt), nil
}

// GetByID fetches one appointment, enforcing the viewer policy.
func (s *Service) GetByID(ctx context.Context, requester Requester, tenantID, id uuid.UUID) (transport.AppointmentResponse, error) {
	appt, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}

	staffMatches, err := s.staffOwns(ctx, tenantID, requester, appt.ProfessionalID)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}
	if err := authorizeView(requester, appt, staffMatches); err != nil {
		return transport.AppointmentResponse{}, err
	}

	return toResponse(appt), nil
}

// List returns role-scoped appointments: clients see their own, staff see
// appointments assigned to their professional record, admins and service
// callers see everything.
func (s *Service) List(ctx context.Context, requester Requester, tenantID uuid.UUID, req transport.ListAppointmentsRequest) (transport.AppointmentListResponse, error) {
	params := repository.ListParams{TenantID: tenantID}

	switch requester.Role {
	case RoleClient:
		userID := requester.UserID
		params.UserID = &userID
	case RoleStaff:
		email := requester.Email
		if email == "" {
			return transport.AppointmentListResponse{}, apperr.Forbidden("staff account has no email")
		}
		params.ProfessionalEmail = &email
	}

	if req.Date != "" {
		day, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return transport.AppointmentListResponse{}, apperr.BadRequest("date must be formatted YYYY-MM-DD")
		}
		dayStart, dayEnd := dayBounds(day)
		params.DayStart = &dayStart
		params.DayEnd = &dayEnd
	}

	paginated := req.Page > 0 || req.Limit > 0
	if paginated {
		params.Page = req.Page
		if params.Page < 1 {
			params.Page = 1
		}
		params.Limit = clampLimit(req.Limit)
	}

	result, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.AppointmentListResponse{}, err
	}

	resp := transport.AppointmentListResponse{Data: make([]transport.AppointmentResponse, 0, len(result.Items))}
	for _, appt := range result.Items {
		resp.Data = append(resp.Data, toResponse(appt))
	}
	if paginated {
		totalPages := (result.Total + params.Limit - 1) / params.Limit
		resp.Meta = &transport.ListMeta{
			Total:      result.Total,
			Page:       params.Page,
			Limit:      params.Limit,
			TotalPages: totalPages,
		}
	}
	return resp, nil
}

// Update reschedules or reassigns an appointment. When the date or the
// professional changes, availability is re-validated against the target
// instant, excluding the appointment itself.
func (s *Service) Update(ctx context.Context, requester Requester, tenantID, id uuid.UUID, req transport.UpdateAppointmentRequest) (transport.AppointmentResponse, error) {
	appt, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}

	staffMatches, err := s.staffOwns(ctx, tenantID, requester, appt.ProfessionalID)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}
	if err := authorizeUpdate(requester, staffMatches); err != nil {
		return transport.AppointmentResponse{}, err
	}

	targetDate := appt.Date
	if req.Date != nil {
		targetDate = *req.Date
	}
	targetProfessional := appt.ProfessionalID
	if req.ProfessionalID != nil {
		targetProfessional = req.ProfessionalID
	}

	dateChanged := req.Date != nil && !req.Date.Equal(appt.Date)
	professionalChanged := req.ProfessionalID != nil &&
		(appt.ProfessionalID == nil || *req.ProfessionalID != *appt.ProfessionalID)

	if (dateChanged || professionalChanged) && targetProfessional != nil {
		taken, err := s.repo.ExistsAt(ctx, tenantID, *targetProfessional, targetDate, &id)
		if err != nil {
			return transport.AppointmentResponse{}, err
		}
		if taken {
			return transport.AppointmentResponse{}, apperr.Conflict("professional is already booked at this time")
		}
	}

	updated, err := s.repo.Update(ctx, repository.UpdateParams{
		TenantID:       tenantID,
		ID:             id,
		Date:           req.Date,
		ProfessionalID: req.ProfessionalID,
		LocationID:     req.LocationID,
		ServiceIDs:     req.ServiceIDs,
	})
	if err != nil {
		return transport.AppointmentResponse{}, err
	}
	return toResponse(updated), nil
}

// UpdateStatus performs a state transition. Clients may only cancel their
// own appointments; staff may only act on appointments assigned to them.
// Invalid transitions, including any move out of a terminal state, are
// rejected.
func (s *Service) UpdateStatus(ctx context.Context, requester Requester, tenantID, id uuid.UUID, newStatus transport.AppointmentStatus) (transport.AppointmentResponse, error) {
	appt, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}

	staffMatches, err := s.staffOwns(ctx, tenantID, requester, appt.ProfessionalID)
	if err != nil {
		return transport.AppointmentResponse{}, err
	}
	if err := authorizeStatusChange(requester, appt, newStatus, staffMatches); err != nil {
		return transport.AppointmentResponse{}, err
	}

	if !CanTransition(appt.Status, newStatus) {
		return transport.AppointmentResponse{}, apperr.Conflict(
			fmt.Sprintf("cannot transition appointment from %s to %s", appt.Status, newStatus))
	}

	if err := s.repo.UpdateStatus(ctx, tenantID, id, newStatus); err != nil {
		return transport.AppointmentResponse{}, err
	}

	s.bus.Publish(ctx, events.AppointmentStatusChanged{
		BaseEvent:      events.NewBaseEvent(),
		AppointmentID:  appt.ID,
		TenantID:       tenantID,
		UserID:         appt.UserID,
		ProfessionalID: appt.ProfessionalID,
		Date:           appt.Date,
		OldStatus:      string(appt.Status),
		NewStatus:      string(newStatus),
	})

	appt.Status = newStatus
	return toResponse(appt), nil
}

// DeleteMany removes a batch of appointments and their payments in one
// transaction. Admin only; the whole batch is rejected when any target is
// completed.
func (s *Service) DeleteMany(ctx context.Context, requester Requester, tenantID uuid.UUID, ids []uuid.UUID) (transport.DeleteManyResponse, error) {
	if err := authorizeDeleteMany(requester); err != nil {
		return transport.DeleteManyResponse{}, err
	}

	statuses, err := s.repo.StatusesByIDs(ctx, tenantID, ids)
	if err != nil {
		return transport.DeleteManyResponse{}, err
	}
	for id, status := range statuses {
		if status == transport.StatusCompleted {
			return transport.DeleteManyResponse{}, apperr.BadRequest(
				fmt.Sprintf("appointment %s is completed and cannot be deleted", id))
		}
	}

	deleted, err := s.repo.DeleteManyWithPayments(ctx, tenantID, ids)
	if err != nil {
		return transport.DeleteManyResponse{}, err
	}
	return transport.DeleteManyResponse{Deleted: deleted}, nil
}

// AvailableSlots computes the open start times for a day on the slot grid.
// Read-only snapshot; the creation path re-validates.
func (s *Service) AvailableSlots(ctx context.Context, tenantID uuid.UUID, req transport.GetAvailableSlotsRequest) (transport.AvailableSlotsResponse, error) {
	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return transport.AvailableSlotsResponse{}, apperr.BadRequest("date must be formatted YYYY-MM-DD")
	}

	duration := s.cfg.GetDefaultServiceDuration()
	if req.ServiceID != nil {
		duration, err = s.catalog.ServiceDuration(ctx, tenantID, *req.ServiceID)
		if err != nil {
			return transport.AvailableSlotsResponse{}, err
		}
	}

	dayStart, dayEnd := dayBounds(day)
	existing, err := s.repo.ListForDay(ctx, tenantID, dayStart, dayEnd, req.ProfessionalID)
	if err != nil {
		return transport.AvailableSlotsResponse{}, err
	}

	busy := make([]interval, 0, len(existing))
	for _, appt := range existing {
		busy = append(busy, interval{
			start: appt.Date,
			end:   appt.Date.Add(s.appointmentDuration(appt)),
		})
	}

	windowStart := day.Add(s.cfg.GetBookingDayStart())
	windowEnd := day.Add(s.cfg.GetBookingDayEnd())
	slots := slotsForWindow(windowStart, windowEnd, s.cfg.GetSlotStep(), duration, busy)

	return transport.AvailableSlotsResponse{Date: req.Date, Slots: slots}, nil
}

// appointmentDuration is the sum of the appointment's service durations,
// falling back to the configured default when no services are linked.
func (s *Service) appointmentDuration(appt repository.Appointment) time.Duration {
	if appt.ServiceDurationMin > 0 {
		return time.Duration(appt.ServiceDurationMin) * time.Minute
	}
	return s.cfg.GetDefaultServiceDuration()
}

// staffOwns resolves whether a staff requester's email matches the
// assigned professional's email. Other roles never need the lookup.
func (s *Service) staffOwns(ctx context.Context, tenantID uuid.UUID, requester Requester, professionalID *uuid.UUID) (bool, error) {
	if requester.Role != RoleStaff || professionalID == nil {
		return false, nil
	}
	email, err := s.catalog.ProfessionalEmail(ctx, tenantID, *professionalID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return emailsMatch(email, requester.Email), nil
}

func resolveBookingUser(requester Requester, requested *uuid.UUID) (uuid.UUID, error) {
	if requester.Role == RoleClient {
		// Clients always book for themselves.
		return requester.UserID, nil
	}
	if requested != nil {
		return *requested, nil
	}
	if requester.UserID != uuid.Nil {
		return requester.UserID, nil
	}
	return uuid.Nil, apperr.BadRequest("userId is required")
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24*time.Hour - time.Millisecond)
	return start, end
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func toResponse(appt repository.Appointment) transport.AppointmentResponse {
	serviceIDs := appt.ServiceIDs
	if serviceIDs == nil {
		serviceIDs = []uuid.UUID{}
	}
	return transport.AppointmentResponse{
		ID:             appt.ID,
		UserID:         appt.UserID,
		ProfessionalID: appt.ProfessionalID,
		LocationID:     appt.LocationID,
		Date:           appt.Date,
		Status:         appt.Status,
		PaymentMethod:  appt.PaymentMethod,
		ServiceIDs:     serviceIDs,
		CreatedAt:      appt.CreatedAt,
		UpdatedAt:      appt.UpdatedAt,
	}
}

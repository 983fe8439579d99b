package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"reserva_backend/internal/appointments/repository"
	"reserva_backend/internal/appointments/transport"
	"reserva_backend/platform/apperr"
	"reserva_backend/platform/events"
	"reserva_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]repository.Appointment
	deletedCount int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{appointments: make(map[uuid.UUID]repository.Appointment)}
}

func (f *fakeRepo) put(appt repository.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appointments[appt.ID] = appt
}

func (f *fakeRepo) Create(_ context.Context, params repository.CreateParams) (repository.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt := repository.Appointment{
		ID:             uuid.New(),
		TenantID:       params.TenantID,
		UserID:         params.UserID,
		ProfessionalID: params.ProfessionalID,
		LocationID:     params.LocationID,
		Date:           params.Date,
		Status:         params.Status,
		PaymentMethod:  params.PaymentMethod,
		ServiceIDs:     params.ServiceIDs,
	}
	f.appointments[appt.ID] = appt
	return appt, nil
}

func (f *fakeRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (repository.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[id]
	if !ok || appt.TenantID != tenantID {
		return repository.Appointment{}, apperr.NotFound("appointment not found")
	}
	return appt, nil
}

func (f *fakeRepo) Update(_ context.Context, params repository.UpdateParams) (repository.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[params.ID]
	if !ok || appt.TenantID != params.TenantID {
		return repository.Appointment{}, apperr.NotFound("appointment not found")
	}
	if params.Date != nil {
		appt.Date = *params.Date
	}
	if params.ProfessionalID != nil {
		appt.ProfessionalID = params.ProfessionalID
	}
	if params.LocationID != nil {
		appt.LocationID = params.LocationID
	}
	if params.ServiceIDs != nil {
		appt.ServiceIDs = *params.ServiceIDs
	}
	f.appointments[params.ID] = appt
	return appt, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, status transport.AppointmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[id]
	if !ok || appt.TenantID != tenantID {
		return apperr.NotFound("appointment not found")
	}
	appt.Status = status
	f.appointments[id] = appt
	return nil
}

func (f *fakeRepo) List(_ context.Context, params repository.ListParams) (repository.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []repository.Appointment
	for _, appt := range f.appointments {
		if appt.TenantID != params.TenantID {
			continue
		}
		if params.UserID != nil && appt.UserID != *params.UserID {
			continue
		}
		items = append(items, appt)
	}
	return repository.ListResult{Items: items, Total: len(items)}, nil
}

func (f *fakeRepo) ListForDay(_ context.Context, tenantID uuid.UUID, dayStart, dayEnd time.Time, professionalID *uuid.UUID) ([]repository.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []repository.Appointment
	for _, appt := range f.appointments {
		if appt.TenantID != tenantID || appt.Status == transport.StatusCanceled {
			continue
		}
		if appt.Date.Before(dayStart) || appt.Date.After(dayEnd) {
			continue
		}
		if professionalID != nil && (appt.ProfessionalID == nil || *appt.ProfessionalID != *professionalID) {
			continue
		}
		items = append(items, appt)
	}
	return items, nil
}

func (f *fakeRepo) ExistsAt(_ context.Context, tenantID, professionalID uuid.UUID, date time.Time, excludeID *uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, appt := range f.appointments {
		if appt.TenantID != tenantID || appt.Status == transport.StatusCanceled {
			continue
		}
		if appt.ProfessionalID == nil || *appt.ProfessionalID != professionalID {
			continue
		}
		if excludeID != nil && appt.ID == *excludeID {
			continue
		}
		if appt.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) StatusesByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]transport.AppointmentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := make(map[uuid.UUID]transport.AppointmentStatus)
	for _, id := range ids {
		if appt, ok := f.appointments[id]; ok && appt.TenantID == tenantID {
			statuses[id] = appt.Status
		}
	}
	return statuses, nil
}

func (f *fakeRepo) DeleteManyWithPayments(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if appt, ok := f.appointments[id]; ok && appt.TenantID == tenantID {
			delete(f.appointments, id)
			deleted++
		}
	}
	f.deletedCount = deleted
	return deleted, nil
}

// fakeCatalog resolves service durations and professional emails from maps.
type fakeCatalog struct {
	durations map[uuid.UUID]time.Duration
	emails    map[uuid.UUID]string
}

func (f *fakeCatalog) ServiceDuration(_ context.Context, _, serviceID uuid.UUID) (time.Duration, error) {
	d, ok := f.durations[serviceID]
	if !ok {
		return 0, apperr.NotFound("service not found")
	}
	return d, nil
}

func (f *fakeCatalog) ProfessionalEmail(_ context.Context, _, professionalID uuid.UUID) (string, error) {
	email, ok := f.emails[professionalID]
	if !ok {
		return "", apperr.NotFound("professional not found")
	}
	return email, nil
}

// recordBus captures published events synchronously.
type recordBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordBus) Subscribe(string, events.Handler) {}

func (b *recordBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.events))
	for _, e := range b.events {
		names = append(names, e.EventName())
	}
	return names
}

// bookingCfg is a fixed booking window for tests.
type bookingCfg struct{}

func (bookingCfg) GetBookingDayStart() time.Duration        { return 9 * time.Hour }
func (bookingCfg) GetBookingDayEnd() time.Duration          { return 18 * time.Hour }
func (bookingCfg) GetSlotStep() time.Duration               { return 30 * time.Minute }
func (bookingCfg) GetDefaultServiceDuration() time.Duration { return 60 * time.Minute }

type chargeRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *chargeRecorder) ChargePlanCredit(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func newTestService(repo *fakeRepo, catalog *fakeCatalog, bus *recordBus) *Service {
	if catalog == nil {
		catalog = &fakeCatalog{}
	}
	return New(repo, catalog, bus, bookingCfg{}, logger.New("development"))
}

func TestCreate_NonOnlinePaymentConfirmsImmediately(t *testing.T) {
	repo := newFakeRepo()
	bus := &recordBus{}
	svc := newTestService(repo, nil, bus)
	tenantID := uuid.New()
	client := Requester{UserID: uuid.New(), Role: RoleClient}

	result, err := svc.Create(context.Background(), client, tenantID, transport.CreateAppointmentRequest{
		Date:          day(10, 0),
		PaymentMethod: transport.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != transport.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", result.Status)
	}
	if result.UserID != client.UserID {
		t.Fatalf("expected booking for the requesting client, got user %s", result.UserID)
	}
	names := bus.names()
	if len(names) != 1 || names[0] != "appointments.created" {
		t.Fatalf("expected one appointments.created event, got %v", names)
	}
}

func TestCreate_OnlinePaymentStaysPending(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})

	result, err := svc.Create(context.Background(), Requester{UserID: uuid.New(), Role: RoleClient}, uuid.New(), transport.CreateAppointmentRequest{
		Date:          day(10, 0),
		PaymentMethod: transport.PaymentMethodOnline,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != transport.StatusPending {
		t.Fatalf("expected PENDING, got %s", result.Status)
	}
}

func TestCreate_ProfessionalAlreadyBooked(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	professionalID := uuid.New()
	repo.put(repository.Appointment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		UserID:         uuid.New(),
		ProfessionalID: &professionalID,
		Date:           day(10, 0),
		Status:         transport.StatusConfirmed,
	})

	_, err := svc.Create(context.Background(), Requester{UserID: uuid.New(), Role: RoleClient}, tenantID, transport.CreateAppointmentRequest{
		ProfessionalID: &professionalID,
		Date:           day(10, 0),
		PaymentMethod:  transport.PaymentMethodCash,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreate_CanceledAppointmentFreesSlot(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	professionalID := uuid.New()
	repo.put(repository.Appointment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		UserID:         uuid.New(),
		ProfessionalID: &professionalID,
		Date:           day(10, 0),
		Status:         transport.StatusCanceled,
	})

	_, err := svc.Create(context.Background(), Requester{UserID: uuid.New(), Role: RoleClient}, tenantID, transport.CreateAppointmentRequest{
		ProfessionalID: &professionalID,
		Date:           day(10, 0),
		PaymentMethod:  transport.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_PlanCreditFailureDoesNotFailBooking(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	charger := &chargeRecorder{err: apperr.BadRequest("no credits remaining")}
	svc.SetPlanCreditCharger(charger)

	result, err := svc.Create(context.Background(), Requester{UserID: uuid.New(), Role: RoleClient}, uuid.New(), transport.CreateAppointmentRequest{
		Date:          day(11, 0),
		PaymentMethod: transport.PaymentMethodPlanCredit,
	})
	if err != nil {
		t.Fatalf("booking should survive a failed credit charge, got %v", err)
	}
	if result.Status != transport.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", result.Status)
	}
	if charger.calls != 1 {
		t.Fatalf("expected 1 charge attempt, got %d", charger.calls)
	}
}

func TestUpdateStatus_ClientMayOnlyCancelOwnAppointment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	owner := uuid.New()
	appt := repository.Appointment{
		ID:       uuid.New(),
		TenantID: tenantID,
		UserID:   owner,
		Date:     day(10, 0),
		Status:   transport.StatusConfirmed,
	}
	repo.put(appt)

	// Client transitioning to anything other than CANCELED is forbidden.
	_, err := svc.UpdateStatus(context.Background(), Requester{UserID: owner, Role: RoleClient}, tenantID, appt.ID, transport.StatusCompleted)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for client completing, got %v", err)
	}

	// A different client cancelling someone else's appointment is forbidden.
	_, err = svc.UpdateStatus(context.Background(), Requester{UserID: uuid.New(), Role: RoleClient}, tenantID, appt.ID, transport.StatusCanceled)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for foreign cancel, got %v", err)
	}

	// The owner cancelling is allowed.
	result, err := svc.UpdateStatus(context.Background(), Requester{UserID: owner, Role: RoleClient}, tenantID, appt.ID, transport.StatusCanceled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != transport.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", result.Status)
	}
}

func TestUpdateStatus_TerminalStatesAreFinal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	admin := Requester{UserID: uuid.New(), Role: RoleAdmin}

	for _, terminal := range []transport.AppointmentStatus{transport.StatusCanceled, transport.StatusCompleted} {
		appt := repository.Appointment{
			ID:       uuid.New(),
			TenantID: tenantID,
			UserID:   uuid.New(),
			Date:     day(10, 0),
			Status:   terminal,
		}
		repo.put(appt)

		_, err := svc.UpdateStatus(context.Background(), admin, tenantID, appt.ID, transport.StatusConfirmed)
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("expected conflict leaving %s, got %v", terminal, err)
		}
	}
}

func TestUpdateStatus_StaffLimitedToAssignedAppointments(t *testing.T) {
	professionalID := uuid.New()
	repo := newFakeRepo()
	catalog := &fakeCatalog{emails: map[uuid.UUID]string{professionalID: "staff@clinic.test"}}
	svc := newTestService(repo, catalog, &recordBus{})
	tenantID := uuid.New()
	appt := repository.Appointment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		UserID:         uuid.New(),
		ProfessionalID: &professionalID,
		Date:           day(10, 0),
		Status:         transport.StatusConfirmed,
	}
	repo.put(appt)

	_, err := svc.UpdateStatus(context.Background(), Requester{UserID: uuid.New(), Role: RoleStaff, Email: "other@clinic.test"}, tenantID, appt.ID, transport.StatusCompleted)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for unassigned staff, got %v", err)
	}

	// Email comparison is case-insensitive.
	result, err := svc.UpdateStatus(context.Background(), Requester{UserID: uuid.New(), Role: RoleStaff, Email: "Staff@Clinic.Test"}, tenantID, appt.ID, transport.StatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != transport.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}
}

func TestUpdate_ClientsCannotEdit(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	owner := uuid.New()
	appt := repository.Appointment{
		ID:       uuid.New(),
		TenantID: tenantID,
		UserID:   owner,
		Date:     day(10, 0),
		Status:   transport.StatusConfirmed,
	}
	repo.put(appt)

	newDate := day(11, 0)
	_, err := svc.Update(context.Background(), Requester{UserID: owner, Role: RoleClient}, tenantID, appt.ID, transport.UpdateAppointmentRequest{Date: &newDate})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdate_RescheduleConflictExcludesSelf(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	professionalID := uuid.New()
	admin := Requester{UserID: uuid.New(), Role: RoleAdmin}

	appt := repository.Appointment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		UserID:         uuid.New(),
		ProfessionalID: &professionalID,
		Date:           day(10, 0),
		Status:         transport.StatusConfirmed,
	}
	other := repository.Appointment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		UserID:         uuid.New(),
		ProfessionalID: &professionalID,
		Date:           day(11, 0),
		Status:         transport.StatusConfirmed,
	}
	repo.put(appt)
	repo.put(other)

	// Moving onto another booking conflicts.
	conflictDate := day(11, 0)
	_, err := svc.Update(context.Background(), admin, tenantID, appt.ID, transport.UpdateAppointmentRequest{Date: &conflictDate})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Re-submitting the appointment's own instant does not self-conflict.
	sameDate := day(10, 0)
	if _, err := svc.Update(context.Background(), admin, tenantID, appt.ID, transport.UpdateAppointmentRequest{Date: &sameDate}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteMany_RejectsBatchWithCompleted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	admin := Requester{UserID: uuid.New(), Role: RoleAdmin}

	var ids []uuid.UUID
	for _, status := range []transport.AppointmentStatus{
		transport.StatusPending, transport.StatusPending, transport.StatusPending, transport.StatusCompleted,
	} {
		appt := repository.Appointment{
			ID:       uuid.New(),
			TenantID: tenantID,
			UserID:   uuid.New(),
			Date:     day(10, 0),
			Status:   status,
		}
		repo.put(appt)
		ids = append(ids, appt.ID)
	}

	_, err := svc.DeleteMany(context.Background(), admin, tenantID, ids)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if len(repo.appointments) != 4 {
		t.Fatalf("expected zero deletions, %d rows remain", len(repo.appointments))
	}
}

func TestDeleteMany_AdminOnly(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})

	for _, role := range []Role{RoleClient, RoleStaff, RoleService} {
		_, err := svc.DeleteMany(context.Background(), Requester{UserID: uuid.New(), Role: role}, uuid.New(), []uuid.UUID{uuid.New()})
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("expected forbidden for role %s, got %v", role, err)
		}
	}
}

func TestDeleteMany_DeletesBatch(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	admin := Requester{UserID: uuid.New(), Role: RoleAdmin}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		appt := repository.Appointment{
			ID:       uuid.New(),
			TenantID: tenantID,
			UserID:   uuid.New(),
			Date:     day(10, 0),
			Status:   transport.StatusPending,
		}
		repo.put(appt)
		ids = append(ids, appt.ID)
	}

	result, err := svc.DeleteMany(context.Background(), admin, tenantID, ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", result.Deleted)
	}
}

func TestAvailableSlots_UsesServiceDurationAndExistingBookings(t *testing.T) {
	serviceID := uuid.New()
	professionalID := uuid.New()
	repo := newFakeRepo()
	catalog := &fakeCatalog{durations: map[uuid.UUID]time.Duration{serviceID: 30 * time.Minute}}
	svc := newTestService(repo, catalog, &recordBus{})
	tenantID := uuid.New()

	// Existing 30-minute booking at 10:00.
	repo.put(repository.Appointment{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		UserID:             uuid.New(),
		ProfessionalID:     &professionalID,
		Date:               day(10, 0),
		Status:             transport.StatusConfirmed,
		ServiceDurationMin: 30,
	})

	result, err := svc.AvailableSlots(context.Background(), tenantID, transport.GetAvailableSlotsRequest{
		Date:           "2025-06-02",
		ServiceID:      &serviceID,
		ProfessionalID: &professionalID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsSlot(result.Slots, "09:30") {
		t.Fatalf("expected 09:30 available, got %v", result.Slots)
	}
	if containsSlot(result.Slots, "10:00") {
		t.Fatalf("expected 10:00 taken, got %v", result.Slots)
	}
	if !containsSlot(result.Slots, "10:30") {
		t.Fatalf("expected 10:30 available, got %v", result.Slots)
	}
}

func TestAvailableSlots_InvalidDate(t *testing.T) {
	svc := newTestService(newFakeRepo(), nil, &recordBus{})

	_, err := svc.AvailableSlots(context.Background(), uuid.New(), transport.GetAvailableSlotsRequest{Date: "02-06-2025"})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestAvailableSlots_DefaultDurationWithoutService(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})

	result, err := svc.AvailableSlots(context.Background(), uuid.New(), transport.GetAvailableSlotsRequest{Date: "2025-06-02"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 60-minute default: last start that still fits before 18:00 is 17:00.
	if result.Slots[len(result.Slots)-1] != "17:00" {
		t.Fatalf("expected last slot 17:00, got %s", result.Slots[len(result.Slots)-1])
	}
}

func TestList_ClientScopedToOwnAppointments(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, &recordBus{})
	tenantID := uuid.New()
	owner := uuid.New()

	repo.put(repository.Appointment{ID: uuid.New(), TenantID: tenantID, UserID: owner, Date: day(10, 0), Status: transport.StatusConfirmed})
	repo.put(repository.Appointment{ID: uuid.New(), TenantID: tenantID, UserID: uuid.New(), Date: day(11, 0), Status: transport.StatusConfirmed})

	result, err := svc.List(context.Background(), Requester{UserID: owner, Role: RoleClient}, tenantID, transport.ListAppointmentsRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Data) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(result.Data))
	}
	if result.Data[0].UserID != owner {
		t.Fatalf("expected owner's appointment, got user %s", result.Data[0].UserID)
	}
	if result.Meta != nil {
		t.Fatal("expected no pagination meta for unpaginated call")
	}
}

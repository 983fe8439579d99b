// Package repository provides data access for the appointments domain.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reserva_backend/internal/appointments/transport"
	"reserva_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Appointment is the persistence model for an appointment row with its
// service associations aggregated in.
type Appointment struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	UserID             uuid.UUID
	ProfessionalID     *uuid.UUID
	LocationID         *uuid.UUID
	Date               time.Time
	Status             transport.AppointmentStatus
	PaymentMethod      transport.PaymentMethod
	ServiceIDs         []uuid.UUID
	ServiceDurationMin int // sum of linked service durations, 0 when none
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateParams are the fields required to insert an appointment.
type CreateParams struct {
	TenantID       uuid.UUID
	UserID         uuid.UUID
	ProfessionalID *uuid.UUID
	LocationID     *uuid.UUID
	Date           time.Time
	Status         transport.AppointmentStatus
	PaymentMethod  transport.PaymentMethod
	ServiceIDs     []uuid.UUID
}

// UpdateParams are the mutable fields of an appointment. Nil fields are
// left untouched; a non-nil ServiceIDs replaces the association set.
type UpdateParams struct {
	TenantID       uuid.UUID
	ID             uuid.UUID
	Date           *time.Time
	ProfessionalID *uuid.UUID
	LocationID     *uuid.UUID
	ServiceIDs     *[]uuid.UUID
}

// ListParams filter and paginate appointment listings. Page and Limit of
// zero mean an unpaginated query.
type ListParams struct {
	TenantID          uuid.UUID
	UserID            *uuid.UUID
	ProfessionalEmail *string
	DayStart          *time.Time
	DayEnd            *time.Time
	Page              int
	Limit             int
}

// ListResult carries a page of appointments with the unpaginated total.
type ListResult struct {
	Items []Appointment
	Total int
}

// Repository provides database operations for appointments.
type Repository struct {
	pool *pgxpool.Pool
}

const (
	appointmentNotFoundMsg = "appointment not found"
	slotTakenMsg           = "professional is already booked at this time"
)

// New creates a new appointments repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `
	a.id, a.tenant_id, a.user_id, a.professional_id, a.location_id,
	a.date, a.status, a.payment_method, a.created_at, a.updated_at,
	COALESCE(array_agg(aps.service_id) FILTER (WHERE aps.service_id IS NOT NULL), '{}') AS service_ids,
	COALESCE(SUM(s.duration_minutes), 0)::int AS service_duration_min`

const appointmentJoins = `
	LEFT JOIN appointment_services aps ON aps.appointment_id = a.id
	LEFT JOIN services s ON s.id = aps.service_id`

const appointmentGroupBy = `
	GROUP BY a.id`

// Create inserts an appointment and its service associations in one
// transaction. A unique-index violation on the professional/instant pair
// surfaces as a Conflict.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("begin create appointment: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (tenant_id, user_id, professional_id, location_id, date, status, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		params.TenantID, params.UserID, params.ProfessionalID, params.LocationID,
		params.Date, params.Status, params.PaymentMethod,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, apperr.Conflict(slotTakenMsg)
		}
		return Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	for _, serviceID := range params.ServiceIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointment_services (appointment_id, service_id) VALUES ($1, $2)`,
			id, serviceID,
		); err != nil {
			return Appointment{}, fmt.Errorf("insert appointment service: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, apperr.Conflict(slotTakenMsg)
		}
		return Appointment{}, fmt.Errorf("commit create appointment: %w", err)
	}

	return r.GetByID(ctx, params.TenantID, id)
}

// GetByID fetches a single appointment scoped to the tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a`+appointmentJoins+`
		WHERE a.tenant_id = $1 AND a.id = $2`+appointmentGroupBy,
		tenantID, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, apperr.NotFound(appointmentNotFoundMsg)
		}
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// Update applies the non-nil fields and replaces the service set when
// provided. Returns the refreshed appointment.
func (r *Repository) Update(ctx context.Context, params UpdateParams) (Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("begin update appointment: %w", err)
	}
	defer tx.Rollback(ctx)

	sets := []string{"updated_at = now()"}
	args := []interface{}{params.TenantID, params.ID}
	argIndex := 3

	addSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if params.Date != nil {
		addSet("date", *params.Date)
	}
	if params.ProfessionalID != nil {
		addSet("professional_id", *params.ProfessionalID)
	}
	if params.LocationID != nil {
		addSet("location_id", *params.LocationID)
	}

	query := fmt.Sprintf(`
		UPDATE appointments SET %s
		WHERE tenant_id = $1 AND id = $2`, strings.Join(sets, ", "))
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, apperr.Conflict(slotTakenMsg)
		}
		return Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Appointment{}, apperr.NotFound(appointmentNotFoundMsg)
	}

	if params.ServiceIDs != nil {
		if _, err := tx.Exec(ctx, `
			DELETE FROM appointment_services WHERE appointment_id = $1`, params.ID); err != nil {
			return Appointment{}, fmt.Errorf("clear appointment services: %w", err)
		}
		for _, serviceID := range *params.ServiceIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO appointment_services (appointment_id, service_id) VALUES ($1, $2)`,
				params.ID, serviceID,
			); err != nil {
				return Appointment{}, fmt.Errorf("insert appointment service: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, apperr.Conflict(slotTakenMsg)
		}
		return Appointment{}, fmt.Errorf("commit update appointment: %w", err)
	}

	return r.GetByID(ctx, params.TenantID, params.ID)
}

// UpdateStatus sets the status of an appointment.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status transport.AppointmentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

// List returns appointments filtered by the params. Paginated queries run
// the count and page queries concurrently and order most recent first;
// unpaginated queries return everything ordered by date ascending.
func (r *Repository) List(ctx context.Context, params ListParams) (ListResult, error) {
	where := []string{"a.tenant_id = $1"}
	args := []interface{}{params.TenantID}
	argIndex := 2

	addFilter := func(clause string, value interface{}) {
		where = append(where, fmt.Sprintf(clause, argIndex))
		args = append(args, value)
		argIndex++
	}

	if params.UserID != nil {
		addFilter("a.user_id = $%d", *params.UserID)
	}
	if params.ProfessionalEmail != nil {
		addFilter("a.professional_id IN (SELECT id FROM professionals WHERE tenant_id = a.tenant_id AND email = $%d)", *params.ProfessionalEmail)
	}
	if params.DayStart != nil {
		addFilter("a.date >= $%d", *params.DayStart)
	}
	if params.DayEnd != nil {
		addFilter("a.date <= $%d", *params.DayEnd)
	}

	whereClause := strings.Join(where, " AND ")

	if params.Limit <= 0 {
		rows, err := r.pool.Query(ctx, `
			SELECT`+appointmentColumns+`
			FROM appointments a`+appointmentJoins+`
			WHERE `+whereClause+appointmentGroupBy+`
			ORDER BY a.date ASC`, args...)
		if err != nil {
			return ListResult{}, fmt.Errorf("list appointments: %w", err)
		}
		items, err := collectAppointments(rows)
		if err != nil {
			return ListResult{}, err
		}
		return ListResult{Items: items, Total: len(items)}, nil
	}

	offset := (params.Page - 1) * params.Limit
	pageQuery := fmt.Sprintf(`
		SELECT`+appointmentColumns+`
		FROM appointments a`+appointmentJoins+`
		WHERE `+whereClause+appointmentGroupBy+`
		ORDER BY a.date DESC
		LIMIT %d OFFSET %d`, params.Limit, offset)
	countQuery := `SELECT COUNT(*) FROM appointments a WHERE ` + whereClause

	var (
		items []Appointment
		total int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		rows, err := r.pool.Query(groupCtx, pageQuery, args...)
		if err != nil {
			return fmt.Errorf("list appointments page: %w", err)
		}
		items, err = collectAppointments(rows)
		return err
	})
	group.Go(func() error {
		if err := r.pool.QueryRow(groupCtx, countQuery, args...).Scan(&total); err != nil {
			return fmt.Errorf("count appointments: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return ListResult{}, err
	}

	return ListResult{Items: items, Total: total}, nil
}

// ListForDay returns all non-canceled appointments for a tenant on the
// given day, optionally filtered to one professional.
func (r *Repository) ListForDay(ctx context.Context, tenantID uuid.UUID, dayStart, dayEnd time.Time, professionalID *uuid.UUID) ([]Appointment, error) {
	where := "a.tenant_id = $1 AND a.status <> $2 AND a.date >= $3 AND a.date <= $4"
	args := []interface{}{tenantID, transport.StatusCanceled, dayStart, dayEnd}
	if professionalID != nil {
		where += " AND a.professional_id = $5"
		args = append(args, *professionalID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a`+appointmentJoins+`
		WHERE `+where+appointmentGroupBy+`
		ORDER BY a.date ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments for day: %w", err)
	}
	return collectAppointments(rows)
}

// ExistsAt reports whether a non-canceled appointment exists for the
// professional at the exact instant, excluding one appointment id when
// provided (used by reschedule validation).
func (r *Repository) ExistsAt(ctx context.Context, tenantID, professionalID uuid.UUID, date time.Time, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE tenant_id = $1 AND professional_id = $2 AND date = $3 AND status <> $4`
	args := []interface{}{tenantID, professionalID, date, transport.StatusCanceled}
	if excludeID != nil {
		query += " AND id <> $5"
		args = append(args, *excludeID)
	}
	query += ")"

	var exists bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check appointment slot: %w", err)
	}
	return exists, nil
}

// StatusesByIDs returns the status of each requested appointment that
// exists in the tenant.
func (r *Repository) StatusesByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]transport.AppointmentStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, status FROM appointments
		WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load appointment statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[uuid.UUID]transport.AppointmentStatus, len(ids))
	for rows.Next() {
		var (
			id     uuid.UUID
			status transport.AppointmentStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan appointment status: %w", err)
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

// DeleteManyWithPayments removes the appointments together with their
// linked payments and service associations in one transaction, returning
// the number of appointments deleted.
func (r *Repository) DeleteManyWithPayments(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete appointments: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM payments WHERE tenant_id = $1 AND appointment_id = ANY($2)`,
		tenantID, ids); err != nil {
		return 0, fmt.Errorf("delete appointment payments: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM appointment_services
		WHERE appointment_id IN (SELECT id FROM appointments WHERE tenant_id = $1 AND id = ANY($2))`,
		tenantID, ids); err != nil {
		return 0, fmt.Errorf("delete appointment services: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete appointments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	items := make([]Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		items = append(items, appt)
	}
	return items, rows.Err()
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var appt Appointment
	err := row.Scan(
		&appt.ID, &appt.TenantID, &appt.UserID, &appt.ProfessionalID, &appt.LocationID,
		&appt.Date, &appt.Status, &appt.PaymentMethod, &appt.CreatedAt, &appt.UpdatedAt,
		&appt.ServiceIDs, &appt.ServiceDurationMin,
	)
	return appt, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package transport

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus defines the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCanceled  AppointmentStatus = "CANCELED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

// IsTerminal reports whether no further transition is permitted.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// PaymentMethod defines how an appointment is settled.
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodOnline     PaymentMethod = "ONLINE"
	PaymentMethodPlanCredit PaymentMethod = "PLAN_CREDIT"
)

// CreateAppointmentRequest is the request body for booking an appointment.
// UserID may only be supplied by ADMIN or service callers; clients always
// book for themselves.
type CreateAppointmentRequest struct {
	UserID         *uuid.UUID    `json:"userId,omitempty"`
	ProfessionalID *uuid.UUID    `json:"professionalId,omitempty"`
	LocationID     *uuid.UUID    `json:"locationId,omitempty"`
	Date           time.Time     `json:"date" validate:"required"`
	PaymentMethod  PaymentMethod `json:"paymentMethod" validate:"required,oneof=CASH CREDIT_CARD ONLINE PLAN_CREDIT"`
	ServiceIDs     []uuid.UUID   `json:"serviceIds,omitempty" validate:"max=20"`
}

// UpdateAppointmentRequest is the request body for rescheduling or
// reassigning an appointment. Nil fields are left untouched.
type UpdateAppointmentRequest struct {
	Date           *time.Time   `json:"date,omitempty"`
	ProfessionalID *uuid.UUID   `json:"professionalId,omitempty"`
	LocationID     *uuid.UUID   `json:"locationId,omitempty"`
	ServiceIDs     *[]uuid.UUID `json:"serviceIds,omitempty" validate:"omitempty,max=20"`
}

// UpdateAppointmentStatusRequest is the request body for a status transition.
type UpdateAppointmentStatusRequest struct {
	Status AppointmentStatus `json:"status" validate:"required,oneof=PENDING CONFIRMED CANCELED COMPLETED"`
}

// DeleteManyRequest is the request body for bulk deletion.
type DeleteManyRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=100"`
}

// DeleteManyResponse reports how many appointments were removed.
type DeleteManyResponse struct {
	Deleted int64 `json:"deleted"`
}

// ListAppointmentsRequest is the query parameters for listing appointments.
// Date filters to a single day (YYYY-MM-DD). Page and Limit are optional;
// when absent the full result is returned ordered by date ascending.
type ListAppointmentsRequest struct {
	Date  string `form:"date"`
	Page  int    `form:"page" validate:"omitempty,min=1"`
	Limit int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

// GetAvailableSlotsRequest is the query parameters for slot lookup.
type GetAvailableSlotsRequest struct {
	Date           string     `form:"date" validate:"required"`
	ServiceID      *uuid.UUID `form:"serviceId"`
	ProfessionalID *uuid.UUID `form:"professionalId"`
}

// AvailableSlotsResponse is the ordered list of open start times for a day.
type AvailableSlotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// AppointmentResponse is the response body for an appointment.
type AppointmentResponse struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"userId"`
	ProfessionalID *uuid.UUID        `json:"professionalId,omitempty"`
	LocationID     *uuid.UUID        `json:"locationId,omitempty"`
	Date           time.Time         `json:"date"`
	Status         AppointmentStatus `json:"status"`
	PaymentMethod  PaymentMethod     `json:"paymentMethod"`
	ServiceIDs     []uuid.UUID       `json:"serviceIds"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// ListMeta carries pagination metadata.
type ListMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// AppointmentListResponse is the envelope for listing appointments.
// Meta is only present for paginated calls.
type AppointmentListResponse struct {
	Data []AppointmentResponse `json:"data"`
	Meta *ListMeta             `json:"meta,omitempty"`
}

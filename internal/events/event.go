// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"reserva_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Appointments Domain Events
// =============================================================================

// AppointmentCreated is published when an appointment is booked.
type AppointmentCreated struct {
	BaseEvent
	AppointmentID  uuid.UUID   `json:"appointmentId"`
	TenantID       uuid.UUID   `json:"tenantId"`
	UserID         uuid.UUID   `json:"userId"`
	ProfessionalID *uuid.UUID  `json:"professionalId,omitempty"`
	Date           time.Time   `json:"date"`
	PaymentMethod  string      `json:"paymentMethod"`
	ServiceIDs     []uuid.UUID `json:"serviceIds"`
	Confirmed      bool        `json:"confirmed"`
}

func (e AppointmentCreated) EventName() string { return "appointments.created" }

// AppointmentStatusChanged is published after a successful status transition.
type AppointmentStatusChanged struct {
	BaseEvent
	AppointmentID  uuid.UUID  `json:"appointmentId"`
	TenantID       uuid.UUID  `json:"tenantId"`
	UserID         uuid.UUID  `json:"userId"`
	ProfessionalID *uuid.UUID `json:"professionalId,omitempty"`
	Date           time.Time  `json:"date"`
	OldStatus      string     `json:"oldStatus"`
	NewStatus      string     `json:"newStatus"`
}

func (e AppointmentStatusChanged) EventName() string { return "appointments.status.changed" }

// AppointmentReminderDue is published when a reminder should be sent.
type AppointmentReminderDue struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	TenantID      uuid.UUID `json:"tenantId"`
	UserID        uuid.UUID `json:"userId"`
	Date          time.Time `json:"date"`
}

func (e AppointmentReminderDue) EventName() string { return "appointments.reminder.due" }

// =============================================================================
// Payments Domain Events
// =============================================================================

// PaymentCompleted is published when a payment record reaches COMPLETED.
type PaymentCompleted struct {
	BaseEvent
	PaymentID      uuid.UUID  `json:"paymentId"`
	TenantID       uuid.UUID  `json:"tenantId"`
	UserID         uuid.UUID  `json:"userId"`
	AppointmentID  *uuid.UUID `json:"appointmentId,omitempty"`
	SubscriptionID *uuid.UUID `json:"subscriptionId,omitempty"`
	AmountCents    int64      `json:"amountCents"`
	Method         string     `json:"method"`
}

func (e PaymentCompleted) EventName() string { return "payments.completed" }

// PaymentFailed is published when a gateway reports a failed charge.
type PaymentFailed struct {
	BaseEvent
	TenantID      uuid.UUID  `json:"tenantId"`
	UserID        uuid.UUID  `json:"userId"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	Reason        string     `json:"reason"`
}

func (e PaymentFailed) EventName() string { return "payments.failed" }

// =============================================================================
// Subscriptions Domain Events
// =============================================================================

// SubscriptionActivated is published when a subscription becomes ACTIVE.
type SubscriptionActivated struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	TenantID       uuid.UUID `json:"tenantId"`
	UserID         uuid.UUID `json:"userId"`
	PlanID         uuid.UUID `json:"planId"`
}

func (e SubscriptionActivated) EventName() string { return "subscriptions.activated" }

// SubscriptionStatusChanged is published when a subscription status changes
// for reasons other than activation (e.g. replaced by a newer subscription).
type SubscriptionStatusChanged struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	TenantID       uuid.UUID `json:"tenantId"`
	UserID         uuid.UUID `json:"userId"`
	OldStatus      string    `json:"oldStatus"`
	NewStatus      string    `json:"newStatus"`
}

func (e SubscriptionStatusChanged) EventName() string { return "subscriptions.status.changed" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification
// outbox record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }

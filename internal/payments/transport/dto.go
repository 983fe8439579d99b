package transport

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod defines how a payment was settled.
type PaymentMethod string

const (
	MethodCash       PaymentMethod = "CASH"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodOnline     PaymentMethod = "ONLINE"
	MethodPlanCredit PaymentMethod = "PLAN_CREDIT"
)

// PaymentType links a payment to the entity it settles.
type PaymentType string

const (
	TypeAppointment  PaymentType = "APPOINTMENT"
	TypeSubscription PaymentType = "SUBSCRIPTION"
)

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus string

const (
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusFailed    PaymentStatus = "FAILED"
)

// CreateDirectPaymentRequest is the request body for a cash, card or
// plan-credit payment. UserID may only be supplied by ADMIN callers.
type CreateDirectPaymentRequest struct {
	UserID         *uuid.UUID    `json:"userId,omitempty"`
	AmountCents    int64         `json:"amountCents" validate:"min=0"`
	Method         PaymentMethod `json:"method" validate:"required,oneof=CASH CREDIT_CARD PLAN_CREDIT"`
	Type           PaymentType   `json:"type" validate:"required,oneof=APPOINTMENT SUBSCRIPTION"`
	AppointmentID  *uuid.UUID    `json:"appointmentId,omitempty"`
	SubscriptionID *uuid.UUID    `json:"subscriptionId,omitempty"`
}

// CreatePreferenceRequest is the request body for a hosted checkout session.
type CreatePreferenceRequest struct {
	AppointmentID uuid.UUID `json:"appointmentId" validate:"required"`
}

// PreferenceResponse carries the checkout URL for the client to open.
type PreferenceResponse struct {
	PreferenceID string `json:"preferenceId"`
	CheckoutURL  string `json:"checkoutUrl"`
}

// WebhookRequest is the gateway's notification body.
type WebhookRequest struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// WebhookAck is the acknowledgment body. The webhook endpoint always
// returns 200 with one of these; retriable error codes would cause the
// gateway to storm.
type WebhookAck struct {
	Status string `json:"status"`
}

// PaymentResponse is the response body for a payment record.
type PaymentResponse struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"userId"`
	AmountCents    int64         `json:"amountCents"`
	Method         PaymentMethod `json:"method"`
	Status         PaymentStatus `json:"status"`
	Type           PaymentType   `json:"type"`
	AppointmentID  *uuid.UUID    `json:"appointmentId,omitempty"`
	SubscriptionID *uuid.UUID    `json:"subscriptionId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

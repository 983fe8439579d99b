package service

import (
	"testing"

	"reserva_backend/internal/appointments/transport"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to transport.AppointmentStatus
		want     bool
	}{
		{transport.StatusPending, transport.StatusConfirmed, true},
		{transport.StatusPending, transport.StatusCanceled, true},
		{transport.StatusPending, transport.StatusCompleted, true},
		{transport.StatusConfirmed, transport.StatusCanceled, true},
		{transport.StatusConfirmed, transport.StatusCompleted, true},
		{transport.StatusConfirmed, transport.StatusPending, false},
		{transport.StatusCanceled, transport.StatusPending, false},
		{transport.StatusCanceled, transport.StatusConfirmed, false},
		{transport.StatusCompleted, transport.StatusCanceled, false},
		{transport.StatusCompleted, transport.StatusConfirmed, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	if initialStatus(transport.PaymentMethodOnline) != transport.StatusPending {
		t.Fatal("online payments must start pending")
	}
	for _, m := range []transport.PaymentMethod{
		transport.PaymentMethodCash, transport.PaymentMethodCreditCard, transport.PaymentMethodPlanCredit,
	} {
		if initialStatus(m) != transport.StatusConfirmed {
			t.Fatalf("method %s must confirm immediately", m)
		}
	}
}

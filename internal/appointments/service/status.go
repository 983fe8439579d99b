package service

import "reserva_backend/internal/appointments/transport"

// transitions is the appointment state machine: each status maps to the
// set of statuses it may move to. CANCELED and COMPLETED are terminal.
var transitions = map[transport.AppointmentStatus][]transport.AppointmentStatus{
	transport.StatusPending:   {transport.StatusConfirmed, transport.StatusCanceled, transport.StatusCompleted},
	transport.StatusConfirmed: {transport.StatusCanceled, transport.StatusCompleted},
	transport.StatusCanceled:  {},
	transport.StatusCompleted: {},
}

// CanTransition reports whether moving from one status to another is
// allowed by the state machine.
func CanTransition(from, to transport.AppointmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// initialStatus determines the state a new appointment starts in. Online
// payments stay pending until the gateway webhook confirms them; every
// other method is settled at the counter and confirms immediately.
func initialStatus(method transport.PaymentMethod) transport.AppointmentStatus {
	if method == transport.PaymentMethodOnline {
		return transport.StatusPending
	}
	return transport.StatusConfirmed
}

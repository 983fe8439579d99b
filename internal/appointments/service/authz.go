package service

import (
	"strings"

	"reserva_backend/internal/appointments/repository"
	"reserva_backend/internal/appointments/transport"
	"reserva_backend/platform/apperr"

	"github.com/google/uuid"
)

// Role is the caller's role as carried in the access token.
type Role string

const (
	RoleClient Role = "CLIENT"
	RoleStaff  Role = "STAFF"
	RoleAdmin  Role = "ADMIN"
	// RoleService marks trusted internal callers (webhooks, integrations)
	// that act without a user session.
	RoleService Role = "SERVICE"
)

// Requester identifies who is performing a lifecycle operation.
type Requester struct {
	UserID uuid.UUID
	Role   Role
	Email  string
}

// ServiceRequester returns the unrestricted internal caller identity.
func ServiceRequester() Requester {
	return Requester{Role: RoleService}
}

func (r Requester) unrestricted() bool {
	return r.Role == RoleAdmin || r.Role == RoleService
}

// The policy checks below are pure: they take everything they need as
// arguments so the transition logic in service.go stays free of role
// branching. staffMatches is resolved by the caller because it requires
// a professional lookup.

func authorizeView(r Requester, appt repository.Appointment, staffMatches bool) error {
	if r.unrestricted() {
		return nil
	}
	switch r.Role {
	case RoleClient:
		if appt.UserID != r.UserID {
			return apperr.Forbidden("appointment belongs to another user")
		}
		return nil
	case RoleStaff:
		if !staffMatches {
			return apperr.Forbidden("appointment is not assigned to you")
		}
		return nil
	default:
		return apperr.Forbidden("insufficient role")
	}
}

func authorizeUpdate(r Requester, staffMatches bool) error {
	if r.unrestricted() {
		return nil
	}
	switch r.Role {
	case RoleClient:
		return apperr.Forbidden("clients cannot edit appointments")
	case RoleStaff:
		if !staffMatches {
			return apperr.Forbidden("appointment is not assigned to you")
		}
		return nil
	default:
		return apperr.Forbidden("insufficient role")
	}
}

func authorizeStatusChange(r Requester, appt repository.Appointment, newStatus transport.AppointmentStatus, staffMatches bool) error {
	if r.unrestricted() {
		return nil
	}
	switch r.Role {
	case RoleClient:
		if newStatus != transport.StatusCanceled {
			return apperr.Forbidden("clients may only cancel appointments")
		}
		if appt.UserID != r.UserID {
			return apperr.Forbidden("appointment belongs to another user")
		}
		return nil
	case RoleStaff:
		if !staffMatches {
			return apperr.Forbidden("appointment is not assigned to you")
		}
		return nil
	default:
		return apperr.Forbidden("insufficient role")
	}
}

func authorizeDeleteMany(r Requester) error {
	if r.Role != RoleAdmin {
		return apperr.Forbidden("only administrators may delete appointments")
	}
	return nil
}

func emailsMatch(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

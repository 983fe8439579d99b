package notification

import (
	"fmt"
	"regexp"
	"strings"
)

// Template keys. Every lifecycle event that notifies maps to one of these.
const (
	TemplateAppointmentConfirmation   = "appointmentConfirmation"
	TemplateAppointmentCancellation   = "appointmentCancellation"
	TemplateAppointmentCancelledAdmin = "appointmentCancelledAdmin"
	TemplateNewAppointmentAdmin       = "newAppointmentAdmin"
	TemplatePaymentConfirmation       = "paymentConfirmation"
	TemplatePaymentFailed             = "paymentFailed"
	TemplateSubscriptionCreated       = "subscriptionCreated"
	TemplateSubscriptionStatusChanged = "subscriptionStatusChanged"
	TemplateWelcome                   = "welcome"
	TemplatePasswordReset             = "passwordReset"
	TemplateAppointmentReminder       = "appointmentReminder"
)

// Template is a renderable subject and HTML body with {{placeholder}}
// variables.
type Template struct {
	Subject string
	Body    string
}

// defaultTemplates are the built-in fallbacks. Tenants override per key.
var defaultTemplates = map[string]Template{
	TemplateAppointmentConfirmation: {
		Subject: "Your appointment is confirmed",
		Body:    "<p>Hi {{userName}},</p><p>Your appointment on {{date}} at {{time}} is confirmed.</p><p>{{orgName}}</p>",
	},
	TemplateAppointmentCancellation: {
		Subject: "Your appointment was cancelled",
		Body:    "<p>Hi {{userName}},</p><p>Your appointment on {{date}} at {{time}} has been cancelled.</p><p>{{orgName}}</p>",
	},
	TemplateAppointmentCancelledAdmin: {
		Subject: "Appointment cancelled",
		Body:    "<p>The appointment with {{userName}} on {{date}} at {{time}} was cancelled.</p>",
	},
	TemplateNewAppointmentAdmin: {
		Subject: "New appointment booked",
		Body:    "<p>{{userName}} booked an appointment on {{date}} at {{time}}.</p>",
	},
	TemplatePaymentConfirmation: {
		Subject: "Payment received",
		Body:    "<p>Hi {{userName}},</p><p>We received your payment of {{amount}}.</p><p>{{orgName}}</p>",
	},
	TemplatePaymentFailed: {
		Subject: "Payment failed",
		Body:    "<p>Hi {{userName}},</p><p>Your payment could not be processed: {{reason}}.</p><p>{{orgName}}</p>",
	},
	TemplateSubscriptionCreated: {
		Subject: "Your subscription is active",
		Body:    "<p>Hi {{userName}},</p><p>Your subscription is now active. Enjoy!</p><p>{{orgName}}</p>",
	},
	TemplateSubscriptionStatusChanged: {
		Subject: "Your subscription was updated",
		Body:    "<p>Hi {{userName}},</p><p>Your subscription status changed to {{status}}.</p><p>{{orgName}}</p>",
	},
	TemplateWelcome: {
		Subject: "Welcome to {{orgName}}",
		Body:    "<p>Hi {{userName}},</p><p>Welcome! Your account is ready.</p><p>{{orgName}}</p>",
	},
	TemplatePasswordReset: {
		Subject: "Reset your password",
		Body:    "<p>Hi {{userName}},</p><p>Use this link to reset your password: {{resetUrl}}</p>",
	},
	TemplateAppointmentReminder: {
		Subject: "Appointment reminder",
		Body:    "<p>Hi {{userName}},</p><p>A reminder for your appointment on {{date}} at {{time}}.</p><p>{{orgName}}</p>",
	},
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// resolveTemplate returns the tenant override for a key when one exists,
// falling back to the built-in default. Overrides and defaults form a
// two-level lookup, not a hierarchy.
func resolveTemplate(key string, overrides map[string]Template) (Template, error) {
	if tpl, ok := overrides[key]; ok {
		return tpl, nil
	}
	if tpl, ok := defaultTemplates[key]; ok {
		return tpl, nil
	}
	return Template{}, fmt.Errorf("unknown notification template %q", key)
}

// renderTemplate resolves a template and substitutes {{placeholder}}
// variables in both subject and body. Unknown placeholders render empty.
func renderTemplate(key string, overrides map[string]Template, vars map[string]string) (subject, body string, err error) {
	tpl, err := resolveTemplate(key, overrides)
	if err != nil {
		return "", "", err
	}
	return substitute(tpl.Subject, vars), substitute(tpl.Body, vars), nil
}

func substitute(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.Trim(match, "{}")
		return vars[name]
	})
}

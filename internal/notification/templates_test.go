package notification

import (
	"strings"
	"testing"
)

func TestResolveTemplate_OverrideWins(t *testing.T) {
	overrides := map[string]Template{
		TemplateAppointmentConfirmation: {Subject: "Custom subject", Body: "Custom body"},
	}

	tpl, err := resolveTemplate(TemplateAppointmentConfirmation, overrides)
	if err != nil {
		t.Fatalf("resolveTemplate: %v", err)
	}
	if tpl.Subject != "Custom subject" {
		t.Fatalf("expected override subject, got %q", tpl.Subject)
	}
}

func TestResolveTemplate_FallsBackToDefault(t *testing.T) {
	overrides := map[string]Template{
		TemplatePaymentFailed: {Subject: "x", Body: "y"},
	}

	tpl, err := resolveTemplate(TemplateAppointmentReminder, overrides)
	if err != nil {
		t.Fatalf("resolveTemplate: %v", err)
	}
	if tpl.Subject != defaultTemplates[TemplateAppointmentReminder].Subject {
		t.Fatalf("expected default subject, got %q", tpl.Subject)
	}
}

func TestResolveTemplate_UnknownKey(t *testing.T) {
	if _, err := resolveTemplate("doesNotExist", nil); err == nil {
		t.Fatal("expected error for unknown template key")
	}
}

func TestRenderTemplate_SubstitutesPlaceholders(t *testing.T) {
	vars := map[string]string{
		"userName": "Ana",
		"date":     "2025-06-02",
		"time":     "10:30",
		"orgName":  "Studio Glow",
	}

	subject, body, err := renderTemplate(TemplateAppointmentConfirmation, nil, vars)
	if err != nil {
		t.Fatalf("renderTemplate: %v", err)
	}
	if subject == "" {
		t.Fatal("expected non-empty subject")
	}
	for _, want := range []string{"Ana", "2025-06-02", "10:30", "Studio Glow"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Fatalf("body still contains placeholders: %s", body)
	}
}

func TestSubstitute_UnknownPlaceholderRendersEmpty(t *testing.T) {
	out := substitute("hello {{nobody}}!", map[string]string{"userName": "Ana"})
	if out != "hello !" {
		t.Fatalf("expected unknown placeholder to render empty, got %q", out)
	}
}

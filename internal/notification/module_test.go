package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"reserva_backend/internal/events"
	"reserva_backend/internal/notification/outbox"
	"reserva_backend/internal/tenants"
	"reserva_backend/platform/logger"

	"github.com/google/uuid"
)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailSender struct {
	mu    sync.Mutex
	sent  []sentEmail
	fails bool
}

func (f *fakeEmailSender) Send(_ context.Context, toEmail, subject, htmlContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails {
		return errors.New("smtp relay unavailable")
	}
	f.sent = append(f.sent, sentEmail{To: toEmail, Subject: subject, Body: htmlContent})
	return nil
}

type sentChat struct {
	APIKey     string
	Subscriber string
	Text       string
}

type fakeChatSender struct {
	mu   sync.Mutex
	sent []sentChat
}

func (f *fakeChatSender) SendText(_ context.Context, apiKey, subscriberID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentChat{APIKey: apiKey, Subscriber: subscriberID, Text: text})
	return nil
}

type fakeSettingsReader struct {
	settings tenants.Settings
}

func (f *fakeSettingsReader) GetSettings(_ context.Context, tenantID uuid.UUID) (tenants.Settings, error) {
	s := f.settings
	s.TenantID = tenantID
	return s, nil
}

type fakeRecipientReader struct {
	recipients map[uuid.UUID]Recipient
}

func (f *fakeRecipientReader) Recipient(_ context.Context, _, userID uuid.UUID) (Recipient, error) {
	rec, ok := f.recipients[userID]
	if !ok {
		return Recipient{}, errors.New("user not found")
	}
	return rec, nil
}

type fakeProfessionalReader struct {
	emails map[uuid.UUID]string
}

func (f *fakeProfessionalReader) ProfessionalEmail(_ context.Context, _, professionalID uuid.UUID) (string, error) {
	return f.emails[professionalID], nil
}

type fakeOutboxWriter struct {
	mu       sync.Mutex
	inserted []outbox.InsertParams
}

func (f *fakeOutboxWriter) Insert(_ context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, p)
	return uuid.New(), nil
}

type notifyEnv struct {
	module   *Module
	email    *fakeEmailSender
	chat     *fakeChatSender
	outbox   *fakeOutboxWriter
	settings *fakeSettingsReader

	tenantID       uuid.UUID
	userID         uuid.UUID
	professionalID uuid.UUID
}

func newNotifyEnv(t *testing.T) *notifyEnv {
	t.Helper()

	env := &notifyEnv{
		email:          &fakeEmailSender{},
		chat:           &fakeChatSender{},
		outbox:         &fakeOutboxWriter{},
		tenantID:       uuid.New(),
		userID:         uuid.New(),
		professionalID: uuid.New(),
	}
	env.settings = &fakeSettingsReader{settings: tenants.Settings{
		Name:       "Studio Glow",
		ChatAPIKey: "chat-key",
	}}
	users := &fakeRecipientReader{recipients: map[uuid.UUID]Recipient{
		env.userID: {ID: env.userID, Name: "Ana", Email: "ana@example.com", ChatSubscriberID: "5511999990000"},
	}}
	professionals := &fakeProfessionalReader{emails: map[uuid.UUID]string{
		env.professionalID: "pro@example.com",
	}}

	env.module = &Module{
		settings:      env.settings,
		users:         users,
		professionals: professionals,
		defaultEmail:  env.email,
		chat:          env.chat,
		outbox:        env.outbox,
		reminderLead:  24 * time.Hour,
		now:           func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		log:           logger.New("development"),
	}
	return env
}

func TestOnAppointmentCreated_ConfirmedNotifiesAndSchedulesReminder(t *testing.T) {
	env := newNotifyEnv(t)
	date := time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC)

	err := env.module.onAppointmentCreated(context.Background(), events.AppointmentCreated{
		AppointmentID:  uuid.New(),
		TenantID:       env.tenantID,
		UserID:         env.userID,
		ProfessionalID: &env.professionalID,
		Date:           date,
		Confirmed:      true,
	})
	if err != nil {
		t.Fatalf("onAppointmentCreated: %v", err)
	}

	if len(env.email.sent) != 2 {
		t.Fatalf("expected client and professional emails, got %d", len(env.email.sent))
	}
	if env.email.sent[0].To != "ana@example.com" {
		t.Fatalf("expected client email first, got %q", env.email.sent[0].To)
	}
	if !strings.Contains(env.email.sent[0].Body, "2025-06-05") || !strings.Contains(env.email.sent[0].Body, "10:30") {
		t.Fatalf("client email missing appointment details: %s", env.email.sent[0].Body)
	}
	if env.email.sent[1].To != "pro@example.com" {
		t.Fatalf("expected professional email, got %q", env.email.sent[1].To)
	}

	if len(env.chat.sent) != 1 {
		t.Fatalf("expected one chat message, got %d", len(env.chat.sent))
	}
	if env.chat.sent[0].APIKey != "chat-key" {
		t.Fatalf("expected tenant chat key, got %q", env.chat.sent[0].APIKey)
	}

	if len(env.outbox.inserted) != 1 {
		t.Fatalf("expected one reminder scheduled, got %d", len(env.outbox.inserted))
	}
	reminder := env.outbox.inserted[0]
	if reminder.Kind != outbox.KindAppointmentReminder {
		t.Fatalf("unexpected outbox kind %q", reminder.Kind)
	}
	if !reminder.RunAt.Equal(date.Add(-24 * time.Hour)) {
		t.Fatalf("expected reminder a day before the appointment, got %s", reminder.RunAt)
	}
}

func TestOnAppointmentCreated_PendingStaysQuiet(t *testing.T) {
	env := newNotifyEnv(t)

	err := env.module.onAppointmentCreated(context.Background(), events.AppointmentCreated{
		AppointmentID: uuid.New(),
		TenantID:      env.tenantID,
		UserID:        env.userID,
		Date:          time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC),
		Confirmed:     false,
	})
	if err != nil {
		t.Fatalf("onAppointmentCreated: %v", err)
	}

	if len(env.email.sent) != 0 || len(env.chat.sent) != 0 || len(env.outbox.inserted) != 0 {
		t.Fatal("expected no notifications for an unconfirmed booking")
	}
}

func TestOnAppointmentStatusChanged_CanceledSendsCancellation(t *testing.T) {
	env := newNotifyEnv(t)

	err := env.module.onAppointmentStatusChanged(context.Background(), events.AppointmentStatusChanged{
		AppointmentID:  uuid.New(),
		TenantID:       env.tenantID,
		UserID:         env.userID,
		ProfessionalID: &env.professionalID,
		Date:           time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC),
		OldStatus:      "CONFIRMED",
		NewStatus:      "CANCELED",
	})
	if err != nil {
		t.Fatalf("onAppointmentStatusChanged: %v", err)
	}

	if len(env.email.sent) != 2 {
		t.Fatalf("expected client and professional emails, got %d", len(env.email.sent))
	}
	if !strings.Contains(strings.ToLower(env.email.sent[0].Subject), "cancel") {
		t.Fatalf("expected cancellation subject, got %q", env.email.sent[0].Subject)
	}
	if len(env.outbox.inserted) != 0 {
		t.Fatal("cancellation must not schedule a reminder")
	}
}

func TestOnAppointmentStatusChanged_ConfirmedSchedulesReminder(t *testing.T) {
	env := newNotifyEnv(t)

	err := env.module.onAppointmentStatusChanged(context.Background(), events.AppointmentStatusChanged{
		AppointmentID: uuid.New(),
		TenantID:      env.tenantID,
		UserID:        env.userID,
		Date:          time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC),
		OldStatus:     "PENDING",
		NewStatus:     "CONFIRMED",
	})
	if err != nil {
		t.Fatalf("onAppointmentStatusChanged: %v", err)
	}

	if len(env.outbox.inserted) != 1 {
		t.Fatalf("expected one reminder scheduled, got %d", len(env.outbox.inserted))
	}
}

func TestScheduleReminder_SkipsWhenInsideLeadTime(t *testing.T) {
	env := newNotifyEnv(t)

	// now is 2025-06-01 12:00 and lead time is 24h, so an appointment
	// later the same day is already inside the window.
	err := env.module.onAppointmentCreated(context.Background(), events.AppointmentCreated{
		AppointmentID: uuid.New(),
		TenantID:      env.tenantID,
		UserID:        env.userID,
		Date:          time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC),
		Confirmed:     true,
	})
	if err != nil {
		t.Fatalf("onAppointmentCreated: %v", err)
	}

	if len(env.outbox.inserted) != 0 {
		t.Fatal("expected no reminder inside the lead time window")
	}
}

func TestOnPaymentCompleted_FormatsAmount(t *testing.T) {
	env := newNotifyEnv(t)

	err := env.module.onPaymentCompleted(context.Background(), events.PaymentCompleted{
		PaymentID:   uuid.New(),
		TenantID:    env.tenantID,
		UserID:      env.userID,
		AmountCents: 15990,
	})
	if err != nil {
		t.Fatalf("onPaymentCompleted: %v", err)
	}

	if len(env.email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(env.email.sent))
	}
	if !strings.Contains(env.email.sent[0].Body, "R$ 159.90") {
		t.Fatalf("expected formatted amount in body: %s", env.email.sent[0].Body)
	}
}

func TestDeliver_TenantTemplateOverrideWins(t *testing.T) {
	env := newNotifyEnv(t)
	env.settings.settings.TemplateOverrides = map[string]tenants.TemplateOverride{
		TemplatePaymentConfirmation: {
			Subject: "Obrigado, {{userName}}!",
			Body:    "<p>Pagamento de {{amount}} recebido.</p>",
		},
	}

	err := env.module.onPaymentCompleted(context.Background(), events.PaymentCompleted{
		PaymentID:   uuid.New(),
		TenantID:    env.tenantID,
		UserID:      env.userID,
		AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("onPaymentCompleted: %v", err)
	}

	if len(env.email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(env.email.sent))
	}
	if env.email.sent[0].Subject != "Obrigado, Ana!" {
		t.Fatalf("expected override subject, got %q", env.email.sent[0].Subject)
	}
	if !strings.Contains(env.email.sent[0].Body, "R$ 50.00") {
		t.Fatalf("expected amount in override body: %s", env.email.sent[0].Body)
	}
}

func TestDeliver_EmailFailureDoesNotBlockChat(t *testing.T) {
	env := newNotifyEnv(t)
	env.email.fails = true

	err := env.module.onSubscriptionActivated(context.Background(), events.SubscriptionActivated{
		SubscriptionID: uuid.New(),
		TenantID:       env.tenantID,
		UserID:         env.userID,
	})
	if err != nil {
		t.Fatalf("onSubscriptionActivated: %v", err)
	}

	if len(env.chat.sent) != 1 {
		t.Fatalf("expected chat message despite email failure, got %d", len(env.chat.sent))
	}
}

func TestSenderFor_PrefersTenantSMTP(t *testing.T) {
	env := newNotifyEnv(t)

	settings := env.settings.settings
	settings.SMTP = tenants.SMTPSettings{
		Host: "mail.tenant.example", Port: 587,
		Username: "u", Password: "p", From: "no-reply@tenant.example",
	}

	if _, ok := env.module.senderFor(settings).(*fakeEmailSender); ok {
		t.Fatal("expected tenant SMTP sender, got the default sender")
	}
	if _, ok := env.module.senderFor(env.settings.settings).(*fakeEmailSender); !ok {
		t.Fatal("expected default sender when SMTP is not configured")
	}
}

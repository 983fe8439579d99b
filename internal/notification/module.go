// Package notification turns domain events into outbound messages. It
// subscribes to the event bus and inverts the dependency: domain modules
// never need to know about email providers, chat APIs or templates.
// Every dispatch is best effort; a delivery failure is logged and can
// never fail the operation that raised the event.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reserva_backend/internal/email"
	"reserva_backend/internal/events"
	"reserva_backend/internal/notification/outbox"
	"reserva_backend/internal/tenants"
	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatSender pushes a text message to a chat subscriber. A nil
// *chat.Client satisfies this and drops messages.
type ChatSender interface {
	SendText(ctx context.Context, apiKey, subscriberID, text string) error
}

// RecipientReader resolves a user's contact details.
type RecipientReader interface {
	Recipient(ctx context.Context, tenantID, userID uuid.UUID) (Recipient, error)
}

// ProfessionalReader resolves the email of an assigned professional for
// admin-facing notifications.
type ProfessionalReader interface {
	ProfessionalEmail(ctx context.Context, tenantID, professionalID uuid.UUID) (string, error)
}

// OutboxWriter persists scheduled notification intents.
type OutboxWriter interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// Module dispatches notifications in response to domain events.
type Module struct {
	settings      tenants.SettingsReader
	users         RecipientReader
	professionals ProfessionalReader
	defaultEmail  email.Sender
	chat          ChatSender
	outbox        OutboxWriter
	outboxRepo    *outbox.Repository
	reminderLead  time.Duration
	now           func() time.Time
	log           *logger.Logger
}

// NewModule creates the notification module and subscribes it to the bus.
func NewModule(
	pool *pgxpool.Pool,
	settings tenants.SettingsReader,
	professionals ProfessionalReader,
	defaultEmail email.Sender,
	chatClient ChatSender,
	bus events.Bus,
	cfg config.SchedulerConfig,
	log *logger.Logger,
) *Module {
	repo := outbox.New(pool)
	m := &Module{
		settings:      settings,
		users:         newUserReader(pool),
		professionals: professionals,
		defaultEmail:  defaultEmail,
		chat:          chatClient,
		outbox:        repo,
		outboxRepo:    repo,
		reminderLead:  cfg.GetReminderLeadTime(),
		now:           time.Now,
		log:           log,
	}
	m.subscribe(bus)
	return m
}

func (m *Module) subscribe(bus events.Bus) {
	bus.Subscribe(events.AppointmentCreated{}.EventName(), events.HandlerFunc(m.onAppointmentCreated))
	bus.Subscribe(events.AppointmentStatusChanged{}.EventName(), events.HandlerFunc(m.onAppointmentStatusChanged))
	bus.Subscribe(events.AppointmentReminderDue{}.EventName(), events.HandlerFunc(m.onReminderDue))
	bus.Subscribe(events.PaymentCompleted{}.EventName(), events.HandlerFunc(m.onPaymentCompleted))
	bus.Subscribe(events.PaymentFailed{}.EventName(), events.HandlerFunc(m.onPaymentFailed))
	bus.Subscribe(events.SubscriptionActivated{}.EventName(), events.HandlerFunc(m.onSubscriptionActivated))
	bus.Subscribe(events.SubscriptionStatusChanged{}.EventName(), events.HandlerFunc(m.onSubscriptionStatusChanged))
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(m.onOutboxDue))
}

// onOutboxDue is raised by the worker when the task queue delivers a
// claimed outbox record. Errors propagate so the queue retries.
func (m *Module) onOutboxDue(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.NotificationOutboxDue)
	if !ok {
		return nil
	}
	return m.ProcessOutbox(ctx, ev.OutboxID)
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "notification"
}

func (m *Module) onAppointmentCreated(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.AppointmentCreated)
	if !ok {
		return nil
	}
	if !ev.Confirmed {
		// Online bookings notify once the payment webhook confirms them.
		return nil
	}
	m.notifyAppointment(ctx, ev.TenantID, ev.UserID, ev.ProfessionalID, ev.Date,
		TemplateAppointmentConfirmation, TemplateNewAppointmentAdmin)
	m.scheduleReminder(ctx, ev.TenantID, ev.AppointmentID, ev.UserID, ev.Date)
	return nil
}

func (m *Module) onAppointmentStatusChanged(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.AppointmentStatusChanged)
	if !ok {
		return nil
	}
	switch ev.NewStatus {
	case "CONFIRMED":
		m.notifyAppointment(ctx, ev.TenantID, ev.UserID, ev.ProfessionalID, ev.Date,
			TemplateAppointmentConfirmation, TemplateNewAppointmentAdmin)
		m.scheduleReminder(ctx, ev.TenantID, ev.AppointmentID, ev.UserID, ev.Date)
	case "CANCELED":
		m.notifyAppointment(ctx, ev.TenantID, ev.UserID, ev.ProfessionalID, ev.Date,
			TemplateAppointmentCancellation, TemplateAppointmentCancelledAdmin)
	}
	return nil
}

func (m *Module) onReminderDue(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.AppointmentReminderDue)
	if !ok {
		return nil
	}
	m.sendToUser(ctx, ev.TenantID, ev.UserID, TemplateAppointmentReminder, appointmentVars(ev.Date))
	return nil
}

func (m *Module) onPaymentCompleted(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.PaymentCompleted)
	if !ok {
		return nil
	}
	vars := map[string]string{"amount": formatAmount(ev.AmountCents)}
	m.sendToUser(ctx, ev.TenantID, ev.UserID, TemplatePaymentConfirmation, vars)
	return nil
}

func (m *Module) onPaymentFailed(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.PaymentFailed)
	if !ok {
		return nil
	}
	m.sendToUser(ctx, ev.TenantID, ev.UserID, TemplatePaymentFailed, map[string]string{"reason": ev.Reason})
	return nil
}

func (m *Module) onSubscriptionActivated(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.SubscriptionActivated)
	if !ok {
		return nil
	}
	m.sendToUser(ctx, ev.TenantID, ev.UserID, TemplateSubscriptionCreated, nil)
	return nil
}

func (m *Module) onSubscriptionStatusChanged(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.SubscriptionStatusChanged)
	if !ok {
		return nil
	}
	m.sendToUser(ctx, ev.TenantID, ev.UserID, TemplateSubscriptionStatusChanged, map[string]string{"status": ev.NewStatus})
	return nil
}

// notifyAppointment sends the client-facing template to the booking user
// over chat and email, and the admin-facing template to the assigned
// professional's email when there is one.
func (m *Module) notifyAppointment(ctx context.Context, tenantID, userID uuid.UUID, professionalID *uuid.UUID, date time.Time, userTemplate, adminTemplate string) {
	settings, recipient, ok := m.resolve(ctx, tenantID, userID, userTemplate)
	if !ok {
		return
	}
	vars := appointmentVars(date)
	vars["userName"] = recipient.Name
	vars["orgName"] = settings.Name

	m.deliver(ctx, settings, recipient, userTemplate, vars)

	if professionalID == nil {
		return
	}
	proEmail, err := m.professionals.ProfessionalEmail(ctx, tenantID, *professionalID)
	if err != nil {
		m.log.NotifyError("email", adminTemplate, err)
		return
	}
	if proEmail == "" {
		return
	}
	subject, body, err := renderTemplate(adminTemplate, overridesOf(settings), vars)
	if err != nil {
		m.log.NotifyError("email", adminTemplate, err)
		return
	}
	if err := m.senderFor(settings).Send(ctx, proEmail, subject, body); err != nil {
		m.log.NotifyError("email", adminTemplate, err)
	}
}

// sendToUser delivers one template to a user over chat and email.
func (m *Module) sendToUser(ctx context.Context, tenantID, userID uuid.UUID, templateKey string, vars map[string]string) {
	settings, recipient, ok := m.resolve(ctx, tenantID, userID, templateKey)
	if !ok {
		return
	}
	if vars == nil {
		vars = make(map[string]string)
	}
	vars["userName"] = recipient.Name
	vars["orgName"] = settings.Name
	m.deliver(ctx, settings, recipient, templateKey, vars)
}

func (m *Module) resolve(ctx context.Context, tenantID, userID uuid.UUID, templateKey string) (tenants.Settings, Recipient, bool) {
	settings, err := m.settings.GetSettings(ctx, tenantID)
	if err != nil {
		m.log.NotifyError("email", templateKey, err)
		return tenants.Settings{}, Recipient{}, false
	}
	recipient, err := m.users.Recipient(ctx, tenantID, userID)
	if err != nil {
		m.log.NotifyError("email", templateKey, err)
		return tenants.Settings{}, Recipient{}, false
	}
	return settings, recipient, true
}

// deliver renders the template once and fans out to every channel the
// recipient is reachable on. Channel failures are independent.
func (m *Module) deliver(ctx context.Context, settings tenants.Settings, recipient Recipient, templateKey string, vars map[string]string) {
	subject, body, err := renderTemplate(templateKey, overridesOf(settings), vars)
	if err != nil {
		m.log.NotifyError("email", templateKey, err)
		return
	}

	if recipient.Email != "" {
		if err := m.senderFor(settings).Send(ctx, recipient.Email, subject, body); err != nil {
			m.log.NotifyError("email", templateKey, err)
		}
	}

	if recipient.ChatSubscriberID != "" && m.chat != nil {
		if err := m.chat.SendText(ctx, settings.ChatAPIKey, recipient.ChatSubscriberID, subject); err != nil {
			m.log.NotifyError("chat", templateKey, err)
		}
	}
}

// senderFor picks the tenant's own SMTP server when fully configured,
// falling back to the platform default sender.
func (m *Module) senderFor(settings tenants.Settings) email.Sender {
	smtp := settings.SMTP
	if smtp.Configured() {
		return email.NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password, smtp.From, settings.Name)
	}
	return m.defaultEmail
}

// reminderPayload is the outbox payload for a scheduled reminder.
type reminderPayload struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	UserID        uuid.UUID `json:"userId"`
	Date          time.Time `json:"date"`
}

func (m *Module) scheduleReminder(ctx context.Context, tenantID, appointmentID, userID uuid.UUID, date time.Time) {
	runAt := date.Add(-m.reminderLead)
	if !runAt.After(m.now()) {
		// Appointment is closer than the lead time; skip the reminder.
		return
	}
	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		TenantID: tenantID,
		Kind:     outbox.KindAppointmentReminder,
		Template: TemplateAppointmentReminder,
		Payload:  reminderPayload{AppointmentID: appointmentID, UserID: userID, Date: date},
		RunAt:    runAt,
	})
	if err != nil {
		m.log.NotifyError("outbox", TemplateAppointmentReminder, err)
	}
}

// ProcessOutbox delivers one claimed outbox record. Called by the worker
// when the scheduler drains due rows.
func (m *Module) ProcessOutbox(ctx context.Context, outboxID uuid.UUID) error {
	rec, err := m.outboxRepo.GetByID(ctx, outboxID)
	if err != nil {
		return fmt.Errorf("load outbox record: %w", err)
	}
	if rec.Status == outbox.StatusSucceeded {
		return nil
	}
	if err := m.outboxRepo.MarkProcessing(ctx, outboxID); err != nil {
		return err
	}

	switch rec.Kind {
	case outbox.KindAppointmentReminder:
		var payload reminderPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			_ = m.outboxRepo.MarkFailed(ctx, outboxID, err.Error())
			return fmt.Errorf("decode reminder payload: %w", err)
		}
		m.sendToUser(ctx, rec.TenantID, payload.UserID, TemplateAppointmentReminder, appointmentVars(payload.Date))
	default:
		_ = m.outboxRepo.MarkFailed(ctx, outboxID, fmt.Sprintf("unknown outbox kind %q", rec.Kind))
		return nil
	}

	return m.outboxRepo.MarkSucceeded(ctx, outboxID)
}

// Outbox exposes the repository for the dispatcher loop.
func (m *Module) Outbox() *outbox.Repository {
	return m.outboxRepo
}

func overridesOf(settings tenants.Settings) map[string]Template {
	if len(settings.TemplateOverrides) == 0 {
		return nil
	}
	overrides := make(map[string]Template, len(settings.TemplateOverrides))
	for key, o := range settings.TemplateOverrides {
		overrides[key] = Template{Subject: o.Subject, Body: o.Body}
	}
	return overrides
}

func appointmentVars(date time.Time) map[string]string {
	return map[string]string{
		"date": date.Format("2006-01-02"),
		"time": date.Format("15:04"),
	}
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("R$ %.2f", float64(cents)/100)
}

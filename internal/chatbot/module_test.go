package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apptservice "reserva_backend/internal/appointments/service"
	appttransport "reserva_backend/internal/appointments/transport"
	"reserva_backend/internal/catalog"
	"reserva_backend/platform/logger"
	"reserva_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeAppointments struct {
	created      []appttransport.CreateAppointmentRequest
	createdAs    []apptservice.Requester
	listedAs     []apptservice.Requester
	slotRequests []appttransport.GetAvailableSlotsRequest
}

func (f *fakeAppointments) Create(_ context.Context, requester apptservice.Requester, _ uuid.UUID, req appttransport.CreateAppointmentRequest) (appttransport.AppointmentResponse, error) {
	f.created = append(f.created, req)
	f.createdAs = append(f.createdAs, requester)
	return appttransport.AppointmentResponse{ID: uuid.New(), Date: req.Date, Status: appttransport.StatusConfirmed}, nil
}

func (f *fakeAppointments) List(_ context.Context, requester apptservice.Requester, _ uuid.UUID, _ appttransport.ListAppointmentsRequest) (appttransport.AppointmentListResponse, error) {
	f.listedAs = append(f.listedAs, requester)
	return appttransport.AppointmentListResponse{Data: []appttransport.AppointmentResponse{}}, nil
}

func (f *fakeAppointments) AvailableSlots(_ context.Context, _ uuid.UUID, req appttransport.GetAvailableSlotsRequest) (appttransport.AvailableSlotsResponse, error) {
	f.slotRequests = append(f.slotRequests, req)
	return appttransport.AvailableSlotsResponse{Date: req.Date, Slots: []string{"09:00", "09:30"}}, nil
}

type fakeCatalog struct {
	services      []catalog.Service
	professionals []catalog.Professional
}

func (f *fakeCatalog) ListServices(_ context.Context, _ uuid.UUID) ([]catalog.Service, error) {
	return f.services, nil
}

func (f *fakeCatalog) ListProfessionals(_ context.Context, _ uuid.UUID) ([]catalog.Professional, error) {
	return f.professionals, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeAppointments) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	appts := &fakeAppointments{}
	module := NewModule(appts, &fakeCatalog{}, validator.New(), logger.New("development"))

	router := gin.New()
	router.POST("/webhook", module.HandleWebhook)
	return router, appts
}

func postCommand(t *testing.T, router *gin.Engine, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Status
}

func TestHandleWebhook_UnknownActionIgnored(t *testing.T) {
	router, appts := newTestRouter(t)

	rec := postCommand(t, router, map[string]any{
		"action":   "make_coffee",
		"tenantId": uuid.New().String(),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown action, got %d", rec.Code)
	}
	if status := decodeStatus(t, rec); status != "ignored" {
		t.Fatalf("expected status ignored, got %q", status)
	}
	if len(appts.created) != 0 || len(appts.slotRequests) != 0 {
		t.Fatal("unknown action must not reach the appointments service")
	}
}

func TestHandleWebhook_TenantFromHeader(t *testing.T) {
	router, appts := newTestRouter(t)

	payload, _ := json.Marshal(map[string]any{
		"action": "check_availability",
		"date":   "2025-06-05",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-tenant-id", uuid.New().String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(appts.slotRequests) != 1 {
		t.Fatalf("expected one availability lookup, got %d", len(appts.slotRequests))
	}
	if appts.slotRequests[0].Date != "2025-06-05" {
		t.Fatalf("unexpected date %q", appts.slotRequests[0].Date)
	}
}

func TestHandleWebhook_MissingTenantRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postCommand(t, router, map[string]any{
		"action": "get_services",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant, got %d", rec.Code)
	}
}

func TestHandleWebhook_CreateAppointmentDefaultsToCash(t *testing.T) {
	router, appts := newTestRouter(t)
	userID := uuid.New()

	rec := postCommand(t, router, map[string]any{
		"action":   "create_appointment",
		"tenantId": uuid.New().String(),
		"userId":   userID.String(),
		"date":     time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC).Format(time.RFC3339),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(appts.created) != 1 {
		t.Fatalf("expected one booking, got %d", len(appts.created))
	}
	if appts.created[0].PaymentMethod != appttransport.PaymentMethodCash {
		t.Fatalf("expected CASH default, got %q", appts.created[0].PaymentMethod)
	}
	if appts.created[0].UserID == nil || *appts.created[0].UserID != userID {
		t.Fatal("expected booking for the requested user")
	}
	if appts.createdAs[0].Role != apptservice.RoleService {
		t.Fatalf("expected service-role requester, got %q", appts.createdAs[0].Role)
	}
}

func TestHandleWebhook_UserAppointmentsScopedToUser(t *testing.T) {
	router, appts := newTestRouter(t)
	userID := uuid.New()

	rec := postCommand(t, router, map[string]any{
		"action":   "get_user_appointments",
		"tenantId": uuid.New().String(),
		"userId":   userID.String(),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(appts.listedAs) != 1 {
		t.Fatalf("expected one list call, got %d", len(appts.listedAs))
	}
	if appts.listedAs[0].Role != apptservice.RoleClient || appts.listedAs[0].UserID != userID {
		t.Fatal("expected list scoped as the user")
	}
}

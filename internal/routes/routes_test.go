package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lawfirm-server/internal/calendar"
	"lawfirm-server/internal/config"
	"lawfirm-server/internal/events"
	"lawfirm-server/internal/gateway"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/services"
	"lawfirm-server/internal/testutil"
	"lawfirm-server/internal/utils"
)

const gatewaySecret = "route_test_secret"

type stubGateway struct{ n int }

func (g *stubGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.n++
	return &gateway.Order{ID: fmt.Sprintf("order_%d", g.n), Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (g *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.Verify(gatewaySecret, orderID, paymentID, signature)
}

func (g *stubGateway) KeyID() string { return "rzp_route_key" }

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:            "route-test-jwt",
		JWTExpirationMinutes: 60,
		Timezone:             "UTC",
		FirmName:             "Test Chambers",
		Payment:              config.PaymentConfig{Currency: "INR"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := events.NewLoggingPublisher(logger)

	slots := services.NewSlotStore(db, cfg.Location())
	booking := services.NewAppointmentFactory(db, slots, services.NewLedger(db), pub)
	payments := services.NewPaymentService(db, booking, &stubGateway{}, calendar.Disabled{}, pub, services.PaymentOptions{
		Currency: "INR",
		Location: cfg.Location(),
	})

	router := gin.New()
	SetupRoutes(router, Deps{DB: db, Config: cfg, Slots: slots, Booking: booking, Payments: payments, Logger: logger})
	return &testServer{router: router, db: db, cfg: cfg}
}

func (s *testServer) tokenFor(t *testing.T, u models.User) string {
	t.Helper()
	tok, _, err := utils.GenerateToken(&u, s.cfg)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

// decodeData unmarshals the envelope's data field into out.
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rr.Body.String())
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, rr.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
}

func TestAuthAndRoleGuards(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.db, "client@example.com", models.RoleUser)

	if rr := s.do(t, http.MethodGet, "/api/v1/appointments", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/api/v1/appointments", "not-a-jwt", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", rr.Code)
	}
	body := map[string]any{"startDate": "2099-01-10", "endDate": "2099-01-10", "timeSlots": []string{"10:00-10:30"}}
	if rr := s.do(t, http.MethodPost, "/api/v1/admin/slots", s.tokenFor(t, user), body); rr.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: got %d", rr.Code)
	}
}

func TestLoginAndProfile(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateUser(t, s.db, "client@example.com", models.RoleUser)

	rr := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "Client@Example.com", "password": "password123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	decodeData(t, rr, &login)

	rr = s.do(t, http.MethodGet, "/api/v1/auth/profile", login.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile failed: %d", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "client@example.com", "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d", rr.Code)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{"firstName": "A", "lastName": "B", "email": "a@example.com", "password": "password123"}

	if rr := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body); rr.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register: got %d", rr.Code)
	}
}

func TestBookingAndSettlementOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := testutil.CreateUser(t, s.db, "admin@example.com", models.RoleAdmin)
	alice := testutil.CreateUser(t, s.db, "alice@example.com", models.RoleUser)
	bob := testutil.CreateUser(t, s.db, "bob@example.com", models.RoleUser)
	adminTok, aliceTok, bobTok := s.tokenFor(t, admin), s.tokenFor(t, alice), s.tokenFor(t, bob)

	rr := s.do(t, http.MethodPost, "/api/v1/admin/appointment-types", adminTok,
		map[string]any{"title": "Consultation", "description": "30 minutes", "price": 1000})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create appointment type: %d %s", rr.Code, rr.Body.String())
	}
	var apptType models.AppointmentType
	decodeData(t, rr, &apptType)

	rr = s.do(t, http.MethodPost, "/api/v1/admin/slots", adminTok,
		map[string]any{"startDate": "2099-01-10", "endDate": "2099-01-10", "timeSlots": []string{"10:00-10:30", "11:00-11:30"}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create slots: %d %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, http.MethodGet, "/api/v1/slots?date=2099-01-10&show=available", aliceTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list slots: %d", rr.Code)
	}
	var page services.SlotPage
	decodeData(t, rr, &page)
	if len(page.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(page.Slots))
	}
	slotID := page.Slots[0].ID

	orderBody := map[string]any{"paymentFor": "appointment", "slotId": slotID, "appointmentTypeId": apptType.ID}
	rr = s.do(t, http.MethodPost, "/api/v1/payments/create-order", aliceTok, orderBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rr.Code, rr.Body.String())
	}
	var order services.OrderResult
	decodeData(t, rr, &order)
	if order.Amount != 100000 || order.Key != "rzp_route_key" {
		t.Fatalf("unexpected order %+v", order)
	}

	if rr := s.do(t, http.MethodPost, "/api/v1/payments/create-order", bobTok, orderBody); rr.Code != http.StatusConflict {
		t.Fatalf("second hold on same slot: got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/api/v1/payments/"+order.PaymentID+"/receipt", aliceTok, nil); rr.Code != http.StatusConflict {
		t.Fatalf("receipt before settlement: got %d", rr.Code)
	}

	bad := map[string]string{"orderId": order.OrderID, "paymentId": "pay_1", "signature": "deadbeef"}
	rr = s.do(t, http.MethodPost, "/api/v1/payments/verify", "", bad)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: got %d", rr.Code)
	}
	var rejected struct {
		Success bool `json:"success"`
	}
	rejected.Success = true
	decodeData(t, rr, &rejected)
	if rejected.Success {
		t.Fatalf("bad signature must report success=false: %s", rr.Body.String())
	}

	good := map[string]string{
		"orderId":   order.OrderID,
		"paymentId": "pay_1",
		"signature": gateway.Sign(gatewaySecret, order.OrderID, "pay_1"),
	}
	rr = s.do(t, http.MethodPost, "/api/v1/payments/verify", "", good)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rr.Code, rr.Body.String())
	}
	var settlement services.Settlement
	decodeData(t, rr, &settlement)
	if !settlement.Success || settlement.AppointmentID != order.AppointmentID {
		t.Fatalf("unexpected settlement %+v", settlement)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/appointments/"+order.AppointmentID, aliceTok, nil)
	var appt models.Appointment
	decodeData(t, rr, &appt)
	if appt.Status != models.StatusConfirmed {
		t.Fatalf("expected CONFIRMED appointment, got %s", appt.Status)
	}
	if rr := s.do(t, http.MethodGet, "/api/v1/appointments/"+order.AppointmentID, bobTok, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign appointment: got %d", rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/payments/"+order.PaymentID+"/receipt", aliceTok, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("receipt: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("receipt body is not a PDF")
	}
	if rr := s.do(t, http.MethodGet, "/api/v1/payments/"+order.PaymentID+"/receipt", bobTok, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign receipt: got %d", rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/admin/payments/"+order.PaymentID+"/transactions", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("transactions: %d", rr.Code)
	}
	var entries []struct {
		EventType models.TransactionType `json:"eventType"`
	}
	decodeData(t, rr, &entries)
	if len(entries) != 2 || entries[0].EventType != models.TxOrderCreated || entries[1].EventType != models.TxPaymentVerified {
		t.Fatalf("unexpected ledger %+v", entries)
	}
}

func TestCancelAndRescheduleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateUser(t, s.db, "alice@example.com", models.RoleUser)
	tok := s.tokenFor(t, alice)
	at := testutil.CreateAppointmentType(t, s.db, "Consultation", 1000)
	first := testutil.CreateSlot(t, s.db, "2099-02-01", "09:00-09:30")
	second := testutil.CreateSlot(t, s.db, "2099-02-01", "10:00-10:30")

	rr := s.do(t, http.MethodPost, "/api/v1/appointments", tok, map[string]string{"slotId": first.ID, "appointmentTypeId": at.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rr.Code, rr.Body.String())
	}
	var appt models.Appointment
	decodeData(t, rr, &appt)

	rr = s.do(t, http.MethodPatch, "/api/v1/appointments", tok, map[string]string{"appointmentId": appt.ID, "newSlotId": second.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("reschedule: %d %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, http.MethodPatch, "/api/v1/appointments", tok, map[string]string{"appointmentId": appt.ID, "newSlotId": second.ID}); rr.Code != http.StatusBadRequest {
		t.Fatalf("reschedule to same slot: got %d", rr.Code)
	}

	if rr := s.do(t, http.MethodDelete, "/api/v1/appointments", tok, map[string]string{"id": appt.ID}); rr.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body.String())
	}
	var slot models.Slot
	if err := s.db.First(&slot, "id = ?", second.ID).Error; err != nil {
		t.Fatalf("reload slot: %v", err)
	}
	if slot.IsBooked {
		t.Fatalf("cancel should free the slot")
	}
}

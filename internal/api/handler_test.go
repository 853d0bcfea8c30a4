package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salon-service/internal/redisclient"
	"salon-service/internal/service"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router *gin.Engine
	repo   *store.MemoryStore
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())

	repo := store.NewMemoryStore()
	cache := redisclient.NewMemoryClient()
	gateway := service.NewMockGateway("sandbox-app", "LTEST", "sandbox")
	widgets := service.NewWidgetRegistry(gateway, cache, time.Minute)

	catalog := service.NewCatalogService(repo, cache)
	customers := service.NewCustomerService(repo)
	appointments := service.NewAppointmentService(repo, nil, time.UTC)
	payments := service.NewPaymentService(repo, gateway, widgets, cache, "usd", 2*time.Second)
	auth := service.NewAuthService(repo)

	ctx := context.Background()
	require.NoError(t, catalog.SeedDefaults(ctx))
	require.NoError(t, auth.EnsureAdmin(ctx, "admin", "admin123"))

	h := NewHandler(Services{
		Catalog:      catalog,
		Customers:    customers,
		Appointments: appointments,
		Payments:     payments,
		Bookings:     service.NewBookingOrchestrator(catalog, customers, appointments, payments, nil, false, time.UTC),
		Messages:     service.NewMessageService(repo),
		Auth:         auth,
		Dashboard:    service.NewDashboardService(repo, time.UTC),
	}, NewSessionStore("test-secret", 24*time.Hour, false), repo, cache)

	router := gin.New()
	h.SetupRoutes(router, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}, RateLimitPerMinute: rateLimit})
	return &testServer{router: router, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/login", gin.H{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func bookingBody(card string) gin.H {
	return gin.H{
		"form": gin.H{
			"serviceId":       1,
			"appointmentDate": "2030-05-01",
			"appointmentTime": "10:30",
			"customerName":    "Jane Doe",
			"customerPhone":   "5551234567",
			"customerEmail":   "jane@example.com",
		},
		"payment": gin.H{"cardNumber": card},
	}
}

func TestHealthAndServices(t *testing.T) {
	s := newTestServer(t, 100)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil).Code)

	w := s.do(t, http.MethodGet, "/api/services", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var services []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &services))
	assert.Len(t, services, 9)
	assert.Equal(t, "85.00", services[0]["price"])

	w = s.do(t, http.MethodGet, "/api/services/1/quote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60.00", decode(t, w)["remainingBalance"])

	w = s.do(t, http.MethodGet, "/api/services/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["code"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/services/abc", nil).Code)
}

func TestAdminSession(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/appointments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/login", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := s.login(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/appointments", nil, cookie).Code)

	w = s.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decode(t, w)["username"])

	w = s.do(t, http.MethodPost, "/api/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", nil, cleared).Code)
}

func TestCreateBooking(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/bookings", bookingBody("4242 4242 4242 4242"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "appointment_created", body["state"])
	assert.Equal(t, "60.00", body["remainingBalance"])

	appt := body["appointment"].(map[string]interface{})
	assert.Equal(t, "confirmed", appt["status"])
	assert.Equal(t, true, appt["downPaymentPaid"])
	assert.Equal(t, false, appt["totalPaid"])
	assert.True(t, strings.HasPrefix(appt["paymentTxId"].(string), "TXN-"))

	customer := body["customer"].(map[string]interface{})
	assert.Equal(t, "(555) 123-4567", customer["phone"])

	cookie := s.login(t)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/appointments/%v/balance", appt["id"]), nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60.00", decode(t, w)["amountDue"])
}

func TestCreateBooking_Declined(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/bookings", bookingBody(service.CardDeclined))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	body := decode(t, w)
	assert.Equal(t, "card_declined", body["code"])
	assert.Equal(t, "aborted", body["state"])

	customers, err := s.repo.GetCustomers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, customers)
}

func TestCreateBooking_RejectsBadInput(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/bookings", `{"form":{},"payment":{},"coupon":"FREE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decode(t, w)["code"])

	form := bookingBody("")["form"].(gin.H)
	form["customerEmail"] = "not-an-email"
	form["appointmentTime"] = "11:00"
	w = s.do(t, http.MethodPost, "/api/bookings/validate", form)
	require.Equal(t, http.StatusBadRequest, w.Code)

	details := decode(t, w)["details"].(map[string]interface{})
	assert.Equal(t, "Valid email required", details["customerEmail"])
	assert.Equal(t, "Please select a time", details["appointmentTime"])
}

func TestPendingBookingAndAdminUpdates(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/bookings/pending", bookingBody("")["form"])
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	appt := decode(t, w)["appointment"].(map[string]interface{})
	assert.Equal(t, "pending", appt["status"])
	id := appt["id"]

	cookie := s.login(t)

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/api/appointments/%v/status", id), gin.H{"status": "confirmed"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", decode(t, w)["status"])

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/api/appointments/%v/payment", id), gin.H{"totalPaid": true}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["totalPaid"])
	assert.Equal(t, true, body["downPaymentPaid"])

	w = s.do(t, http.MethodGet, "/api/appointments/date/2030-05-01", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var onDay []interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &onDay))
	assert.Len(t, onDay, 1)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, fmt.Sprintf("/api/appointments/%v", id), nil, cookie).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, fmt.Sprintf("/api/appointments/%v", id), nil, cookie).Code)
}

func TestCreateAppointment_PaidFieldsNeedAdmin(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/customers", gin.H{
		"name": "Jane Doe", "email": "jane@example.com", "phone": "(555) 123-4567",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	customerID := decode(t, w)["id"]

	paid := gin.H{
		"customerId":      customerID,
		"serviceId":       1,
		"appointmentDate": "2030-05-01T10:30:00Z",
		"status":          "confirmed",
		"downPaymentPaid": true,
		"totalPaid":       true,
		"paymentTxId":     "TXN-fake",
	}

	w = s.do(t, http.MethodPost, "/api/appointments", paid)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	for _, field := range []string{"status", "downPaymentPaid", "paymentTxId"} {
		only := gin.H{"customerId": customerID, "serviceId": 1, "appointmentDate": "2030-05-01T10:30:00Z"}
		only[field] = paid[field]
		w = s.do(t, http.MethodPost, "/api/appointments", only)
		assert.Equal(t, http.StatusUnauthorized, w.Code, field)
	}

	w = s.do(t, http.MethodPost, "/api/appointments", gin.H{
		"customerId": customerID, "serviceId": 1, "appointmentDate": "2030-05-01T10:30:00Z", "status": "pending",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, false, body["downPaymentPaid"])
	assert.Equal(t, false, body["totalPaid"])

	cookie := s.login(t)
	w = s.do(t, http.MethodPost, "/api/appointments", paid, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, true, body["totalPaid"])
	assert.Equal(t, "TXN-fake", body["paymentTxId"])
}

func TestPaymentEndpoints(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/square/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sandbox-app", decode(t, w)["applicationId"])

	w = s.do(t, http.MethodPost, "/api/square/payment", gin.H{"sourceId": "cnon:abc", "amount": "1.00", "serviceId": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "amount_mismatch", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/create-payment-intent", gin.H{"amount": "25.00"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2500), body["amount"])
	assert.True(t, strings.HasPrefix(body["clientSecret"].(string), "pi_mock_"))
}

func TestMessages(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/customers", gin.H{"name": "Ana", "email": "ana@example.com", "phone": "(555) 000-1111"})
	require.Equal(t, http.StatusCreated, w.Code)
	customerID := decode(t, w)["id"]

	w = s.do(t, http.MethodPost, "/api/messages", gin.H{"customerId": customerID, "message": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode(t, w)
	assert.Equal(t, true, first["isFromCustomer"])

	staff := gin.H{"customerId": customerID, "message": "Hi Ana", "isFromCustomer": false}
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/messages", staff).Code)

	cookie := s.login(t)
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/messages", staff, cookie).Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/messages/customer/%v?after=%v", customerID, first["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var newer []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &newer))
	require.Len(t, newer, 1)
	assert.Equal(t, "Hi Ana", newer[0]["message"])

	w = s.do(t, http.MethodGet, "/api/dashboard/stats", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["recentMessages"], 2)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 6)
	form := bookingBody("")["form"]

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/bookings/validate", form).Code)
	w := s.do(t, http.MethodPost, "/api/bookings/validate", form)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// unlimited routes are unaffected
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/services", nil).Code)
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(6)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.get("10.0.0.1")
	l.get("10.0.0.2")
	assert.Equal(t, 2, l.size())

	now = now.Add(2 * time.Minute)
	l.get("10.0.0.2")

	now = now.Add(limiterIdleTTL - time.Minute)
	l.get("10.0.0.3")
	assert.Equal(t, 2, l.size())
	assert.NotContains(t, l.limiters, "10.0.0.1")

	// an evicted client starts again with a full bucket
	assert.True(t, l.get("10.0.0.1").Allow())
}

func TestErrorBody(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&service.PartialBookingError{TxID: "TXN-1", Err: errors.New("disk full")}, http.StatusBadGateway, "payment_captured_booking_failed"},
		{&service.FieldErrors{Fields: map[string]string{"name": "Name is required"}}, http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("login: %w", service.ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("service 9: %w", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{service.ErrAmountMismatch, http.StatusConflict, "amount_mismatch"},
		{service.ErrWidgetActive, http.StatusConflict, "widget_active"},
		{fmt.Errorf("%w: appointment 1", service.ErrAlreadyBooked), http.StatusConflict, "already_booked"},
		{service.ErrPaymentTimeout, http.StatusGatewayTimeout, "payment_timeout"},
		{&service.CardError{Code: "card_declined", Message: "Your card was declined."}, http.StatusPaymentRequired, "card_declined"},
		{service.ErrSDKUnavailable, http.StatusServiceUnavailable, "payment_unavailable"},
		{service.ErrGateway, http.StatusPaymentRequired, "gateway_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, body := errorBody(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, body["code"], tc.err.Error())
	}

	_, body := errorBody(&service.PartialBookingError{TxID: "TXN-1", Err: errors.New("disk full")})
	assert.Contains(t, body["error"], "contact support")
	assert.Equal(t, "TXN-1", body["transactionId"])
}

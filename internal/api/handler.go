package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/service"
	"salon-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the domain services served over HTTP
type Services struct {
	Catalog      *service.CatalogService
	Customers    *service.CustomerService
	Appointments *service.AppointmentService
	Payments     *service.PaymentService
	Bookings     *service.BookingOrchestrator
	Messages     *service.MessageService
	Auth         *service.AuthService
	Dashboard    *service.DashboardService
}

// RouterOptions configures the cross-cutting middleware
type RouterOptions struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// Handler contains HTTP handlers
type Handler struct {
	svc      Services
	sessions sessions.Store
	checks   []Pinger
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, sessionStore sessions.Store, checks ...Pinger) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessionStore,
		checks:   checks,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, opts RouterOptions) {
	binding.EnableDecoderDisallowUnknownFields = true

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(opts.AllowedOrigins))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := newIPRateLimiter(opts.RateLimitPerMinute).middleware()
	admin := h.requireAdmin()

	api := router.Group("/api")
	{
		api.POST("/login", limited, h.login)
		api.POST("/logout", h.logout)
		api.GET("/auth/me", h.me)

		api.GET("/services", h.listServices)
		api.GET("/services/category/:category", h.listServicesByCategory)
		api.GET("/services/:id", h.getService)
		api.GET("/services/:id/quote", h.quoteService)
		api.POST("/services", admin, h.createService)
		api.PUT("/services/:id", admin, h.updateService)
		api.DELETE("/services/:id", admin, h.deleteService)

		api.GET("/customers", admin, h.listCustomers)
		api.GET("/customers/find/:email", h.findCustomer)
		api.POST("/customers", h.createCustomer)
		api.GET("/customers/:id/appointments", admin, h.listCustomerAppointments)

		api.GET("/appointments", admin, h.listAppointments)
		api.GET("/appointments/date/:date", admin, h.listAppointmentsByDate)
		api.GET("/appointments/:id", admin, h.getAppointment)
		api.GET("/appointments/:id/balance", admin, h.appointmentBalance)
		api.POST("/appointments", h.createAppointment)
		api.PATCH("/appointments/:id/status", admin, h.updateAppointmentStatus)
		api.PATCH("/appointments/:id/payment", admin, h.recordAppointmentPayment)
		api.DELETE("/appointments/:id", admin, h.deleteAppointment)

		api.GET("/bookings/slots", h.timeSlots)
		api.POST("/bookings/validate", limited, h.validateBooking)
		api.POST("/bookings", limited, h.createBooking)
		api.POST("/bookings/pending", limited, h.createPendingBooking)

		api.GET("/square/config", h.paymentConfig)
		api.POST("/square/payment", limited, h.processPayment)
		api.POST("/create-payment-intent", limited, h.createPaymentIntent)

		api.GET("/messages", admin, h.listMessages)
		api.GET("/messages/customer/:id", h.listCustomerMessages)
		api.POST("/messages", h.postMessage)

		api.GET("/dashboard/stats", admin, h.dashboardStats)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   h.now().Unix(),
	})
}

// readinessCheck pings the store and cache
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   h.now().Unix(),
	})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// bindJSON decodes the body into dst; unknown fields are rejected
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "Invalid request body", err)
		return false
	}
	return true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.svc.Auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	// a stale or tampered cookie still yields a usable new session
	session, _ := h.sessions.Get(c.Request, sessionName)
	session.Values[keyAuthenticated] = true
	session.Values[keyUserID] = user.ID
	if err := session.Save(c.Request, c.Writer); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}

func (h *Handler) logout(c *gin.Context) {
	session, _ := h.sessions.Get(c.Request, sessionName)
	session.Values[keyAuthenticated] = false
	delete(session.Values, keyUserID)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request, c.Writer); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) me(c *gin.Context) {
	id, ok := h.adminUserID(c)
	if !ok {
		writeError(c, service.ErrUnauthorized)
		return
	}
	user, err := h.svc.Auth.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}

func (h *Handler) listServices(c *gin.Context) {
	services, err := h.svc.Catalog.ListServices(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *Handler) listServicesByCategory(c *gin.Context) {
	services, err := h.svc.Catalog.ListByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *Handler) getService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	svc, err := h.svc.Catalog.GetService(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *Handler) quoteService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	quote, err := h.svc.Bookings.SelectService(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) createService(c *gin.Context) {
	var in service.ServiceInput
	if !bindJSON(c, &in) {
		return
	}
	svc, err := h.svc.Catalog.CreateService(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, svc)
}

func (h *Handler) updateService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.ServiceInput
	if !bindJSON(c, &in) {
		return
	}
	svc, err := h.svc.Catalog.UpdateService(c.Request.Context(), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (h *Handler) deleteService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteService(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listCustomers(c *gin.Context) {
	customers, err := h.svc.Customers.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (h *Handler) findCustomer(c *gin.Context) {
	customer, err := h.svc.Customers.FindByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *Handler) createCustomer(c *gin.Context) {
	var in service.CustomerInput
	if !bindJSON(c, &in) {
		return
	}
	customer, err := h.svc.Customers.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *Handler) listCustomerAppointments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	appts, err := h.svc.Appointments.ListByCustomer(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appts)
}

func (h *Handler) listAppointments(c *gin.Context) {
	appts, err := h.svc.Appointments.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appts)
}

func (h *Handler) listAppointmentsByDate(c *gin.Context) {
	appts, err := h.svc.Appointments.ListByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appts)
}

func (h *Handler) getAppointment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	appt, err := h.svc.Appointments.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

func (h *Handler) appointmentBalance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	balance, err := h.svc.Appointments.RemainingBalance(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) createAppointment(c *gin.Context) {
	var in service.AppointmentInput
	if !bindJSON(c, &in) {
		return
	}
	if in.Privileged() && !h.isAdmin(c) {
		writeError(c, fmt.Errorf("%w: only staff may record confirmed or paid appointments", service.ErrUnauthorized))
		return
	}
	appt, err := h.svc.Appointments.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateAppointmentStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	appt, err := h.svc.Appointments.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

func (h *Handler) recordAppointmentPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var upd service.PaymentUpdate
	if !bindJSON(c, &upd) {
		return
	}
	appt, err := h.svc.Appointments.RecordPayment(c.Request.Context(), id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

func (h *Handler) deleteAppointment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Appointments.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) timeSlots(c *gin.Context) {
	c.JSON(http.StatusOK, service.TimeSlots)
}

func (h *Handler) validateBooking(c *gin.Context) {
	var in service.BookingFormInput
	if !bindJSON(c, &in) {
		return
	}
	form, err := h.svc.Bookings.ValidateBookingForm(in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

type bookingResponse struct {
	SessionID        string                `json:"sessionId"`
	State            service.BookingState  `json:"state"`
	Appointment      *models.Appointment   `json:"appointment"`
	Customer         *models.Customer      `json:"customer"`
	Payment          *service.ChargeResult `json:"payment,omitempty"`
	RemainingBalance models.Money          `json:"remainingBalance"`
}

func newBookingResponse(a *service.BookingAttempt) bookingResponse {
	return bookingResponse{
		SessionID:        a.SessionID,
		State:            a.State,
		Appointment:      a.Appointment,
		Customer:         a.Customer,
		Payment:          a.Payment,
		RemainingBalance: a.RemainingBalance(),
	}
}

func writeBookingError(c *gin.Context, attempt *service.BookingAttempt, err error) {
	status, body := errorBody(err)
	if attempt != nil {
		body["state"] = attempt.State
		body["sessionId"] = attempt.SessionID
	}
	switch {
	case status == http.StatusBadGateway:
		util.GetLogger().Error("Booking left a captured payment without an appointment", zap.Error(err))
	case status == http.StatusInternalServerError:
		util.GetLogger().Error("Booking failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) createBooking(c *gin.Context) {
	var req service.BookingRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	attempt, err := h.svc.Bookings.Book(c.Request.Context(), req)
	if err != nil {
		writeBookingError(c, attempt, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(attempt))
}

func (h *Handler) createPendingBooking(c *gin.Context) {
	var in service.BookingFormInput
	if !bindJSON(c, &in) {
		return
	}
	attempt, err := h.svc.Bookings.BookPending(c.Request.Context(), in)
	if err != nil {
		writeBookingError(c, attempt, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(attempt))
}

func (h *Handler) paymentConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Payments.Config())
}

func (h *Handler) processPayment(c *gin.Context) {
	var in service.ChargeInput
	if !bindJSON(c, &in) {
		return
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.svc.Payments.Charge(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "payment": result})
}

type paymentIntentRequest struct {
	Amount models.Money `json:"amount"`
}

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req paymentIntentRequest
	if !bindJSON(c, &req) {
		return
	}
	intent, err := h.svc.Payments.CreateIntent(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handler) listMessages(c *gin.Context) {
	msgs, err := h.svc.Messages.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) listCustomerMessages(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var after int64
	if raw := strings.TrimSpace(c.Query("after")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid after", err)
			return
		}
		after = v
	}

	msgs, err := h.svc.Messages.ListByCustomer(c.Request.Context(), id, after)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) postMessage(c *gin.Context) {
	var in service.MessageInput
	if !bindJSON(c, &in) {
		return
	}
	msg, err := h.svc.Messages.Post(c.Request.Context(), in, h.isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.svc.Dashboard.Stats(c.Request.Context(), h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

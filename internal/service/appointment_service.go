package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AppointmentService is the appointment ledger
type AppointmentService struct {
	repo   store.Repository
	events EventPublisher
	loc    *time.Location
	logger *zap.Logger
}

// NewAppointmentService creates a new appointment service. Date-only
// queries and zone-less timestamps are interpreted in loc.
func NewAppointmentService(repo store.Repository, events EventPublisher, loc *time.Location) *AppointmentService {
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentService{
		repo:   repo,
		events: publisherOrNop(events),
		loc:    loc,
		logger: util.GetLogger(),
	}
}

// AppointmentInput is the payload for recording an appointment directly
type AppointmentInput struct {
	CustomerID      int64  `json:"customerId" validate:"required,gt=0"`
	ServiceID       int64  `json:"serviceId" validate:"required,gt=0"`
	AppointmentDate string `json:"appointmentDate" validate:"required"`
	Status          string `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed completed cancelled"`
	SpecialRequests string `json:"specialRequests,omitempty" validate:"max=1000"`
	DownPaymentPaid bool   `json:"downPaymentPaid"`
	TotalPaid       bool   `json:"totalPaid"`
	PaymentTxID     string `json:"paymentTxId,omitempty"`
}

// Privileged reports whether in asks for anything beyond an unpaid pending
// request. Only staff may record confirmed or paid appointments directly.
func (in AppointmentInput) Privileged() bool {
	status := strings.ToLower(strings.TrimSpace(in.Status))
	return (status != "" && status != models.AppointmentStatusPending) ||
		in.DownPaymentPaid || in.TotalPaid || strings.TrimSpace(in.PaymentTxID) != ""
}

var appointmentMessages = map[string]string{
	"customerId":      "Customer is required",
	"serviceId":       "Please select a service",
	"appointmentDate": "Please select a date",
	"status":          "Status must be one of pending, confirmed, completed, cancelled",
}

// PaymentUpdate merges payment flags; nil fields are left unchanged
type PaymentUpdate struct {
	DownPaymentPaid *bool `json:"downPaymentPaid,omitempty"`
	TotalPaid       *bool `json:"totalPaid,omitempty"`
}

// Balance is the payment position of one appointment
type Balance struct {
	AppointmentID   int64        `json:"appointmentId"`
	Price           models.Money `json:"price"`
	DownPayment     models.Money `json:"downPayment"`
	AmountDue       models.Money `json:"amountDue"`
	DownPaymentPaid bool         `json:"downPaymentPaid"`
	TotalPaid       bool         `json:"totalPaid"`
}

var appointmentTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseAppointmentTime accepts RFC 3339 or a zone-less local date-time
func ParseAppointmentTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range appointmentTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid appointment date %q", s)
}

// Create stores an appointment with exactly the status and flags given.
// An empty status means pending. Dangling customer or service ids are rejected.
func (as *AppointmentService) Create(ctx context.Context, in AppointmentInput) (*models.Appointment, error) {
	ctx, span := util.StartSpan(ctx, "AppointmentService.Create")
	defer span.End()

	fe := &FieldErrors{}
	if err := validateStruct(in, appointmentMessages); err != nil {
		if !errors.As(err, &fe) {
			return nil, err
		}
	}

	var at time.Time
	if in.AppointmentDate != "" {
		t, err := ParseAppointmentTime(in.AppointmentDate, as.loc)
		if err != nil {
			fe.Add("appointmentDate", "Please select a valid date")
		}
		at = t
	}
	if in.TotalPaid && !in.DownPaymentPaid {
		fe.Add("totalPaid", "Total cannot be paid before the down payment")
	}
	if err := fe.OrNil(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.AppointmentStatusPending
	}

	appt := &models.Appointment{
		CustomerID:      in.CustomerID,
		ServiceID:       in.ServiceID,
		AppointmentDate: at,
		Status:          status,
		SpecialRequests: strings.TrimSpace(in.SpecialRequests),
		DownPaymentPaid: in.DownPaymentPaid,
		TotalPaid:       in.TotalPaid,
		PaymentTxID:     in.PaymentTxID,
	}
	if err := as.insert(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// FindByTxID returns the appointment recorded against a payment transaction
func (as *AppointmentService) FindByTxID(ctx context.Context, txID string) (*models.Appointment, error) {
	appt, err := as.repo.GetAppointmentByTxID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txID, err)
	}
	return appt, nil
}

// insert checks references then stores appt as-is
func (as *AppointmentService) insert(ctx context.Context, appt *models.Appointment) error {
	if _, err := as.repo.GetCustomerByID(ctx, appt.CustomerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fieldError("customerId", fmt.Sprintf("customer %d does not exist", appt.CustomerID))
		}
		return fmt.Errorf("failed to check customer: %w", err)
	}
	if _, err := as.repo.GetServiceByID(ctx, appt.ServiceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fieldError("serviceId", fmt.Sprintf("service %d does not exist", appt.ServiceID))
		}
		return fmt.Errorf("failed to check service: %w", err)
	}

	if err := as.repo.CreateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	as.logger.Info("Appointment created",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("customer_id", appt.CustomerID),
		zap.String("status", appt.Status))
	return nil
}

// UpdateStatus overwrites the status; any status may follow any other.
// Concurrent updates race and the last write wins.
func (as *AppointmentService) UpdateStatus(ctx context.Context, id int64, status string) (*models.Appointment, error) {
	ctx, span := util.StartSpan(ctx, "AppointmentService.UpdateStatus")
	defer span.End()

	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidAppointmentStatus(status) {
		return nil, fieldError("status", appointmentMessages["status"])
	}

	previous, err := as.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", id, err)
	}

	appt, err := as.repo.UpdateAppointmentStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", id, err)
	}
	util.AppointmentStatusChangesTotal.WithLabelValues(status).Inc()

	event := &models.AppointmentStatusChangedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeAppointmentStatusChanged),
		AppointmentID: id,
		OldStatus:     previous.Status,
		NewStatus:     status,
	}
	if err := as.events.PublishStatusChanged(ctx, event); err != nil {
		as.logger.Error("Failed to publish AppointmentStatusChanged event", zap.Error(err))
	}
	return appt, nil
}

// RecordPayment merges payment flags. Marking the total paid also marks
// the down payment paid; any merge ending in totalPaid without
// downPaymentPaid is rejected.
func (as *AppointmentService) RecordPayment(ctx context.Context, id int64, upd PaymentUpdate) (*models.Appointment, error) {
	ctx, span := util.StartSpan(ctx, "AppointmentService.RecordPayment")
	defer span.End()

	if upd.DownPaymentPaid == nil && upd.TotalPaid == nil {
		return nil, fieldError("totalPaid", "No payment flags given")
	}

	current, err := as.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", id, err)
	}

	down, total := current.DownPaymentPaid, current.TotalPaid
	if upd.TotalPaid != nil {
		total = *upd.TotalPaid
		if total && upd.DownPaymentPaid == nil {
			down = true
		}
	}
	if upd.DownPaymentPaid != nil {
		down = *upd.DownPaymentPaid
	}
	if total && !down {
		return nil, fieldError("downPaymentPaid", "Total cannot be paid before the down payment")
	}

	appt, err := as.repo.UpdateAppointmentPayment(ctx, id, down, total)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", id, err)
	}

	event := &models.PaymentRecordedEvent{
		BaseEvent:       newBaseEvent(models.EventTypePaymentRecorded),
		AppointmentID:   id,
		DownPaymentPaid: down,
		TotalPaid:       total,
	}
	if err := as.events.PublishPaymentRecorded(ctx, event); err != nil {
		as.logger.Error("Failed to publish PaymentRecorded event", zap.Error(err))
	}
	return appt, nil
}

// Delete removes an appointment permanently
func (as *AppointmentService) Delete(ctx context.Context, id int64) error {
	if err := as.repo.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("appointment %d: %w", id, err)
	}
	as.logger.Info("Appointment deleted", zap.Int64("appointment_id", id))
	return nil
}

// List returns every appointment
func (as *AppointmentService) List(ctx context.Context) ([]models.Appointment, error) {
	return as.repo.GetAppointments(ctx)
}

// Get retrieves an appointment by id
func (as *AppointmentService) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	appt, err := as.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", id, err)
	}
	return appt, nil
}

// ListByDate returns the appointments on the calendar day named by date (YYYY-MM-DD)
func (as *AppointmentService) ListByDate(ctx context.Context, date string) ([]models.Appointment, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), as.loc)
	if err != nil {
		return nil, fieldError("date", "Date must be YYYY-MM-DD")
	}
	return as.repo.GetAppointmentsByDate(ctx, day)
}

// ListByCustomer returns a customer's appointments
func (as *AppointmentService) ListByCustomer(ctx context.Context, customerID int64) ([]models.Appointment, error) {
	return as.repo.GetAppointmentsByCustomer(ctx, customerID)
}

// RemainingBalance reports what is still owed on an appointment
func (as *AppointmentService) RemainingBalance(ctx context.Context, id int64) (*Balance, error) {
	appt, err := as.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	svc, err := as.repo.GetServiceByID(ctx, appt.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", appt.ServiceID, err)
	}

	due := svc.Price
	switch {
	case appt.TotalPaid:
		due = 0
	case appt.DownPaymentPaid:
		due = svc.RemainingBalance()
	}

	return &Balance{
		AppointmentID:   appt.ID,
		Price:           svc.Price,
		DownPayment:     svc.DownPayment,
		AmountDue:       due,
		DownPaymentPaid: appt.DownPaymentPaid,
		TotalPaid:       appt.TotalPaid,
	}, nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingState is the state of one booking attempt
type BookingState string

const (
	StateIdle               BookingState = "idle"
	StateFormValid          BookingState = "form_valid"
	StatePaymentPending     BookingState = "payment_pending"
	StatePaymentConfirmed   BookingState = "payment_confirmed"
	StateAppointmentCreated BookingState = "appointment_created"
	StateAborted            BookingState = "aborted"
)

var bookingTransitions = map[BookingState]BookingState{
	StateIdle:             StateFormValid,
	StateFormValid:        StatePaymentPending,
	StatePaymentPending:   StatePaymentConfirmed,
	StatePaymentConfirmed: StateAppointmentCreated,
}

// Terminal reports whether no further transition is possible
func (s BookingState) Terminal() bool {
	return s == StateAppointmentCreated || s == StateAborted
}

// BookingAttempt is the in-flight state of one booking. Nothing here is
// persisted; a failed attempt is restarted from a new attempt.
type BookingAttempt struct {
	SessionID   string              `json:"sessionId"`
	State       BookingState        `json:"state"`
	Form        *BookingForm        `json:"form,omitempty"`
	Service     *models.Service     `json:"service,omitempty"`
	Payment     *ChargeResult       `json:"payment,omitempty"`
	Customer    *models.Customer    `json:"customer,omitempty"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
	Err         error               `json:"-"`
}

// RemainingBalance is what the customer pays in person
func (a *BookingAttempt) RemainingBalance() models.Money {
	if a.Service == nil {
		return 0
	}
	return a.Service.RemainingBalance()
}

func (a *BookingAttempt) advance(to BookingState) error {
	if bookingTransitions[a.State] != to {
		return fmt.Errorf("invalid booking transition %s -> %s", a.State, to)
	}
	a.State = to
	return nil
}

// BookingRequest is a complete paid booking submission
type BookingRequest struct {
	SessionID      string           `json:"sessionId,omitempty"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
	Form           BookingFormInput `json:"form"`
	Payment        PaymentSource    `json:"payment"`
}

// BookingOrchestrator drives select service → validate form → pay →
// create customer → create appointment. An appointment is only recorded
// as confirmed after the gateway reports a successful charge.
type BookingOrchestrator struct {
	catalog      *CatalogService
	customers    *CustomerService
	appointments *AppointmentService
	payments     *PaymentService
	events       EventPublisher
	reuseByEmail bool
	loc          *time.Location
	logger       *zap.Logger
}

// NewBookingOrchestrator creates a new booking orchestrator
func NewBookingOrchestrator(
	catalog *CatalogService,
	customers *CustomerService,
	appointments *AppointmentService,
	payments *PaymentService,
	events EventPublisher,
	reuseByEmail bool,
	loc *time.Location,
) *BookingOrchestrator {
	if loc == nil {
		loc = time.Local
	}
	return &BookingOrchestrator{
		catalog:      catalog,
		customers:    customers,
		appointments: appointments,
		payments:     payments,
		events:       publisherOrNop(events),
		reuseByEmail: reuseByEmail,
		loc:          loc,
		logger:       util.GetLogger(),
	}
}

// NewAttempt starts an attempt in Idle. An empty sessionID gets a fresh one.
func (bo *BookingOrchestrator) NewAttempt(sessionID string) *BookingAttempt {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &BookingAttempt{SessionID: sessionID, State: StateIdle}
}

// SelectService returns what the customer will be asked to pay
func (bo *BookingOrchestrator) SelectService(ctx context.Context, serviceID int64) (*Quote, error) {
	return bo.catalog.Quote(ctx, serviceID)
}

// ValidateBookingForm checks and normalises the form. No I/O.
func (bo *BookingOrchestrator) ValidateBookingForm(in BookingFormInput) (*BookingForm, error) {
	return ValidateBookingForm(in, bo.loc)
}

// Prepare validates the form and resolves the service: Idle → FormValid
func (bo *BookingOrchestrator) Prepare(ctx context.Context, attempt *BookingAttempt, in BookingFormInput) error {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.Prepare")
	defer span.End()

	form, err := bo.ValidateBookingForm(in)
	if err != nil {
		return bo.abort(ctx, attempt, "validate", in.ServiceID, err)
	}
	svc, err := bo.catalog.GetService(ctx, form.ServiceID)
	if err != nil {
		return bo.abort(ctx, attempt, "select_service", form.ServiceID, err)
	}

	if err := attempt.advance(StateFormValid); err != nil {
		return err
	}
	attempt.Form = form
	attempt.Service = svc
	return nil
}

// InitiatePayment opens a capture widget for the attempt's session,
// tokenizes source and charges the service deposit: FormValid →
// PaymentPending → PaymentConfirmed. The widget is destroyed on every
// path. On failure the attempt is aborted before any customer or
// appointment exists.
func (bo *BookingOrchestrator) InitiatePayment(ctx context.Context, attempt *BookingAttempt, source PaymentSource, idempotencyKey string) error {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.InitiatePayment")
	defer span.End()

	if err := attempt.advance(StatePaymentPending); err != nil {
		return err
	}

	if attempt.Service.DownPayment == 0 {
		attempt.Payment = &ChargeResult{Status: "NOT_REQUIRED"}
		return attempt.advance(StatePaymentConfirmed)
	}

	payCtx, cancel := context.WithTimeout(ctx, bo.payments.Timeout())
	defer cancel()

	result, err := bo.pay(payCtx, attempt, source, idempotencyKey)
	if err == nil && result.Replayed {
		err = bo.checkReplay(ctx, result)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrPaymentTimeout, bo.payments.Timeout())
		}
		return bo.abort(ctx, attempt, "payment", attempt.Service.ID, err)
	}

	attempt.Payment = result
	return attempt.advance(StatePaymentConfirmed)
}

func (bo *BookingOrchestrator) pay(ctx context.Context, attempt *BookingAttempt, source PaymentSource, idempotencyKey string) (*ChargeResult, error) {
	widget, err := bo.payments.Widgets().Open(ctx, attempt.SessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := widget.Destroy(); err != nil {
			bo.logger.Warn("Failed to destroy capture widget", zap.String("session_id", attempt.SessionID), zap.Error(err))
		}
	}()

	token, err := widget.Tokenize(ctx, source)
	if err != nil {
		return nil, err
	}

	return bo.payments.Charge(ctx, ChargeInput{
		SourceID:       token.Token,
		Amount:         attempt.Service.DownPayment,
		ServiceID:      attempt.Service.ID,
		CustomerEmail:  attempt.Form.CustomerEmail,
		CustomerName:   attempt.Form.CustomerName,
		ServiceName:    attempt.Service.Name,
		IdempotencyKey: idempotencyKey,
	})
}

// checkReplay refuses a replayed charge whose transaction already backs
// an appointment, so one deposit confirms at most one booking.
func (bo *BookingOrchestrator) checkReplay(ctx context.Context, result *ChargeResult) error {
	existing, err := bo.appointments.FindByTxID(ctx, result.TxID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return fmt.Errorf("%w: appointment %d (transaction %s)", ErrAlreadyBooked, existing.ID, result.TxID)
}

// CompleteBooking records the customer and a confirmed, deposit-paid
// appointment: PaymentConfirmed → AppointmentCreated. Once money has been
// taken, any failure here is a *PartialBookingError and is not retried.
// Without a captured charge (zero deposit) a failure simply aborts.
func (bo *BookingOrchestrator) CompleteBooking(ctx context.Context, attempt *BookingAttempt) error {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.CompleteBooking")
	defer span.End()

	if attempt.State != StatePaymentConfirmed {
		return fmt.Errorf("invalid booking transition %s -> %s", attempt.State, StateAppointmentCreated)
	}

	form := attempt.Form
	customer, err := bo.customers.FindOrCreate(ctx, CustomerInput{
		Name:  form.CustomerName,
		Email: form.CustomerEmail,
		Phone: form.CustomerPhone,
	}, bo.reuseByEmail)
	if err != nil {
		return bo.fail(ctx, attempt, "customer", 0, err)
	}
	attempt.Customer = customer

	appt := &models.Appointment{
		CustomerID:      customer.ID,
		ServiceID:       attempt.Service.ID,
		AppointmentDate: form.AppointmentDate,
		Status:          models.AppointmentStatusConfirmed,
		SpecialRequests: form.SpecialRequests,
		DownPaymentPaid: true,
		TotalPaid:       false,
		PaymentTxID:     attempt.Payment.TxID,
	}
	if err := bo.appointments.insert(ctx, appt); err != nil {
		return bo.fail(ctx, attempt, "appointment", customer.ID, err)
	}

	attempt.Appointment = appt
	if err := attempt.advance(StateAppointmentCreated); err != nil {
		return err
	}

	util.BookingsCreatedTotal.WithLabelValues(appt.Status).Inc()
	bo.logger.Info("Booking completed",
		zap.String("session_id", attempt.SessionID),
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("customer_id", customer.ID),
		zap.String("tx_id", appt.PaymentTxID))

	bo.publishBooked(ctx, attempt)
	return nil
}

// Book runs the whole flow for one request. The returned attempt is
// always non-nil and carries the terminal state.
func (bo *BookingOrchestrator) Book(ctx context.Context, req BookingRequest) (*BookingAttempt, error) {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.Book")
	defer span.End()

	attempt := bo.NewAttempt(req.SessionID)

	if err := bo.Prepare(ctx, attempt, req.Form); err != nil {
		return attempt, err
	}
	if err := bo.InitiatePayment(ctx, attempt, req.Payment, req.IdempotencyKey); err != nil {
		return attempt, err
	}
	if err := bo.CompleteBooking(ctx, attempt); err != nil {
		return attempt, err
	}
	return attempt, nil
}

// BookPending records an unpaid booking request: a new customer and a
// pending appointment with both payment flags false.
func (bo *BookingOrchestrator) BookPending(ctx context.Context, in BookingFormInput) (*BookingAttempt, error) {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.BookPending")
	defer span.End()

	attempt := bo.NewAttempt("")
	if err := bo.Prepare(ctx, attempt, in); err != nil {
		return attempt, err
	}

	form := attempt.Form
	customer, err := bo.customers.FindOrCreate(ctx, CustomerInput{
		Name:  form.CustomerName,
		Email: form.CustomerEmail,
		Phone: form.CustomerPhone,
	}, bo.reuseByEmail)
	if err != nil {
		return attempt, bo.abort(ctx, attempt, "customer", form.ServiceID, err)
	}
	attempt.Customer = customer

	appt := &models.Appointment{
		CustomerID:      customer.ID,
		ServiceID:       attempt.Service.ID,
		AppointmentDate: form.AppointmentDate,
		Status:          models.AppointmentStatusPending,
		SpecialRequests: form.SpecialRequests,
	}
	if err := bo.appointments.insert(ctx, appt); err != nil {
		return attempt, bo.abort(ctx, attempt, "appointment", form.ServiceID, err)
	}

	attempt.Appointment = appt
	attempt.State = StateAppointmentCreated
	util.BookingsCreatedTotal.WithLabelValues(appt.Status).Inc()
	bo.publishBooked(ctx, attempt)
	return attempt, nil
}

func (bo *BookingOrchestrator) abort(ctx context.Context, attempt *BookingAttempt, stage string, serviceID int64, err error) error {
	attempt.State = StateAborted
	attempt.Err = err

	reason := failureReason(err)
	util.BookingsFailedTotal.WithLabelValues(reason).Inc()
	bo.logger.Info("Booking aborted",
		zap.String("session_id", attempt.SessionID),
		zap.String("stage", stage),
		zap.Error(err))

	event := &models.BookingFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeBookingFailed),
		ServiceID: serviceID,
		Stage:     stage,
		Reason:    reason,
	}
	if pubErr := bo.events.PublishBookingFailed(ctx, event); pubErr != nil {
		bo.logger.Error("Failed to publish BookingFailed event", zap.Error(pubErr))
	}
	return err
}

// fail ends CompleteBooking: partial when a charge was captured, a plain
// abort otherwise.
func (bo *BookingOrchestrator) fail(ctx context.Context, attempt *BookingAttempt, stage string, customerID int64, err error) error {
	if attempt.Payment == nil || attempt.Payment.TxID == "" {
		return bo.abort(ctx, attempt, stage, attempt.Service.ID, err)
	}
	return bo.partial(ctx, attempt, stage, customerID, err)
}

func (bo *BookingOrchestrator) partial(ctx context.Context, attempt *BookingAttempt, stage string, customerID int64, cause error) error {
	err := &PartialBookingError{TxID: attempt.Payment.TxID, CustomerID: customerID, Err: cause}
	attempt.State = StateAborted
	attempt.Err = err

	util.BookingsPartialTotal.Inc()
	util.BookingsFailedTotal.WithLabelValues("partial").Inc()
	bo.logger.Error("Payment captured but appointment not recorded",
		zap.String("session_id", attempt.SessionID),
		zap.String("tx_id", attempt.Payment.TxID),
		zap.Int64("customer_id", customerID),
		zap.Error(cause))

	event := &models.BookingFailedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeBookingFailed),
		ServiceID:      attempt.Service.ID,
		Stage:          stage,
		Reason:         failureReason(cause),
		PaymentCharged: true,
		TxID:           attempt.Payment.TxID,
	}
	if pubErr := bo.events.PublishBookingFailed(ctx, event); pubErr != nil {
		bo.logger.Error("Failed to publish BookingFailed event", zap.Error(pubErr))
	}
	return err
}

func (bo *BookingOrchestrator) publishBooked(ctx context.Context, attempt *BookingAttempt) {
	appt := attempt.Appointment
	event := &models.AppointmentBookedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeAppointmentBooked),
		AppointmentID:   appt.ID,
		CustomerID:      appt.CustomerID,
		ServiceID:       appt.ServiceID,
		ServiceName:     attempt.Service.Name,
		AppointmentDate: appt.AppointmentDate,
		TxID:            appt.PaymentTxID,
		Status:          appt.Status,
	}
	if appt.DownPaymentPaid {
		event.Deposit = attempt.Service.DownPayment
	}
	if err := bo.events.PublishAppointmentBooked(ctx, event); err != nil {
		bo.logger.Error("Failed to publish AppointmentBooked event", zap.Error(err))
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"salon-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBook_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	attempt, err := env.orchestrator.Book(ctx, BookingRequest{
		SessionID: "s1",
		Form:      validForm(),
		Payment:   PaymentSource{CardNumber: "4242 4242 4242 4242"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateAppointmentCreated, attempt.State)

	customers, appointments := env.counts(t)
	assert.Equal(t, 1, customers)
	assert.Equal(t, 1, appointments)

	appt := attempt.Appointment
	assert.Equal(t, models.AppointmentStatusConfirmed, appt.Status)
	assert.True(t, appt.DownPaymentPaid)
	assert.False(t, appt.TotalPaid)
	assert.Contains(t, appt.PaymentTxID, "TXN-")
	assert.Equal(t, time.Date(2030, 5, 1, 10, 30, 0, 0, time.UTC), appt.AppointmentDate)

	assert.Equal(t, "(555) 123-4567", attempt.Customer.Phone)
	assert.Equal(t, "jane@example.com", attempt.Customer.Email)
	assert.Equal(t, "60.00", attempt.RemainingBalance().String())

	charges := env.gateway.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, models.MustParseMoney("25.00"), charges[0].Amount)

	assert.False(t, env.widgets.Active("s1"))
	require.Len(t, env.events.booked, 1)
	assert.Equal(t, appt.ID, env.events.booked[0].AppointmentID)
	assert.Equal(t, "25.00", env.events.booked[0].Deposit.String())
}

func TestBook_DeclinedCardCreatesNothing(t *testing.T) {
	for _, card := range []string{CardDeclined, CardInsufficientFunds} {
		t.Run(card, func(t *testing.T) {
			env := newTestEnv(t)

			attempt, err := env.orchestrator.Book(context.Background(), BookingRequest{
				Form:    validForm(),
				Payment: PaymentSource{CardNumber: card},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCardDeclined)

			var cardErr *CardError
			require.True(t, errors.As(err, &cardErr))
			assert.NotEmpty(t, cardErr.Message)

			assert.Equal(t, StateAborted, attempt.State)
			assert.Nil(t, attempt.Customer)

			customers, appointments := env.counts(t)
			assert.Zero(t, customers)
			assert.Zero(t, appointments)
			assert.False(t, env.widgets.Active(attempt.SessionID))

			require.Len(t, env.events.failed, 1)
			assert.False(t, env.events.failed[0].PaymentCharged)
		})
	}
}

func TestBook_InvalidFormNeverReachesPayment(t *testing.T) {
	env := newTestEnv(t)

	form := validForm()
	form.CustomerEmail = "not-an-email"
	form.CustomerPhone = "555"

	attempt, err := env.orchestrator.Book(context.Background(), BookingRequest{
		Form:    form,
		Payment: PaymentSource{CardNumber: "4242424242424242"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var fe *FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Fields, "customerEmail")
	assert.Contains(t, fe.Fields, "customerPhone")

	assert.Equal(t, StateAborted, attempt.State)
	assert.Zero(t, env.gateway.WidgetsOpened())
}

func TestBook_UnknownService(t *testing.T) {
	env := newTestEnv(t)

	form := validForm()
	form.ServiceID = 99

	_, err := env.orchestrator.Book(context.Background(), BookingRequest{
		Form:    form,
		Payment: PaymentSource{CardNumber: "4242424242424242"},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.gateway.WidgetsOpened())
}

func TestBook_PaymentCapturedButAppointmentFails(t *testing.T) {
	env := newTestEnv(t, withFailingAppointments())

	attempt, err := env.orchestrator.Book(context.Background(), BookingRequest{
		Form:    validForm(),
		Payment: PaymentSource{CardNumber: "4242424242424242"},
	})
	require.Error(t, err)

	var partial *PartialBookingError
	require.True(t, errors.As(err, &partial))
	assert.Contains(t, partial.TxID, "TXN-")
	assert.NotZero(t, partial.CustomerID)
	assert.Contains(t, partial.Error(), "contact support")

	assert.Equal(t, StateAborted, attempt.State)
	customers, appointments := env.counts(t)
	assert.Equal(t, 1, customers)
	assert.Zero(t, appointments)
	assert.Len(t, env.gateway.Charges(), 1)

	require.Len(t, env.events.failed, 1)
	assert.True(t, env.events.failed[0].PaymentCharged)
	assert.Equal(t, partial.TxID, env.events.failed[0].TxID)
}

func TestBook_ZeroDepositFailureIsNotPartial(t *testing.T) {
	env := newTestEnv(t, withFailingAppointments())
	ctx := context.Background()

	svc, err := env.catalog.CreateService(ctx, ServiceInput{
		Name: "Fringe Trim", Category: "hair", Price: models.MustParseMoney("15.00"), Duration: 15,
	})
	require.NoError(t, err)

	form := validForm()
	form.ServiceID = svc.ID
	attempt, err := env.orchestrator.Book(ctx, BookingRequest{Form: form})
	require.Error(t, err)

	var partial *PartialBookingError
	assert.False(t, errors.As(err, &partial))
	assert.NotContains(t, err.Error(), "payment succeeded")
	assert.Equal(t, StateAborted, attempt.State)
	assert.Empty(t, env.gateway.Charges())

	require.Len(t, env.events.failed, 1)
	assert.False(t, env.events.failed[0].PaymentCharged)
	assert.Empty(t, env.events.failed[0].TxID)
	assert.Equal(t, "appointment", env.events.failed[0].Stage)
}

func TestBook_IdempotencyKeyConfirmsOneBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.orchestrator.Book(ctx, BookingRequest{
		SessionID:      "s1",
		IdempotencyKey: "K",
		Form:           validForm(),
		Payment:        PaymentSource{CardNumber: "4242424242424242"},
	})
	require.NoError(t, err)

	bridal := validForm()
	bridal.ServiceID = 9
	attempt, err := env.orchestrator.Book(ctx, BookingRequest{
		SessionID:      "s2",
		IdempotencyKey: "K",
		Form:           bridal,
		Payment:        PaymentSource{CardNumber: "4242424242424242"},
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, StateAborted, attempt.State)

	again := validForm()
	again.AppointmentTime = "15:00"
	attempt, err = env.orchestrator.Book(ctx, BookingRequest{
		SessionID:      "s3",
		IdempotencyKey: "K",
		Form:           again,
		Payment:        PaymentSource{CardNumber: "4242424242424242"},
	})
	assert.ErrorIs(t, err, ErrAlreadyBooked)
	assert.Contains(t, err.Error(), first.Appointment.PaymentTxID)
	assert.Equal(t, StateAborted, attempt.State)

	customers, appointments := env.counts(t)
	assert.Equal(t, 1, customers)
	assert.Equal(t, 1, appointments)
	assert.Len(t, env.gateway.Charges(), 1)
}

func TestBook_SDKUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.Available = false

	_, err := env.orchestrator.Book(context.Background(), BookingRequest{
		Form:    validForm(),
		Payment: PaymentSource{CardNumber: "4242424242424242"},
	})
	assert.ErrorIs(t, err, ErrSDKUnavailable)

	customers, appointments := env.counts(t)
	assert.Zero(t, customers)
	assert.Zero(t, appointments)
}

func TestBook_PaymentTimeout(t *testing.T) {
	env := newTestEnv(t, withTimeout(50*time.Millisecond))
	env.gateway.ChargeDelay = time.Second

	attempt, err := env.orchestrator.Book(context.Background(), BookingRequest{
		SessionID: "slow",
		Form:      validForm(),
		Payment:   PaymentSource{CardNumber: "4242424242424242"},
	})
	assert.ErrorIs(t, err, ErrPaymentTimeout)
	assert.Equal(t, StateAborted, attempt.State)
	assert.False(t, env.widgets.Active("slow"))

	_, appointments := env.counts(t)
	assert.Zero(t, appointments)
}

func TestBook_ReuseCustomerByEmail(t *testing.T) {
	ctx := context.Background()

	reuse := newTestEnv(t, withReuseByEmail())
	for i := 0; i < 2; i++ {
		_, err := reuse.orchestrator.Book(ctx, BookingRequest{Form: validForm(), Payment: PaymentSource{CardNumber: "4242424242424242"}})
		require.NoError(t, err)
	}
	customers, appointments := reuse.counts(t)
	assert.Equal(t, 1, customers)
	assert.Equal(t, 2, appointments)

	fresh := newTestEnv(t)
	for i := 0; i < 2; i++ {
		_, err := fresh.orchestrator.Book(ctx, BookingRequest{Form: validForm(), Payment: PaymentSource{CardNumber: "4242424242424242"}})
		require.NoError(t, err)
	}
	customers, _ = fresh.counts(t)
	assert.Equal(t, 2, customers)
}

func TestBookingAttempt_StepsMustRunInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	attempt := env.orchestrator.NewAttempt("")
	assert.Equal(t, StateIdle, attempt.State)
	assert.NotEmpty(t, attempt.SessionID)

	assert.Error(t, env.orchestrator.InitiatePayment(ctx, attempt, PaymentSource{CardNumber: "4242424242424242"}, ""))
	assert.Error(t, env.orchestrator.CompleteBooking(ctx, attempt))

	require.NoError(t, env.orchestrator.Prepare(ctx, attempt, validForm()))
	assert.Equal(t, StateFormValid, attempt.State)
	assert.Error(t, env.orchestrator.CompleteBooking(ctx, attempt))

	require.NoError(t, env.orchestrator.InitiatePayment(ctx, attempt, PaymentSource{CardNumber: "4242424242424242"}, ""))
	assert.Equal(t, StatePaymentConfirmed, attempt.State)

	require.NoError(t, env.orchestrator.CompleteBooking(ctx, attempt))
	assert.True(t, attempt.State.Terminal())
}

func TestBookPending(t *testing.T) {
	env := newTestEnv(t)

	attempt, err := env.orchestrator.BookPending(context.Background(), validForm())
	require.NoError(t, err)

	appt := attempt.Appointment
	assert.Equal(t, models.AppointmentStatusPending, appt.Status)
	assert.False(t, appt.DownPaymentPaid)
	assert.False(t, appt.TotalPaid)
	assert.Empty(t, appt.PaymentTxID)
	assert.Zero(t, env.gateway.WidgetsOpened())

	require.Len(t, env.events.booked, 1)
	assert.Equal(t, "0.00", env.events.booked[0].Deposit.String())
}

func TestSelectService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q, err := env.orchestrator.SelectService(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Color & Highlights", q.Name)
	assert.Equal(t, "50.00", q.DownPayment.String())
	assert.Equal(t, "100.00", q.RemainingBalance.String())

	_, err = env.orchestrator.SelectService(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

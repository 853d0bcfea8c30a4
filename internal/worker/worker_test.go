package worker

import (
	"context"
	"testing"
	"time"

	"salon-service/internal/broker"
	"salon-service/internal/models"
	"salon-service/internal/service"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	repo     *store.MemoryStore
	bus      *broker.LocalBus
	events   *broker.EventPublisher
	worker   *NotificationWorker
	customer *models.Customer
	appt     *models.Appointment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	util.SetLogger(zap.NewNop())

	repo := store.NewMemoryStore()
	bus := broker.NewLocalBus(16)
	ctx := context.Background()

	customer := &models.Customer{Name: "Ana", Email: "ana@example.com", Phone: "(555) 000-1111"}
	require.NoError(t, repo.CreateCustomer(ctx, customer))
	appt := &models.Appointment{
		CustomerID:      customer.ID,
		ServiceID:       1,
		AppointmentDate: time.Date(2030, 5, 1, 10, 30, 0, 0, time.UTC),
		Status:          models.AppointmentStatusConfirmed,
		DownPaymentPaid: true,
	}
	require.NoError(t, repo.CreateAppointment(ctx, appt))

	return &fixture{
		repo:     repo,
		bus:      bus,
		events:   broker.NewEventPublisher(bus),
		worker:   NewNotificationWorker(bus, repo, service.NewMessageService(repo), time.UTC),
		customer: customer,
		appt:     appt,
	}
}

// drain closes the bus and consumes everything queued so far
func (f *fixture) drain(t *testing.T) []models.Message {
	t.Helper()
	require.NoError(t, f.worker.Stop())
	require.NoError(t, f.worker.Start(context.Background()))

	msgs, err := f.repo.GetMessagesByCustomer(context.Background(), f.customer.ID, 0)
	require.NoError(t, err)
	return msgs
}

func TestAppointmentBooked_PostsConfirmationOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := &models.AppointmentBookedEvent{
		BaseEvent:       models.BaseEvent{EventID: "evt-booked", EventType: models.EventTypeAppointmentBooked},
		AppointmentID:   f.appt.ID,
		CustomerID:      f.customer.ID,
		ServiceName:     "Brow Tinting",
		AppointmentDate: f.appt.AppointmentDate,
		Deposit:         models.MustParseMoney("20.00"),
		TxID:            "TXN-1",
		Status:          models.AppointmentStatusConfirmed,
	}
	require.NoError(t, f.events.PublishAppointmentBooked(ctx, event))
	require.NoError(t, f.events.PublishAppointmentBooked(ctx, event))

	msgs := f.drain(t)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsFromCustomer)
	assert.Equal(t,
		"Your Brow Tinting appointment on Wed May 1 at 10:30 AM is confirmed. Deposit of $20.00 received (transaction TXN-1).",
		msgs[0].Body)

	done, err := f.repo.IsEventProcessed(ctx, "evt-booked")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAppointmentBooked_PendingRequest(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.events.PublishAppointmentBooked(context.Background(), &models.AppointmentBookedEvent{
		BaseEvent:       models.BaseEvent{EventID: "evt-pending", EventType: models.EventTypeAppointmentBooked},
		AppointmentID:   f.appt.ID,
		CustomerID:      f.customer.ID,
		ServiceName:     "Blowout Styling",
		AppointmentDate: f.appt.AppointmentDate,
		Status:          models.AppointmentStatusPending,
	}))

	msgs := f.drain(t)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "We received your request for Blowout Styling")
}

func TestStatusChanged_Cancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.events.PublishStatusChanged(ctx, &models.AppointmentStatusChangedEvent{
		BaseEvent:     models.BaseEvent{EventID: "evt-cancel", EventType: models.EventTypeAppointmentStatusChanged},
		AppointmentID: f.appt.ID,
		OldStatus:     models.AppointmentStatusConfirmed,
		NewStatus:     models.AppointmentStatusCancelled,
	}))
	// same status twice is not news
	require.NoError(t, f.events.PublishStatusChanged(ctx, &models.AppointmentStatusChangedEvent{
		BaseEvent:     models.BaseEvent{EventID: "evt-noop", EventType: models.EventTypeAppointmentStatusChanged},
		AppointmentID: f.appt.ID,
		OldStatus:     models.AppointmentStatusCancelled,
		NewStatus:     models.AppointmentStatusCancelled,
	}))
	require.NoError(t, f.events.PublishStatusChanged(ctx, &models.AppointmentStatusChangedEvent{
		BaseEvent:     models.BaseEvent{EventID: "evt-gone", EventType: models.EventTypeAppointmentStatusChanged},
		AppointmentID: 999,
		OldStatus:     models.AppointmentStatusPending,
		NewStatus:     models.AppointmentStatusCancelled,
	}))

	msgs := f.drain(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Your appointment on Wed May 1 at 10:30 AM has been cancelled.", msgs[0].Body)
}

func TestPaymentRecorded_OnlyWhenSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.events.PublishPaymentRecorded(ctx, &models.PaymentRecordedEvent{
		BaseEvent:       models.BaseEvent{EventID: "evt-down", EventType: models.EventTypePaymentRecorded},
		AppointmentID:   f.appt.ID,
		DownPaymentPaid: true,
	}))
	require.NoError(t, f.events.PublishPaymentRecorded(ctx, &models.PaymentRecordedEvent{
		BaseEvent:       models.BaseEvent{EventID: "evt-total", EventType: models.EventTypePaymentRecorded},
		AppointmentID:   f.appt.ID,
		DownPaymentPaid: true,
		TotalPaid:       true,
	}))

	msgs := f.drain(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Payment received in full. Thank you!", msgs[0].Body)
}

func TestBookingFailed_MarkedProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.events.PublishBookingFailed(ctx, &models.BookingFailedEvent{
		BaseEvent:      models.BaseEvent{EventID: "evt-partial", EventType: models.EventTypeBookingFailed},
		ServiceID:      1,
		Stage:          "appointment",
		Reason:         "disk full",
		PaymentCharged: true,
		TxID:           "TXN-9",
	}))

	msgs := f.drain(t)
	assert.Empty(t, msgs)

	done, err := f.repo.IsEventProcessed(ctx, "evt-partial")
	require.NoError(t, err)
	assert.True(t, done)
}

package worker

import (
	"context"
	"fmt"
	"time"

	"salon-service/internal/broker"
	"salon-service/internal/models"
	"salon-service/internal/service"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"go.uber.org/zap"
)

const appointmentTimeFormat = "Mon Jan 2 at 3:04 PM"

// NotificationWorker consumes booking events and writes the matching
// staff messages into each customer's thread
type NotificationWorker struct {
	source       broker.Source
	eventHandler *broker.EventHandler
	repo         store.Repository
	messages     *service.MessageService
	loc          *time.Location
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(
	source broker.Source,
	repo store.Repository,
	messages *service.MessageService,
	loc *time.Location,
) *NotificationWorker {
	if loc == nil {
		loc = time.Local
	}

	w := &NotificationWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		repo:         repo,
		messages:     messages,
		loc:          loc,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnAppointmentBooked(w.HandleAppointmentBooked)
	w.eventHandler.OnBookingFailed(w.HandleBookingFailed)
	w.eventHandler.OnStatusChanged(w.HandleStatusChanged)
	w.eventHandler.OnPaymentRecorded(w.HandlePaymentRecorded)

	return w
}

// Start consumes events until ctx is cancelled or the source is closed
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}

// HandleAppointmentBooked confirms a booking to the customer
func (w *NotificationWorker) HandleAppointmentBooked(ctx context.Context, event *models.AppointmentBookedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleAppointmentBooked")
	defer span.End()

	return w.once(ctx, event.BaseEvent, func() error {
		when := event.AppointmentDate.In(w.loc).Format(appointmentTimeFormat)

		var body string
		if event.Status == models.AppointmentStatusPending {
			body = fmt.Sprintf("We received your request for %s on %s. We will confirm it shortly.",
				event.ServiceName, when)
		} else {
			body = fmt.Sprintf("Your %s appointment on %s is confirmed.", event.ServiceName, when)
			if event.Deposit > 0 {
				body += fmt.Sprintf(" Deposit of $%s received (transaction %s).", event.Deposit, event.TxID)
			}
		}

		_, err := w.messages.PostStaff(ctx, event.CustomerID, body)
		return err
	})
}

// HandleStatusChanged tells the customer about cancellations and confirmations
func (w *NotificationWorker) HandleStatusChanged(ctx context.Context, event *models.AppointmentStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleStatusChanged")
	defer span.End()

	if event.OldStatus == event.NewStatus {
		return nil
	}

	return w.once(ctx, event.BaseEvent, func() error {
		appt, err := w.repo.GetAppointmentByID(ctx, event.AppointmentID)
		if err != nil {
			// deleted since; nothing to tell anyone
			w.logger.Warn("Appointment gone before status notification",
				zap.Int64("appointment_id", event.AppointmentID), zap.Error(err))
			return nil
		}
		when := appt.AppointmentDate.In(w.loc).Format(appointmentTimeFormat)

		var body string
		switch event.NewStatus {
		case models.AppointmentStatusCancelled:
			body = fmt.Sprintf("Your appointment on %s has been cancelled.", when)
		case models.AppointmentStatusConfirmed:
			body = fmt.Sprintf("Your appointment on %s is confirmed.", when)
		case models.AppointmentStatusCompleted:
			body = "Thanks for visiting us today!"
		default:
			return nil
		}

		_, err = w.messages.PostStaff(ctx, appt.CustomerID, body)
		return err
	})
}

// HandlePaymentRecorded thanks the customer once the balance is settled
func (w *NotificationWorker) HandlePaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error {
	if !event.TotalPaid {
		return nil
	}

	return w.once(ctx, event.BaseEvent, func() error {
		appt, err := w.repo.GetAppointmentByID(ctx, event.AppointmentID)
		if err != nil {
			w.logger.Warn("Appointment gone before payment notification",
				zap.Int64("appointment_id", event.AppointmentID), zap.Error(err))
			return nil
		}
		_, err = w.messages.PostStaff(ctx, appt.CustomerID, "Payment received in full. Thank you!")
		return err
	})
}

// HandleBookingFailed flags charged-but-unrecorded bookings for manual follow-up
func (w *NotificationWorker) HandleBookingFailed(ctx context.Context, event *models.BookingFailedEvent) error {
	return w.once(ctx, event.BaseEvent, func() error {
		if event.PaymentCharged {
			w.logger.Error("Payment captured without an appointment, reconcile manually",
				zap.String("tx_id", event.TxID),
				zap.Int64("service_id", event.ServiceID),
				zap.String("reason", event.Reason))
			return nil
		}
		w.logger.Info("Booking attempt aborted",
			zap.Int64("service_id", event.ServiceID),
			zap.String("stage", event.Stage),
			zap.String("reason", event.Reason))
		return nil
	})
}

// once runs fn at most once per event id
func (w *NotificationWorker) once(ctx context.Context, event models.BaseEvent, fn func() error) error {
	processed, err := w.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event idempotency: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed, skipping",
			zap.String("event_id", event.EventID),
			zap.String("type", event.EventType))
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	if err := w.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event as processed", zap.Error(err))
	}
	return nil
}

package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"salon-service/internal/models"
	"salon-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing booking domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func appointmentKey(id int64) string {
	return fmt.Sprintf("appointment-%d", id)
}

// PublishAppointmentBooked publishes AppointmentBooked event
func (ep *EventPublisher) PublishAppointmentBooked(ctx context.Context, event *models.AppointmentBookedEvent) error {
	return ep.producer.PublishEvent(ctx, appointmentKey(event.AppointmentID), event)
}

// PublishBookingFailed publishes BookingFailed event. There is no
// appointment yet, so the service id is the key.
func (ep *EventPublisher) PublishBookingFailed(ctx context.Context, event *models.BookingFailedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("service-%d", event.ServiceID), event)
}

// PublishStatusChanged publishes AppointmentStatusChanged event
func (ep *EventPublisher) PublishStatusChanged(ctx context.Context, event *models.AppointmentStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, appointmentKey(event.AppointmentID), event)
}

// PublishPaymentRecorded publishes PaymentRecorded event
func (ep *EventPublisher) PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error {
	return ep.producer.PublishEvent(ctx, appointmentKey(event.AppointmentID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onAppointmentBooked func(context.Context, *models.AppointmentBookedEvent) error
	onBookingFailed     func(context.Context, *models.BookingFailedEvent) error
	onStatusChanged     func(context.Context, *models.AppointmentStatusChangedEvent) error
	onPaymentRecorded   func(context.Context, *models.PaymentRecordedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnAppointmentBooked registers a handler for AppointmentBooked events
func (eh *EventHandler) OnAppointmentBooked(handler func(context.Context, *models.AppointmentBookedEvent) error) {
	eh.onAppointmentBooked = handler
}

// OnBookingFailed registers a handler for BookingFailed events
func (eh *EventHandler) OnBookingFailed(handler func(context.Context, *models.BookingFailedEvent) error) {
	eh.onBookingFailed = handler
}

// OnStatusChanged registers a handler for AppointmentStatusChanged events
func (eh *EventHandler) OnStatusChanged(handler func(context.Context, *models.AppointmentStatusChangedEvent) error) {
	eh.onStatusChanged = handler
}

// OnPaymentRecorded registers a handler for PaymentRecorded events
func (eh *EventHandler) OnPaymentRecorded(handler func(context.Context, *models.PaymentRecordedEvent) error) {
	eh.onPaymentRecorded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeAppointmentBooked:
		if eh.onAppointmentBooked != nil {
			var event models.AppointmentBookedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AppointmentBooked event: %w", err)
			}
			return eh.onAppointmentBooked(ctx, &event)
		}

	case models.EventTypeBookingFailed:
		if eh.onBookingFailed != nil {
			var event models.BookingFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingFailed event: %w", err)
			}
			return eh.onBookingFailed(ctx, &event)
		}

	case models.EventTypeAppointmentStatusChanged:
		if eh.onStatusChanged != nil {
			var event models.AppointmentStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AppointmentStatusChanged event: %w", err)
			}
			return eh.onStatusChanged(ctx, &event)
		}

	case models.EventTypePaymentRecorded:
		if eh.onPaymentRecorded != nil {
			var event models.PaymentRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentRecorded event: %w", err)
			}
			return eh.onPaymentRecorded(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}

package service

import (
	"context"
	"time"

	"salon-service/internal/models"
)

// EventPublisher is implemented by broker.EventPublisher
type EventPublisher interface {
	PublishAppointmentBooked(ctx context.Context, event *models.AppointmentBookedEvent) error
	PublishBookingFailed(ctx context.Context, event *models.BookingFailedEvent) error
	PublishStatusChanged(ctx context.Context, event *models.AppointmentStatusChangedEvent) error
	PublishPaymentRecorded(ctx context.Context, event *models.PaymentRecordedEvent) error
}

// Cache is a JSON value cache (redisclient.Client or redisclient.MemoryClient)
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Locker is a TTL lock
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// IdempotencyStore records the first result seen for a key
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string, dest interface{}) (bool, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishAppointmentBooked(context.Context, *models.AppointmentBookedEvent) error {
	return nil
}

func (nopPublisher) PublishBookingFailed(context.Context, *models.BookingFailedEvent) error {
	return nil
}

func (nopPublisher) PublishStatusChanged(context.Context, *models.AppointmentStatusChangedEvent) error {
	return nil
}

func (nopPublisher) PublishPaymentRecorded(context.Context, *models.PaymentRecordedEvent) error {
	return nil
}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

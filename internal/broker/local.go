package broker

import (
	"context"
	"errors"
	"sync"

	"salon-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrBusClosed is returned when publishing to a closed LocalBus
var ErrBusClosed = errors.New("local bus closed")

// LocalBus is an in-process Publisher and Source used when Kafka is
// disabled. Messages are encoded exactly as for Kafka so the same
// EventHandler can consume them. Delivery is at-most-once.
type LocalBus struct {
	mu     sync.RWMutex
	ch     chan kafka.Message
	closed bool
	logger *zap.Logger
}

// NewLocalBus creates a bus holding up to buffer undelivered messages
func NewLocalBus(buffer int) *LocalBus {
	return &LocalBus{
		ch:     make(chan kafka.Message, buffer),
		logger: util.GetLogger(),
	}
}

// PublishEvent enqueues the event; it blocks while the buffer is full
func (b *LocalBus) PublishEvent(ctx context.Context, key string, event interface{}) error {
	msg, err := encode(key, event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartConsuming delivers queued messages until ctx is cancelled or the bus is closed
func (b *LocalBus) StartConsuming(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.ch:
			if !ok {
				return nil
			}
			if err := handler(ctx, msg); err != nil {
				b.logger.Error("Error handling message", zap.String("key", string(msg.Key)), zap.Error(err))
			}
		}
	}
}

// Close stops accepting events; already queued events are still delivered
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}

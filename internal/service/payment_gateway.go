package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/util"

	"go.uber.org/zap"
)

// GatewayConfig is the public client configuration of the payment provider
type GatewayConfig struct {
	Provider      string `json:"provider"`
	ApplicationID string `json:"applicationId"`
	LocationID    string `json:"locationId"`
	Environment   string `json:"environment"`
}

// PaymentSource is what the browser hands over for tokenization: either a
// provider token produced client-side or, for the mock provider, a card number.
type PaymentSource struct {
	Token      string `json:"token,omitempty"`
	CardNumber string `json:"cardNumber,omitempty"`
}

// TokenResult is a single-use charge token
type TokenResult struct {
	Token string `json:"token"`
}

// ChargeRequest exchanges a token for a charge
type ChargeRequest struct {
	Token          string
	Amount         models.Money
	Currency       string
	IdempotencyKey string
	CustomerEmail  string
	CustomerName   string
	ServiceName    string
}

// ChargeResult is a successful charge
type ChargeResult struct {
	TxID   string       `json:"id"`
	Status string       `json:"status"`
	Amount models.Money `json:"amount"`
	// Replayed is set when the result came from an earlier charge under
	// the same idempotency key.
	Replayed bool `json:"replayed,omitempty"`
}

// Gateway is a payment provider
type Gateway interface {
	Config() GatewayConfig
	OpenWidget(ctx context.Context, sessionID string) (CaptureWidget, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// CaptureWidget is a scoped card-capture surface. Destroy must be called
// on every exit path and is safe to call more than once.
type CaptureWidget interface {
	Tokenize(ctx context.Context, source PaymentSource) (*TokenResult, error)
	Destroy() error
}

// WidgetRegistry allows at most one open capture widget per booking session.
// With a Locker the guard also holds across processes.
type WidgetRegistry struct {
	gateway Gateway
	locker  Locker
	ttl     time.Duration

	mu     sync.Mutex
	active map[string]struct{}
	logger *zap.Logger
}

// NewWidgetRegistry creates a registry. locker may be nil; ttl bounds how
// long a crashed holder can block a session.
func NewWidgetRegistry(gateway Gateway, locker Locker, ttl time.Duration) *WidgetRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &WidgetRegistry{
		gateway: gateway,
		locker:  locker,
		ttl:     ttl,
		active:  make(map[string]struct{}),
		logger:  util.GetLogger(),
	}
}

// Open attaches a widget for sessionID or fails with ErrWidgetActive
func (r *WidgetRegistry) Open(ctx context.Context, sessionID string) (CaptureWidget, error) {
	r.mu.Lock()
	if _, ok := r.active[sessionID]; ok {
		r.mu.Unlock()
		return nil, ErrWidgetActive
	}
	r.active[sessionID] = struct{}{}
	r.mu.Unlock()

	lockKey := "widget:" + sessionID
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, lockKey, r.ttl)
		if err != nil {
			r.forget(sessionID)
			return nil, fmt.Errorf("failed to acquire widget lock: %w", err)
		}
		if !ok {
			r.forget(sessionID)
			return nil, ErrWidgetActive
		}
	}

	inner, err := r.gateway.OpenWidget(ctx, sessionID)
	if err != nil {
		r.release(sessionID, lockKey)
		return nil, err
	}

	util.ActiveCaptureWidgets.Inc()
	return &registeredWidget{
		inner: inner,
		onDestroy: func() {
			util.ActiveCaptureWidgets.Dec()
			r.release(sessionID, lockKey)
		},
	}, nil
}

// Active reports whether a widget is open for sessionID in this process
func (r *WidgetRegistry) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[sessionID]
	return ok
}

func (r *WidgetRegistry) forget(sessionID string) {
	r.mu.Lock()
	delete(r.active, sessionID)
	r.mu.Unlock()
}

func (r *WidgetRegistry) release(sessionID, lockKey string) {
	if r.locker != nil {
		// the lock must go even if the request context is already done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.locker.ReleaseLock(ctx, lockKey); err != nil {
			r.logger.Warn("Failed to release widget lock", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	r.forget(sessionID)
}

type registeredWidget struct {
	inner     CaptureWidget
	once      sync.Once
	onDestroy func()
}

func (w *registeredWidget) Tokenize(ctx context.Context, source PaymentSource) (*TokenResult, error) {
	return w.inner.Tokenize(ctx, source)
}

func (w *registeredWidget) Destroy() error {
	var err error
	w.once.Do(func() {
		err = w.inner.Destroy()
		w.onDestroy()
	})
	return err
}

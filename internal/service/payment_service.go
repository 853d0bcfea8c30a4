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

	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// PaymentService is the server side of the payment gateway adapter: it
// checks the amount against the service deposit and performs the charge.
type PaymentService struct {
	repo        store.Repository
	gateway     Gateway
	widgets     *WidgetRegistry
	idempotency IdempotencyStore
	currency    string
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewPaymentService creates a new payment service. idempotency may be nil.
func NewPaymentService(
	repo store.Repository,
	gateway Gateway,
	widgets *WidgetRegistry,
	idempotency IdempotencyStore,
	currency string,
	timeout time.Duration,
) *PaymentService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentService{
		repo:        repo,
		gateway:     gateway,
		widgets:     widgets,
		idempotency: idempotency,
		currency:    currency,
		timeout:     timeout,
		logger:      util.GetLogger(),
		now:         time.Now,
	}
}

// ChargeInput is the token-for-charge exchange request
type ChargeInput struct {
	SourceID       string       `json:"sourceId" validate:"required"`
	Amount         models.Money `json:"amount"`
	ServiceID      int64        `json:"serviceId" validate:"required,gt=0"`
	CustomerEmail  string       `json:"customerEmail,omitempty" validate:"omitempty,email"`
	CustomerName   string       `json:"customerName,omitempty"`
	ServiceName    string       `json:"serviceName,omitempty"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
}

var chargeMessages = map[string]string{
	"sourceId":      "Payment token is required",
	"serviceId":     "Please select a service",
	"customerEmail": "Valid email required",
}

// chargeRecord is what an idempotency key remembers. A replay is only
// honoured for the same service and amount.
type chargeRecord struct {
	ServiceID int64        `json:"serviceId"`
	Amount    models.Money `json:"amount"`
	Result    ChargeResult `json:"result"`
}

// PaymentIntent is the legacy mock intent
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
}

// Config returns the client configuration of the active provider
func (ps *PaymentService) Config() GatewayConfig {
	return ps.gateway.Config()
}

// Timeout is the caller-visible limit for tokenize + charge
func (ps *PaymentService) Timeout() time.Duration {
	return ps.timeout
}

// Widgets returns the capture widget registry
func (ps *PaymentService) Widgets() *WidgetRegistry {
	return ps.widgets
}

// Charge charges the deposit of in.ServiceID. The amount must equal the
// configured deposit. A repeated idempotency key for the same service and
// amount returns the first result, marked Replayed, without charging again.
func (ps *PaymentService) Charge(ctx context.Context, in ChargeInput) (*ChargeResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Charge")
	defer span.End()

	if err := validateStruct(in, chargeMessages); err != nil {
		return nil, err
	}

	svc, err := ps.repo.GetServiceByID(ctx, in.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", in.ServiceID, err)
	}

	if in.Amount != svc.DownPayment {
		ps.logger.Warn("Charge amount does not match deposit",
			zap.Int64("service_id", svc.ID),
			zap.String("amount", in.Amount.String()),
			zap.String("deposit", svc.DownPayment.String()))
		util.PaymentFailedTotal.WithLabelValues("amount_mismatch").Inc()
		return nil, fmt.Errorf("%w: got %s, deposit is %s", ErrAmountMismatch, in.Amount, svc.DownPayment)
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" && ps.idempotency != nil {
		var prior chargeRecord
		found, err := ps.idempotency.GetIdempotencyKey(ctx, key, &prior)
		if err != nil {
			ps.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		} else if found {
			if prior.ServiceID != in.ServiceID || prior.Amount != in.Amount {
				util.PaymentFailedTotal.WithLabelValues("amount_mismatch").Inc()
				ps.logger.Warn("Idempotency key reused for a different charge",
					zap.String("key", key),
					zap.Int64("service_id", in.ServiceID),
					zap.Int64("prior_service_id", prior.ServiceID))
				return nil, fmt.Errorf("%w: idempotency key was used for %s on service %d",
					ErrAmountMismatch, prior.Amount, prior.ServiceID)
			}
			ps.logger.Info("Charge replayed from idempotency key", zap.String("key", key), zap.String("tx_id", prior.Result.TxID))
			replay := prior.Result
			replay.Replayed = true
			return &replay, nil
		}
	}

	serviceName := in.ServiceName
	if serviceName == "" {
		serviceName = svc.Name
	}

	util.PaymentAttemptsTotal.Inc()
	start := ps.now()
	defer func() {
		util.PaymentProcessingLatency.Observe(ps.now().Sub(start).Seconds())
	}()

	chargeCtx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	result, err := ps.gateway.Charge(chargeCtx, ChargeRequest{
		Token:          in.SourceID,
		Amount:         in.Amount,
		Currency:       ps.currency,
		IdempotencyKey: key,
		CustomerEmail:  in.CustomerEmail,
		CustomerName:   in.CustomerName,
		ServiceName:    serviceName,
	})
	if err != nil {
		err = ps.timeoutError(err)
		util.PaymentFailedTotal.WithLabelValues(failureReason(err)).Inc()
		ps.logger.Warn("Payment failed",
			zap.Int64("service_id", svc.ID),
			zap.Error(err))
		return nil, err
	}

	util.PaymentSuccessTotal.Inc()
	ps.logger.Info("Payment succeeded",
		zap.Int64("service_id", svc.ID),
		zap.String("tx_id", result.TxID),
		zap.String("amount", result.Amount.String()))

	if key != "" && ps.idempotency != nil {
		if err := ps.idempotency.SetIdempotencyKey(ctx, key, chargeRecord{
			ServiceID: svc.ID,
			Amount:    in.Amount,
			Result:    *result,
		}, idempotencyTTL); err != nil {
			ps.logger.Error("Failed to record idempotency key", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

// CreateIntent returns a mock payment intent for amount (currency units)
func (ps *PaymentService) CreateIntent(amount models.Money) (*PaymentIntent, error) {
	if amount <= 0 {
		return nil, fieldError("amount", "Amount must be greater than 0")
	}
	return &PaymentIntent{
		ClientSecret: fmt.Sprintf("pi_mock_%d_secret", ps.now().UnixMilli()),
		Amount:       amount.Cents(),
	}, nil
}

func (ps *PaymentService) timeoutError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrPaymentTimeout, ps.timeout)
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCardDeclined):
		return "card_declined"
	case errors.Is(err, ErrSDKUnavailable):
		return "sdk_unavailable"
	case errors.Is(err, ErrPaymentTimeout):
		return "timeout"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrAlreadyBooked):
		return "already_booked"
	case errors.Is(err, ErrWidgetActive):
		return "widget_active"
	case errors.Is(err, ErrGateway):
		return "gateway"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "other"
}

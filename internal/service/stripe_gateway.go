package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeGateway charges through Stripe PaymentIntents. The browser-side
// Stripe SDK tokenizes the card; the resulting payment method id is the token.
type StripeGateway struct {
	publishableKey string
	environment    string
	currency       string
}

// NewStripeGateway configures the Stripe client with secretKey
func NewStripeGateway(secretKey, publishableKey, environment, currency string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		publishableKey: publishableKey,
		environment:    environment,
		currency:       strings.ToLower(currency),
	}
}

func (g *StripeGateway) Config() GatewayConfig {
	return GatewayConfig{
		Provider:      "stripe",
		ApplicationID: g.publishableKey,
		Environment:   g.environment,
	}
}

func (g *StripeGateway) OpenWidget(ctx context.Context, sessionID string) (CaptureWidget, error) {
	if stripe.Key == "" {
		return nil, ErrSDKUnavailable
	}
	return &stripeWidget{}, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount.Cents()),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(fmt.Sprintf("Deposit: %s", req.ServiceName)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("customer_name", req.CustomerName)
	params.AddMetadata("service_name", req.ServiceName)
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return nil, &CardError{Code: string(stripeErr.Code), Message: stripeErr.Msg}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrGateway, pi.ID, pi.Status)
	}

	return &ChargeResult{
		TxID:   pi.ID,
		Status: string(pi.Status),
		Amount: req.Amount,
	}, nil
}

type stripeWidget struct{}

// Tokenize accepts the payment method id created by Stripe.js
func (w *stripeWidget) Tokenize(ctx context.Context, source PaymentSource) (*TokenResult, error) {
	if source.CardNumber != "" {
		return nil, &CardError{Code: "raw_card_rejected", Message: "Card details must be entered in the secure payment form."}
	}
	if !strings.HasPrefix(source.Token, "pm_") {
		return nil, &CardError{Code: "invalid_token", Message: "Payment details are missing or invalid."}
	}
	return &TokenResult{Token: source.Token}, nil
}

func (w *stripeWidget) Destroy() error { return nil }

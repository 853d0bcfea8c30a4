package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock test cards
const (
	CardDeclined          = "4000000000000002"
	CardInsufficientFunds = "4000000000009995"
	CardProcessingError   = "4000000000000119"
)

// MockGateway is an in-process provider with deterministic test cards
type MockGateway struct {
	ApplicationID string
	LocationID    string
	Environment   string

	// Available=false behaves like a provider script that failed to load
	Available bool
	// ChargeDelay simulates a slow provider; Charge honours ctx while waiting
	ChargeDelay time.Duration

	mu      sync.Mutex
	tokens  map[string]string
	opened  int
	charges []ChargeRequest
}

// NewMockGateway creates an available mock provider
func NewMockGateway(applicationID, locationID, environment string) *MockGateway {
	return &MockGateway{
		ApplicationID: applicationID,
		LocationID:    locationID,
		Environment:   environment,
		Available:     true,
		tokens:        make(map[string]string),
	}
}

func (g *MockGateway) Config() GatewayConfig {
	return GatewayConfig{
		Provider:      "mock",
		ApplicationID: g.ApplicationID,
		LocationID:    g.LocationID,
		Environment:   g.Environment,
	}
}

func (g *MockGateway) OpenWidget(ctx context.Context, sessionID string) (CaptureWidget, error) {
	if !g.Available {
		return nil, ErrSDKUnavailable
	}
	g.mu.Lock()
	g.opened++
	g.mu.Unlock()
	return &mockWidget{gateway: g}, nil
}

func (g *MockGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if g.ChargeDelay > 0 {
		select {
		case <-time.After(g.ChargeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	card, ok := g.tokens[req.Token]
	if ok {
		// tokens are single use
		delete(g.tokens, req.Token)
		g.charges = append(g.charges, req)
	}
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown or already used token", ErrGateway)
	}

	switch card {
	case CardInsufficientFunds:
		return nil, &CardError{Code: "insufficient_funds", Message: "Your card has insufficient funds."}
	case CardProcessingError:
		return nil, fmt.Errorf("%w: processing error", ErrGateway)
	}

	return &ChargeResult{
		TxID:   fmt.Sprintf("TXN-%s", uuid.New().String()[:8]),
		Status: "COMPLETED",
		Amount: req.Amount,
	}, nil
}

// Charges returns the successful-token charge requests seen so far
func (g *MockGateway) Charges() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChargeRequest(nil), g.charges...)
}

// WidgetsOpened counts OpenWidget calls that succeeded
func (g *MockGateway) WidgetsOpened() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

type mockWidget struct {
	gateway   *MockGateway
	mu        sync.Mutex
	destroyed bool
}

func (w *mockWidget) Tokenize(ctx context.Context, source PaymentSource) (*TokenResult, error) {
	w.mu.Lock()
	destroyed := w.destroyed
	w.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: widget destroyed", ErrGateway)
	}

	card := strings.ReplaceAll(strings.ReplaceAll(source.CardNumber, " ", ""), "-", "")
	if card == "" && strings.HasPrefix(source.Token, "cnon:") {
		return &TokenResult{Token: source.Token}, nil
	}
	if !luhnValid(card) {
		return nil, &CardError{Code: "invalid_number", Message: "Your card number is invalid."}
	}
	if card == CardDeclined {
		return nil, &CardError{Code: "card_declined", Message: "Your card was declined."}
	}

	token := "cnon:" + uuid.New().String()
	w.gateway.mu.Lock()
	w.gateway.tokens[token] = card
	w.gateway.mu.Unlock()
	return &TokenResult{Token: token}, nil
}

func (w *mockWidget) Destroy() error {
	w.mu.Lock()
	w.destroyed = true
	w.mu.Unlock()
	return nil
}

func luhnValid(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salon-service/internal/models"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"go.uber.org/zap"
)

// MessageService is the append-only customer/staff message log
type MessageService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewMessageService creates a new message service
func NewMessageService(repo store.Repository) *MessageService {
	return &MessageService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// MessageInput is a posted message. IsFromCustomer defaults to true.
type MessageInput struct {
	CustomerID     int64  `json:"customerId" validate:"required,gt=0"`
	Message        string `json:"message" validate:"required,max=2000"`
	IsFromCustomer *bool  `json:"isFromCustomer,omitempty"`
}

var messageMessages = map[string]string{
	"customerId": "Customer is required",
	"message":    "Message is required",
}

// Post appends a message. Staff messages need an admin session.
func (ms *MessageService) Post(ctx context.Context, in MessageInput, isAdmin bool) (*models.Message, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := validateStruct(in, messageMessages); err != nil {
		return nil, err
	}

	fromCustomer := true
	if in.IsFromCustomer != nil {
		fromCustomer = *in.IsFromCustomer
	}
	if !fromCustomer && !isAdmin {
		return nil, fmt.Errorf("staff messages require an admin session: %w", ErrUnauthorized)
	}

	return ms.append(ctx, in.CustomerID, in.Message, fromCustomer)
}

// PostStaff appends a staff message on behalf of the system
func (ms *MessageService) PostStaff(ctx context.Context, customerID int64, body string) (*models.Message, error) {
	return ms.append(ctx, customerID, body, false)
}

func (ms *MessageService) append(ctx context.Context, customerID int64, body string, fromCustomer bool) (*models.Message, error) {
	if _, err := ms.repo.GetCustomerByID(ctx, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to check customer: %w", err)
	}

	msg := &models.Message{
		CustomerID:     customerID,
		Body:           body,
		IsFromCustomer: fromCustomer,
	}
	if err := ms.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	sender := "customer"
	if !fromCustomer {
		sender = "staff"
	}
	util.MessagesPostedTotal.WithLabelValues(sender).Inc()
	ms.logger.Debug("Message posted", zap.Int64("message_id", msg.ID), zap.String("sender", sender))
	return msg, nil
}

// List returns the whole message log
func (ms *MessageService) List(ctx context.Context) ([]models.Message, error) {
	return ms.repo.GetMessages(ctx)
}

// ListByCustomer returns a customer's thread. With afterID > 0 only newer
// messages are returned, which keeps polling cheap.
func (ms *MessageService) ListByCustomer(ctx context.Context, customerID, afterID int64) ([]models.Message, error) {
	if afterID < 0 {
		afterID = 0
	}
	return ms.repo.GetMessagesByCustomer(ctx, customerID, afterID)
}

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

// CustomerService owns customer identity
type CustomerService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(repo store.Repository) *CustomerService {
	return &CustomerService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// CustomerInput is the payload for creating a customer
type CustomerInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

var customerMessages = map[string]string{
	"name":  "Name is required",
	"email": "Valid email required",
	"phone": "Valid phone number required",
}

// FindByEmail returns the first customer whose email matches case-insensitively
func (cs *CustomerService) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	c, err := cs.repo.FindCustomerByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("customer %q: %w", email, err)
	}
	return c, nil
}

// Create always inserts a new customer, even if the email is already known
func (cs *CustomerService) Create(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := validateStruct(in, customerMessages); err != nil {
		return nil, err
	}

	c := &models.Customer{Name: in.Name, Email: in.Email, Phone: in.Phone}
	if err := cs.repo.CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	cs.logger.Info("Customer created", zap.Int64("customer_id", c.ID))
	return c, nil
}

// FindOrCreate reuses the customer with the same email when reuse is set,
// otherwise it behaves like Create.
func (cs *CustomerService) FindOrCreate(ctx context.Context, in CustomerInput, reuse bool) (*models.Customer, error) {
	if reuse {
		existing, err := cs.FindByEmail(ctx, in.Email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return cs.Create(ctx, in)
}

// List returns every customer
func (cs *CustomerService) List(ctx context.Context) ([]models.Customer, error) {
	return cs.repo.GetCustomers(ctx)
}

// Get retrieves a customer by id
func (cs *CustomerService) Get(ctx context.Context, id int64) (*models.Customer, error) {
	c, err := cs.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, err)
	}
	return c, nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"salon-service/internal/models"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService checks admin credentials
type AuthService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(repo store.Repository) *AuthService {
	return &AuthService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// Authenticate returns the admin user for valid credentials
func (as *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := as.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		as.logger.Info("Failed login", zap.String("username", username))
		return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}
	return user, nil
}

// GetUser loads the user behind a session
func (as *AuthService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := as.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// EnsureAdmin creates the admin account if it does not exist yet
func (as *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := as.repo.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := as.repo.CreateUser(ctx, &models.User{Username: username, Password: string(hash)}); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	as.logger.Info("Admin user created", zap.String("username", username))
	return nil
}

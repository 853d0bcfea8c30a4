package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"go.uber.org/zap"
)

const (
	catalogCacheKey = "services:all"
	catalogCacheTTL = 5 * time.Minute
)

// CatalogService manages the list of bookable services
type CatalogService struct {
	repo   store.Repository
	cache  Cache
	logger *zap.Logger
}

// NewCatalogService creates a catalog service. cache may be nil.
func NewCatalogService(repo store.Repository, cache Cache) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ServiceInput is the admin create/update payload for a service
type ServiceInput struct {
	Name        string       `json:"name" validate:"required,min=2"`
	Category    string       `json:"category" validate:"required"`
	Price       models.Money `json:"price"`
	DownPayment models.Money `json:"downPayment"`
	Duration    int          `json:"duration" validate:"gt=0"`
	Description string       `json:"description,omitempty" validate:"max=500"`
	Image       string       `json:"image,omitempty" validate:"omitempty,url"`
}

var serviceMessages = map[string]string{
	"name":     "Name must be at least 2 characters",
	"category": "Category is required",
	"duration": "Duration is required",
	"image":    "Must be a valid URL",
}

// Quote is what the booking page shows once a service is picked
type Quote struct {
	ServiceID        int64        `json:"serviceId"`
	Name             string       `json:"name"`
	Price            models.Money `json:"price"`
	DownPayment      models.Money `json:"downPayment"`
	RemainingBalance models.Money `json:"remainingBalance"`
	Duration         int          `json:"duration"`
}

// ListServices returns every service ordered by id
func (cs *CatalogService) ListServices(ctx context.Context) ([]models.Service, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListServices")
	defer span.End()

	if cs.cache != nil {
		var cached []models.Service
		found, err := cs.cache.GetJSON(ctx, catalogCacheKey, &cached)
		if err != nil {
			cs.logger.Warn("Catalog cache read failed", zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	services, err := cs.repo.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	if cs.cache != nil {
		if err := cs.cache.SetJSON(ctx, catalogCacheKey, services, catalogCacheTTL); err != nil {
			cs.logger.Warn("Catalog cache write failed", zap.Error(err))
		}
	}
	return services, nil
}

// ListByCategory returns the services in one category
func (cs *CatalogService) ListByCategory(ctx context.Context, category string) ([]models.Service, error) {
	services, err := cs.repo.GetServicesByCategory(ctx, strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return nil, fmt.Errorf("failed to list services by category: %w", err)
	}
	return services, nil
}

// GetService retrieves a service by id
func (cs *CatalogService) GetService(ctx context.Context, id int64) (*models.Service, error) {
	svc, err := cs.repo.GetServiceByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", id, err)
	}
	return svc, nil
}

// Quote returns price, deposit and remaining balance for a service
func (cs *CatalogService) Quote(ctx context.Context, id int64) (*Quote, error) {
	svc, err := cs.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Quote{
		ServiceID:        svc.ID,
		Name:             svc.Name,
		Price:            svc.Price,
		DownPayment:      svc.DownPayment,
		RemainingBalance: svc.RemainingBalance(),
		Duration:         svc.Duration,
	}, nil
}

// CreateService validates and stores a new service
func (cs *CatalogService) CreateService(ctx context.Context, in ServiceInput) (*models.Service, error) {
	svc, err := in.toService()
	if err != nil {
		return nil, err
	}

	if err := cs.repo.CreateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	cs.invalidate(ctx)

	cs.logger.Info("Service created", zap.Int64("service_id", svc.ID), zap.String("name", svc.Name))
	return svc, nil
}

// UpdateService replaces an existing service. Existing appointments keep
// pointing at the same id and see the new values.
func (cs *CatalogService) UpdateService(ctx context.Context, id int64, in ServiceInput) (*models.Service, error) {
	svc, err := in.toService()
	if err != nil {
		return nil, err
	}
	svc.ID = id

	if err := cs.repo.UpdateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("service %d: %w", id, err)
	}
	cs.invalidate(ctx)
	return svc, nil
}

// DeleteService removes a service
func (cs *CatalogService) DeleteService(ctx context.Context, id int64) error {
	if err := cs.repo.DeleteService(ctx, id); err != nil {
		return fmt.Errorf("service %d: %w", id, err)
	}
	cs.invalidate(ctx)
	return nil
}

// SeedDefaults inserts the default catalog when no services exist
func (cs *CatalogService) SeedDefaults(ctx context.Context) error {
	existing, err := cs.repo.GetServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to check services: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, in := range defaultServices {
		if _, err := cs.CreateService(ctx, in); err != nil {
			return fmt.Errorf("failed to seed %q: %w", in.Name, err)
		}
	}
	cs.logger.Info("Seeded default services", zap.Int("count", len(defaultServices)))
	return nil
}

func (cs *CatalogService) invalidate(ctx context.Context) {
	if cs.cache == nil {
		return
	}
	if err := cs.cache.Invalidate(ctx, catalogCacheKey); err != nil {
		cs.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}

func (in ServiceInput) toService() (*models.Service, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Image = strings.TrimSpace(in.Image)

	fe := &FieldErrors{}
	if err := validateStruct(in, serviceMessages); err != nil {
		if fieldErrs, ok := err.(*FieldErrors); ok {
			fe = fieldErrs
		} else {
			return nil, err
		}
	}

	if in.Price <= 0 {
		fe.Add("price", "Price must be greater than 0")
	}
	if in.DownPayment < 0 {
		fe.Add("downPayment", "Down payment cannot be negative")
	} else if in.DownPayment > in.Price {
		fe.Add("downPayment", "Down payment cannot exceed the price")
	}

	if err := fe.OrNil(); err != nil {
		return nil, err
	}

	return &models.Service{
		Name:        in.Name,
		Category:    in.Category,
		Price:       in.Price,
		DownPayment: in.DownPayment,
		Duration:    in.Duration,
		Description: strings.TrimSpace(in.Description),
		Image:       in.Image,
	}, nil
}

var defaultServices = []ServiceInput{
	{Name: "Precision Cut & Style", Category: models.CategoryHair, Price: 8500, DownPayment: 2500, Duration: 60, Description: "Professional haircut and styling"},
	{Name: "Color & Highlights", Category: models.CategoryHair, Price: 15000, DownPayment: 5000, Duration: 120, Description: "Hair coloring and highlighting"},
	{Name: "Blowout Styling", Category: models.CategoryHair, Price: 4500, DownPayment: 1500, Duration: 45, Description: "Professional blowout and styling"},
	{Name: "Eyebrow Threading", Category: models.CategoryEye, Price: 3500, DownPayment: 1000, Duration: 30, Description: "Precise eyebrow shaping"},
	{Name: "Brow Tinting", Category: models.CategoryEye, Price: 5500, DownPayment: 2000, Duration: 45, Description: "Eyebrow tinting service"},
	{Name: "Lash Extensions", Category: models.CategoryEye, Price: 12000, DownPayment: 4000, Duration: 90, Description: "Professional lash extensions"},
	{Name: "Curtain Bangs", Category: models.CategorySpecial, Price: 6500, DownPayment: 2000, Duration: 45, Description: "Trendy curtain bang cut"},
	{Name: "Hair Treatment", Category: models.CategorySpecial, Price: 7500, DownPayment: 2500, Duration: 60, Description: "Deep conditioning treatment"},
	{Name: "Bridal Package", Category: models.CategorySpecial, Price: 25000, DownPayment: 7500, Duration: 180, Description: "Complete bridal styling package"},
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salon-service/config"
	"salon-service/internal/api"
	"salon-service/internal/broker"
	"salon-service/internal/redisclient"
	"salon-service/internal/service"
	"salon-service/internal/store"
	"salon-service/internal/util"
	"salon-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// cacheBackend is satisfied by both redisclient.Client and redisclient.MemoryClient
type cacheBackend interface {
	service.Cache
	service.Locker
	service.IdempotencyStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting salon service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	var repo store.Repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err := store.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		repo = db
		logger.Info("Database connected")
	default:
		repo = store.NewMemoryStore()
		logger.Info("Using in-memory store")
	}
	defer repo.Close()

	var cache cacheBackend
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		cache = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		cache = redisclient.NewMemoryClient()
		logger.Info("Redis disabled, using in-process cache")
	}
	defer cache.Close()

	var (
		producer broker.Publisher
		source   broker.Source
	)
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
		source = broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		bus := broker.NewLocalBus(256)
		producer, source = bus, bus
		logger.Info("Kafka disabled, using in-process event bus")
	}
	defer producer.Close()

	eventPublisher := broker.NewEventPublisher(producer)

	var gateway service.Gateway
	switch cfg.Payment.Provider {
	case "stripe":
		gateway = service.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.ApplicationID,
			cfg.Payment.Environment, cfg.Payment.Currency)
	default:
		gateway = service.NewMockGateway(cfg.Payment.ApplicationID, cfg.Payment.LocationID, cfg.Payment.Environment)
	}

	loc := cfg.Business.Location()
	widgets := service.NewWidgetRegistry(gateway, cache, cfg.Payment.PaymentTimeout()*2)

	catalogService := service.NewCatalogService(repo, cache)
	customerService := service.NewCustomerService(repo)
	appointmentService := service.NewAppointmentService(repo, eventPublisher, loc)
	paymentService := service.NewPaymentService(repo, gateway, widgets, cache,
		cfg.Payment.Currency, cfg.Payment.PaymentTimeout())
	bookingOrchestrator := service.NewBookingOrchestrator(catalogService, customerService, appointmentService,
		paymentService, eventPublisher, cfg.Business.ReuseCustomerByEmail, loc)
	messageService := service.NewMessageService(repo)
	authService := service.NewAuthService(repo)
	dashboardService := service.NewDashboardService(repo, loc)

	ctx := context.Background()
	if err := catalogService.SeedDefaults(ctx); err != nil {
		logger.Fatal("Failed to seed services", zap.Error(err))
	}
	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("Failed to ensure admin user", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationWorker := worker.NewNotificationWorker(source, repo, messageService, loc)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Catalog:      catalogService,
		Customers:    customerService,
		Appointments: appointmentService,
		Payments:     paymentService,
		Bookings:     bookingOrchestrator,
		Messages:     messageService,
		Auth:         authService,
		Dashboard:    dashboardService,
	}, api.NewSessionStore(cfg.Auth.SessionSecret, cfg.Auth.SessionMaxAge, cfg.Auth.CookieSecure), repo, cache)
	handler.SetupRoutes(router, api.RouterOptions{
		AllowedOrigins:     cfg.Server.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Failed to stop notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/redisclient"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEvents struct {
	mu       sync.Mutex
	booked   []*models.AppointmentBookedEvent
	failed   []*models.BookingFailedEvent
	statuses []*models.AppointmentStatusChangedEvent
	payments []*models.PaymentRecordedEvent
}

func (r *recordingEvents) PublishAppointmentBooked(ctx context.Context, e *models.AppointmentBookedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.booked = append(r.booked, e)
	return nil
}

func (r *recordingEvents) PublishBookingFailed(ctx context.Context, e *models.BookingFailedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, e)
	return nil
}

func (r *recordingEvents) PublishStatusChanged(ctx context.Context, e *models.AppointmentStatusChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, e)
	return nil
}

func (r *recordingEvents) PublishPaymentRecorded(ctx context.Context, e *models.PaymentRecordedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, e)
	return nil
}

// failingAppointments refuses to store appointments
type failingAppointments struct {
	*store.MemoryStore
}

func (f failingAppointments) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	return errors.New("disk full")
}

type testEnv struct {
	repo         store.Repository
	mem          *store.MemoryStore
	cache        *redisclient.MemoryClient
	events       *recordingEvents
	gateway      *MockGateway
	widgets      *WidgetRegistry
	catalog      *CatalogService
	customers    *CustomerService
	appointments *AppointmentService
	payments     *PaymentService
	orchestrator *BookingOrchestrator
	messages     *MessageService
}

type envOption func(*envConfig)

type envConfig struct {
	failAppointments bool
	reuseByEmail     bool
	timeout          time.Duration
}

func withFailingAppointments() envOption {
	return func(c *envConfig) { c.failAppointments = true }
}

func withReuseByEmail() envOption {
	return func(c *envConfig) { c.reuseByEmail = true }
}

func withTimeout(d time.Duration) envOption {
	return func(c *envConfig) { c.timeout = d }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	util.SetLogger(zap.NewNop())

	cfg := envConfig{timeout: 2 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	mem := store.NewMemoryStore()
	var repo store.Repository = mem
	if cfg.failAppointments {
		repo = failingAppointments{mem}
	}

	env := &testEnv{
		repo:    repo,
		mem:     mem,
		cache:   redisclient.NewMemoryClient(),
		events:  &recordingEvents{},
		gateway: NewMockGateway("sandbox-app", "LTEST", "sandbox"),
	}
	env.widgets = NewWidgetRegistry(env.gateway, env.cache, time.Minute)
	env.catalog = NewCatalogService(repo, env.cache)
	env.customers = NewCustomerService(repo)
	env.appointments = NewAppointmentService(repo, env.events, time.UTC)
	env.payments = NewPaymentService(repo, env.gateway, env.widgets, env.cache, "usd", cfg.timeout)
	env.orchestrator = NewBookingOrchestrator(env.catalog, env.customers, env.appointments, env.payments,
		env.events, cfg.reuseByEmail, time.UTC)
	env.messages = NewMessageService(repo)

	require.NoError(t, env.catalog.SeedDefaults(context.Background()))
	return env
}

func (e *testEnv) counts(t *testing.T) (customers, appointments int) {
	t.Helper()
	ctx := context.Background()
	cs, err := e.repo.GetCustomers(ctx)
	require.NoError(t, err)
	as, err := e.repo.GetAppointments(ctx)
	require.NoError(t, err)
	return len(cs), len(as)
}

func validForm() BookingFormInput {
	return BookingFormInput{
		ServiceID:       1,
		AppointmentDate: "2030-05-01",
		AppointmentTime: "10:30",
		CustomerName:    "Jane Doe",
		CustomerPhone:   "555.123.4567",
		CustomerEmail:   "Jane@Example.com",
		SpecialRequests: "Window seat",
	}
}

func boolPtr(b bool) *bool { return &b }

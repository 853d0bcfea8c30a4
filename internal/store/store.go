package store

import (
	"context"
	"errors"
	"time"

	"salon-service/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Repository is the persistence boundary shared by the memory and Postgres stores
type Repository interface {
	// Users
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Services
	GetServices(ctx context.Context) ([]models.Service, error)
	GetServicesByCategory(ctx context.Context, category string) ([]models.Service, error)
	GetServiceByID(ctx context.Context, id int64) (*models.Service, error)
	CreateService(ctx context.Context, svc *models.Service) error
	UpdateService(ctx context.Context, svc *models.Service) error
	DeleteService(ctx context.Context, id int64) error

	// Customers
	GetCustomers(ctx context.Context) ([]models.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error

	// Appointments
	GetAppointments(ctx context.Context) ([]models.Appointment, error)
	GetAppointmentsByDate(ctx context.Context, day time.Time) ([]models.Appointment, error)
	GetAppointmentsByCustomer(ctx context.Context, customerID int64) ([]models.Appointment, error)
	GetAppointmentByID(ctx context.Context, id int64) (*models.Appointment, error)
	GetAppointmentByTxID(ctx context.Context, txID string) (*models.Appointment, error)
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id int64, status string) (*models.Appointment, error)
	UpdateAppointmentPayment(ctx context.Context, id int64, downPaymentPaid, totalPaid bool) (*models.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error

	// Messages
	GetMessages(ctx context.Context) ([]models.Message, error)
	GetMessagesByCustomer(ctx context.Context, customerID, afterID int64) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error

	// Event idempotency
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error

	Ping(ctx context.Context) error
	Close() error
}

// sameDay reports whether a and b fall on the same calendar day in a's location
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dayBounds returns [start, end) of the calendar day containing t
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

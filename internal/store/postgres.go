package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"salon-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable Repository backed by sqlx + lib/pq
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to Postgres and applies the schema
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema; every statement is idempotent
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying database connection
func (s *PostgresStore) GetDB() *sqlx.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE username = $1", username); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.GetContext(ctx, &user.ID,
		"INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id",
		user.Username, user.Password)
}

func (s *PostgresStore) GetServices(ctx context.Context) ([]models.Service, error) {
	services := []models.Service{}
	err := s.db.SelectContext(ctx, &services, "SELECT * FROM services ORDER BY id")
	return services, err
}

func (s *PostgresStore) GetServicesByCategory(ctx context.Context, category string) ([]models.Service, error) {
	services := []models.Service{}
	err := s.db.SelectContext(ctx, &services,
		"SELECT * FROM services WHERE category = $1 ORDER BY id", category)
	return services, err
}

func (s *PostgresStore) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	var svc models.Service
	if err := s.db.GetContext(ctx, &svc, "SELECT * FROM services WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}

func (s *PostgresStore) CreateService(ctx context.Context, svc *models.Service) error {
	query := `
		INSERT INTO services (name, category, price, down_payment, duration, description, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return s.db.GetContext(ctx, &svc.ID, query,
		svc.Name, svc.Category, svc.Price, svc.DownPayment, svc.Duration, svc.Description, svc.Image)
}

func (s *PostgresStore) UpdateService(ctx context.Context, svc *models.Service) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services
		SET name = $1, category = $2, price = $3, down_payment = $4, duration = $5, description = $6, image = $7
		WHERE id = $8`,
		svc.Name, svc.Category, svc.Price, svc.DownPayment, svc.Duration, svc.Description, svc.Image, svc.ID)
	return affected(res, err)
}

func (s *PostgresStore) DeleteService(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM services WHERE id = $1", id)
	return affected(res, err)
}

func (s *PostgresStore) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.db.SelectContext(ctx, &customers, "SELECT * FROM customers ORDER BY id")
	return customers, err
}

func (s *PostgresStore) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.GetContext(ctx, &c, "SELECT * FROM customers WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.GetContext(ctx, &c,
		"SELECT * FROM customers WHERE LOWER(email) = LOWER($1) ORDER BY id LIMIT 1", email)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (name, email, phone)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query, customer.Name, customer.Email, customer.Phone).
		Scan(&customer.ID, &customer.CreatedAt)
}

func (s *PostgresStore) GetAppointments(ctx context.Context) ([]models.Appointment, error) {
	appts := []models.Appointment{}
	err := s.db.SelectContext(ctx, &appts, "SELECT * FROM appointments ORDER BY id")
	return appts, err
}

func (s *PostgresStore) GetAppointmentsByDate(ctx context.Context, day time.Time) ([]models.Appointment, error) {
	start, end := dayBounds(day)
	appts := []models.Appointment{}
	err := s.db.SelectContext(ctx, &appts,
		"SELECT * FROM appointments WHERE appointment_date >= $1 AND appointment_date < $2 ORDER BY id",
		start, end)
	return appts, err
}

func (s *PostgresStore) GetAppointmentsByCustomer(ctx context.Context, customerID int64) ([]models.Appointment, error) {
	appts := []models.Appointment{}
	err := s.db.SelectContext(ctx, &appts,
		"SELECT * FROM appointments WHERE customer_id = $1 ORDER BY id", customerID)
	return appts, err
}

func (s *PostgresStore) GetAppointmentByID(ctx context.Context, id int64) (*models.Appointment, error) {
	var a models.Appointment
	if err := s.db.GetContext(ctx, &a, "SELECT * FROM appointments WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStore) GetAppointmentByTxID(ctx context.Context, txID string) (*models.Appointment, error) {
	if txID == "" {
		return nil, ErrNotFound
	}
	var a models.Appointment
	err := s.db.GetContext(ctx, &a,
		"SELECT * FROM appointments WHERE payment_tx_id = $1 ORDER BY id LIMIT 1", txID)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	query := `
		INSERT INTO appointments (customer_id, service_id, appointment_date, status, special_requests,
			down_payment_paid, total_paid, payment_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		appt.CustomerID, appt.ServiceID, appt.AppointmentDate, appt.Status, appt.SpecialRequests,
		appt.DownPaymentPaid, appt.TotalPaid, appt.PaymentTxID).
		Scan(&appt.ID, &appt.CreatedAt)
}

func (s *PostgresStore) UpdateAppointmentStatus(ctx context.Context, id int64, status string) (*models.Appointment, error) {
	var a models.Appointment
	err := s.db.GetContext(ctx, &a,
		"UPDATE appointments SET status = $1 WHERE id = $2 RETURNING *", status, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAppointmentPayment(ctx context.Context, id int64, downPaymentPaid, totalPaid bool) (*models.Appointment, error) {
	var a models.Appointment
	err := s.db.GetContext(ctx, &a,
		"UPDATE appointments SET down_payment_paid = $1, total_paid = $2 WHERE id = $3 RETURNING *",
		downPaymentPaid, totalPaid, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStore) DeleteAppointment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM appointments WHERE id = $1", id)
	return affected(res, err)
}

func (s *PostgresStore) GetMessages(ctx context.Context) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, "SELECT * FROM messages ORDER BY id")
	return msgs, err
}

func (s *PostgresStore) GetMessagesByCustomer(ctx context.Context, customerID, afterID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT * FROM messages WHERE customer_id = $1 AND id > $2 ORDER BY id", customerID, afterID)
	return msgs, err
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (customer_id, message, is_from_customer)
		VALUES ($1, $2, $3)
		RETURNING id, timestamp`

	return s.db.QueryRowxContext(ctx, query, msg.CustomerID, msg.Body, msg.IsFromCustomer).
		Scan(&msg.ID, &msg.Timestamp)
}

// IsEventProcessed checks if an event has been processed
func (s *PostgresStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

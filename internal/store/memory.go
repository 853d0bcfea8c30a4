package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"salon-service/internal/models"
)

// MemoryStore keeps every entity in process memory, keyed by
// auto-incrementing ids. Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	users        map[int64]models.User
	services     map[int64]models.Service
	customers    map[int64]models.Customer
	appointments map[int64]models.Appointment
	messages     map[int64]models.Message
	processed    map[string]models.ProcessedEvent

	nextUserID        int64
	nextServiceID     int64
	nextCustomerID    int64
	nextAppointmentID int64
	nextMessageID     int64

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:             make(map[int64]models.User),
		services:          make(map[int64]models.Service),
		customers:         make(map[int64]models.Customer),
		appointments:      make(map[int64]models.Appointment),
		messages:          make(map[int64]models.Message),
		processed:         make(map[string]models.ProcessedEvent),
		nextUserID:        1,
		nextServiceID:     1,
		nextCustomerID:    1,
		nextAppointmentID: 1,
		nextMessageID:     1,
		now:               time.Now,
	}
}

// WithClock overrides the timestamp source (tests)
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// GetUserByUsername retrieves an admin user by username
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByID retrieves an admin user by ID
func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// CreateUser stores a new admin user
func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = s.nextUserID
	s.nextUserID++
	s.users[user.ID] = *user
	return nil
}

// GetServices returns all services ordered by ID
func (s *MemoryStore) GetServices(ctx context.Context) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetServicesByCategory returns services with the given category ordered by ID
func (s *MemoryStore) GetServicesByCategory(ctx context.Context, category string) ([]models.Service, error) {
	all, _ := s.GetServices(ctx)
	out := make([]models.Service, 0, len(all))
	for _, svc := range all {
		if svc.Category == category {
			out = append(out, svc)
		}
	}
	return out, nil
}

// GetServiceByID retrieves a service by ID
func (s *MemoryStore) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &svc, nil
}

// CreateService stores a new service
func (s *MemoryStore) CreateService(ctx context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc.ID = s.nextServiceID
	s.nextServiceID++
	s.services[svc.ID] = *svc
	return nil
}

// UpdateService overwrites an existing service
func (s *MemoryStore) UpdateService(ctx context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[svc.ID]; !ok {
		return ErrNotFound
	}
	s.services[svc.ID] = *svc
	return nil
}

// DeleteService removes a service
func (s *MemoryStore) DeleteService(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[id]; !ok {
		return ErrNotFound
	}
	delete(s.services, id)
	return nil
}

// GetCustomers returns all customers ordered by ID
func (s *MemoryStore) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCustomerByID retrieves a customer by ID
func (s *MemoryStore) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// FindCustomerByEmail returns the lowest-ID customer whose email matches case-insensitively
func (s *MemoryStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	all, _ := s.GetCustomers(ctx)
	for _, c := range all {
		if strings.EqualFold(c.Email, email) {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// CreateCustomer always inserts a new customer
func (s *MemoryStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.ID = s.nextCustomerID
	s.nextCustomerID++
	customer.CreatedAt = s.now()
	s.customers[customer.ID] = *customer
	return nil
}

// GetAppointments returns all appointments ordered by ID
func (s *MemoryStore) GetAppointments(ctx context.Context) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Appointment, 0, len(s.appointments))
	for _, a := range s.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAppointmentsByDate returns appointments on the calendar day of day
func (s *MemoryStore) GetAppointmentsByDate(ctx context.Context, day time.Time) ([]models.Appointment, error) {
	all, _ := s.GetAppointments(ctx)
	out := make([]models.Appointment, 0)
	for _, a := range all {
		if sameDay(day, a.AppointmentDate) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetAppointmentsByCustomer returns the appointments of one customer
func (s *MemoryStore) GetAppointmentsByCustomer(ctx context.Context, customerID int64) ([]models.Appointment, error) {
	all, _ := s.GetAppointments(ctx)
	out := make([]models.Appointment, 0)
	for _, a := range all {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetAppointmentByID retrieves an appointment by ID
func (s *MemoryStore) GetAppointmentByID(ctx context.Context, id int64) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// GetAppointmentByTxID returns the lowest-ID appointment carrying txID
func (s *MemoryStore) GetAppointmentByTxID(ctx context.Context, txID string) (*models.Appointment, error) {
	if txID == "" {
		return nil, ErrNotFound
	}
	all, _ := s.GetAppointments(ctx)
	for _, a := range all {
		if a.PaymentTxID == txID {
			a := a
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

// CreateAppointment stores an appointment exactly as given, assigning ID and creation time
func (s *MemoryStore) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt.ID = s.nextAppointmentID
	s.nextAppointmentID++
	appt.CreatedAt = s.now()
	s.appointments[appt.ID] = *appt
	return nil
}

// UpdateAppointmentStatus overwrites the status; last write wins
func (s *MemoryStore) UpdateAppointmentStatus(ctx context.Context, id int64, status string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = status
	s.appointments[id] = a
	return &a, nil
}

// UpdateAppointmentPayment overwrites both payment flags
func (s *MemoryStore) UpdateAppointmentPayment(ctx context.Context, id int64, downPaymentPaid, totalPaid bool) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.DownPaymentPaid = downPaymentPaid
	a.TotalPaid = totalPaid
	s.appointments[id] = a
	return &a, nil
}

// DeleteAppointment removes an appointment permanently
func (s *MemoryStore) DeleteAppointment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(s.appointments, id)
	return nil
}

// GetMessages returns the whole message log in insertion order
func (s *MemoryStore) GetMessages(ctx context.Context) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetMessagesByCustomer returns a customer's messages with ID greater than afterID
func (s *MemoryStore) GetMessagesByCustomer(ctx context.Context, customerID, afterID int64) ([]models.Message, error) {
	all, _ := s.GetMessages(ctx)
	out := make([]models.Message, 0)
	for _, m := range all {
		if m.CustomerID == customerID && m.ID > afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

// CreateMessage appends a message
func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.nextMessageID
	s.nextMessageID++
	msg.Timestamp = s.now()
	s.messages[msg.ID] = *msg
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (s *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[eventID]; ok {
		return nil
	}
	s.processed[eventID] = models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: s.now(),
	}
	return nil
}

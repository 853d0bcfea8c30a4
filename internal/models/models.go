package models

import "time"

// Service represents a bookable salon service
type Service struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Category    string `db:"category" json:"category"`
	Price       Money  `db:"price" json:"price"`
	DownPayment Money  `db:"down_payment" json:"downPayment"`
	Duration    int    `db:"duration" json:"duration"`
	Description string `db:"description" json:"description,omitempty"`
	Image       string `db:"image" json:"image,omitempty"`
}

// RemainingBalance is what is collected in person after the deposit
func (s *Service) RemainingBalance() Money {
	return s.Price.Sub(s.DownPayment)
}

// Customer represents a salon customer
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Appointment represents a booked time slot for a customer and service
type Appointment struct {
	ID              int64     `db:"id" json:"id"`
	CustomerID      int64     `db:"customer_id" json:"customerId"`
	ServiceID       int64     `db:"service_id" json:"serviceId"`
	AppointmentDate time.Time `db:"appointment_date" json:"appointmentDate"`
	Status          string    `db:"status" json:"status"`
	SpecialRequests string    `db:"special_requests" json:"specialRequests,omitempty"`
	DownPaymentPaid bool      `db:"down_payment_paid" json:"downPaymentPaid"`
	TotalPaid       bool      `db:"total_paid" json:"totalPaid"`
	PaymentTxID     string    `db:"payment_tx_id" json:"paymentTxId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// Message is one entry in the customer/staff message log
type Message struct {
	ID             int64     `db:"id" json:"id"`
	CustomerID     int64     `db:"customer_id" json:"customerId"`
	Body           string    `db:"message" json:"message"`
	IsFromCustomer bool      `db:"is_from_customer" json:"isFromCustomer"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
}

// User is an admin account
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Password string `db:"password" json:"-"`
}

// Appointment statuses
const (
	AppointmentStatusPending   = "pending"
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
)

// ValidAppointmentStatus reports whether s is one of the known statuses
func ValidAppointmentStatus(s string) bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Service categories used by the seeded catalog
const (
	CategoryHair    = "hair"
	CategoryEye     = "eye"
	CategorySpecial = "special"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

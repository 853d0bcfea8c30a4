package models

import "time"

// Event types
const (
	EventTypeAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventTypeBookingFailed            = "BOOKING_FAILED"
	EventTypeAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventTypePaymentRecorded          = "PAYMENT_RECORDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AppointmentBookedEvent published when a paid booking is recorded
type AppointmentBookedEvent struct {
	BaseEvent
	AppointmentID   int64     `json:"appointment_id"`
	CustomerID      int64     `json:"customer_id"`
	ServiceID       int64     `json:"service_id"`
	ServiceName     string    `json:"service_name"`
	AppointmentDate time.Time `json:"appointment_date"`
	Deposit         Money     `json:"deposit"`
	TxID            string    `json:"tx_id,omitempty"`
	Status          string    `json:"status"`
}

// BookingFailedEvent published when a booking attempt is aborted
type BookingFailedEvent struct {
	BaseEvent
	ServiceID      int64  `json:"service_id"`
	Stage          string `json:"stage"`
	Reason         string `json:"reason"`
	PaymentCharged bool   `json:"payment_charged"`
	TxID           string `json:"tx_id,omitempty"`
}

// AppointmentStatusChangedEvent published when staff change a status
type AppointmentStatusChangedEvent struct {
	BaseEvent
	AppointmentID int64  `json:"appointment_id"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
}

// PaymentRecordedEvent published when staff record an in-person payment
type PaymentRecordedEvent struct {
	BaseEvent
	AppointmentID   int64 `json:"appointment_id"`
	DownPaymentPaid bool  `json:"down_payment_paid"`
	TotalPaid       bool  `json:"total_paid"`
}

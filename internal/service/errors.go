package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"salon-service/internal/store"
)

var (
	ErrNotFound       = store.ErrNotFound
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrCardDeclined   = errors.New("card declined")
	ErrSDKUnavailable = errors.New("payment provider unavailable")
	ErrGateway        = errors.New("payment gateway error")
	ErrAmountMismatch = errors.New("amount does not match the service deposit")
	ErrPaymentTimeout = errors.New("payment timed out")
	ErrWidgetActive   = errors.New("a payment widget is already open for this booking session")
	ErrAlreadyBooked  = errors.New("this payment has already been used for an appointment")
)

// FieldErrors is a set of validation messages keyed by field name
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *FieldErrors) Unwrap() error {
	return ErrValidation
}

// Add records msg for field unless the field already has a message
func (e *FieldErrors) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// OrNil returns e as an error if any field failed, otherwise nil
func (e *FieldErrors) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string) error {
	fe := &FieldErrors{}
	fe.Add(field, msg)
	return fe
}

// CardError is an expected decline reported by the payment provider
type CardError struct {
	Code    string
	Message string
}

func (e *CardError) Error() string {
	return e.Message
}

func (e *CardError) Unwrap() error {
	return ErrCardDeclined
}

// PartialBookingError means the deposit was captured but the appointment
// was not recorded. It is never retried automatically.
type PartialBookingError struct {
	TxID       string
	CustomerID int64
	Err        error
}

func (e *PartialBookingError) Error() string {
	return fmt.Sprintf("your payment succeeded (transaction %s) but we could not record the appointment; please contact support", e.TxID)
}

func (e *PartialBookingError) Unwrap() error {
	return e.Err
}

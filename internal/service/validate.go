package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// TimeSlots are the bookable start times offered by the booking form
var TimeSlots = []string{"09:00", "10:30", "12:00", "13:30", "15:00", "16:30"}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	// "(555) 123-4567"
	maskedPhoneLen = 14
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the validate tags on s. Failures become FieldErrors,
// using messages[field] when present.
func validateStruct(s interface{}, messages map[string]string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fe := &FieldErrors{}
	for _, v := range verrs {
		msg, ok := messages[v.Field()]
		if !ok {
			msg = defaultMessage(v)
		}
		fe.Add(v.Field(), msg)
	}
	return fe
}

func defaultMessage(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters", v.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", v.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", v.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", v.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", v.Param())
	}
	return fmt.Sprintf("failed %s validation", v.Tag())
}

// FormatPhone strips non-digits and applies the (XXX) XXX-XXXX mask,
// formatting partial input progressively. Digits past the tenth are dropped.
func FormatPhone(value string) string {
	digits := make([]rune, 0, 10)
	for _, r := range value {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			digits = append(digits, r)
		}
	}
	if len(digits) > 10 {
		digits = digits[:10]
	}

	n := string(digits)
	switch {
	case len(n) == 0:
		return ""
	case len(n) <= 3:
		return "(" + n
	case len(n) <= 6:
		return fmt.Sprintf("(%s) %s", n[:3], n[3:])
	}
	return fmt.Sprintf("(%s) %s-%s", n[:3], n[3:6], n[6:])
}

// BookingFormInput is the raw booking form as submitted by the browser
type BookingFormInput struct {
	ServiceID       int64  `json:"serviceId" validate:"required,gt=0"`
	AppointmentDate string `json:"appointmentDate" validate:"required"`
	AppointmentTime string `json:"appointmentTime" validate:"required"`
	CustomerName    string `json:"customerName" validate:"required"`
	CustomerPhone   string `json:"customerPhone" validate:"required"`
	CustomerEmail   string `json:"customerEmail" validate:"required,email"`
	SpecialRequests string `json:"specialRequests,omitempty" validate:"max=1000"`
}

// BookingForm is a validated, normalised booking form
type BookingForm struct {
	ServiceID       int64     `json:"serviceId"`
	AppointmentDate time.Time `json:"appointmentDate"`
	CustomerName    string    `json:"customerName"`
	CustomerPhone   string    `json:"customerPhone"`
	CustomerEmail   string    `json:"customerEmail"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
}

var bookingFormMessages = map[string]string{
	"serviceId":       "Please select a service",
	"appointmentDate": "Please select a date",
	"appointmentTime": "Please select a time",
	"customerName":    "Name is required",
	"customerPhone":   "Valid phone number required",
	"customerEmail":   "Valid email required",
	"specialRequests": "Special requests must be at most 1000 characters",
}

// ValidateBookingForm normalises and checks a booking form without any I/O.
// The appointment time is interpreted in loc.
func ValidateBookingForm(in BookingFormInput, loc *time.Location) (*BookingForm, error) {
	if loc == nil {
		loc = time.Local
	}

	in.AppointmentDate = strings.TrimSpace(in.AppointmentDate)
	in.AppointmentTime = strings.TrimSpace(in.AppointmentTime)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	in.CustomerPhone = FormatPhone(in.CustomerPhone)
	in.SpecialRequests = strings.TrimSpace(in.SpecialRequests)

	fe := &FieldErrors{}
	if err := validateStruct(in, bookingFormMessages); err != nil {
		if !errors.As(err, &fe) {
			return nil, err
		}
	}

	if in.CustomerPhone != "" && len(in.CustomerPhone) < maskedPhoneLen {
		fe.Add("customerPhone", bookingFormMessages["customerPhone"])
	}

	var at time.Time
	if in.AppointmentDate != "" && in.AppointmentTime != "" {
		if _, err := time.Parse(dateLayout, in.AppointmentDate); err != nil {
			fe.Add("appointmentDate", bookingFormMessages["appointmentDate"])
		}
		if !validTimeSlot(in.AppointmentTime) {
			fe.Add("appointmentTime", bookingFormMessages["appointmentTime"])
		}
		if fe.OrNil() == nil {
			at, _ = time.ParseInLocation(dateLayout+" "+timeLayout, in.AppointmentDate+" "+in.AppointmentTime, loc)
		}
	}

	if err := fe.OrNil(); err != nil {
		return nil, err
	}

	return &BookingForm{
		ServiceID:       in.ServiceID,
		AppointmentDate: at,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerEmail:   in.CustomerEmail,
		SpecialRequests: in.SpecialRequests,
	}, nil
}

func validTimeSlot(s string) bool {
	if _, err := time.Parse(timeLayout, s); err != nil {
		return false
	}
	for _, slot := range TimeSlots {
		if slot == s {
			return true
		}
	}
	return false
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of appointments booked",
	}, []string{"status"})

	BookingsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_failed_total",
		Help: "Total number of aborted booking attempts",
	}, []string{"reason"})

	BookingsPartialTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_partial_total",
		Help: "Bookings where the deposit was captured but the appointment was not recorded",
	})

	AppointmentStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appointment_status_changes_total",
		Help: "Total number of staff status changes",
	}, []string{"status"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of deposit charge attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful deposit charges",
	})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed deposit charges",
	}, []string{"reason"})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of tokenize + charge",
		Buckets: prometheus.DefBuckets,
	})

	ActiveCaptureWidgets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_capture_widgets_active",
		Help: "Number of payment capture widgets currently attached",
	})

	MessagesPostedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_posted_total",
		Help: "Total number of messages appended",
	}, []string{"sender"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

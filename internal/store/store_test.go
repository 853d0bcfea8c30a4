package store

import (
	"context"
	"os"
	"testing"
	"time"

	"salon-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IDsAutoIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := &models.Customer{Name: "Ana", Email: "ana@example.com", Phone: "(555) 123-4567"}
	b := &models.Customer{Name: "Bea", Email: "bea@example.com", Phone: "(555) 765-4321"}
	require.NoError(t, s.CreateCustomer(ctx, a))
	require.NoError(t, s.CreateCustomer(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestMemoryStore_FindCustomerByEmailCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &models.Customer{Name: "Ana", Email: "Ana@Example.com", Phone: "1"}
	dup := &models.Customer{Name: "Ana Again", Email: "ana@example.com", Phone: "2"}
	require.NoError(t, s.CreateCustomer(ctx, first))
	require.NoError(t, s.CreateCustomer(ctx, dup))

	found, err := s.FindCustomerByEmail(ctx, "ANA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = s.FindCustomerByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AppointmentsByDate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateAppointment(ctx, &models.Appointment{CustomerID: 1, ServiceID: 1, AppointmentDate: day.Add(10 * time.Hour)}))
	require.NoError(t, s.CreateAppointment(ctx, &models.Appointment{CustomerID: 1, ServiceID: 2, AppointmentDate: day.Add(23*time.Hour + 59*time.Minute)}))
	require.NoError(t, s.CreateAppointment(ctx, &models.Appointment{CustomerID: 2, ServiceID: 1, AppointmentDate: day.AddDate(0, 0, 1)}))

	onDay, err := s.GetAppointmentsByDate(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Len(t, onDay, 2)

	forCustomer, err := s.GetAppointmentsByCustomer(ctx, 2)
	require.NoError(t, err)
	require.Len(t, forCustomer, 1)
	assert.Equal(t, int64(3), forCustomer[0].ID)
}

func TestMemoryStore_UpdateStatusLastWriteWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	appt := &models.Appointment{CustomerID: 1, ServiceID: 1, Status: models.AppointmentStatusConfirmed, DownPaymentPaid: true}
	require.NoError(t, s.CreateAppointment(ctx, appt))

	_, err := s.UpdateAppointmentStatus(ctx, appt.ID, models.AppointmentStatusCompleted)
	require.NoError(t, err)
	updated, err := s.UpdateAppointmentStatus(ctx, appt.ID, models.AppointmentStatusCancelled)
	require.NoError(t, err)

	assert.Equal(t, models.AppointmentStatusCancelled, updated.Status)
	assert.True(t, updated.DownPaymentPaid)

	_, err = s.UpdateAppointmentStatus(ctx, 99, models.AppointmentStatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_MessagesAfterID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateMessage(ctx, &models.Message{CustomerID: 7, Body: "hi", IsFromCustomer: true}))
	}
	require.NoError(t, s.CreateMessage(ctx, &models.Message{CustomerID: 8, Body: "other"}))

	msgs, err := s.GetMessagesByCustomer(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2), msgs[0].ID)
	assert.Equal(t, int64(3), msgs[1].ID)
}

func TestMemoryStore_ProcessedEvents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	done, err := s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", models.EventTypeAppointmentBooked))
	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", models.EventTypeAppointmentBooked))

	done, err = s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPostgresStore_CreateAppointment(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	store, err := NewPostgresStore(url)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	customer := &models.Customer{Name: "Ana", Email: "ana@example.com", Phone: "(555) 123-4567"}
	require.NoError(t, store.CreateCustomer(ctx, customer))
	assert.NotZero(t, customer.ID)

	appt := &models.Appointment{
		CustomerID:      customer.ID,
		ServiceID:       1,
		AppointmentDate: time.Now().Add(48 * time.Hour),
		Status:          models.AppointmentStatusConfirmed,
		DownPaymentPaid: true,
		PaymentTxID:     "TXN-test",
	}
	require.NoError(t, store.CreateAppointment(ctx, appt))
	assert.NotZero(t, appt.ID)

	retrieved, err := store.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.CustomerID, retrieved.CustomerID)
	assert.True(t, retrieved.DownPaymentPaid)

	// total_paid without down_payment_paid violates the table check
	_, err = store.UpdateAppointmentPayment(ctx, appt.ID, false, true)
	assert.Error(t, err)

	require.NoError(t, store.DeleteAppointment(ctx, appt.ID))
	_, err = store.GetAppointmentByID(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AppointmentByTxID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateAppointment(ctx, &models.Appointment{CustomerID: 1, ServiceID: 1}))
	paid := &models.Appointment{CustomerID: 1, ServiceID: 2, DownPaymentPaid: true, PaymentTxID: "TXN-1"}
	require.NoError(t, s.CreateAppointment(ctx, paid))

	found, err := s.GetAppointmentByTxID(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, paid.ID, found.ID)

	_, err = s.GetAppointmentByTxID(ctx, "TXN-2")
	assert.ErrorIs(t, err, ErrNotFound)

	// unpaid appointments never match the empty transaction id
	_, err = s.GetAppointmentByTxID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

package service

import (
	"context"
	"fmt"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/store"
)

const recentMessageCount = 3

// DashboardStats is the admin dashboard summary for one day
type DashboardStats struct {
	Date                string           `json:"date"`
	TodayAppointments   int              `json:"todayAppointments"`
	TodayRevenue        models.Money     `json:"todayRevenue"`
	PendingAppointments int              `json:"pendingAppointments"`
	NewCustomers        int              `json:"newCustomers"`
	RecentMessages      []models.Message `json:"recentMessages"`
}

// DashboardService computes dashboard figures from the repository
type DashboardService struct {
	repo store.Repository
	loc  *time.Location
}

func NewDashboardService(repo store.Repository, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.Local
	}
	return &DashboardService{repo: repo, loc: loc}
}

// Stats summarises the day containing now. Revenue is the full price of
// every service booked that day, whatever has been paid so far.
func (ds *DashboardService) Stats(ctx context.Context, now time.Time) (*DashboardStats, error) {
	now = now.In(ds.loc)

	appts, err := ds.repo.GetAppointmentsByDate(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	services, err := ds.repo.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load services: %w", err)
	}
	prices := make(map[int64]models.Money, len(services))
	for _, s := range services {
		prices[s.ID] = s.Price
	}

	stats := &DashboardStats{
		Date:              now.Format(dateLayout),
		TodayAppointments: len(appts),
		RecentMessages:    []models.Message{},
	}
	for _, a := range appts {
		stats.TodayRevenue += prices[a.ServiceID]
	}

	all, err := ds.repo.GetAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}
	for _, a := range all {
		if a.Status == models.AppointmentStatusPending {
			stats.PendingAppointments++
		}
	}

	customers, err := ds.repo.GetCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}
	y, m, d := now.Date()
	for _, c := range customers {
		cy, cm, cd := c.CreatedAt.In(ds.loc).Date()
		if cy == y && cm == m && cd == d {
			stats.NewCustomers++
		}
	}

	msgs, err := ds.repo.GetMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if len(msgs) > recentMessageCount {
		msgs = msgs[len(msgs)-recentMessageCount:]
	}
	stats.RecentMessages = append(stats.RecentMessages, msgs...)

	return stats, nil
}

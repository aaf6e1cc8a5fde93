package services

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/models"
	"gorm.io/gorm"
)

// PlatformStatistics is the administrator dashboard summary
type PlatformStatistics struct {
	TotalUsers        int64 `json:"total_users"`
	TotalCustomers    int64 `json:"total_customers"`
	TotalProviders    int64 `json:"total_providers"`
	TotalAdmins       int64 `json:"total_admins"`
	ActiveUsers       int64 `json:"active_users"`
	SuspendedUsers    int64 `json:"suspended_users"`
	VerifiedProviders int64 `json:"verified_providers"`
	PendingProviders  int64 `json:"pending_providers"`

	TotalBookings     int64 `json:"total_bookings"`
	PendingBookings   int64 `json:"pending_bookings"`
	ConfirmedBookings int64 `json:"confirmed_bookings"`
	CompletedBookings int64 `json:"completed_bookings"`
	CancelledBookings int64 `json:"cancelled_bookings"`

	// Revenue is the sum of totalAmount over COMPLETED bookings; the month and
	// day windows use the completion time
	TotalRevenue        float64 `json:"total_revenue"`
	RevenueThisMonth    float64 `json:"revenue_this_month"`
	RevenueToday        float64 `json:"revenue_today"`
	AverageBookingValue float64 `json:"average_booking_value"`

	TotalServiceOfferings int64   `json:"total_service_offerings"`
	TotalReviews          int64   `json:"total_reviews"`
	AverageRating         float64 `json:"average_rating"`

	BookingsToday      int64 `json:"bookings_today"`
	RegistrationsToday int64 `json:"registrations_today"`

	GeneratedAt time.Time `json:"generated_at"`
}

// StatisticsService computes read-only platform aggregates
type StatisticsService struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewStatisticsService creates a StatisticsService
func NewStatisticsService(db *gorm.DB, clk clock.Clock) *StatisticsService {
	return &StatisticsService{db: db, clock: clk}
}

type principalBreakdown struct {
	Role     models.Role
	Active   bool
	Verified bool
	Count    int64
}

type statusBreakdown struct {
	Status models.BookingStatus
	Count  int64
}

// PlatformStatistics is restricted to administrators
func (s *StatisticsService) PlatformStatistics(ctx context.Context, actor *Actor) (*PlatformStatistics, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	now := s.clock.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &PlatformStatistics{GeneratedAt: now}

	var principals []principalBreakdown
	if err := db.Model(&models.Principal{}).
		Select("role, active, verified, COUNT(*) AS count").
		Group("role, active, verified").
		Scan(&principals).Error; err != nil {
		return nil, internalError("failed to count principals", err)
	}
	for _, p := range principals {
		stats.TotalUsers += p.Count
		if p.Active {
			stats.ActiveUsers += p.Count
		} else {
			stats.SuspendedUsers += p.Count
		}
		switch p.Role {
		case models.RoleCustomer:
			stats.TotalCustomers += p.Count
		case models.RoleProvider:
			stats.TotalProviders += p.Count
			if p.Verified {
				stats.VerifiedProviders += p.Count
			} else {
				stats.PendingProviders += p.Count
			}
		case models.RoleAdmin:
			stats.TotalAdmins += p.Count
		}
	}

	var statuses []statusBreakdown
	if err := db.Model(&models.Booking{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&statuses).Error; err != nil {
		return nil, internalError("failed to count bookings", err)
	}
	for _, st := range statuses {
		stats.TotalBookings += st.Count
		switch st.Status {
		case models.BookingPending:
			stats.PendingBookings = st.Count
		case models.BookingConfirmed:
			stats.ConfirmedBookings = st.Count
		case models.BookingCompleted:
			stats.CompletedBookings = st.Count
		case models.BookingCancelled:
			stats.CancelledBookings = st.Count
		}
	}

	var err error
	if stats.TotalRevenue, err = s.revenueSince(db, time.Time{}); err != nil {
		return nil, err
	}
	if stats.RevenueThisMonth, err = s.revenueSince(db, startOfMonth); err != nil {
		return nil, err
	}
	if stats.RevenueToday, err = s.revenueSince(db, startOfDay); err != nil {
		return nil, err
	}
	if stats.CompletedBookings > 0 {
		stats.AverageBookingValue = stats.TotalRevenue / float64(stats.CompletedBookings)
	}

	if err := db.Model(&models.ServiceOffering{}).Count(&stats.TotalServiceOfferings).Error; err != nil {
		return nil, internalError("failed to count service offerings", err)
	}

	var ratings ratingAggregate
	if err := db.Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(SUM(rating), 0) AS total").
		Scan(&ratings).Error; err != nil {
		return nil, internalError("failed to aggregate reviews", err)
	}
	stats.TotalReviews = ratings.Count
	stats.AverageRating = mean(ratings.Total, ratings.Count)

	if err := db.Model(&models.Booking{}).Where("created_at >= ?", startOfDay).Count(&stats.BookingsToday).Error; err != nil {
		return nil, internalError("failed to count today's bookings", err)
	}
	if err := db.Model(&models.Principal{}).Where("created_at >= ?", startOfDay).Count(&stats.RegistrationsToday).Error; err != nil {
		return nil, internalError("failed to count today's registrations", err)
	}

	return stats, nil
}

type revenueTotal struct {
	Total float64
}

// revenueSince sums completed booking amounts whose completion is at or after since
func (s *StatisticsService) revenueSince(db *gorm.DB, since time.Time) (float64, error) {
	var revenue revenueTotal
	query := db.Model(&models.Booking{}).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Where("status = ?", models.BookingCompleted)
	if !since.IsZero() {
		query = query.Where("status_changed_at >= ?", since)
	}
	if err := query.Scan(&revenue).Error; err != nil {
		return 0, internalError("failed to sum revenue", err)
	}
	return revenue.Total, nil
}

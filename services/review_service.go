package services

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/metrics"
	"github.com/kendall-kelly/service-spot-api/models"
	"gorm.io/gorm"
)

const (
	MinReviewRating        = 1
	MaxReviewRating        = 5
	MinReviewCommentLength = 10
	MaxReviewCommentLength = 2000
)

// CreateReviewInput carries the fields of a new review
type CreateReviewInput struct {
	BookingID uint
	Rating    int
	Comment   string
}

// ProviderStatistics summarises the reviews received by a provider
type ProviderStatistics struct {
	ProviderID    uint          `json:"provider_id"`
	TotalReviews  int64         `json:"total_reviews"`
	AverageRating float64       `json:"average_rating"`
	PositiveCount int64         `json:"positive_reviews"`
	Distribution  map[int]int64 `json:"distribution"`
}

// ReviewService records one review per completed booking
type ReviewService struct {
	db     *gorm.DB
	clock  clock.Clock
	events EventPublisher
}

// NewReviewService creates a ReviewService
func NewReviewService(db *gorm.DB, clk clock.Clock, events EventPublisher) *ReviewService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &ReviewService{db: db, clock: clk, events: events}
}

// Create records the acting customer's review of a completed booking.
// Checks run in a fixed order: existence, ownership, eligibility,
// uniqueness, then field validation.
func (s *ReviewService) Create(ctx context.Context, actor *Actor, in CreateReviewInput) (*models.Review, error) {
	if err := Authorize(actor, AnyRole(models.RoleCustomer, models.RoleProvider, models.RoleAdmin)); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var booking models.Booking
	if err := db.First(&booking, in.BookingID).Error; err != nil {
		return nil, lookupError(err, "booking")
	}

	now := s.clock.Now().UTC()

	var review models.Review
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockPrincipals(tx, booking.CustomerID, booking.ProviderID); err != nil {
			return err
		}
		// re-read under the locks; an account deletion may have removed it
		if err := tx.First(&booking, in.BookingID).Error; err != nil {
			return lookupError(err, "booking")
		}

		if err := Authorize(actor, OwnerOf(booking.CustomerID)); err != nil {
			return newError(KindForbidden, "only the customer of this booking can review it")
		}

		if booking.Status != models.BookingCompleted {
			return newError(KindForbidden, "booking is not eligible for review until it is completed")
		}

		var existing int64
		if err := tx.Model(&models.Review{}).Where("booking_id = ?", booking.ID).Count(&existing).Error; err != nil {
			return internalError("failed to check existing reviews", err)
		}
		if existing > 0 {
			return newError(KindConflict, "this booking has already been reviewed")
		}

		comment := strings.TrimSpace(in.Comment)
		if in.Rating < MinReviewRating || in.Rating > MaxReviewRating {
			return newError(KindValidation, "rating must be between %d and %d", MinReviewRating, MaxReviewRating)
		}
		if n := utf8.RuneCountInString(comment); n < MinReviewCommentLength || n > MaxReviewCommentLength {
			return newError(KindValidation, "comment must be between %d and %d characters", MinReviewCommentLength, MaxReviewCommentLength)
		}

		review = models.Review{
			BookingID:  booking.ID,
			CustomerID: booking.CustomerID,
			ProviderID: booking.ProviderID,
			Rating:     in.Rating,
			Comment:    comment,
			CreatedAt:  now,
		}
		if err := tx.Create(&review).Error; err != nil {
			// the unique index on booking_id decides concurrent creates
			if isUniqueViolation(err) {
				return newError(KindConflict, "this booking has already been reviewed")
			}
			if isForeignKeyViolation(err) {
				return newError(KindNotFound, "booking not found")
			}
			return internalError("failed to create review", err)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create review")
	}

	metrics.ReviewsCreated.Inc()
	logger.InfoContext(ctx, "Review created", "review_id", review.ID, "booking_id", review.BookingID)
	publishEvent(ctx, s.events, SubjectReviewCreated, ReviewCreatedEvent{
		ReviewID:   review.ID,
		BookingID:  review.BookingID,
		ProviderID: review.ProviderID,
		Rating:     review.Rating,
		CreatedAt:  review.CreatedAt,
	})

	return &review, nil
}

// ListForProvider returns a provider's reviews, newest first
func (s *ReviewService) ListForProvider(ctx context.Context, providerID uint) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").Order("id DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, internalError("failed to list reviews", err)
	}
	return reviews, nil
}

type ratingBucket struct {
	Rating int
	Count  int64
}

type ratingAggregate struct {
	Count int64
	Total int64
}

func (s *ReviewService) aggregate(ctx context.Context, providerID uint) (ratingAggregate, error) {
	var agg ratingAggregate
	err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(SUM(rating), 0) AS total").
		Where("provider_id = ?", providerID).
		Scan(&agg).Error
	return agg, err
}

// AverageRating returns the arithmetic mean of a provider's ratings, or 0 when
// there are none
func (s *ReviewService) AverageRating(ctx context.Context, providerID uint) (float64, error) {
	agg, err := s.aggregate(ctx, providerID)
	if err != nil {
		return 0, internalError("failed to compute average rating", err)
	}
	return mean(agg.Total, agg.Count), nil
}

// ProviderStatistics returns the rating breakdown for a provider
func (s *ReviewService) ProviderStatistics(ctx context.Context, providerID uint) (*ProviderStatistics, error) {
	var rows []ratingBucket
	err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("provider_id = ?", providerID).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, internalError("failed to compute provider statistics", err)
	}

	stats := &ProviderStatistics{ProviderID: providerID, Distribution: make(map[int]int64, MaxReviewRating)}
	for r := MinReviewRating; r <= MaxReviewRating; r++ {
		stats.Distribution[r] = 0
	}

	var total int64
	for _, row := range rows {
		stats.Distribution[row.Rating] = row.Count
		stats.TotalReviews += row.Count
		total += int64(row.Rating) * row.Count
		if row.Rating >= 4 {
			stats.PositiveCount += row.Count
		}
	}
	stats.AverageRating = math.Round(mean(total, stats.TotalReviews)*10) / 10

	return stats, nil
}

func mean(total, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

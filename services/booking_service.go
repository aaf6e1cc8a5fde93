package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/metrics"
	"github.com/kendall-kelly/service-spot-api/models"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// transitionRule describes one edge of the booking state machine
type transitionRule struct {
	From  models.BookingStatus
	To    models.BookingStatus
	Actor models.Role
}

var bookingTransitions = map[models.BookingEvent]transitionRule{
	models.EventAccept:   {From: models.BookingPending, To: models.BookingConfirmed, Actor: models.RoleProvider},
	models.EventReject:   {From: models.BookingPending, To: models.BookingCancelled, Actor: models.RoleProvider},
	models.EventWithdraw: {From: models.BookingPending, To: models.BookingCancelled, Actor: models.RoleCustomer},
	models.EventCancel:   {From: models.BookingConfirmed, To: models.BookingCancelled, Actor: models.RoleCustomer},
	models.EventComplete: {From: models.BookingConfirmed, To: models.BookingCompleted, Actor: models.RoleProvider},
}

// CreateBookingInput carries the fields of a booking request
type CreateBookingInput struct {
	CustomerID        uint
	ProviderID        uint
	ServiceOfferingID uint
	RequestedSlot     time.Time
	Notes             string
}

// BookingFilter narrows ListForPrincipal
type BookingFilter struct {
	Status models.BookingStatus
	Limit  int
	Offset int
}

// BookingService owns bookings and their lifecycle
type BookingService struct {
	db             *gorm.DB
	clock          clock.Clock
	events         EventPublisher
	maxNotesLength int
}

// NewBookingService creates a BookingService
func NewBookingService(db *gorm.DB, clk clock.Clock, events EventPublisher, maxNotesLength int) *BookingService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &BookingService{db: db, clock: clk, events: events, maxNotesLength: maxNotesLength}
}

// Create records a PENDING booking for the calling customer
func (s *BookingService) Create(ctx context.Context, actor *Actor, in CreateBookingInput) (*models.Booking, error) {
	if err := Authorize(actor, OwnerOf(in.CustomerID).WithRole(models.RoleCustomer)); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()

	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPrincipals(tx, in.CustomerID, in.ProviderID); err != nil {
			return err
		}

		if _, err := loadActivePrincipal(tx, actor); err != nil {
			if errors.Is(err, ErrAccountSuspended) {
				return newError(KindForbidden, "suspended accounts cannot create bookings")
			}
			return err
		}

		if !in.RequestedSlot.After(now) {
			return newError(KindValidation, "requested slot must be in the future")
		}
		if utf8.RuneCountInString(in.Notes) > s.maxNotesLength {
			return newError(KindValidation, "notes must be at most %d characters", s.maxNotesLength)
		}

		var provider models.Principal
		if err := tx.Where("id = ? AND role = ?", in.ProviderID, models.RoleProvider).First(&provider).Error; err != nil {
			return lookupError(err, "provider")
		}

		var offering models.ServiceOffering
		if err := tx.Where("id = ? AND provider_id = ?", in.ServiceOfferingID, provider.ID).First(&offering).Error; err != nil {
			return lookupError(err, "service offering")
		}

		if !provider.Active {
			return newError(KindForbidden, "this provider is not accepting bookings")
		}

		booking = models.Booking{
			CustomerID:        in.CustomerID,
			ProviderID:        provider.ID,
			ServiceOfferingID: offering.ID,
			RequestedSlot:     in.RequestedSlot.UTC(),
			Status:            models.BookingPending,
			Notes:             in.Notes,
			TotalAmount:       offering.BasePrice,
			CreatedAt:         now,
			StatusChangedAt:   now,
			UpdatedAt:         now,
		}
		if err := tx.Create(&booking).Error; err != nil {
			if isForeignKeyViolation(err) {
				return newError(KindNotFound, "customer, provider or service offering no longer exists")
			}
			return internalError("failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create booking")
	}

	metrics.BookingsCreated.Inc()
	logger.InfoContext(ctx, "Booking created", "booking_id", booking.ID, "provider_id", booking.ProviderID)
	publishEvent(ctx, s.events, SubjectBookingCreated, BookingCreatedEvent{
		BookingID:         booking.ID,
		CustomerID:        booking.CustomerID,
		ProviderID:        booking.ProviderID,
		ServiceOfferingID: booking.ServiceOfferingID,
		RequestedSlot:     booking.RequestedSlot,
		TotalAmount:       booking.TotalAmount,
		CreatedAt:         booking.CreatedAt,
	})

	return &booking, nil
}

// Transition applies event to the booking on behalf of actor and returns the
// stored post-transition row. The status change is a conditional update, so of
// two racing transitions from the same state only one succeeds.
func (s *BookingService) Transition(ctx context.Context, actor *Actor, bookingID uint, event models.BookingEvent) (*models.Booking, error) {
	if err := Authorize(actor, AnyRole(models.RoleCustomer, models.RoleProvider, models.RoleAdmin)); err != nil {
		return nil, err
	}

	rule, ok := bookingTransitions[event]
	if !ok {
		return nil, newError(KindValidation, "unknown booking event %q", event)
	}

	db := s.db.WithContext(ctx)

	var booking models.Booking
	if err := db.First(&booking, bookingID).Error; err != nil {
		return nil, lookupError(err, "booking")
	}

	if _, err := loadActivePrincipal(db, actor); err != nil {
		return nil, err
	}

	owner := booking.CustomerID
	if rule.Actor == models.RoleProvider {
		owner = booking.ProviderID
	}
	if err := Authorize(actor, OwnerOf(owner).WithRole(rule.Actor)); err != nil {
		s.countTransition(event, err)
		return nil, err
	}

	now := s.clock.Now().UTC()
	updates := map[string]any{
		"status":            rule.To,
		"status_changed_at": now,
		"updated_at":        now,
	}
	if rule.To == models.BookingCancelled {
		updates["cancelled_by"] = rule.Actor
	}

	result := db.Model(&models.Booking{}).
		Where("id = ? AND status = ?", booking.ID, rule.From).
		Updates(updates)
	if result.Error != nil {
		return nil, internalError("failed to update booking", result.Error)
	}
	if result.RowsAffected == 0 {
		err := newError(KindInvalidTransition, "cannot %s a booking that is not %s", event, rule.From)
		s.countTransition(event, err)
		return nil, err
	}

	var updated models.Booking
	if err := db.First(&updated, booking.ID).Error; err != nil {
		return nil, internalError("failed to reload booking", err)
	}

	s.countTransition(event, nil)
	logger.InfoContext(ctx, "Booking transitioned", "booking_id", updated.ID, "event", event, "status", updated.Status)
	publishEvent(ctx, s.events, SubjectBookingTransitioned, BookingTransitionedEvent{
		BookingID: updated.ID,
		Event:     event,
		From:      rule.From,
		To:        updated.Status,
		ActorID:   actor.ID,
		ChangedAt: now,
	})

	return &updated, nil
}

func (s *BookingService) countTransition(event models.BookingEvent, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.BookingTransitions.WithLabelValues(string(event), outcome).Inc()
}

// Get returns a booking visible to its customer, its provider or an admin
func (s *BookingService) Get(ctx context.Context, actor *Actor, bookingID uint) (*models.Booking, error) {
	if err := Authorize(actor, AnyRole(models.RoleCustomer, models.RoleProvider, models.RoleAdmin)); err != nil {
		return nil, err
	}

	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, bookingID).Error; err != nil {
		return nil, lookupError(err, "booking")
	}

	if err := Authorize(actor, OwnerOf(booking.CustomerID, booking.ProviderID), AnyRole(models.RoleAdmin)); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListForPrincipal returns the bookings in which the principal takes part as
// role, newest first. Administrators see every booking.
func (s *BookingService) ListForPrincipal(ctx context.Context, principalID uint, role models.Role, filter BookingFilter) ([]models.Booking, error) {
	query := s.db.WithContext(ctx).Model(&models.Booking{})

	switch role {
	case models.RoleCustomer:
		query = query.Where("customer_id = ?", principalID)
	case models.RoleProvider:
		query = query.Where("provider_id = ?", principalID)
	case models.RoleAdmin:
	default:
		return nil, newError(KindValidation, "unknown role %q", role)
	}

	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, newError(KindValidation, "unknown booking status %q", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)

	bookings := []models.Booking{}
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&bookings).Error; err != nil {
		return nil, internalError("failed to list bookings", err)
	}
	return bookings, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

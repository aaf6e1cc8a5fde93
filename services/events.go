package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/nats-io/nats.go"
)

// Event subjects
const (
	SubjectBookingCreated       = "booking.created"
	SubjectBookingTransitioned  = "booking.transitioned"
	SubjectReviewCreated        = "review.created"
	SubjectPrincipalVerified    = "principal.verified"
	SubjectPrincipalSuspended   = "principal.suspended"
	SubjectPrincipalReactivated = "principal.reactivated"
	SubjectPrincipalDeleted     = "principal.deleted"
)

// EventPublisher delivers domain events after the state change has committed
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// NATSPublisher publishes JSON encoded events to NATS
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("service-spot-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject)
	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	return n.conn.Drain()
}

// NoopPublisher discards events; used when NATS is not configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// publishEvent is best effort: the mutation has already committed
func publishEvent(ctx context.Context, p EventPublisher, subject string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

// Event payloads

type BookingCreatedEvent struct {
	BookingID         uint      `json:"booking_id"`
	CustomerID        uint      `json:"customer_id"`
	ProviderID        uint      `json:"provider_id"`
	ServiceOfferingID uint      `json:"service_offering_id"`
	RequestedSlot     time.Time `json:"requested_slot"`
	TotalAmount       float64   `json:"total_amount"`
	CreatedAt         time.Time `json:"created_at"`
}

type BookingTransitionedEvent struct {
	BookingID uint                 `json:"booking_id"`
	Event     models.BookingEvent  `json:"event"`
	From      models.BookingStatus `json:"from"`
	To        models.BookingStatus `json:"to"`
	ActorID   uint                 `json:"actor_id"`
	ChangedAt time.Time            `json:"changed_at"`
}

type ReviewCreatedEvent struct {
	ReviewID   uint      `json:"review_id"`
	BookingID  uint      `json:"booking_id"`
	ProviderID uint      `json:"provider_id"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}

type PrincipalModeratedEvent struct {
	PrincipalID uint      `json:"principal_id"`
	AdminID     uint      `json:"admin_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

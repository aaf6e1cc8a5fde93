package models

import "time"

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Valid reports whether s is a known status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// BookingEvent names a requested lifecycle transition
type BookingEvent string

const (
	EventAccept   BookingEvent = "accept"
	EventReject   BookingEvent = "reject"
	EventWithdraw BookingEvent = "withdraw"
	EventCancel   BookingEvent = "cancel"
	EventComplete BookingEvent = "complete"
)

// Booking represents a customer's request for a provider's time slot
type Booking struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	CustomerID        uint          `gorm:"not null;index" json:"customer_id"`
	ProviderID        uint          `gorm:"not null;index" json:"provider_id"`
	ServiceOfferingID uint          `gorm:"not null;index" json:"service_offering_id"`
	RequestedSlot     time.Time     `gorm:"not null" json:"requested_slot"`
	Status            BookingStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Notes             string        `json:"notes,omitempty"`
	TotalAmount       float64       `gorm:"not null" json:"total_amount"`
	CancelledBy       *Role         `gorm:"type:varchar(16)" json:"cancelled_by,omitempty"` // nullable, set when the booking is cancelled
	CreatedAt         time.Time     `json:"created_at"`
	StatusChangedAt   time.Time     `gorm:"not null;index" json:"status_changed_at"`
	UpdatedAt         time.Time     `json:"updated_at"`

	Customer        *Principal       `gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT" json:"-"`
	Provider        *Principal       `gorm:"foreignKey:ProviderID;constraint:OnDelete:RESTRICT" json:"-"`
	ServiceOffering *ServiceOffering `gorm:"foreignKey:ServiceOfferingID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

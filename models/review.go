package models

import "time"

// Review is a customer's rating of a completed booking. Reviews are append-only.
type Review struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BookingID  uint      `gorm:"not null;uniqueIndex" json:"booking_id"`
	CustomerID uint      `gorm:"not null;index" json:"customer_id"`
	ProviderID uint      `gorm:"not null;index" json:"provider_id"`
	Rating     int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment    string    `gorm:"not null" json:"comment"`
	CreatedAt  time.Time `json:"created_at"`

	Booking  *Booking   `gorm:"foreignKey:BookingID;constraint:OnDelete:RESTRICT" json:"-"`
	Customer *Principal `gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT" json:"-"`
	Provider *Principal `gorm:"foreignKey:ProviderID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for the Review model
func (Review) TableName() string {
	return "reviews"
}

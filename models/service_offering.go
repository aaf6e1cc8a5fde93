package models

import "time"

// ServiceOffering is a bookable service published by a provider
type ServiceOffering struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProviderID      uint      `gorm:"not null;index" json:"provider_id"`
	Title           string    `gorm:"not null" json:"title"`
	Description     string    `json:"description"`
	BasePrice       float64   `gorm:"not null;check:base_price >= 0" json:"base_price"`
	DurationMinutes int       `gorm:"not null;check:duration_minutes > 0" json:"duration_minutes"`
	ImageS3Key      *string   `json:"image_s3_key,omitempty"`       // nullable, S3 key for uploaded image
	ImageURL        *string   `gorm:"-" json:"image_url,omitempty"` // computed field, presigned URL for image
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Provider *Principal `gorm:"foreignKey:ProviderID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for the ServiceOffering model
func (ServiceOffering) TableName() string {
	return "service_offerings"
}

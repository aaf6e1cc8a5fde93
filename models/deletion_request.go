package models

import "time"

// DeletionRequest is the single-use confirmation issued when an admin
// previews the permanent removal of a principal
type DeletionRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TokenHash   string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	PrincipalID uint       `gorm:"not null;index" json:"principal_id"`
	RequestedBy uint       `gorm:"not null" json:"requested_by"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Principal *Principal `gorm:"foreignKey:PrincipalID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for the DeletionRequest model
func (DeletionRequest) TableName() string {
	return "deletion_requests"
}

package models

import "time"

// Session is a server-side record of an issued bearer token.
// Only the SHA-256 of the token is stored.
type Session struct {
	TokenHash   string    `gorm:"primaryKey;size:64" json:"-"`
	PrincipalID uint      `gorm:"not null;index" json:"principal_id"`
	Role        Role      `gorm:"type:varchar(16);not null" json:"role"`
	IssuedAt    time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`

	Principal *Principal `gorm:"foreignKey:PrincipalID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// ExpiredAt reports whether the session is no longer valid at now
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the fixed set of account types a principal can hold
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts external input to a Role. Only the canonical names are
// accepted; legacy aliases such as SERVICE_PROVIDER are rejected.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Principal represents an account in the system (customer, provider or admin)
type Principal struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DisplayName  string    `gorm:"not null" json:"display_name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         Role      `gorm:"type:varchar(16);not null;index" json:"role"`
	Active       bool      `gorm:"not null;index" json:"active"`
	Verified     bool      `gorm:"not null" json:"verified"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Principal model
func (Principal) TableName() string {
	return "principals"
}

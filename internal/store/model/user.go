package model

import (
	"time"

	api "github.com/fleetver/fleetver/api/v1"
)

// User is an operator account. Passwords are stored as PBKDF2-HMAC-SHA256
// derived keys, never in the clear.
type User struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordSalt string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	CreatedAt    time.Time

	Sessions []Session `gorm:"constraint:OnDelete:CASCADE"`
}

func (u *User) ToSessionUser() api.SessionUser {
	return api.SessionUser{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
	}
}

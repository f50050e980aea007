package model

import (
	"time"
)

// Session is one login. Expiry is enforced at lookup time; expired rows are
// deleted on sight.
type Session struct {
	ID         int64  `gorm:"primaryKey"`
	UserID     int64  `gorm:"index;not null"`
	Token      string `gorm:"uniqueIndex;not null"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"not null"`
	LastSeenAt time.Time
}

package model

import (
	"time"
)

// FileObservation caches one captured version of a controlled file,
// addressed by (device, path, fingerprint). A cache hit means the content
// for that fingerprint was already taken and no refetch is needed.
type FileObservation struct {
	ID          int64  `gorm:"primaryKey"`
	DeviceID    int64  `gorm:"uniqueIndex:idx_file_observations_key;not null"`
	Path        string `gorm:"uniqueIndex:idx_file_observations_key;not null"`
	Fingerprint string `gorm:"uniqueIndex:idx_file_observations_key;not null"`
	SnapshotID  int64  `gorm:"not null"`
	ContentB64  *string
	Encoding    *string
	ContentType *string
	Truncated   bool   `gorm:"not null"`
	Source      string `gorm:"not null"`
	CreatedAt   time.Time
}

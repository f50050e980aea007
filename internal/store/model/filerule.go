package model

import (
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

// ControlledFileRule names the file paths watched for drift on every device
// of one vendor/model inside a cluster. Mode picks how file content is
// captured: auto, inline or fetch.
type ControlledFileRule struct {
	ID        int64  `gorm:"primaryKey"`
	ClusterID int64  `gorm:"uniqueIndex:idx_file_rules_scope;not null"`
	Vendor    string `gorm:"uniqueIndex:idx_file_rules_scope;not null"`
	Model     string `gorm:"uniqueIndex:idx_file_rules_scope;not null"`
	Paths     *JSONField[[]string]
	Mode      string `gorm:"not null"`
	MaxBytes  int    `gorm:"not null"`
	Note      *string
	CreatedAt time.Time
}

func (r *ControlledFileRule) Patterns() []string {
	if r.Paths == nil {
		return nil
	}
	return r.Paths.Data
}

func (r *ControlledFileRule) ToApiResource() api.ControlledFileRule {
	return api.ControlledFileRule{
		ID:         r.ID,
		ClusterID:  r.ClusterID,
		Supplier:   r.Vendor,
		DeviceType: r.Model,
		Paths:      r.Patterns(),
		Mode:       r.Mode,
		MaxBytes:   r.MaxBytes,
		Note:       r.Note,
		CreatedAt:  util.TimeToStr(r.CreatedAt),
	}
}

package model

import (
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

// VersionCatalogEntry holds release metadata for one (vendor, model,
// main_version) triple. Entries arrive from operator upserts or from
// main_version_info blocks reported by devices.
type VersionCatalogEntry struct {
	ID          int64  `gorm:"primaryKey"`
	Vendor      string `gorm:"uniqueIndex:idx_version_catalog_key;not null"`
	Model       string `gorm:"uniqueIndex:idx_version_catalog_key;not null"`
	MainVersion string `gorm:"uniqueIndex:idx_version_catalog_key;not null"`
	ChangelogMD *string
	ReleasedAt  *string
	RiskLevel   *string
	Checksum    *string
	CreatedAt   time.Time
}

func (e *VersionCatalogEntry) ToApiResource() api.VersionCatalogEntry {
	return api.VersionCatalogEntry{
		ID:          e.ID,
		Supplier:    e.Vendor,
		DeviceType:  e.Model,
		MainVersion: e.MainVersion,
		ChangelogMD: e.ChangelogMD,
		ReleasedAt:  e.ReleasedAt,
		RiskLevel:   e.RiskLevel,
		Checksum:    e.Checksum,
		CreatedAt:   util.TimeToStr(e.CreatedAt),
	}
}

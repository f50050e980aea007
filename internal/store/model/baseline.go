package model

import (
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

// Baseline pins the expected main version for every device of one
// vendor/model inside a cluster. AllowedMainGlobs widens the acceptable set
// beyond exact equality.
type Baseline struct {
	ID                  int64  `gorm:"primaryKey"`
	ClusterID           int64  `gorm:"uniqueIndex:idx_baselines_scope;not null"`
	Vendor              string `gorm:"uniqueIndex:idx_baselines_scope;not null"`
	Model               string `gorm:"uniqueIndex:idx_baselines_scope;not null"`
	ExpectedMainVersion string `gorm:"not null"`
	AllowedMainGlobs    *JSONField[[]string]
	Note                *string
	EffectiveFrom       *string
	CreatedAt           time.Time
}

// Globs returns the allowed version patterns, never nil-dereferencing.
func (b *Baseline) Globs() []string {
	if b.AllowedMainGlobs == nil {
		return nil
	}
	return b.AllowedMainGlobs.Data
}

// Allows reports whether an observed main version satisfies the baseline:
// exact expected match, or any allowed glob.
func (b *Baseline) Allows(observed string) bool {
	if observed == b.ExpectedMainVersion {
		return true
	}
	for _, g := range b.Globs() {
		if util.MatchGlob(g, observed) {
			return true
		}
	}
	return false
}

func (b *Baseline) ToApiResource() api.Baseline {
	return api.Baseline{
		ID:                  b.ID,
		ClusterID:           b.ClusterID,
		Supplier:            b.Vendor,
		DeviceType:          b.Model,
		ExpectedMainVersion: b.ExpectedMainVersion,
		AllowedMainGlobs:    b.Globs(),
		Note:                b.Note,
		EffectiveFrom:       b.EffectiveFrom,
		CreatedAt:           util.TimeToStr(b.CreatedAt),
	}
}

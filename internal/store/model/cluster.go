package model

import (
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

type Cluster struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description *string
	CreatedAt   time.Time

	Devices   []Device             `gorm:"constraint:OnDelete:CASCADE"`
	Baselines []Baseline           `gorm:"constraint:OnDelete:CASCADE"`
	FileRules []ControlledFileRule `gorm:"constraint:OnDelete:CASCADE"`
}

func (c *Cluster) ToApiResource() api.Cluster {
	return api.Cluster{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   util.TimeToStr(c.CreatedAt),
	}
}

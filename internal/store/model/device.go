package model

import (
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

// Device is one polled appliance. DeviceKey is the stable identity used for
// upserts; the API presents it as device_serial and presents vendor/model as
// supplier/device_type.
type Device struct {
	ID        int64  `gorm:"primaryKey"`
	ClusterID int64  `gorm:"index;not null"`
	DeviceKey string `gorm:"uniqueIndex;not null"`
	Vendor    string `gorm:"index:idx_devices_vendor_model;not null"`
	Model     string `gorm:"index:idx_devices_vendor_model;not null"`
	LineNo    *string
	IP        string `gorm:"not null"`
	Port      int    `gorm:"not null"`
	Protocol  string `gorm:"not null"`
	Path      string `gorm:"not null"`
	AuthType  string `gorm:"not null"`
	AuthToken *string
	Enabled   bool `gorm:"not null"`

	LastState   *string
	LastStateAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Snapshots    []DeviceSnapshot  `gorm:"constraint:OnDelete:CASCADE"`
	Events       []Event           `gorm:"constraint:OnDelete:CASCADE"`
	Observations []FileObservation `gorm:"constraint:OnDelete:CASCADE"`
}

func (d *Device) ToApiResource() api.Device {
	return api.Device{
		ID:           d.ID,
		ClusterID:    d.ClusterID,
		DeviceSerial: d.DeviceKey,
		Supplier:     d.Vendor,
		DeviceType:   d.Model,
		LineNo:       d.LineNo,
		IP:           d.IP,
		Port:         d.Port,
		Protocol:     d.Protocol,
		Path:         d.Path,
		AuthType:     d.AuthType,
		AuthToken:    d.AuthToken,
		Enabled:      d.Enabled,
		LastState:    d.LastState,
		LastStateAt:  util.TimeToStrPtr(d.LastStateAt),
		CreatedAt:    util.TimeToStr(d.CreatedAt),
		UpdatedAt:    util.TimeToStr(d.UpdatedAt),
	}
}

func DevicesToApiResource(devices []Device) api.DeviceList {
	items := make([]api.Device, len(devices))
	for i := range devices {
		items[i] = devices[i].ToApiResource()
	}
	return api.DeviceList{Items: items}
}

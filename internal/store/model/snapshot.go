package model

import (
	"encoding/json"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

// DeviceSnapshot is one poll attempt, successful or not. Payload keeps the
// device's response verbatim as serialized JSON; it is re-parsed lazily.
type DeviceSnapshot struct {
	ID              int64     `gorm:"primaryKey"`
	DeviceID        int64     `gorm:"index:idx_snapshots_device_observed,priority:1;not null"`
	ObservedAt      time.Time `gorm:"index:idx_snapshots_device_observed,priority:2;not null"`
	Success         bool      `gorm:"not null"`
	HTTPStatus      *int
	LatencyMs       *int64
	Error           *string
	ProtocolVersion *int
	MainVersion     *string
	FirmwareVersion *string
	Payload         *string `gorm:"type:text"`
}

// ParsedPayload decodes the stored payload, returning nil when the snapshot
// carries none or the stored text does not parse.
func (s *DeviceSnapshot) ParsedPayload() map[string]any {
	if s == nil || s.Payload == nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(*s.Payload), &out); err != nil {
		return nil
	}
	return out
}

func (s *DeviceSnapshot) ToApiResource() api.Snapshot {
	out := api.Snapshot{
		ID:              s.ID,
		DeviceID:        s.DeviceID,
		ObservedAt:      util.TimeToStr(s.ObservedAt),
		Success:         s.Success,
		HTTPStatus:      s.HTTPStatus,
		LatencyMs:       s.LatencyMs,
		Error:           s.Error,
		ProtocolVersion: s.ProtocolVersion,
		MainVersion:     s.MainVersion,
		FirmwareVersion: s.FirmwareVersion,
	}
	if s.Payload != nil {
		out.Payload = json.RawMessage(*s.Payload)
	}
	return out
}

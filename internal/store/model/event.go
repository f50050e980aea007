package model

import (
	"encoding/json"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
)

const (
	EventStateChange           = "state_change"
	EventVersionObserved       = "version_observed"
	EventVersionChange         = "version_change"
	EventControlledFilesChange = "controlled_files_change"
	EventControlledFilesAck    = "controlled_files_ack"
)

// Event is an append-only audit record. Payload carries event-specific
// detail as serialized JSON.
type Event struct {
	ID        int64     `gorm:"primaryKey"`
	DeviceID  int64     `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"index;not null"`
	EventType string    `gorm:"index;not null"`
	OldState  *string
	NewState  *string
	Message   *string
	Payload   *string `gorm:"type:text"`
}

func (e *Event) ToApiResource() api.Event {
	out := api.Event{
		ID:        e.ID,
		DeviceID:  e.DeviceID,
		CreatedAt: util.TimeToStr(e.CreatedAt),
		EventType: e.EventType,
		OldState:  e.OldState,
		NewState:  e.NewState,
		Message:   e.Message,
	}
	if e.Payload != nil {
		out.Payload = json.RawMessage(*e.Payload)
	}
	return out
}

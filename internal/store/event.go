package store

import (
	"context"
	"sync"

	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Event interface {
	InitialMigration() error
	Create(ctx context.Context, event *model.Event) (int64, error)
	List(ctx context.Context, params ListEventsParams) ([]model.Event, error)
	LatestOfType(ctx context.Context, deviceID int64, eventType string) (*model.Event, error)
}

type ListEventsParams struct {
	DeviceID *int64
	Limit    int
}

type EventStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Event interface
var _ Event = (*EventStore)(nil)

func NewEvent(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Event {
	return &EventStore{db: db, mu: mu, log: log}
}

func (s *EventStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Event{})
}

func (s *EventStore) Create(ctx context.Context, event *model.Event) (int64, error) {
	if event == nil {
		return 0, fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event.CreatedAt = now()
	if result := s.db.WithContext(ctx).Create(event); result.Error != nil {
		return 0, fverrors.ErrorFromGormError(result.Error)
	}
	return event.ID, nil
}

func (s *EventStore) List(ctx context.Context, params ListEventsParams) ([]model.Event, error) {
	query := s.db.WithContext(ctx).Model(&model.Event{})
	if params.DeviceID != nil {
		query = query.Where("device_id = ?", *params.DeviceID)
	}
	var events []model.Event
	result := query.
		Order("created_at DESC, id DESC").
		Limit(clampLimit(params.Limit)).
		Find(&events)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return events, nil
}

func (s *EventStore) LatestOfType(ctx context.Context, deviceID int64, eventType string) (*model.Event, error) {
	var event model.Event
	result := s.db.WithContext(ctx).
		Where("device_id = ? AND event_type = ?", deviceID, eventType).
		Order("created_at DESC, id DESC").
		Take(&event)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &event, nil
}

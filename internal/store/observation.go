package store

import (
	"context"
	"sync"

	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Observation interface {
	InitialMigration() error
	Record(ctx context.Context, obs *model.FileObservation) error
	Get(ctx context.Context, deviceID int64, path, fingerprint string) (*model.FileObservation, error)
}

type ObservationStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Observation interface
var _ Observation = (*ObservationStore)(nil)

func NewObservation(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Observation {
	return &ObservationStore{db: db, mu: mu, log: log}
}

func (s *ObservationStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.FileObservation{})
}

// Record is write-once per (device, path, fingerprint): a second write for
// the same key leaves the first capture untouched.
func (s *ObservationStore) Record(ctx context.Context, obs *model.FileObservation) error {
	if obs == nil {
		return fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obs.CreatedAt = now()
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(obs)
	return fverrors.ErrorFromGormError(result.Error)
}

func (s *ObservationStore) Get(ctx context.Context, deviceID int64, path, fingerprint string) (*model.FileObservation, error) {
	var obs model.FileObservation
	result := s.db.WithContext(ctx).
		Where("device_id = ? AND path = ? AND fingerprint = ?", deviceID, path, fingerprint).
		Take(&obs)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &obs, nil
}

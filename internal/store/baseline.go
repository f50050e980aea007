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

type Baseline interface {
	InitialMigration() error
	Upsert(ctx context.Context, baseline *model.Baseline) error
	Get(ctx context.Context, clusterID int64, vendor, deviceModel string) (*model.Baseline, error)
	List(ctx context.Context, clusterID *int64) ([]model.Baseline, error)
	Delete(ctx context.Context, id int64) error
}

type BaselineStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Baseline interface
var _ Baseline = (*BaselineStore)(nil)

func NewBaseline(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Baseline {
	return &BaselineStore{db: db, mu: mu, log: log}
}

func (s *BaselineStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Baseline{})
}

// Upsert keys on (cluster_id, vendor, model) and replaces the expectation
// fields on conflict.
func (s *BaselineStore) Upsert(ctx context.Context, baseline *model.Baseline) error {
	if baseline == nil {
		return fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	baseline.CreatedAt = now()
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cluster_id"}, {Name: "vendor"}, {Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"expected_main_version", "allowed_main_globs", "note", "effective_from",
		}),
	}).Create(baseline)
	return fverrors.ErrorFromGormError(result.Error)
}

func (s *BaselineStore) Get(ctx context.Context, clusterID int64, vendor, deviceModel string) (*model.Baseline, error) {
	var baseline model.Baseline
	result := s.db.WithContext(ctx).
		Where("cluster_id = ? AND vendor = ? AND model = ?", clusterID, vendor, deviceModel).
		Take(&baseline)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &baseline, nil
}

func (s *BaselineStore) List(ctx context.Context, clusterID *int64) ([]model.Baseline, error) {
	query := s.db.WithContext(ctx).Model(&model.Baseline{})
	if clusterID != nil {
		query = query.Where("cluster_id = ?", *clusterID)
	}
	var baselines []model.Baseline
	if result := query.Order("id").Find(&baselines); result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return baselines, nil
}

func (s *BaselineStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Delete(&model.Baseline{}, id)
	if result.Error != nil {
		return fverrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fverrors.ErrResourceNotFound
	}
	return nil
}

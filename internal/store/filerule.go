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

type FileRule interface {
	InitialMigration() error
	Upsert(ctx context.Context, rule *model.ControlledFileRule) error
	Get(ctx context.Context, clusterID int64, vendor, deviceModel string) (*model.ControlledFileRule, error)
	List(ctx context.Context, clusterID *int64) ([]model.ControlledFileRule, error)
	Delete(ctx context.Context, id int64) error
}

type FileRuleStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to FileRule interface
var _ FileRule = (*FileRuleStore)(nil)

func NewFileRule(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) FileRule {
	return &FileRuleStore{db: db, mu: mu, log: log}
}

func (s *FileRuleStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.ControlledFileRule{})
}

func (s *FileRuleStore) Upsert(ctx context.Context, rule *model.ControlledFileRule) error {
	if rule == nil {
		return fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rule.CreatedAt = now()
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cluster_id"}, {Name: "vendor"}, {Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"paths", "mode", "max_bytes", "note",
		}),
	}).Create(rule)
	return fverrors.ErrorFromGormError(result.Error)
}

func (s *FileRuleStore) Get(ctx context.Context, clusterID int64, vendor, deviceModel string) (*model.ControlledFileRule, error) {
	var rule model.ControlledFileRule
	result := s.db.WithContext(ctx).
		Where("cluster_id = ? AND vendor = ? AND model = ?", clusterID, vendor, deviceModel).
		Take(&rule)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &rule, nil
}

func (s *FileRuleStore) List(ctx context.Context, clusterID *int64) ([]model.ControlledFileRule, error) {
	query := s.db.WithContext(ctx).Model(&model.ControlledFileRule{})
	if clusterID != nil {
		query = query.Where("cluster_id = ?", *clusterID)
	}
	var rules []model.ControlledFileRule
	if result := query.Order("id").Find(&rules); result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return rules, nil
}

func (s *FileRuleStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Delete(&model.ControlledFileRule{}, id)
	if result.Error != nil {
		return fverrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fverrors.ErrResourceNotFound
	}
	return nil
}

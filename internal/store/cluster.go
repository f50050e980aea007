package store

import (
	"context"
	"sync"

	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Cluster interface {
	InitialMigration() error
	Create(ctx context.Context, name string, description *string) (int64, error)
	Get(ctx context.Context, id int64) (*model.Cluster, error)
	GetByName(ctx context.Context, name string) (*model.Cluster, error)
	List(ctx context.Context) ([]model.Cluster, error)
}

type ClusterStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

var _ Cluster = (*ClusterStore)(nil)

func NewCluster(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Cluster {
	return &ClusterStore{db: db, mu: mu, log: log}
}

func (s *ClusterStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Cluster{})
}

func (s *ClusterStore) Create(ctx context.Context, name string, description *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cluster := model.Cluster{
		Name:        name,
		Description: description,
		CreatedAt:   now(),
	}
	if result := s.db.WithContext(ctx).Create(&cluster); result.Error != nil {
		return 0, fverrors.ErrorFromGormError(result.Error)
	}
	return cluster.ID, nil
}

func (s *ClusterStore) Get(ctx context.Context, id int64) (*model.Cluster, error) {
	var cluster model.Cluster
	result := s.db.WithContext(ctx).Take(&cluster, id)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &cluster, nil
}

func (s *ClusterStore) GetByName(ctx context.Context, name string) (*model.Cluster, error) {
	var cluster model.Cluster
	result := s.db.WithContext(ctx).Where("name = ?", name).Take(&cluster)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &cluster, nil
}

func (s *ClusterStore) List(ctx context.Context) ([]model.Cluster, error) {
	var clusters []model.Cluster
	result := s.db.WithContext(ctx).Order("id").Find(&clusters)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return clusters, nil
}

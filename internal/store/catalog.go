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

type Catalog interface {
	InitialMigration() error
	Upsert(ctx context.Context, entry *model.VersionCatalogEntry) error
	Ensure(ctx context.Context, vendor, deviceModel, mainVersion string) error
	Get(ctx context.Context, vendor, deviceModel, mainVersion string) (*model.VersionCatalogEntry, error)
	List(ctx context.Context, vendor, deviceModel *string) ([]model.VersionCatalogEntry, error)
}

type CatalogStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Catalog interface
var _ Catalog = (*CatalogStore)(nil)

func NewCatalog(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Catalog {
	return &CatalogStore{db: db, mu: mu, log: log}
}

func (s *CatalogStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.VersionCatalogEntry{})
}

func (s *CatalogStore) Upsert(ctx context.Context, entry *model.VersionCatalogEntry) error {
	if entry == nil {
		return fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.CreatedAt = now()
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vendor"}, {Name: "model"}, {Name: "main_version"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"changelog_md", "released_at", "risk_level", "checksum",
		}),
	}).Create(entry)
	return fverrors.ErrorFromGormError(result.Error)
}

// Ensure records that a version was seen in the field without touching any
// metadata an operator may have attached already.
func (s *CatalogStore) Ensure(ctx context.Context, vendor, deviceModel, mainVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := model.VersionCatalogEntry{
		Vendor:      vendor,
		Model:       deviceModel,
		MainVersion: mainVersion,
		CreatedAt:   now(),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	return fverrors.ErrorFromGormError(result.Error)
}

func (s *CatalogStore) Get(ctx context.Context, vendor, deviceModel, mainVersion string) (*model.VersionCatalogEntry, error) {
	var entry model.VersionCatalogEntry
	result := s.db.WithContext(ctx).
		Where("vendor = ? AND model = ? AND main_version = ?", vendor, deviceModel, mainVersion).
		Take(&entry)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &entry, nil
}

func (s *CatalogStore) List(ctx context.Context, vendor, deviceModel *string) ([]model.VersionCatalogEntry, error) {
	query := s.db.WithContext(ctx).Model(&model.VersionCatalogEntry{})
	if vendor != nil {
		query = query.Where("vendor = ?", *vendor)
	}
	if deviceModel != nil {
		query = query.Where("model = ?", *deviceModel)
	}
	var entries []model.VersionCatalogEntry
	if result := query.Order("vendor, model, main_version").Find(&entries); result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return entries, nil
}

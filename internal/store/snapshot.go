package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Snapshot interface {
	InitialMigration() error
	Record(ctx context.Context, snapshot *model.DeviceSnapshot) (int64, error)
	GetLatest(ctx context.Context, deviceID int64) (*model.DeviceSnapshot, error)
	GetLatestSuccess(ctx context.Context, deviceID int64) (*model.DeviceSnapshot, error)
	List(ctx context.Context, params ListSnapshotsParams) ([]model.DeviceSnapshot, error)
	VersionHistory(ctx context.Context, device *model.Device, limit int) ([]VersionHistoryRow, error)
}

type ListSnapshotsParams struct {
	DeviceID    int64
	Limit       int
	Offset      int
	SuccessOnly bool
}

// VersionHistoryRow aggregates every successful sighting of one main
// version, joined against the version catalog when an entry exists.
type VersionHistoryRow struct {
	MainVersion string
	FirstSeen   time.Time
	LastSeen    time.Time
	Samples     int64
	Catalog     *model.VersionCatalogEntry
}

type SnapshotStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Snapshot interface
var _ Snapshot = (*SnapshotStore)(nil)

func NewSnapshot(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Snapshot {
	return &SnapshotStore{db: db, mu: mu, log: log}
}

func (s *SnapshotStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.DeviceSnapshot{})
}

func (s *SnapshotStore) Record(ctx context.Context, snapshot *model.DeviceSnapshot) (int64, error) {
	if snapshot == nil {
		return 0, fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.ObservedAt = now()
	if result := s.db.WithContext(ctx).Create(snapshot); result.Error != nil {
		return 0, fverrors.ErrorFromGormError(result.Error)
	}
	return snapshot.ID, nil
}

func (s *SnapshotStore) GetLatest(ctx context.Context, deviceID int64) (*model.DeviceSnapshot, error) {
	var snapshot model.DeviceSnapshot
	result := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("observed_at DESC, id DESC").
		Take(&snapshot)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) GetLatestSuccess(ctx context.Context, deviceID int64) (*model.DeviceSnapshot, error) {
	var snapshot model.DeviceSnapshot
	result := s.db.WithContext(ctx).
		Where("device_id = ? AND success = ?", deviceID, true).
		Order("observed_at DESC, id DESC").
		Take(&snapshot)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) List(ctx context.Context, params ListSnapshotsParams) ([]model.DeviceSnapshot, error) {
	query := s.db.WithContext(ctx).Model(&model.DeviceSnapshot{}).Where("device_id = ?", params.DeviceID)
	if params.SuccessOnly {
		query = query.Where("success = ?", true)
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var snapshots []model.DeviceSnapshot
	result := query.
		Order("observed_at DESC, id DESC").
		Limit(clampLimit(params.Limit)).
		Offset(offset).
		Find(&snapshots)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return snapshots, nil
}

// VersionHistory groups on min/max snapshot id per version rather than on
// MIN/MAX of the timestamp column: ids are assigned in observation order and
// group results scan portably across dialects.
func (s *SnapshotStore) VersionHistory(ctx context.Context, device *model.Device, limit int) ([]VersionHistoryRow, error) {
	if device == nil {
		return nil, fverrors.ErrResourceIsNil
	}
	var groups []struct {
		MainVersion string
		Samples     int64
		MinID       int64
		MaxID       int64
	}
	err := s.db.WithContext(ctx).Model(&model.DeviceSnapshot{}).
		Select("main_version, COUNT(*) AS samples, MIN(id) AS min_id, MAX(id) AS max_id").
		Where("device_id = ? AND success = ? AND main_version IS NOT NULL AND main_version != ''", device.ID, true).
		Group("main_version").
		Order("max_id DESC").
		Limit(clampLimit(limit)).
		Scan(&groups).Error
	if err != nil {
		return nil, fverrors.ErrorFromGormError(err)
	}
	if len(groups) == 0 {
		return []VersionHistoryRow{}, nil
	}

	ids := make([]int64, 0, len(groups)*2)
	for _, g := range groups {
		ids = append(ids, g.MinID, g.MaxID)
	}
	var stamps []model.DeviceSnapshot
	if err := s.db.WithContext(ctx).Select("id", "observed_at").Where("id IN ?", ids).Find(&stamps).Error; err != nil {
		return nil, fverrors.ErrorFromGormError(err)
	}
	observedAt := make(map[int64]time.Time, len(stamps))
	for _, snap := range stamps {
		observedAt[snap.ID] = snap.ObservedAt
	}

	rows := make([]VersionHistoryRow, 0, len(groups))
	for _, g := range groups {
		row := VersionHistoryRow{
			MainVersion: g.MainVersion,
			FirstSeen:   observedAt[g.MinID],
			LastSeen:    observedAt[g.MaxID],
			Samples:     g.Samples,
		}
		var entry model.VersionCatalogEntry
		err := s.db.WithContext(ctx).
			Where("vendor = ? AND model = ? AND main_version = ?", device.Vendor, device.Model, g.MainVersion).
			Take(&entry).Error
		if err == nil {
			row.Catalog = &entry
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fverrors.ErrorFromGormError(err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// clampLimit keeps list sizes within the bounds the API promises.
func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 500 {
		return 500
	}
	return limit
}

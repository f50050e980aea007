package store

import (
	"context"
	"errors"
	"sync"

	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Device interface {
	InitialMigration() error
	Create(ctx context.Context, device *model.Device) (int64, error)
	Get(ctx context.Context, id int64) (*model.Device, error)
	GetByKey(ctx context.Context, deviceKey string) (*model.Device, error)
	List(ctx context.Context, params ListDevicesParams) ([]model.Device, error)
	UpsertByKey(ctx context.Context, device *model.Device) (int64, string, error)
	Update(ctx context.Context, id int64, update DeviceUpdate) error
	UpdateState(ctx context.Context, id int64, state string) error
	Delete(ctx context.Context, id int64) error
}

type ListDevicesParams struct {
	ClusterID   *int64
	EnabledOnly bool
}

// DeviceUpdate applies the non-nil fields. Auth is a pair: when SetAuth is
// true both auth_type and auth_token are written, a nil token clearing it.
type DeviceUpdate struct {
	ClusterID *int64
	DeviceKey *string
	Vendor    *string
	Model     *string
	LineNo    *string
	IP        *string
	Port      *int
	Protocol  *string
	Path      *string
	Enabled   *bool
	SetAuth   bool
	AuthType  string
	AuthToken *string
}

const (
	DeviceActionCreated = "created"
	DeviceActionUpdated = "updated"
)

type DeviceStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Device interface
var _ Device = (*DeviceStore)(nil)

func NewDevice(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Device {
	return &DeviceStore{db: db, mu: mu, log: log}
}

func (s *DeviceStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Device{})
}

func (s *DeviceStore) Create(ctx context.Context, device *model.Device) (int64, error) {
	if device == nil {
		return 0, fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	device.CreatedAt = now()
	device.UpdatedAt = device.CreatedAt
	if result := s.db.WithContext(ctx).Create(device); result.Error != nil {
		return 0, fverrors.ErrorFromGormError(result.Error)
	}
	return device.ID, nil
}

func (s *DeviceStore) Get(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	result := s.db.WithContext(ctx).Take(&device, id)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &device, nil
}

func (s *DeviceStore) GetByKey(ctx context.Context, deviceKey string) (*model.Device, error) {
	var device model.Device
	result := s.db.WithContext(ctx).Where("device_key = ?", deviceKey).Take(&device)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &device, nil
}

func (s *DeviceStore) List(ctx context.Context, params ListDevicesParams) ([]model.Device, error) {
	query := s.db.WithContext(ctx).Model(&model.Device{})
	if params.ClusterID != nil {
		query = query.Where("cluster_id = ?", *params.ClusterID)
	}
	if params.EnabledOnly {
		query = query.Where("enabled = ?", true)
	}
	var devices []model.Device
	if result := query.Order("id").Find(&devices); result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return devices, nil
}

// UpsertByKey creates the device or, when the serial is already registered,
// overwrites its addressing and identity fields. The returned action is
// either "created" or "updated".
func (s *DeviceStore) UpsertByKey(ctx context.Context, device *model.Device) (int64, string, error) {
	if device == nil {
		return 0, "", fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing model.Device
	err := s.db.WithContext(ctx).Where("device_key = ?", device.DeviceKey).Take(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", fverrors.ErrorFromGormError(err)
		}
		device.CreatedAt = now()
		device.UpdatedAt = device.CreatedAt
		if result := s.db.WithContext(ctx).Create(device); result.Error != nil {
			return 0, "", fverrors.ErrorFromGormError(result.Error)
		}
		return device.ID, DeviceActionCreated, nil
	}

	updates := map[string]any{
		"cluster_id": device.ClusterID,
		"vendor":     device.Vendor,
		"model":      device.Model,
		"line_no":    device.LineNo,
		"ip":         device.IP,
		"port":       device.Port,
		"protocol":   device.Protocol,
		"path":       device.Path,
		"auth_type":  device.AuthType,
		"auth_token": device.AuthToken,
		"enabled":    device.Enabled,
		"updated_at": now(),
	}
	result := s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", existing.ID).Updates(updates)
	if result.Error != nil {
		return 0, "", fverrors.ErrorFromGormError(result.Error)
	}
	return existing.ID, DeviceActionUpdated, nil
}

func (s *DeviceStore) Update(ctx context.Context, id int64, update DeviceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := map[string]any{}
	if update.ClusterID != nil {
		updates["cluster_id"] = *update.ClusterID
	}
	if update.DeviceKey != nil {
		updates["device_key"] = *update.DeviceKey
	}
	if update.Vendor != nil {
		updates["vendor"] = *update.Vendor
	}
	if update.Model != nil {
		updates["model"] = *update.Model
	}
	if update.LineNo != nil {
		updates["line_no"] = *update.LineNo
	}
	if update.IP != nil {
		updates["ip"] = *update.IP
	}
	if update.Port != nil {
		updates["port"] = *update.Port
	}
	if update.Protocol != nil {
		updates["protocol"] = *update.Protocol
	}
	if update.Path != nil {
		updates["path"] = *update.Path
	}
	if update.Enabled != nil {
		updates["enabled"] = *update.Enabled
	}
	if update.SetAuth {
		updates["auth_type"] = update.AuthType
		updates["auth_token"] = update.AuthToken
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = now()

	result := s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fverrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fverrors.ErrResourceNotFound
	}
	return nil
}

func (s *DeviceStore) UpdateState(ctx context.Context, id int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	result := s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(map[string]any{
		"last_state":    state,
		"last_state_at": ts,
		"updated_at":    ts,
	})
	return fverrors.ErrorFromGormError(result.Error)
}

func (s *DeviceStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Delete(&model.Device{}, id)
	if result.Error != nil {
		return fverrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fverrors.ErrResourceNotFound
	}
	return nil
}

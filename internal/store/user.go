package store

import (
	"context"
	"sync"

	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type User interface {
	InitialMigration() error
	Create(ctx context.Context, user *model.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	HasAny(ctx context.Context) (bool, error)
	UpdatePassword(ctx context.Context, username, saltB64, hashB64 string) error
}

type UserStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to User interface
var _ User = (*UserStore)(nil)

func NewUser(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) User {
	return &UserStore{db: db, mu: mu, log: log}
}

func (s *UserStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.User{})
}

func (s *UserStore) Create(ctx context.Context, user *model.User) (int64, error) {
	if user == nil {
		return 0, fverrors.ErrResourceIsNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user.CreatedAt = now()
	if result := s.db.WithContext(ctx).Create(user); result.Error != nil {
		return 0, fverrors.ErrorFromGormError(result.Error)
	}
	return user.ID, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	result := s.db.WithContext(ctx).Where("username = ?", username).Take(&user)
	if result.Error != nil {
		return nil, fverrors.ErrorFromGormError(result.Error)
	}
	return &user, nil
}

func (s *UserStore) HasAny(ctx context.Context) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&model.User{}).Limit(1).Count(&count)
	if result.Error != nil {
		return false, fverrors.ErrorFromGormError(result.Error)
	}
	return count > 0, nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, username, saltB64, hashB64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Updates(map[string]any{
		"password_salt": saltB64,
		"password_hash": hashB64,
	})
	if result.Error != nil {
		return fverrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fverrors.ErrResourceNotFound
	}
	return nil
}

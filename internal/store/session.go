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

type Session interface {
	InitialMigration() error
	Create(ctx context.Context, userID int64, token string, ttl time.Duration) error
	// Resolve maps a token to its user, deleting the session and reporting
	// not-found when it has expired. Each successful resolution touches
	// last_seen_at.
	Resolve(ctx context.Context, token string) (*model.User, error)
	Delete(ctx context.Context, token string) error
}

type SessionStore struct {
	db  *gorm.DB
	mu  *sync.Mutex
	log logrus.FieldLogger
}

// Make sure we conform to Session interface
var _ Session = (*SessionStore)(nil)

func NewSession(db *gorm.DB, mu *sync.Mutex, log logrus.FieldLogger) Session {
	return &SessionStore{db: db, mu: mu, log: log}
}

func (s *SessionStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Session{})
}

func (s *SessionStore) Create(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	session := model.Session{
		UserID:     userID,
		Token:      token,
		CreatedAt:  ts,
		ExpiresAt:  ts.Add(ttl),
		LastSeenAt: ts,
	}
	result := s.db.WithContext(ctx).Create(&session)
	return fverrors.ErrorFromGormError(result.Error)
}

func (s *SessionStore) Resolve(ctx context.Context, token string) (*model.User, error) {
	var session model.Session
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&session).Error
	if err != nil {
		return nil, fverrors.ErrorFromGormError(err)
	}
	if !now().Before(session.ExpiresAt) {
		if err := s.Delete(ctx, token); err != nil && !errors.Is(err, fverrors.ErrResourceNotFound) {
			return nil, err
		}
		return nil, fverrors.ErrResourceNotFound
	}

	var user model.User
	if err := s.db.WithContext(ctx).Take(&user, session.UserID).Error; err != nil {
		return nil, fverrors.ErrorFromGormError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.WithContext(ctx).Model(&model.Session{}).Where("token = ?", token).
		Update("last_seen_at", now()).Error
	if err != nil {
		return nil, fverrors.ErrorFromGormError(err)
	}
	return &user, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Where("token = ?", token).Delete(&model.Session{})
	if result.Error != nil {
		return fverrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fverrors.ErrResourceNotFound
	}
	return nil
}

package fverrors

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrResourceIsNil    = errors.New("resource is nil")
	ErrResourceNotFound = errors.New("resource not found")
	// ErrDuplicateKey is returned when a unique constraint rejects a write,
	// e.g. two clusters with the same name or two devices with the same serial.
	ErrDuplicateKey = errors.New("a resource with this key already exists")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
)

// ErrorFromGormError translates gorm errors into fleetver sentinel errors.
func ErrorFromGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrResourceNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetver/fleetver/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	var dia gorm.Dialector

	if cfg.Database.Type == "pgsql" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d",
			cfg.Database.Hostname,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Name,
			cfg.Database.Port,
		)
		dia = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(cfg.Database.File); dir != "." {
			if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
				return nil, fmt.Errorf("creating database directory: %v", err)
			}
		}
		// _fk enforces the ON DELETE CASCADE constraints per connection.
		dia = sqlite.Open(cfg.Database.File + "?_fk=1&_busy_timeout=5000")
	}

	newDB, err := gorm.Open(dia, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Errorf("failed to connect database: %v", err)
		return nil, err
	}

	sqlDB, err := newDB.DB()
	if err != nil {
		log.Errorf("failed to configure connections: %v", err)
		return nil, err
	}
	if cfg.Database.Type == "pgsql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	} else {
		// sqlite allows one writer; a single connection sidesteps
		// SQLITE_BUSY under concurrent polls.
		sqlDB.SetMaxOpenConns(1)
	}

	return newDB, nil
}

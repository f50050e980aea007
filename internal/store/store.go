package store

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	Cluster() Cluster
	Device() Device
	Baseline() Baseline
	FileRule() FileRule
	Catalog() Catalog
	Snapshot() Snapshot
	Observation() Observation
	Event() Event
	User() User
	Session() Session
	Status(ctx context.Context) ([]StatusEntry, error)
	InitialMigration() error
	Close() error
}

type DataStore struct {
	cluster     Cluster
	device      Device
	baseline    Baseline
	fileRule    FileRule
	catalog     Catalog
	snapshot    Snapshot
	observation Observation
	event       Event
	user        User
	session     Session

	db *gorm.DB
}

// NewStore wires the per-entity stores around one writer mutex so mutating
// operations are serialized process-wide.
func NewStore(db *gorm.DB, log logrus.FieldLogger) Store {
	mu := &sync.Mutex{}
	return &DataStore{
		cluster:     NewCluster(db, mu, log),
		device:      NewDevice(db, mu, log),
		baseline:    NewBaseline(db, mu, log),
		fileRule:    NewFileRule(db, mu, log),
		catalog:     NewCatalog(db, mu, log),
		snapshot:    NewSnapshot(db, mu, log),
		observation: NewObservation(db, mu, log),
		event:       NewEvent(db, mu, log),
		user:        NewUser(db, mu, log),
		session:     NewSession(db, mu, log),
		db:          db,
	}
}

func (s *DataStore) Cluster() Cluster {
	return s.cluster
}

func (s *DataStore) Device() Device {
	return s.device
}

func (s *DataStore) Baseline() Baseline {
	return s.baseline
}

func (s *DataStore) FileRule() FileRule {
	return s.fileRule
}

func (s *DataStore) Catalog() Catalog {
	return s.catalog
}

func (s *DataStore) Snapshot() Snapshot {
	return s.snapshot
}

func (s *DataStore) Observation() Observation {
	return s.observation
}

func (s *DataStore) Event() Event {
	return s.event
}

func (s *DataStore) User() User {
	return s.user
}

func (s *DataStore) Session() Session {
	return s.session
}

func (s *DataStore) InitialMigration() error {
	if err := s.Cluster().InitialMigration(); err != nil {
		return err
	}
	if err := s.Device().InitialMigration(); err != nil {
		return err
	}
	if err := s.Baseline().InitialMigration(); err != nil {
		return err
	}
	if err := s.FileRule().InitialMigration(); err != nil {
		return err
	}
	if err := s.Catalog().InitialMigration(); err != nil {
		return err
	}
	if err := s.Snapshot().InitialMigration(); err != nil {
		return err
	}
	if err := s.Observation().InitialMigration(); err != nil {
		return err
	}
	if err := s.Event().InitialMigration(); err != nil {
		return err
	}
	if err := s.User().InitialMigration(); err != nil {
		return err
	}
	return s.Session().InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// now is the single clock for persisted timestamps. Sub-second precision is
// dropped so the values survive a round trip through any dialect unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

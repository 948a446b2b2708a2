package storage

import (
	"context"
	"fmt"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/models"
)

// Storage is the contract for the relational system-of-record. Exactly one
// row exists per date: UpsertRecord creates it on first sighting and updates
// it on every re-sighting.
type Storage interface {
	UpsertRecord(ctx context.Context, rec models.Record) error
	GetRecordByDate(ctx context.Context, date string) (*models.PersistedRecord, error)
	GetRecords(ctx context.Context, limit, offset int) ([]models.PersistedRecord, error)
	UpdateRunStatus(ctx context.Context, status models.RunStatus) error
	GetRunStatus(ctx context.Context) (*models.RunStatus, error)
	Close() error
}

// PersistenceError wraps a relational-store failure. It is fatal for the
// run: the record is not considered durably saved.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewStorage creates a storage instance based on configuration.
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "postgresql":
		return NewPostgreSQLStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(cfg)
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

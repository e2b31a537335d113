package store

import "github.com/starford/spotter/internal/models"

// RecordStore defines the durable record operations the engine relies on.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type RecordStore interface {
	InsertBatch(records []models.Record) error
	Insert(r models.Record) error
	Delete(path string) error
	DeleteTree(path string) ([]string, error)
	DeleteAll() error
	LoadAll() ([]models.Record, error)
	Stats() (Stats, error)
	Fingerprint() (string, error)
	SetFingerprint(fp string) error
	Close() error
}

// Stats summarizes the store contents.
type Stats struct {
	Count int `json:"count"`
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)

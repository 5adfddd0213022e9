package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrStoreClosed is returned by every operation on a closed store.
	ErrStoreClosed = errors.New("address store is closed")
	// ErrAlreadyIngested is returned when a bulk load is started against a store
	// that already carries a completed, non-empty snapshot.
	ErrAlreadyIngested = errors.New("address store already ingested")
)

// AddressRecord is one row of the authoritative dataset.
type AddressRecord struct {
	Address    string
	Balance    sql.NullInt64
	SnapshotID uuid.UUID
}

// AddressReader is the read-only view shared by the filter builder and every worker.
type AddressReader interface {
	// Lookup returns the record stored under key. ok is false when the key is absent.
	Lookup(ctx context.Context, key string) (rec AddressRecord, ok bool, err error)
	// ScanKeys streams every stored key to fn. A non-nil error from fn stops the scan.
	ScanKeys(ctx context.Context, fn func(key string) error) error
	// Count returns the number of stored keys.
	Count(ctx context.Context) (int64, error)
	// Snapshot returns the completed ingestion marker, or nil when ingestion never finished.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// AddressStore is the authoritative store as seen by the ingestor.
type AddressStore interface {
	AddressReader
	InitSchema(ctx context.Context) error
	NewBulkLoader(ctx context.Context, batchSize int) (BulkLoader, error)
	Close() error
}

// BulkLoader inserts the dataset inside a single transaction.
type BulkLoader interface {
	Insert(rec AddressRecord) error
	// Commit flushes pending rows, commits the load, deduplicates keys, builds the
	// lookup index and writes the snapshot marker.
	Commit(ctx context.Context, snapshot *Snapshot) error
	Rollback() error
	// Inserted returns the number of rows handed to Insert so far.
	Inserted() int64
}

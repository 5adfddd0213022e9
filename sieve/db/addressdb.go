package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

const lookupQuery = "SELECT balance FROM addresses WHERE address = ? LIMIT 1"

// AddressDB is the libsql-backed authoritative store. After ingestion it is
// only used through AddressReader and is safe for concurrent lookups.
type AddressDB struct {
	db     *sql.DB
	logger zerolog.Logger

	mu         sync.RWMutex
	lookupStmt *sql.Stmt
	snapshotID uuid.UUID
	closed     bool
}

// ConnectToDB opens the libsql database at path, creating parent directories.
func ConnectToDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("could not create database directory: %w", err)
			}
		}
		dsn = "file:" + path
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return db, nil
}

// NewAddressDB opens or creates the store at path and ensures its schema.
func NewAddressDB(ctx context.Context, path string, logger zerolog.Logger) (*AddressDB, error) {
	db, err := ConnectToDB(path)
	if err != nil {
		return nil, err
	}

	store := &AddressDB{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store.logger.Debug().Str("path", path).Msg("address store opened")
	return store, nil
}

// SetMaxOpenConns bounds the connection pool, typically to the worker count.
func (a *AddressDB) SetMaxOpenConns(n int) {
	if n > 0 {
		a.db.SetMaxOpenConns(n)
		a.db.SetMaxIdleConns(n)
	}
}

// InitSchema sets up the address and snapshot tables.
func (a *AddressDB) InitSchema(ctx context.Context) error {
	createTables := []string{
		`CREATE TABLE IF NOT EXISTS addresses (
			address TEXT NOT NULL,
			balance INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY UNIQUE,
			taken_at TEXT NOT NULL,
			source TEXT,
			records INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			key_suffix INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, query := range createTables {
		if _, err := a.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Lookup implements AddressReader.Lookup.
func (a *AddressDB) Lookup(ctx context.Context, key string) (AddressRecord, bool, error) {
	stmt, snapshotID, err := a.lookupStatement(ctx)
	if err != nil {
		return AddressRecord{}, false, err
	}

	rec := AddressRecord{Address: key, SnapshotID: snapshotID}
	err = stmt.QueryRowContext(ctx, key).Scan(&rec.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return AddressRecord{}, false, nil
	}
	if err != nil {
		return AddressRecord{}, false, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	return rec, true, nil
}

// lookupStatement prepares the point-lookup statement once and shares it.
func (a *AddressDB) lookupStatement(ctx context.Context) (*sql.Stmt, uuid.UUID, error) {
	a.mu.RLock()
	stmt, id, closed := a.lookupStmt, a.snapshotID, a.closed
	a.mu.RUnlock()
	if closed {
		return nil, uuid.Nil, ErrStoreClosed
	}
	if stmt != nil {
		return stmt, id, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, uuid.Nil, ErrStoreClosed
	}
	if a.lookupStmt == nil {
		prepared, err := a.db.PrepareContext(ctx, lookupQuery)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("failed to prepare lookup: %w", err)
		}
		a.lookupStmt = prepared
	}
	return a.lookupStmt, a.snapshotID, nil
}

// ScanKeys implements AddressReader.ScanKeys.
func (a *AddressDB) ScanKeys(ctx context.Context, fn func(key string) error) error {
	if a.isClosed() {
		return ErrStoreClosed
	}

	rows, err := a.db.QueryContext(ctx, "SELECT address FROM addresses")
	if err != nil {
		return fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("failed to scan address: %w", err)
		}
		if err := fn(key); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

// Count implements AddressReader.Count.
func (a *AddressDB) Count(ctx context.Context) (int64, error) {
	if a.isClosed() {
		return 0, ErrStoreClosed
	}
	var n int64
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM addresses").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count addresses: %w", err)
	}
	return n, nil
}

// Snapshot implements AddressReader.Snapshot.
func (a *AddressDB) Snapshot(ctx context.Context) (*Snapshot, error) {
	if a.isClosed() {
		return nil, ErrStoreClosed
	}

	row := a.db.QueryRowContext(ctx,
		"SELECT id, taken_at, source, records, skipped, key_suffix FROM snapshots ORDER BY taken_at DESC LIMIT 1")

	var snapshot Snapshot
	var id, takenAt string
	var source sql.NullString

	err := row.Scan(&id, &takenAt, &source, &snapshot.Records, &snapshot.Skipped, &snapshot.KeySuffix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snapshot.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot ID: %w", err)
	}
	snapshot.TakenAt, err = time.Parse(time.RFC3339, takenAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}
	snapshot.Source = source.String

	a.mu.Lock()
	a.snapshotID = snapshot.ID
	a.mu.Unlock()

	return &snapshot, nil
}

// NewBulkLoader implements AddressStore.NewBulkLoader.
func (a *AddressDB) NewBulkLoader(ctx context.Context, batchSize int) (BulkLoader, error) {
	existing, err := a.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if existing.Ingested() {
		return nil, ErrAlreadyIngested
	}
	return newBatchLoader(ctx, a, batchSize)
}

// Close closes the prepared statement and the database connection.
func (a *AddressDB) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.lookupStmt != nil {
		_ = a.lookupStmt.Close()
		a.lookupStmt = nil
	}
	return a.db.Close()
}

func (a *AddressDB) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

func (a *AddressDB) setSnapshotID(id uuid.UUID) {
	a.mu.Lock()
	a.snapshotID = id
	a.mu.Unlock()
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// maxBatchRows keeps a multi-row insert under SQLite's 999 bound-parameter limit.
const maxBatchRows = 499

// batchLoader buffers rows and writes them as multi-row inserts inside one
// transaction. The snapshot marker is written only after the index exists,
// so a crash at any point leaves a store without a marker that the next run reloads.
type batchLoader struct {
	ctx       context.Context
	store     *AddressDB
	tx        *sql.Tx
	pending   []AddressRecord
	batchSize int
	inserted  int64
	flushed   int64
	start     time.Time
	done      bool
}

func newBatchLoader(ctx context.Context, store *AddressDB, batchSize int) (*batchLoader, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	batchSize = min(batchSize, maxBatchRows)

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Rows without a snapshot marker come from an interrupted load. An empty
	// snapshot is dropped too so the reload replaces it.
	for _, stmt := range []string{
		"DROP INDEX IF EXISTS idx_addresses_address",
		"DELETE FROM addresses",
		"DELETE FROM snapshots",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to reset partial load: %w", err)
		}
	}

	return &batchLoader{
		ctx:       ctx,
		store:     store,
		tx:        tx,
		pending:   make([]AddressRecord, 0, batchSize),
		batchSize: batchSize,
		start:     time.Now(),
	}, nil
}

// Insert implements BulkLoader.Insert.
func (bl *batchLoader) Insert(rec AddressRecord) error {
	if bl.done {
		return fmt.Errorf("bulk loader already finished")
	}
	bl.pending = append(bl.pending, rec)
	bl.inserted++
	if len(bl.pending) >= bl.batchSize {
		return bl.flush()
	}
	return nil
}

// Inserted implements BulkLoader.Inserted.
func (bl *batchLoader) Inserted() int64 {
	return bl.inserted
}

// flush executes all buffered rows as one statement.
func (bl *batchLoader) flush() error {
	if len(bl.pending) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO addresses (address, balance) VALUES ")
	args := make([]interface{}, 0, len(bl.pending)*2)
	for i, rec := range bl.pending {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?)")
		args = append(args, rec.Address, rec.Balance)
	}

	if _, err := bl.tx.ExecContext(bl.ctx, sb.String(), args...); err != nil {
		bl.store.logger.Error().Err(err).Int("rows", len(bl.pending)).Msg("batch insert failed")
		return fmt.Errorf("batch insert failed: %w", err)
	}

	bl.flushed += int64(len(bl.pending))
	bl.pending = bl.pending[:0] // Clear the slice but keep capacity

	if bl.flushed%(int64(bl.batchSize)*1000) < int64(bl.batchSize) {
		elapsed := time.Since(bl.start)
		bl.store.logger.Debug().
			Int64("rows", bl.flushed).
			Dur("elapsed", elapsed).
			Float64("rows_per_sec", float64(bl.flushed)/elapsed.Seconds()).
			Msg("bulk load progress")
	}
	return nil
}

// Commit implements BulkLoader.Commit.
func (bl *batchLoader) Commit(ctx context.Context, snapshot *Snapshot) error {
	if bl.done {
		return fmt.Errorf("bulk loader already finished")
	}
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	if err := bl.flush(); err != nil {
		bl.Rollback()
		return err
	}
	bl.done = true
	if err := bl.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk load: %w", err)
	}

	tx, err := bl.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback() // Will be a no-op if transaction is committed

	// Keep the first occurrence of a repeated key so the unique index can be built.
	res, err := tx.ExecContext(ctx,
		"DELETE FROM addresses WHERE rowid NOT IN (SELECT MIN(rowid) FROM addresses GROUP BY address)")
	if err != nil {
		return fmt.Errorf("failed to remove duplicate addresses: %w", err)
	}
	duplicates, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_addresses_address ON addresses(address)"); err != nil {
		return fmt.Errorf("failed to build lookup index: %w", err)
	}

	var records int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM addresses").Scan(&records); err != nil {
		return fmt.Errorf("failed to count addresses: %w", err)
	}
	snapshot.Records = records

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, taken_at, source, records, skipped, key_suffix) VALUES (?, ?, ?, ?, ?, ?)",
		snapshot.ID.String(),
		snapshot.TakenAt.Format(time.RFC3339),
		snapshot.Source,
		snapshot.Records,
		snapshot.Skipped,
		snapshot.KeySuffix,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index transaction: %w", err)
	}
	bl.store.setSnapshotID(snapshot.ID)

	bl.store.logger.Info().
		Int64("records", records).
		Int64("duplicates", duplicates).
		Dur("elapsed", time.Since(bl.start)).
		Msg("bulk load committed")
	return nil
}

// Rollback implements BulkLoader.Rollback. It is a no-op after Commit.
func (bl *batchLoader) Rollback() error {
	if bl.done {
		return nil
	}
	bl.done = true
	return bl.tx.Rollback()
}

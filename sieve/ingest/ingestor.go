package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ZanzyTHEbar/keysieve/sieve/db"

	"github.com/rs/zerolog"
)

var (
	// ErrSourceMissing is returned when the dataset file does not exist and the
	// store holds no completed snapshot.
	ErrSourceMissing = errors.New("address source does not exist")
	// ErrKeyPolicyMismatch is returned when the store was ingested with a
	// different key suffix length than the one configured.
	ErrKeyPolicyMismatch = errors.New("store key policy does not match configuration")
)

const maxLineBytes = 1 << 20

// Options controls how a dataset is parsed and keyed.
type Options struct {
	Delimiter    string
	Prefixes     []string
	SuffixLength int
	TrackBalance bool
	// AllowMissing selects degraded mode: a missing source produces an empty
	// snapshot instead of an error.
	AllowMissing bool
	BatchSize    int
}

// Stats summarizes one ingestion run.
type Stats struct {
	Lines     int64
	Loaded    int64
	Malformed int64
	Filtered  int64
	Ignored   int64
	Elapsed   time.Duration
}

// Ingestor populates the authoritative store from the raw address list exactly once.
type Ingestor struct {
	store  db.AddressStore
	opts   Options
	parser LineParser
	prefix *PrefixPolicy
	keys   db.KeyPolicy
	logger zerolog.Logger
	stats  Stats
}

// New creates an Ingestor writing into store.
func New(store db.AddressStore, opts Options, logger zerolog.Logger) *Ingestor {
	if opts.Delimiter == "" {
		opts.Delimiter = "\t"
	}
	return &Ingestor{
		store:  store,
		opts:   opts,
		parser: LineParser{Delimiter: opts.Delimiter, TrackBalance: opts.TrackBalance},
		prefix: NewPrefixPolicy(opts.Prefixes),
		keys:   db.KeyPolicy{SuffixLength: opts.SuffixLength},
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// Stats returns the counters of the last Ingest call.
func (in *Ingestor) Stats() Stats {
	return in.stats
}

// Ingest loads path into the store unless a completed, non-empty snapshot
// already exists, in which case the existing snapshot is returned untouched.
// An empty snapshot is replaced by a fresh load.
func (in *Ingestor) Ingest(ctx context.Context, path string) (*db.Snapshot, error) {
	if err := in.store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	existing, err := in.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store snapshot: %w", err)
	}
	if existing != nil && !existing.Ingested() {
		in.logger.Info().
			Str("snapshot", existing.ID.String()).
			Msg("store snapshot is empty, reloading")
	}
	if existing.Ingested() {
		if existing.KeySuffix != in.opts.SuffixLength {
			return nil, fmt.Errorf("%w: store=%d config=%d", ErrKeyPolicyMismatch, existing.KeySuffix, in.opts.SuffixLength)
		}
		in.logger.Info().
			Str("snapshot", existing.ID.String()).
			Int64("records", existing.Records).
			Msg("store already ingested, skipping load")
		return existing, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if !in.opts.AllowMissing {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		in.logger.Warn().Str("path", path).Msg("address source missing, continuing with an empty dataset")
		return in.load(ctx, path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open address source %s: %w", path, err)
	}
	defer file.Close()

	return in.load(ctx, path, bufio.NewScanner(file))
}

// load runs one bulk transaction over scanner. A nil scanner loads nothing.
func (in *Ingestor) load(ctx context.Context, path string, scanner *bufio.Scanner) (*db.Snapshot, error) {
	start := time.Now()
	in.stats = Stats{}

	loader, err := in.store.NewBulkLoader(ctx, in.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to start bulk load: %w", err)
	}
	defer loader.Rollback() // Will be a no-op if the load is committed

	if scanner != nil {
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			in.stats.Lines++
			if in.stats.Lines%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if err := in.insertLine(loader, scanner.Text()); err != nil {
				return nil, err
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read address source %s at line %d: %w", path, in.stats.Lines+1, err)
		}
	}

	snapshot := db.NewSnapshot(path, in.opts.SuffixLength)
	snapshot.Skipped = in.stats.Malformed
	if err := loader.Commit(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to commit address load: %w", err)
	}

	in.stats.Loaded = loader.Inserted()
	in.stats.Elapsed = time.Since(start)

	in.logger.Info().
		Str("snapshot", snapshot.ID.String()).
		Int64("lines", in.stats.Lines).
		Int64("records", snapshot.Records).
		Int64("malformed", in.stats.Malformed).
		Int64("filtered", in.stats.Filtered).
		Strs("prefixes", in.prefix.Prefixes()).
		Dur("elapsed", in.stats.Elapsed).
		Msg("address source ingested")

	return snapshot, nil
}

func (in *Ingestor) insertLine(loader db.BulkLoader, raw string) error {
	line, err := in.parser.Parse(raw)
	switch {
	case errors.Is(err, errIgnoredLine):
		in.stats.Ignored++
		return nil
	case errors.Is(err, ErrMalformedLine):
		in.stats.Malformed++
		in.logger.Debug().Int64("line", in.stats.Lines).Err(err).Msg("skipping malformed line")
		return nil
	case err != nil:
		return err
	}

	if !in.prefix.Allows(line.Address) {
		in.stats.Filtered++
		return nil
	}

	return loader.Insert(db.AddressRecord{
		Address: in.keys.Key(line.Address),
		Balance: line.Balance,
	})
}

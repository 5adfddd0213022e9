package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/keysieve/sieve/db"

	"github.com/rs/zerolog"
)

// overfillTolerance is how far the scanned key count may exceed the expected
// count before the builder warns that the false positive rate will degrade.
const overfillTolerance = 1.10

// Options sizes a filter build.
type Options struct {
	// ExpectedItems is the planned key count. Zero uses the snapshot record count.
	ExpectedItems     uint64
	FalsePositiveRate float64
}

// Build creates a filter containing every key reader yields from ScanKeys.
func Build(ctx context.Context, reader db.AddressReader, opts Options, logger zerolog.Logger) (*Filter, error) {
	logger = logger.With().Str("component", "filter").Logger()
	start := time.Now()

	n := opts.ExpectedItems
	if n == 0 {
		count, err := expectedFromStore(ctx, reader)
		if err != nil {
			return nil, err
		}
		n = count
	}

	f, err := New(n, opts.FalsePositiveRate)
	if err != nil {
		return nil, err
	}

	err = reader.ScanKeys(ctx, func(key string) error {
		f.Add(key)
		if f.count%8192 == 0 {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan store keys: %w", err)
	}

	if float64(f.count) > float64(n)*overfillTolerance {
		logger.Warn().
			Uint64("expected", n).
			Uint64("actual", f.count).
			Float64("estimatedFalsePositiveRate", f.EstimatedFalsePositiveRate()).
			Msg("store holds more keys than the filter was sized for")
	}

	logger.Info().
		Uint64("keys", f.count).
		Uint64("bits", f.m).
		Uint32("k", f.k).
		Float64("fillRatio", f.FillRatio()).
		Float64("estimatedFalsePositiveRate", f.EstimatedFalsePositiveRate()).
		Dur("elapsed", time.Since(start)).
		Msg("filter built")

	return f, nil
}

func expectedFromStore(ctx context.Context, reader db.AddressReader) (uint64, error) {
	snap, err := reader.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read store snapshot: %w", err)
	}
	if snap != nil {
		return uint64(max(snap.Records, 0)), nil
	}
	count, err := reader.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count store keys: %w", err)
	}
	return uint64(max(count, 0)), nil
}

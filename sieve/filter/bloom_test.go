package filter

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/keysieve/sieve/db"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimalParams(t *testing.T) {
	tests := []struct {
		name  string
		n     uint64
		rate  float64
		wantM uint64
		wantK uint32
	}{
		{name: "one percent", n: 1000, rate: 0.01, wantM: 9586, wantK: 7},
		{name: "one in a million", n: 1000, rate: 0.000001, wantM: 28756, wantK: 20},
		{name: "empty sized as one", n: 0, rate: 0.01, wantM: 10, wantK: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, k, err := OptimalParams(tt.n, tt.rate)
			require.NoError(t, err)
			assert.Equal(t, tt.wantM, m)
			assert.Equal(t, tt.wantK, k)
		})
	}

	for _, rate := range []float64{0, 1, -0.5, 2} {
		_, _, err := OptimalParams(10, rate)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate %v", rate)
	}
}

func TestFilterHasNoFalseNegatives(t *testing.T) {
	f, err := New(10000, 0.001)
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		f.Add(fmt.Sprintf("1member%06d", i))
	}
	for i := 0; i < 10000; i++ {
		require.True(t, f.Test(fmt.Sprintf("1member%06d", i)), "key %d", i)
	}
	assert.Equal(t, uint64(10000), f.Count())
}

func TestFilterFalsePositiveRate(t *testing.T) {
	const (
		n      = 1000
		rate   = 0.000001
		lookups = 1000000
	)
	f, err := New(n, rate)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		f.Add(fmt.Sprintf("1member%06d", i))
	}

	positives := 0
	for i := 0; i < lookups; i++ {
		if f.Test(fmt.Sprintf("1absent%07d", i)) {
			positives++
		}
	}

	// Observed rate must stay within an order of magnitude of the target.
	assert.LessOrEqual(t, positives, int(lookups*rate*10))
	assert.InDelta(t, rate, f.EstimatedFalsePositiveRate(), rate)
}

func TestEmptyFilter(t *testing.T) {
	f, err := New(0, 0.01)
	require.NoError(t, err)
	assert.False(t, f.Test("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.Equal(t, 0.0, f.EstimatedFalsePositiveRate())
	assert.Equal(t, 0.0, f.FillRatio())
}

func TestBuildFromStore(t *testing.T) {
	var records []db.AddressRecord
	for i := 0; i < 500; i++ {
		records = append(records, db.AddressRecord{Address: fmt.Sprintf("1member%06d", i)})
	}
	store := db.NewMockAddressStoreWith(records...)

	f, err := Build(context.Background(), store, Options{FalsePositiveRate: 0.0001}, zerolog.Nop())
	require.NoError(t, err)

	expected, _, err := OptimalParams(500, 0.0001)
	require.NoError(t, err)
	assert.Equal(t, expected, f.Cap(), "sized from the snapshot record count")
	assert.Equal(t, uint64(500), f.Count())
	for _, rec := range records {
		assert.True(t, f.Test(rec.Address))
	}
	assert.Zero(t, store.Lookups())
}

func TestBuildWarnsWhenOverfilled(t *testing.T) {
	var records []db.AddressRecord
	for i := 0; i < 200; i++ {
		records = append(records, db.AddressRecord{Address: fmt.Sprintf("1member%06d", i)})
	}
	store := db.NewMockAddressStoreWith(records...)

	var buf bytes.Buffer
	f, err := Build(context.Background(), store, Options{ExpectedItems: 100, FalsePositiveRate: 0.01}, zerolog.New(&buf))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "store holds more keys than the filter was sized for")
	for _, rec := range records {
		assert.True(t, f.Test(rec.Address))
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	var records []db.AddressRecord
	for i := 0; i < 10000; i++ {
		records = append(records, db.AddressRecord{Address: fmt.Sprintf("1member%06d", i)})
	}
	store := db.NewMockAddressStoreWith(records...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, store, Options{FalsePositiveRate: 0.01}, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheRoundTrip(t *testing.T) {
	f, err := New(100, 0.01)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		f.Add(fmt.Sprintf("1member%06d", i))
	}

	id := uuid.New()
	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf, id, Options{ExpectedItems: 100, FalsePositiveRate: 0.01}))

	got, hdr, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, id, hdr.SnapshotID)
	assert.Equal(t, 0.01, hdr.FalsePositiveRate)
	assert.Equal(t, uint64(100), hdr.ExpectedItems)
	assert.Equal(t, f.Cap(), got.Cap())
	assert.Equal(t, f.K(), got.K())
	assert.Equal(t, f.Count(), got.Count())
	for i := 0; i < 100; i++ {
		assert.True(t, got.Test(fmt.Sprintf("1member%06d", i)))
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, _, err := Load(bytes.NewReader([]byte("definitely not zstd")))
	assert.Error(t, err)
}

func TestLoadOrBuild(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "filter.bin")
	opts := Options{FalsePositiveRate: 0.001}

	first := db.NewMockAddressStoreWith(db.AddressRecord{Address: "1first"})
	f, err := LoadOrBuild(ctx, path, first, opts, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, f.Test("1first"))

	snap, err := first.Snapshot(ctx)
	require.NoError(t, err)
	_, hdr, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, hdr.SnapshotID)

	t.Run("same snapshot reuses cache", func(t *testing.T) {
		var buf bytes.Buffer
		f, err := LoadOrBuild(ctx, path, first, opts, zerolog.New(&buf))
		require.NoError(t, err)
		assert.True(t, f.Test("1first"))
		assert.Contains(t, buf.String(), "filter loaded from cache")
	})

	t.Run("different rate rebuilds", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := LoadOrBuild(ctx, path, first, Options{FalsePositiveRate: 0.01}, zerolog.New(&buf))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "filter built")
	})

	t.Run("different expected items rebuilds", func(t *testing.T) {
		sized := Options{FalsePositiveRate: 0.01, ExpectedItems: 1000}

		var buf bytes.Buffer
		f, err := LoadOrBuild(ctx, path, first, sized, zerolog.New(&buf))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "filter built")
		assert.NotContains(t, buf.String(), "filter loaded from cache")

		_, hdr, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), hdr.ExpectedItems)
		assert.Equal(t, f.Cap(), hdr.Bits)

		buf.Reset()
		_, err = LoadOrBuild(ctx, path, first, sized, zerolog.New(&buf))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "filter loaded from cache")
	})

	t.Run("new snapshot rebuilds", func(t *testing.T) {
		second := db.NewMockAddressStoreWith(db.AddressRecord{Address: "1second"})
		f, err := LoadOrBuild(ctx, path, second, opts, zerolog.Nop())
		require.NoError(t, err)
		assert.True(t, f.Test("1second"))

		snap, err := second.Snapshot(ctx)
		require.NoError(t, err)
		_, hdr, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, snap.ID, hdr.SnapshotID)
	})
}

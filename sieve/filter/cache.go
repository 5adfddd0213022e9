package filter

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/keysieve/sieve/db"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

const cacheVersion byte = 2

var cacheMagic = [4]byte{'K', 'S', 'B', 'F'}

var (
	// ErrInvalidCache is returned when a cache file is truncated or corrupt.
	ErrInvalidCache = errors.New("invalid filter cache")
	// ErrUnsupportedCacheVersion is returned for cache files written by an
	// incompatible version.
	ErrUnsupportedCacheVersion = errors.New("unsupported filter cache version")
)

// CacheHeader identifies what a cached filter was built from.
type CacheHeader struct {
	SnapshotID        uuid.UUID
	FalsePositiveRate float64
	ExpectedItems     uint64
	Bits              uint64
	K                 uint32
	Count             uint64
}

// headerSize is the fixed prefix written by Save.
const headerSize = 4 + 1 + 16 + 8 + 8 + 8 + 4 + 8

func (h CacheHeader) matches(snapshotID uuid.UUID, opts Options) bool {
	return h.SnapshotID == snapshotID &&
		h.FalsePositiveRate == opts.FalsePositiveRate &&
		h.ExpectedItems == opts.ExpectedItems
}

// Save writes f to w as a zstd stream tagged with snapshotID and the sizing
// options it was built with.
//
// Layout inside the stream:
//
//	magic[4] version[1] snapshot[16] fpRate[8] expected[8] m[8] k[4] count[8] bitset...
func (f *Filter) Save(w io.Writer, snapshotID uuid.UUID, opts Options) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	var hdr [headerSize]byte
	copy(hdr[0:4], cacheMagic[:])
	hdr[4] = cacheVersion
	copy(hdr[5:21], snapshotID[:])
	binary.LittleEndian.PutUint64(hdr[21:29], math.Float64bits(opts.FalsePositiveRate))
	binary.LittleEndian.PutUint64(hdr[29:37], opts.ExpectedItems)
	binary.LittleEndian.PutUint64(hdr[37:45], f.m)
	binary.LittleEndian.PutUint32(hdr[45:49], f.k)
	binary.LittleEndian.PutUint64(hdr[49:57], f.count)

	if _, err := enc.Write(hdr[:]); err != nil {
		enc.Close()
		return err
	}
	if _, err := f.bits.WriteTo(enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Load reads a filter written by Save.
func Load(r io.Reader) (*Filter, CacheHeader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, CacheHeader{}, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	var hdr [headerSize]byte
	if _, err := io.ReadFull(dec, hdr[:]); err != nil {
		return nil, CacheHeader{}, fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	if [4]byte(hdr[0:4]) != cacheMagic {
		return nil, CacheHeader{}, fmt.Errorf("%w: bad magic", ErrInvalidCache)
	}
	if hdr[4] != cacheVersion {
		return nil, CacheHeader{}, fmt.Errorf("%w: %d", ErrUnsupportedCacheVersion, hdr[4])
	}

	h := CacheHeader{
		FalsePositiveRate: math.Float64frombits(binary.LittleEndian.Uint64(hdr[21:29])),
		ExpectedItems:     binary.LittleEndian.Uint64(hdr[29:37]),
		Bits:              binary.LittleEndian.Uint64(hdr[37:45]),
		K:                 binary.LittleEndian.Uint32(hdr[45:49]),
		Count:             binary.LittleEndian.Uint64(hdr[49:57]),
	}
	copy(h.SnapshotID[:], hdr[5:21])
	if h.Bits == 0 || h.K == 0 {
		return nil, CacheHeader{}, fmt.Errorf("%w: empty parameters", ErrInvalidCache)
	}

	bits := &bitset.BitSet{}
	if _, err := bits.ReadFrom(dec); err != nil {
		return nil, CacheHeader{}, fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	if uint64(bits.Len()) != h.Bits {
		return nil, CacheHeader{}, fmt.Errorf("%w: bitset length %d, header %d", ErrInvalidCache, bits.Len(), h.Bits)
	}

	return &Filter{bits: bits, m: h.Bits, k: h.K, count: h.Count}, h, nil
}

// SaveFile atomically writes f to path.
func (f *Filter) SaveFile(path string, snapshotID uuid.UUID, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // No-op after a successful rename

	bw := bufio.NewWriter(tmp)
	if err := f.Save(bw, snapshotID, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a filter from path.
func LoadFile(path string) (*Filter, CacheHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, CacheHeader{}, err
	}
	defer file.Close()
	return Load(bufio.NewReader(file))
}

// LoadOrBuild returns the filter cached at cachePath when it was built from
// the store's current snapshot with the same sizing options. Otherwise it
// builds a fresh filter and rewrites the cache. An empty cachePath disables
// caching.
func LoadOrBuild(ctx context.Context, cachePath string, reader db.AddressReader, opts Options, logger zerolog.Logger) (*Filter, error) {
	log := logger.With().Str("component", "filter").Logger()

	snap, err := reader.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store snapshot: %w", err)
	}
	if cachePath == "" || snap == nil {
		return Build(ctx, reader, opts, logger)
	}

	f, hdr, err := LoadFile(cachePath)
	switch {
	case err == nil && hdr.matches(snap.ID, opts):
		log.Info().
			Str("path", cachePath).
			Str("snapshot", snap.ID.String()).
			Uint64("keys", f.Count()).
			Msg("filter loaded from cache")
		return f, nil
	case err == nil:
		log.Info().Str("path", cachePath).Msg("filter cache is stale, rebuilding")
	case errors.Is(err, os.ErrNotExist):
	default:
		log.Warn().Err(err).Str("path", cachePath).Msg("failed to read filter cache, rebuilding")
	}

	f, err = Build(ctx, reader, opts, logger)
	if err != nil {
		return nil, err
	}
	if err := f.SaveFile(cachePath, snap.ID, opts); err != nil {
		log.Warn().Err(err).Str("path", cachePath).Msg("failed to write filter cache")
	}
	return f, nil
}

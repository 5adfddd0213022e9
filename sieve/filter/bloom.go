// Package filter implements the probabilistic pre-filter that sits in front of
// the authoritative address store.
//
// A negative answer from the filter is final: the key was not in the store
// when the filter was built. A positive answer only means "maybe" and must be
// confirmed by a store lookup.
package filter

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/zeebo/xxh3"
)

// Filter is a classic bloom filter over a fixed bit array.
//
// Add is not safe for concurrent use. Once building is finished the filter is
// read-only and Test may be called from any number of goroutines.
type Filter struct {
	bits  *bitset.BitSet
	m     uint64
	k     uint32
	count uint64
}

// New creates a filter sized for n items at false positive rate fpRate.
func New(n uint64, fpRate float64) (*Filter, error) {
	m, k, err := OptimalParams(n, fpRate)
	if err != nil {
		return nil, err
	}
	return NewWithParams(m, k), nil
}

// NewWithParams creates a filter with m bits and k hash functions.
func NewWithParams(m uint64, k uint32) *Filter {
	m = max(m, 1)
	k = max(k, 1)
	return &Filter{
		bits: bitset.New(uint(m)),
		m:    m,
		k:    k,
	}
}

// location returns the i-th bit position for a key hashed to (lo, hi).
func (f *Filter) location(lo, hi uint64, i uint32) uint {
	return uint((lo + uint64(i)*hi) % f.m)
}

// Add inserts key into the filter.
func (f *Filter) Add(key string) {
	h := xxh3.HashString128(key)
	for i := uint32(0); i < f.k; i++ {
		f.bits.Set(f.location(h.Lo, h.Hi, i))
	}
	f.count++
}

// Test reports whether key may be in the filter.
func (f *Filter) Test(key string) bool {
	h := xxh3.HashString128(key)
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Test(f.location(h.Lo, h.Hi, i)) {
			return false
		}
	}
	return true
}

// Cap returns the size of the filter in bits.
func (f *Filter) Cap() uint64 {
	return f.m
}

// K returns the number of hash functions.
func (f *Filter) K() uint32 {
	return f.k
}

// Count returns the number of keys added.
func (f *Filter) Count() uint64 {
	return f.count
}

// FillRatio returns the proportion of bits that are set.
func (f *Filter) FillRatio() float64 {
	return float64(f.bits.Count()) / float64(f.m)
}

// EstimatedFalsePositiveRate estimates the current false positive rate from
// the number of keys added.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count)
}

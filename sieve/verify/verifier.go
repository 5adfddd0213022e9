// Package verify decides whether a candidate address is in the known set.
//
// The filter answers first. Only a filter positive reaches the store, and only
// a store hit is reported, so every ConfirmedHit is exact and a filter false
// positive is never surfaced.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ZanzyTHEbar/keysieve/sieve/db"
)

// ErrLookup wraps store failures. It is never downgraded to a miss.
var ErrLookup = errors.New("store lookup failed")

// Outcome is the verdict for one address.
type Outcome int

const (
	Miss Outcome = iota
	ConfirmedHit
)

func (o Outcome) String() string {
	switch o {
	case Miss:
		return "miss"
	case ConfirmedHit:
		return "hit"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result carries the verdict and, for a hit, the stored record.
type Result struct {
	Outcome Outcome
	Key     string
	Record  db.AddressRecord
}

// Filter is the probabilistic membership test consulted before the store.
type Filter interface {
	Test(key string) bool
}

// Stats counts verifier outcomes.
type Stats struct {
	Tested          int64
	FilterPositives int64
	FalsePositives  int64
	ConfirmedHits   int64
	LookupErrors    int64
}

// Verifier is safe for concurrent use.
type Verifier struct {
	filter Filter
	store  db.AddressReader
	keys   db.KeyPolicy

	tested          atomic.Int64
	filterPositives atomic.Int64
	falsePositives  atomic.Int64
	confirmedHits   atomic.Int64
	lookupErrors    atomic.Int64
}

// New creates a Verifier. keys must match the policy the store was ingested with.
func New(filter Filter, store db.AddressReader, keys db.KeyPolicy) *Verifier {
	return &Verifier{filter: filter, store: store, keys: keys}
}

// Verify tests address against the filter and confirms positives in the store.
func (v *Verifier) Verify(ctx context.Context, address string) (Result, error) {
	v.tested.Add(1)
	key := v.keys.Key(address)

	if !v.filter.Test(key) {
		return Result{Outcome: Miss, Key: key}, nil
	}
	v.filterPositives.Add(1)

	rec, ok, err := v.store.Lookup(ctx, key)
	if err != nil {
		v.lookupErrors.Add(1)
		return Result{}, fmt.Errorf("%w: %s: %w", ErrLookup, key, err)
	}
	if !ok {
		v.falsePositives.Add(1)
		return Result{Outcome: Miss, Key: key}, nil
	}

	v.confirmedHits.Add(1)
	return Result{Outcome: ConfirmedHit, Key: key, Record: rec}, nil
}

// Stats returns a snapshot of the counters.
func (v *Verifier) Stats() Stats {
	return Stats{
		Tested:          v.tested.Load(),
		FilterPositives: v.filterPositives.Load(),
		FalsePositives:  v.falsePositives.Load(),
		ConfirmedHits:   v.confirmedHits.Load(),
		LookupErrors:    v.lookupErrors.Load(),
	}
}

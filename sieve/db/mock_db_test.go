package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAddressStore_Lookup(t *testing.T) {
	store := NewMockAddressStoreWith(
		AddressRecord{Address: "1abc", Balance: sql.NullInt64{Int64: 7, Valid: true}},
		AddressRecord{Address: "1def"},
	)

	tests := []struct {
		name    string
		key     string
		wantOK  bool
		wantBal sql.NullInt64
	}{
		{name: "present with balance", key: "1abc", wantOK: true, wantBal: sql.NullInt64{Int64: 7, Valid: true}},
		{name: "present without balance", key: "1def", wantOK: true},
		{name: "absent", key: "1zzz", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok, err := store.Lookup(context.Background(), tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.key, rec.Address)
				assert.Equal(t, tt.wantBal, rec.Balance)
			}
		})
	}
	assert.Equal(t, int64(3), store.Lookups())
}

func TestMockAddressStore_LookupErr(t *testing.T) {
	store := NewMockAddressStoreWith(AddressRecord{Address: "1abc"})
	boom := errors.New("disk gone")
	store.LookupErr = boom

	_, ok, err := store.Lookup(context.Background(), "1abc")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestMockAddressStore_BulkLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMockAddressStore()

	loader, err := store.NewBulkLoader(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, loader.Insert(AddressRecord{Address: "1a"}))
	require.NoError(t, loader.Insert(AddressRecord{Address: "1a"}))
	require.NoError(t, loader.Insert(AddressRecord{Address: "1b"}))
	assert.Equal(t, int64(3), loader.Inserted())

	snap := NewSnapshot("mock", 0)
	require.NoError(t, loader.Commit(ctx, snap))
	assert.Equal(t, int64(2), snap.Records)

	_, err = store.NewBulkLoader(ctx, 10)
	assert.ErrorIs(t, err, ErrAlreadyIngested)

	var keys []string
	require.NoError(t, store.ScanKeys(ctx, func(k string) error {
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []string{"1a", "1b"}, keys)
}

func TestKeyPolicy(t *testing.T) {
	tests := []struct {
		name   string
		suffix int
		in     string
		want   string
	}{
		{name: "full address", suffix: 0, in: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", want: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
		{name: "eight char suffix", suffix: 8, in: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", want: "v7DivfNa"},
		{name: "shorter than suffix", suffix: 8, in: "1abc", want: "1abc"},
		{name: "negative suffix", suffix: -3, in: "1abc", want: "1abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyPolicy{SuffixLength: tt.suffix}.Key(tt.in))
		})
	}
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	snap := NewSnapshot("addresses.tsv", 8)
	snap.Records = 42
	snap.Skipped = 3

	data, err := snap.MarshalJSON()
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, got.UnmarshalJSON(data))
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Source, got.Source)
	assert.Equal(t, snap.Records, got.Records)
	assert.Equal(t, snap.Skipped, got.Skipped)
	assert.Equal(t, snap.KeySuffix, got.KeySuffix)
	assert.WithinDuration(t, snap.TakenAt, got.TakenAt, time.Second)
}

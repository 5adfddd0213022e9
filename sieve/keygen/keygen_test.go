package keygen

import (
	"bytes"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOf(t *testing.T, h string) []byte {
	t.Helper()
	b, err := hex.DecodeString(h)
	require.NoError(t, err)
	return b
}

func TestSecp256k1DeriverKnownVector(t *testing.T) {
	d := NewSecp256k1Deriver(nil)
	seed := seedOf(t, "0000000000000000000000000000000000000000000000000000000000000001")

	c, err := d.Derive(seed)
	require.NoError(t, err)

	assert.Equal(t, "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn", c.Secret)
	assert.Equal(t, "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", c.Public)
	assert.Equal(t, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH", c.Address)
	assert.Equal(t, hex.EncodeToString(seed), c.SecretHex)
	assert.False(t, c.GeneratedAt.IsZero())
	assert.NotContains(t, c.String(), c.Secret)
}

func TestSecp256k1DeriverRejectsInvalidScalars(t *testing.T) {
	d := NewSecp256k1Deriver(nil)

	tests := []struct {
		name string
		seed string
	}{
		{name: "zero", seed: "0000000000000000000000000000000000000000000000000000000000000000"},
		{name: "curve order", seed: "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"},
		{name: "all ones", seed: "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "short", seed: "01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Derive(seedOf(t, tt.seed))
			assert.ErrorIs(t, err, ErrInvalidScalar)
		})
	}
}

func TestNetworkParams(t *testing.T) {
	p, err := NetworkParams("")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.MainNetParams.Name, p.Name)

	p, err = NetworkParams("testnet")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.TestNet3Params.Name, p.Name)

	_, err = NetworkParams("moon")
	assert.Error(t, err)

	c, err := NewSecp256k1Deriver(p).Derive(seedOf(t, "0000000000000000000000000000000000000000000000000000000000000001"))
	require.NoError(t, err)
	assert.Equal(t, "mrCDrCybB6J1vRfbwM5hemdJz73FwDBC8r", c.Address)
}

func TestGeneratorReadsFreshSeedPerCall(t *testing.T) {
	seeds := seedOf(t,
		"0000000000000000000000000000000000000000000000000000000000000001"+
			"0000000000000000000000000000000000000000000000000000000000000002")
	g := NewGeneratorWithReader(bytes.NewReader(seeds), NewSecp256k1Deriver(nil))

	first, err := g.Next()
	require.NoError(t, err)
	second, err := g.Next()
	require.NoError(t, err)

	assert.Equal(t, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH", first.Address)
	assert.NotEqual(t, first.Address, second.Address)

	_, err = g.Next()
	assert.Error(t, err, "reader is exhausted")
}

func TestGeneratorConcurrentUse(t *testing.T) {
	g := NewGenerator(NewSecp256k1Deriver(nil))

	const workers, perWorker = 4, 25
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c, err := g.Next()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[c.Address] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestFixedSource(t *testing.T) {
	src := NewFixedSource("1a", "1b")
	assert.Equal(t, 2, src.Remaining())

	c, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "1a", c.Address)
	assert.False(t, c.GeneratedAt.IsZero())

	c, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, "1b", c.Address)

	_, err = src.Next()
	assert.ErrorIs(t, err, ErrSourceExhausted)
	assert.Equal(t, 0, src.Remaining())
}

package keygen

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Secp256k1Deriver derives compressed P2PKH candidates.
type Secp256k1Deriver struct {
	Params *chaincfg.Params
}

// NewSecp256k1Deriver creates a deriver for params, or mainnet when nil.
func NewSecp256k1Deriver(params *chaincfg.Params) *Secp256k1Deriver {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &Secp256k1Deriver{Params: params}
}

// NetworkParams resolves a network name to its chain parameters.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// Derive implements Deriver.
func (d *Secp256k1Deriver) Derive(seed []byte) (Candidate, error) {
	if len(seed) != seedSize {
		return Candidate{}, fmt.Errorf("%w: %d byte seed", ErrInvalidScalar, len(seed))
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(seed); overflow || scalar.IsZero() {
		return Candidate{}, ErrInvalidScalar
	}

	priv, pub := btcec.PrivKeyFromBytes(seed)

	wif, err := btcutil.NewWIF(priv, d.Params, true)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to encode WIF: %w", err)
	}

	serialized := pub.SerializeCompressed()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(serialized), d.Params)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to derive address: %w", err)
	}

	return Candidate{
		Secret:      wif.String(),
		SecretHex:   hex.EncodeToString(seed),
		Public:      hex.EncodeToString(serialized),
		Address:     addr.EncodeAddress(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

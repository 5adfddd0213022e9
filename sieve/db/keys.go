package db

// KeyPolicy maps an address to the key it is stored and looked up under.
// A positive SuffixLength keys by the trailing characters only, which trades
// exactness of the match for a much smaller store and filter.
// Addresses are base58 or bech32, so byte and character offsets coincide.
type KeyPolicy struct {
	SuffixLength int
}

// Key returns the store key for address.
func (p KeyPolicy) Key(address string) string {
	if p.SuffixLength <= 0 || len(address) <= p.SuffixLength {
		return address
	}
	return address[len(address)-p.SuffixLength:]
}

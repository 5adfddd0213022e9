package filter

import (
	"errors"
	"math"
)

// ErrInvalidRate is returned when a false positive rate is outside (0, 1).
var ErrInvalidRate = errors.New("false positive rate must be in (0, 1)")

const ln2Squared = math.Ln2 * math.Ln2

// OptimalParams returns the bit count m and hash count k for n expected items
// at false positive rate fpRate:
//
//	m = ceil(-n * ln(fpRate) / ln(2)^2)
//	k = round(m/n * ln(2)), at least 1
//
// n == 0 is sized as a single item so an empty filter is still usable.
func OptimalParams(n uint64, fpRate float64) (m uint64, k uint32, err error) {
	if !(fpRate > 0 && fpRate < 1) {
		return 0, 0, ErrInvalidRate
	}
	if n == 0 {
		n = 1
	}

	m = uint64(math.Ceil(-float64(n) * math.Log(fpRate) / ln2Squared))
	if m == 0 {
		m = 1
	}

	k = uint32(math.Round(float64(m) / float64(n) * math.Ln2))
	k = max(k, 1)

	return m, k, nil
}

// EstimateFalsePositiveRate returns (1 - e^(-kn/m))^k.
func EstimateFalsePositiveRate(m uint64, k uint32, n uint64) float64 {
	if m == 0 || n == 0 {
		return 0
	}
	kf := float64(k)
	return math.Pow(1-math.Exp(-kf*float64(n)/float64(m)), kf)
}

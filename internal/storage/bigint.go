package storage

import "math/big"

// bigString renders a possibly-nil *big.Int as its decimal string, so
// every large-integer column goes through math/big's own codec instead
// of a float path.
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseBig parses a NUMERIC column's decimal text back into a *big.Int.
// Falls back to zero on malformed input rather than panicking: a
// corrupt stored value should not take down a read path.
func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

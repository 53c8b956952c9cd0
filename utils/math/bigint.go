package math

import (
	"fmt"
	"math/big"
)

// Helpers for big.Int arithmetic where a negative intermediate result is a
// logic error rather than a value. Solvency math goes through these so a
// loss can never masquerade as a wrapped-around profit.

// CheckedSub returns a-b, or an error if the result would be negative.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	if a.Cmp(b) < 0 {
		return nil, fmt.Errorf("subtraction underflow: %s - %s", a, b)
	}
	return new(big.Int).Sub(a, b), nil
}

// Sum returns the sum of its arguments as a fresh value.
func Sum(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v)
	}
	return total
}

// Clone returns a defensive copy, treating nil as zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// BpsOf returns value * bps / 10000, the basis-point share of value.
func BpsOf(value *big.Int, bps uint16) *big.Int {
	share := new(big.Int).Mul(value, big.NewInt(int64(bps)))
	return share.Div(share, big.NewInt(10_000))
}

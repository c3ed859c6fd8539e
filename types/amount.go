package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a decimal string of minor units into a 256-bit unsigned integer.
// Negative values, non base-10 input and values wider than 256 bits are rejected.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("amount %q is not a base-10 unsigned integer", s)
		}
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

// CompareAmounts compares two decimal-string amounts: -1 if a < b, 0 if equal, +1 if a > b.
func CompareAmounts(a, b string) (int, error) {
	av, err := ParseAmount(a)
	if err != nil {
		return 0, err
	}
	bv, err := ParseAmount(b)
	if err != nil {
		return 0, err
	}
	return av.Cmp(bv), nil
}

// AmountToBig converts a decimal-string amount into a big.Int for ABI encoding.
func AmountToBig(s string) (*big.Int, error) {
	v, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// FormatAmount renders minor units as a human-readable decimal, e.g. "1500000" with 6 decimals is "1.5".
func FormatAmount(amount string, decimals int) (string, error) {
	v, err := ParseAmount(amount)
	if err != nil {
		return "", err
	}
	return decimal.NewFromBigInt(v.ToBig(), int32(-decimals)).String(), nil
}

// FormatWei renders a wei balance in ether units.
func FormatWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// WeiBelow reports whether wei is strictly below a decimal ether threshold such as "0.01".
func WeiBelow(wei *big.Int, minEther string) (bool, error) {
	threshold, err := decimal.NewFromString(minEther)
	if err != nil {
		return false, fmt.Errorf("invalid ether threshold %q: %w", minEther, err)
	}
	if wei == nil {
		wei = new(big.Int)
	}
	return decimal.NewFromBigInt(wei, -18).LessThan(threshold), nil
}

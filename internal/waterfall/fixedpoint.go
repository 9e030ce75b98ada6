package waterfall

import "math/big"

// mulDiv computes a*b/den through a big.Int intermediate so tranche math
// never overflows int64, with half-even rounding on the final division.
func mulDiv(a, b, den int64) int64 {
	if den == 0 {
		return 0
	}

	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	return divRoundHalfEven(num, den)
}

func divRoundHalfEven(num *big.Int, den int64) int64 {
	d := big.NewInt(den)
	quo, rem := new(big.Int).QuoRem(num, d, new(big.Int))

	result := quo.Int64()
	rem.Abs(rem)

	twice := new(big.Int).Lsh(rem, 1)
	cmp := twice.CmpAbs(d)

	sign := int64(1)
	if (num.Sign() < 0) != (den < 0) {
		sign = -1
	}

	if cmp > 0 {
		result += sign
	} else if cmp == 0 && result%2 != 0 {
		// Half exactly: round to even
		result += sign
	}

	return result
}

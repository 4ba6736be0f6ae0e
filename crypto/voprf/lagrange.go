package voprf

import "math/big"

// Partial is one partial VOPRF evaluation B_i = k_i*A produced by share
// holder i of a threshold issuer.
type Partial struct {
	Index uint64
	Eval  []byte
}

// Aggregate reconstructs the full evaluation from t partial evaluations by
// Lagrange interpolation at x = 0:
//
//	lambda_i = prod_{j != i} x_j * (x_j - x_i)^{-1} mod n
//
// With a single partial the evaluation is returned verbatim. A duplicate
// share index makes a denominator zero and fails with
// ErrDuplicateShareIndex.
func Aggregate(partials []Partial) ([]byte, error) {
	if len(partials) == 0 {
		return nil, ErrNoPartials
	}
	if len(partials) == 1 {
		return partials[0].Eval, nil
	}

	sum := g.Identity()
	for i, pi := range partials {
		lambda, err := lagrangeCoefficient(partials, i)
		if err != nil {
			return nil, err
		}
		bi, err := decodePoint(pi.Eval)
		if err != nil {
			return nil, err
		}
		term := g.NewElement().Mul(bi, g.NewScalar().SetBigInt(lambda))
		sum.Add(sum, term)
	}
	return sum.MarshalBinaryCompress()
}

// lagrangeCoefficient computes lambda_i at x = 0 for the share set. All
// arithmetic is mod the group order; inversion relies on the order being
// prime.
func lagrangeCoefficient(partials []Partial, i int) (*big.Int, error) {
	xi := new(big.Int).SetUint64(partials[i].Index)
	num := big.NewInt(1)
	den := big.NewInt(1)
	for j, pj := range partials {
		if j == i {
			continue
		}
		xj := new(big.Int).SetUint64(pj.Index)
		num.Mul(num, xj)
		num.Mod(num, order)
		diff := new(big.Int).Sub(xj, xi)
		diff.Mod(diff, order)
		if diff.Sign() == 0 {
			return nil, ErrDuplicateShareIndex
		}
		den.Mul(den, diff)
		den.Mod(den, order)
	}
	den.ModInverse(den, order)
	lambda := new(big.Int).Mul(num, den)
	return lambda.Mod(lambda, order), nil
}

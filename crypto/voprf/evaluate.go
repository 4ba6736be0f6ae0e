package voprf

import (
	"crypto/rand"
	"math/big"

	"github.com/cloudflare/circl/group"
)

// SecretKey is an issuer-side VOPRF key. The core never holds the
// production issuer's key; this type backs the mock issuer and the
// threshold tests.
type SecretKey struct {
	k group.Scalar
}

// NewSecretKey generates a random nonzero key.
func NewSecretKey() *SecretKey {
	return &SecretKey{k: g.RandomNonZeroScalar(rand.Reader)}
}

// SecretKeyFromBigInt builds a key from a scalar value, reduced mod the
// group order. Used to derive polynomial shares in threshold setups.
func SecretKeyFromBigInt(v *big.Int) *SecretKey {
	return &SecretKey{k: g.NewScalar().SetBigInt(new(big.Int).Mod(v, order))}
}

// Public returns the compressed public key Y = k*G.
func (sk *SecretKey) Public() []byte {
	pub, err := g.NewElement().MulGen(sk.k).MarshalBinaryCompress()
	if err != nil {
		panic(err)
	}
	return pub
}

// Evaluate computes B = k*A over the blinded element and attaches a DLEQ
// proof that the same key links Y = k*G and B = k*A. The returned token is
// the full A||B||c||s byte string.
func (sk *SecretKey) Evaluate(blinded, context []byte) ([]byte, error) {
	a, err := decodePoint(blinded)
	if err != nil {
		return nil, err
	}
	b := g.NewElement().Mul(a, sk.k)
	y := g.NewElement().MulGen(sk.k)

	// Commitment nonce t, then T1 = t*G, T2 = t*A.
	t := g.RandomNonZeroScalar(rand.Reader)
	t1 := g.NewElement().MulGen(t)
	t2 := g.NewElement().Mul(a, t)

	cBytes, err := challenge(y, a, b, t1, t2, context)
	if err != nil {
		return nil, err
	}
	c := g.NewScalar().SetBigInt(new(big.Int).SetBytes(cBytes))

	// s = t + c*k mod n.
	s := g.NewScalar().Mul(c, sk.k)
	s.Add(s, t)

	bEnc, err := b.MarshalBinaryCompress()
	if err != nil {
		return nil, err
	}
	sEnc, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	token := make([]byte, 0, TokenLen)
	token = append(token, blinded...)
	token = append(token, bEnc...)
	token = append(token, cBytes...)
	token = append(token, sEnc...)
	return token, nil
}

// EvaluatePartial computes only the partial evaluation B_i = k_i*A without
// a proof, for threshold reconstruction through Aggregate.
func (sk *SecretKey) EvaluatePartial(blinded []byte) ([]byte, error) {
	a, err := decodePoint(blinded)
	if err != nil {
		return nil, err
	}
	return g.NewElement().Mul(a, sk.k).MarshalBinaryCompress()
}

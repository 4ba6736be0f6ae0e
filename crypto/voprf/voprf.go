// Package voprf implements the client side of a verifiable oblivious PRF
// over NIST P-256: input blinding, evaluation of the issuer's response with
// its discrete-log equality proof, and threshold aggregation of partial
// evaluations. The server-side evaluation lives in evaluate.go and backs
// the mock issuer.
package voprf

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/cloudflare/circl/group"
)

const (
	// PointLen is the length of a compressed SEC1 P-256 point.
	PointLen = 33
	// ScalarLen is the length of a big-endian P-256 scalar.
	ScalarLen = 32
	// ProofLen is the length of a DLEQ proof: the scalars c and s.
	ProofLen = 2 * ScalarLen
	// TokenLen is the exact length of token bytes A||B||c||s.
	TokenLen = 2*PointLen + ProofLen
)

var (
	ErrInvalidTokenLength  = errors.New("voprf: invalid token length")
	ErrInvalidPoint        = errors.New("voprf: invalid point encoding")
	ErrInvalidDLEQ         = errors.New("voprf: DLEQ proof verification failed")
	ErrBlindedMismatch     = errors.New("voprf: token does not match blinded element")
	ErrDuplicateShareIndex = errors.New("voprf: duplicate share index")
	ErrNoPartials          = errors.New("voprf: no partial evaluations")
)

var (
	g = group.P256

	// order is the P-256 group order, shared by the DLEQ check and the
	// Lagrange arithmetic.
	order = elliptic.P256().Params().N

	hashToCurveTag = []byte("VOPRF-P256-v1")
	dleqTag        = []byte("DLEQ-P256-v1")
)

// BlindState carries the secrets of one blinding: the random factor r and
// the hashed input point P. It must be kept until Finalize and never sent
// to the issuer.
type BlindState struct {
	r       group.Scalar
	p       group.Element
	blinded []byte
}

// Blinded returns the encoded blinded element A = r*P.
func (s *BlindState) Blinded() []byte {
	return s.blinded
}

// Blind hashes input to the curve under the given context and masks it with
// a fresh random nonzero scalar. It returns the compressed blinded element
// and the state needed by Finalize.
func Blind(input, context []byte) ([]byte, *BlindState, error) {
	p := g.HashToElement(input, append(hashToCurveTag, context...))
	r := g.RandomNonZeroScalar(rand.Reader)
	a := g.NewElement().Mul(p, r)
	blinded, err := a.MarshalBinaryCompress()
	if err != nil {
		return nil, nil, err
	}
	st := &BlindState{r: r, p: p, blinded: blinded}
	return blinded, st, nil
}

// Finalize checks the issuer's response against the blinding state: the
// token must embed the exact blinded element from state, and its DLEQ proof
// must verify under the issuer public key and context. The token bytes are
// returned unchanged; the client retains the token itself, since any
// verifier can re-check the proof later.
func Finalize(state *BlindState, token, issuerPub, context []byte) ([]byte, error) {
	if len(token) != TokenLen {
		return nil, ErrInvalidTokenLength
	}
	if subtle.ConstantTimeCompare(token[:PointLen], state.blinded) != 1 {
		return nil, ErrBlindedMismatch
	}
	if err := Verify(token, issuerPub, context); err != nil {
		return nil, err
	}
	return token, nil
}

// Verify checks a token's DLEQ proof against the issuer public key. It is
// the full verifier path: the same check Finalize runs, minus the blinding
// state.
func Verify(token, issuerPub, context []byte) error {
	if len(token) != TokenLen {
		return ErrInvalidTokenLength
	}
	a, err := decodePoint(token[:PointLen])
	if err != nil {
		return err
	}
	b, err := decodePoint(token[PointLen : 2*PointLen])
	if err != nil {
		return err
	}
	y, err := decodePoint(issuerPub)
	if err != nil {
		return err
	}
	proof := token[2*PointLen:]
	return verifyDLEQ(y, a, b, proof[:ScalarLen], proof[ScalarLen:], context)
}

// verifyDLEQ checks a Chaum-Pedersen proof that log_G(Y) == log_A(B),
// Fiat-Shamir over SHA-256. cBytes and sBytes are 32-byte big-endian
// scalars, reduced mod the group order before use.
func verifyDLEQ(y, a, b group.Element, cBytes, sBytes, context []byte) error {
	c := new(big.Int).Mod(new(big.Int).SetBytes(cBytes), order)
	s := new(big.Int).Mod(new(big.Int).SetBytes(sBytes), order)
	cScalar := g.NewScalar().SetBigInt(c)
	sScalar := g.NewScalar().SetBigInt(s)

	// T1 = s*G - c*Y, T2 = s*A - c*B.
	t1 := g.NewElement().MulGen(sScalar)
	cy := g.NewElement().Mul(y, cScalar)
	cy.Neg(cy)
	t1.Add(t1, cy)

	t2 := g.NewElement().Mul(a, sScalar)
	cb := g.NewElement().Mul(b, cScalar)
	cb.Neg(cb)
	t2.Add(t2, cb)

	expected, err := challenge(y, a, b, t1, t2, context)
	if err != nil {
		return err
	}
	var cCanon [ScalarLen]byte
	c.FillBytes(cCanon[:])
	if subtle.ConstantTimeCompare(expected, cCanon[:]) != 1 {
		return ErrInvalidDLEQ
	}
	return nil
}

// challenge computes the Fiat-Shamir challenge over the DLEQ transcript:
// len32(dst) || dst || enc(G) || enc(Y) || enc(A) || enc(B) || enc(T1) || enc(T2)
// with dst = "DLEQ-P256-v1" || context, reduced mod the group order and
// returned as 32 big-endian bytes.
func challenge(y, a, b, t1, t2 group.Element, context []byte) ([]byte, error) {
	dst := append(append([]byte{}, dleqTag...), context...)
	h := sha256.New()
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(dst)))
	h.Write(lenPrefix[:])
	h.Write(dst)
	for _, e := range []group.Element{g.Generator(), y, a, b, t1, t2} {
		enc, err := e.MarshalBinaryCompress()
		if err != nil {
			return nil, err
		}
		h.Write(enc)
	}
	digest := h.Sum(nil)
	reduced := new(big.Int).Mod(new(big.Int).SetBytes(digest), order)
	out := make([]byte, ScalarLen)
	reduced.FillBytes(out)
	return out, nil
}

func decodePoint(enc []byte) (group.Element, error) {
	if len(enc) != PointLen {
		return nil, ErrInvalidPoint
	}
	e := g.NewElement()
	if err := e.UnmarshalBinary(enc); err != nil {
		return nil, ErrInvalidPoint
	}
	return e, nil
}

package voprf

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestBlindEvaluateFinalize(t *testing.T) {
	c := qt.New(t)
	ctx := []byte("test-context")
	key := NewSecretKey()

	blinded, state, err := Blind([]byte("voter-secret-input"), ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(blinded, qt.HasLen, PointLen)
	c.Assert(state.Blinded(), qt.DeepEquals, blinded)

	token, err := key.Evaluate(blinded, ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(token, qt.HasLen, TokenLen)

	out, err := Finalize(state, token, key.Public(), ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, token)

	// Verifier path without blinding state.
	c.Assert(Verify(token, key.Public(), ctx), qt.IsNil)
}

func TestFinalizeRejectsWrongLength(t *testing.T) {
	c := qt.New(t)
	ctx := []byte("ctx")
	key := NewSecretKey()
	blinded, state, err := Blind([]byte("input"), ctx)
	c.Assert(err, qt.IsNil)
	token, err := key.Evaluate(blinded, ctx)
	c.Assert(err, qt.IsNil)

	_, err = Finalize(state, token[:TokenLen-1], key.Public(), ctx)
	c.Assert(err, qt.Equals, ErrInvalidTokenLength)
	_, err = Finalize(state, append(token, 0x00), key.Public(), ctx)
	c.Assert(err, qt.Equals, ErrInvalidTokenLength)
}

func TestFinalizeRejectsForeignBlinded(t *testing.T) {
	c := qt.New(t)
	ctx := []byte("ctx")
	key := NewSecretKey()

	blinded1, _, err := Blind([]byte("input-1"), ctx)
	c.Assert(err, qt.IsNil)
	_, state2, err := Blind([]byte("input-2"), ctx)
	c.Assert(err, qt.IsNil)

	token, err := key.Evaluate(blinded1, ctx)
	c.Assert(err, qt.IsNil)
	_, err = Finalize(state2, token, key.Public(), ctx)
	c.Assert(err, qt.Equals, ErrBlindedMismatch)
}

// TestDLEQSoundness flips single bytes across every component of the
// transcript and expects verification to fail each time.
func TestDLEQSoundness(t *testing.T) {
	c := qt.New(t)
	ctx := []byte("soundness-context")
	key := NewSecretKey()
	blinded, _, err := Blind([]byte("input"), ctx)
	c.Assert(err, qt.IsNil)
	token, err := key.Evaluate(blinded, ctx)
	c.Assert(err, qt.IsNil)
	pub := key.Public()

	c.Assert(Verify(token, pub, ctx), qt.IsNil)

	// Flip one byte in A, B, c and s regions of the token.
	for _, offset := range []int{5, PointLen + 5, 2*PointLen + 3, 2*PointLen + ScalarLen + 3} {
		mutated := append([]byte{}, token...)
		mutated[offset] ^= 0x01
		c.Assert(Verify(mutated, pub, ctx), qt.IsNotNil,
			qt.Commentf("byte flip at offset %d accepted", offset))
	}

	// Wrong issuer key.
	other := NewSecretKey()
	c.Assert(Verify(token, other.Public(), ctx), qt.IsNotNil)

	// Wrong context.
	c.Assert(Verify(token, pub, []byte("other-context")), qt.Equals, ErrInvalidDLEQ)
}

func TestEvaluateUnderWrongKeyFails(t *testing.T) {
	c := qt.New(t)
	ctx := []byte("ctx")
	key := NewSecretKey()
	evil := NewSecretKey()

	blinded, state, err := Blind([]byte("input"), ctx)
	c.Assert(err, qt.IsNil)

	// Token evaluated under one key but claimed under another.
	token, err := evil.Evaluate(blinded, ctx)
	c.Assert(err, qt.IsNil)
	_, err = Finalize(state, token, key.Public(), ctx)
	c.Assert(err, qt.IsNotNil)
}

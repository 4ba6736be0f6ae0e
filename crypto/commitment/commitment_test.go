package commitment

import (
	"crypto/sha256"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHashConcatenation(t *testing.T) {
	c := qt.New(t)
	want := sha256.Sum256([]byte("abcdef"))
	c.Assert(Hash([]byte("abc"), []byte("def")), qt.DeepEquals, want[:])
	c.Assert(Hash([]byte("abcdef")), qt.DeepEquals, want[:])
}

func TestNullifierBindsBallot(t *testing.T) {
	c := qt.New(t)
	secret := []byte("0123456789abcdef0123456789abcdef")
	n1 := Nullifier(secret, "ballot-1")
	n2 := Nullifier(secret, "ballot-2")
	c.Assert(n1, qt.HasLen, 32)
	c.Assert(Equal(n1, n2), qt.IsFalse)
	c.Assert(Nullifier(secret, "ballot-1"), qt.DeepEquals, n1)
}

func TestCommitVerify(t *testing.T) {
	c := qt.New(t)
	salt := []byte("a-32-byte-salt-value-for-testing")
	commit := Commit("Red", salt)

	c.Assert(VerifyCommit(commit, "Red", salt), qt.IsTrue)
	c.Assert(VerifyCommit(commit, "Blue", salt), qt.IsFalse)
	c.Assert(VerifyCommit(commit, "Red", []byte("another-salt-entirely-goes-here!")), qt.IsFalse)
}

func TestEqualLengthMismatch(t *testing.T) {
	c := qt.New(t)
	c.Assert(Equal([]byte{1, 2, 3}, []byte{1, 2}), qt.IsFalse)
	c.Assert(Equal(nil, nil), qt.IsTrue)
}

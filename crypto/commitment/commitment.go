// Package commitment provides the hash primitives binding votes to their
// reveals: SHA-256 chain hashing, per-ballot nullifiers, vote commitments
// and constant-time comparison.
package commitment

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Hash returns SHA-256 over the raw concatenation of its arguments.
// Strings are passed as their UTF-8 bytes.
func Hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Nullifier derives the per-voter-per-ballot handle
// H(voter_secret || ballot_id). The voter secret never reaches the service;
// this function exists for clients and tests.
func Nullifier(voterSecret []byte, ballotID string) []byte {
	return Hash(voterSecret, []byte(ballotID))
}

// Commit computes the vote commitment H(serialized || salt), where
// serialized is the canonical vote-data string (the bare choice for
// single-choice votes).
func Commit(serialized string, salt []byte) []byte {
	return Hash([]byte(serialized), salt)
}

// Equal compares two hashes in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// VerifyCommit recomputes the commitment over (serialized, salt) and
// compares it to the expected value in constant time.
func VerifyCommit(expected []byte, serialized string, salt []byte) bool {
	return Equal(expected, Commit(serialized, salt))
}

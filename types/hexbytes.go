package types

import (
	"encoding/hex"
	"fmt"
)

const (
	// HashLen is the length in bytes of every hash handled by the core:
	// nullifiers, commitments, salts and attested digests.
	HashLen = 32

	// PubKeyLen is the length of an Edwards-25519 public key.
	PubKeyLen = 32

	// SignatureLen is the length of an Edwards-25519 signature.
	SignatureLen = 64
)

// HexBytes is a byte slice that marshals to and from a hex string in JSON.
// External interfaces render all hashes and keys as bare hex (no 0x prefix),
// but the 0x prefix is accepted on input.
type HexBytes []byte

// String returns the hex representation of b.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// SetString decodes a hex string (with or without 0x prefix) into b.
func (b *HexBytes) SetString(s string) error {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	d, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = d
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+2)
	enc[0] = '"'
	hex.Encode(enc[1:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid hex string %q", data)
	}
	return b.SetString(string(data[1 : len(data)-1]))
}

// IsHash reports whether b is a well-formed 32-byte hash.
func (b HexBytes) IsHash() bool {
	return len(b) == HashLen
}

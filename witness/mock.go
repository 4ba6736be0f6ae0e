package witness

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/types"
)

// Mock is an in-process witness set backed by ed25519 signers. It is
// behaviorally equivalent to the real service at the attestation boundary
// and is the default collaborator in tests.
type Mock struct {
	signers map[string]ed25519.PrivateKey
	ids     []string
	quorum  int
	clk     clock.Clock
}

// NewMock creates a witness set of n signers with the given quorum.
func NewMock(n, quorum int, clk clock.Clock) (*Mock, error) {
	if quorum < 1 || quorum > n {
		return nil, fmt.Errorf("invalid quorum %d for %d witnesses", quorum, n)
	}
	m := &Mock{
		signers: make(map[string]ed25519.PrivateKey, n),
		quorum:  quorum,
		clk:     clk,
	}
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, err
		}
		id := types.HexBytes(pub).String()
		m.signers[id] = priv
		m.ids = append(m.ids, id)
	}
	return m, nil
}

// IDs returns the witness identifiers, which double as hex-encoded ed25519
// public keys.
func (m *Mock) IDs() []string {
	return append([]string{}, m.ids...)
}

// Attest signs the hash with every witness at the current clock time.
func (m *Mock) Attest(_ context.Context, hash []byte) (*types.WitnessAttestation, error) {
	ts := m.clk.Now().Unix()
	att := &types.WitnessAttestation{
		TargetHash:       hash,
		TimestampSeconds: ts,
		WitnessIDs:       m.IDs(),
	}
	msg := attestMessage(att.TargetHash, ts)
	for _, id := range m.ids {
		att.Signatures = append(att.Signatures, types.WitnessSignature{
			WitnessID: id,
			Signature: ed25519.Sign(m.signers[id], msg),
		})
	}
	return att, nil
}

// Verify checks that the attestation carries at least quorum valid
// signatures from known witnesses.
func (m *Mock) Verify(_ context.Context, att *types.WitnessAttestation) (bool, error) {
	if att == nil {
		return false, nil
	}
	msg := attestMessage(att.TargetHash, att.TimestampSeconds)
	valid := 0
	seen := make(map[string]bool, len(att.Signatures))
	for _, sig := range att.Signatures {
		if seen[sig.WitnessID] {
			continue
		}
		seen[sig.WitnessID] = true
		var pub types.HexBytes
		if err := pub.SetString(sig.WitnessID); err != nil || len(pub) != ed25519.PublicKeySize {
			continue
		}
		if _, known := m.signers[sig.WitnessID]; !known {
			continue
		}
		if ed25519.Verify(ed25519.PublicKey(pub), msg, sig.Signature) {
			valid++
		}
	}
	return valid >= m.quorum, nil
}

// Health always succeeds for the in-process witness.
func (m *Mock) Health(context.Context) error {
	return nil
}

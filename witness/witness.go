// Package witness defines the timestamp-attestation collaborator: a BFT
// set of signers that attest that a hash existed at a given time. The core
// only consumes the attestation timestamp and validates the signature set
// against the configured quorum.
package witness

import (
	"context"
	"strconv"

	"github.com/flammafex/prestige/types"
)

// Witness is the attestation collaborator interface.
type Witness interface {
	// Attest produces a quorum-signed attestation over hash.
	Attest(ctx context.Context, hash []byte) (*types.WitnessAttestation, error)
	// Verify checks the attestation's signature set.
	Verify(ctx context.Context, att *types.WitnessAttestation) (bool, error)
	// Health reports whether the witness service is reachable.
	Health(ctx context.Context) error
}

// attestMessage is the byte string each witness signs: a domain tag, the
// target hash and the attested timestamp.
func attestMessage(hash types.HexBytes, timestampSeconds int64) []byte {
	msg := "prestige-witness-v1|" + hash.String() + "|" + strconv.FormatInt(timestampSeconds, 10)
	return []byte(msg)
}

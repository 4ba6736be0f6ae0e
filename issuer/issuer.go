// Package issuer defines the eligibility-token collaborator: a VOPRF
// issuer whose private key the core never holds. The core blinds voter
// inputs, submits them for evaluation, and later verifies the returned
// tokens' DLEQ proofs, either locally or through the issuer's verify
// endpoint.
package issuer

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/crypto/voprf"
	"github.com/flammafex/prestige/types"
)

// TokenContext is the domain-separation context shared by blinding,
// issuance and verification.
var TokenContext = []byte("prestige-eligibility-v1")

// Metadata is the issuer's published identity.
type Metadata struct {
	IssuerID     string         `json:"issuer_id"`
	VOPRFPubKey  types.HexBytes `json:"voprf_pubkey"`
	CurrentEpoch uint64         `json:"current_epoch"`
}

// Issuer evaluates blinded elements into eligibility tokens.
type Issuer interface {
	// Metadata fetches the issuer identity and VOPRF public key.
	Metadata(ctx context.Context) (*Metadata, error)
	// Issue evaluates a blinded element and returns the full token.
	Issue(ctx context.Context, blinded []byte) (*types.EligibilityToken, error)
}

// Verifier checks eligibility tokens presented at vote admission.
type Verifier interface {
	VerifyToken(ctx context.Context, token *types.EligibilityToken) error
}

// LocalVerifier verifies tokens offline against a pinned issuer public
// key: the DLEQ proof is self-contained, so no issuer round-trip is
// needed.
type LocalVerifier struct {
	pub types.HexBytes
	clk clock.Clock
}

// NewLocalVerifier pins the issuer public key.
func NewLocalVerifier(pub types.HexBytes, clk clock.Clock) *LocalVerifier {
	return &LocalVerifier{pub: pub, clk: clk}
}

// VerifyToken checks key binding, expiry and the DLEQ proof.
func (v *LocalVerifier) VerifyToken(_ context.Context, token *types.EligibilityToken) error {
	if token == nil {
		return types.ErrInvalidProof.With("missing token")
	}
	if token.IssuerPublicKey.String() != v.pub.String() {
		return types.ErrInvalidProof.With("unknown issuer key")
	}
	if token.ExpiresAtMS > 0 && v.clk.Now().UnixMilli() > token.ExpiresAtMS {
		return types.ErrInvalidProof.With("token expired")
	}
	if err := voprf.Verify(token.TokenBytes, v.pub, TokenContext); err != nil {
		return types.ErrInvalidProof.WithErr(err)
	}
	return nil
}

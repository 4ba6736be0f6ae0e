// Package gossip implements epidemic distribution of votes, reveals,
// ballots and results among peers, with local double-vote detection, peer
// reputation and a bounded nullifier cache. It runs alongside the
// admission path and observes storage through the same store interface.
package gossip

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/flammafex/prestige/types"
)

// Envelope message types.
const (
	MsgVote   = "vote"
	MsgReveal = "reveal"
	MsgBallot = "ballot"
	MsgResult = "result"
)

// Envelope is the signed unit of gossip. The signature is by Sender over
// the canonical JSON of {nonce, payload, timestamp_ms, type} with
// object keys sorted ascending.
type Envelope struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Sender      types.HexBytes  `json:"sender_pk"`
	Signature   types.HexBytes  `json:"signature"`
	Nonce       types.HexBytes  `json:"nonce"`
	TimestampMS int64           `json:"timestamp_ms"`
}

// signingPayload has its fields in ascending key order; encoding/json
// preserves struct field order, which makes the output canonical.
type signingPayload struct {
	Nonce       types.HexBytes  `json:"nonce"`
	Payload     json.RawMessage `json:"payload"`
	TimestampMS int64           `json:"timestamp_ms"`
	Type        string          `json:"type"`
}

func (e *Envelope) signingBytes() ([]byte, error) {
	return json.Marshal(&signingPayload{
		Nonce:       e.Nonce,
		Payload:     e.Payload,
		TimestampMS: e.TimestampMS,
		Type:        e.Type,
	})
}

// Sign sets Sender and Signature from the private key.
func (e *Envelope) Sign(priv ed25519.PrivateKey) error {
	data, err := e.signingBytes()
	if err != nil {
		return err
	}
	e.Sender = types.HexBytes(priv.Public().(ed25519.PublicKey))
	e.Signature = ed25519.Sign(priv, data)
	return nil
}

// VerifySignature checks the signature against the in-envelope sender key.
// A relay-attached peer id never overrides the in-envelope sender.
func (e *Envelope) VerifySignature() bool {
	if len(e.Sender) != ed25519.PublicKeySize || len(e.Signature) != ed25519.SignatureSize {
		return false
	}
	data, err := e.signingBytes()
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(e.Sender), data, e.Signature)
}

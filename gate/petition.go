package gate

import (
	"context"
	"crypto/ed25519"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// Activator transitions a petition ballot into the voting phase. The
// ballot manager implements it; the indirection keeps the gate package
// free of a back-reference into lifecycle code.
type Activator interface {
	Activate(ctx context.Context, ballotID string) error
}

// SignatureStatus reports the outcome of one AddSignature call. Only the
// call that crosses the threshold carries JustActivated.
type SignatureStatus struct {
	Added         bool `json:"added"`
	Activated     bool `json:"activated"`
	JustActivated bool `json:"just_activated,omitempty"`
	Count         int  `json:"count"`
}

// Petition collects activation signatures for petition-gated ballots.
type Petition struct {
	store     *storage.Store
	voters    VoterGate
	threshold int
	activator Activator
	clk       clock.Clock
}

// NewPetition wires the petition signature collector.
func NewPetition(store *storage.Store, voters VoterGate, threshold int, activator Activator, clk clock.Clock) *Petition {
	return &Petition{
		store:     store,
		voters:    voters,
		threshold: threshold,
		activator: activator,
		clk:       clk,
	}
}

// AddSignature records one voter's support for activating the ballot.
// The signature must be by pk over the raw ballot id bytes. A repeated
// (ballot, key) pair is not an error: it reports Added=false with the
// current activation state.
func (p *Petition) AddSignature(ctx context.Context, ballotID string, pk, sig types.HexBytes) (*SignatureStatus, error) {
	eligible, err := p.voters.CanVote(ctx, pk)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if !eligible {
		return nil, types.ErrNotEligible.With(p.voters.Requirements())
	}
	if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize ||
		!ed25519.Verify(ed25519.PublicKey(pk), []byte(ballotID), sig) {
		return nil, types.ErrInvalidSignature.With("petition signature rejected")
	}

	count, err := p.store.CountPetitionSignatures(ballotID)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	added, err := p.store.SetPetitionSignature(&types.PetitionSignature{
		BallotID:    ballotID,
		PublicKey:   pk,
		Signature:   sig,
		TimestampMS: p.clk.Now().UnixMilli(),
	})
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if !added {
		return &SignatureStatus{
			Added:     false,
			Activated: count >= p.threshold,
			Count:     count,
		}, nil
	}
	count++

	status := &SignatureStatus{
		Added:     true,
		Activated: count >= p.threshold,
		Count:     count,
	}
	// The first crossing carries the activation; later signatures only
	// observe it.
	if count == p.threshold {
		status.JustActivated = true
		log.Infow("petition threshold reached", "ballotID", ballotID, "signatures", count)
		if err := p.activator.Activate(ctx, ballotID); err != nil {
			return nil, err
		}
	}
	return status, nil
}

package admission

import (
	"context"

	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// CastVote admits a hidden vote. The checks run in a fixed order, each
// short-circuiting: ballot existence, phase, input shape, nullifier
// uniqueness, eligibility proof, and finally the witness attestation whose
// timestamp must not exceed the ballot deadline. Once persistence begins
// the call runs to completion.
func (a *Admission) CastVote(ctx context.Context, ballotID string, commit, nullifier types.HexBytes, proof *types.EligibilityToken) (*types.Vote, error) {
	if err := a.privacy.RandomDelay(ctx); err != nil {
		return nil, err
	}

	b, err := a.ballots.Refresh(ballotID)
	if err != nil {
		return nil, err
	}
	if b.Status == types.BallotStatusPetition {
		return nil, types.ErrBallotInPetition
	}
	now := a.clk.Now().UnixMilli()
	if now >= b.DeadlineMS {
		return nil, types.ErrBallotClosed
	}
	if !commit.IsHash() || !nullifier.IsHash() {
		return nil, types.ErrInvalidCommitment.Withf("commitment %d bytes, nullifier %d bytes",
			len(commit), len(nullifier))
	}

	unlock := a.lockNullifier(ballotID, nullifier)
	defer unlock()

	used, err := a.store.HasNullifier(ballotID, nullifier)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if used {
		return nil, types.ErrDoubleVote
	}
	if err := a.verifier.VerifyToken(ctx, proof); err != nil {
		return nil, err
	}

	att, err := a.witness.Attest(ctx, commitment.Hash([]byte(ballotID), nullifier, commit))
	if err != nil {
		return nil, types.ErrWitnessUnavailable.WithErr(err)
	}
	if att.TimestampSeconds*1000 > b.DeadlineMS {
		return nil, types.ErrTooLate
	}

	vote := &types.Vote{
		BallotID:    ballotID,
		Nullifier:   nullifier,
		Commitment:  commit,
		Proof:       proof,
		Attestation: att,
	}
	added, err := a.store.SetVote(vote)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if !added {
		return nil, types.ErrDoubleVote
	}
	log.Debugw("vote admitted", "ballotID", ballotID, "nullifier", nullifier.String())

	if err := a.privacy.RandomDelay(ctx); err != nil {
		return nil, err
	}
	return vote, nil
}

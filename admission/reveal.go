package admission

import (
	"context"

	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// SubmitReveal opens a previously committed vote. The ballot must be in
// its reveal window, the original vote must exist, the structured vote
// data must satisfy the ballot's bounds, and the recomputed commitment
// must match the stored one in constant time.
func (a *Admission) SubmitReveal(ctx context.Context, ballotID string, nullifier types.HexBytes, choice string, salt types.HexBytes, voteData *types.VoteData) (*types.Reveal, error) {
	if err := a.privacy.RandomDelay(ctx); err != nil {
		return nil, err
	}

	b, err := a.ballots.Refresh(ballotID)
	if err != nil {
		return nil, err
	}
	now := a.clk.Now().UnixMilli()
	if now < b.DeadlineMS || b.Status == types.BallotStatusPetition {
		return nil, types.ErrBallotClosed.With("reveal window not open")
	}
	if now >= b.RevealDeadlineMS {
		return nil, types.ErrBallotNotRevealing.With("reveal window elapsed")
	}
	if !nullifier.IsHash() {
		return nil, types.ErrInvalidCommitment.Withf("nullifier %d bytes", len(nullifier))
	}

	unlock := a.lockNullifier(ballotID+"#reveal", nullifier)
	defer unlock()

	vote, err := a.store.VoteByNullifier(ballotID, nullifier)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, types.ErrInvalidReveal.With("no matching vote")
		}
		return nil, types.ErrStore.WithErr(err)
	}

	// The client either supplies structured vote data matching the
	// ballot's type, or the legacy single-choice pair.
	data := voteData
	if data != nil && data.Type != b.VoteType.Type {
		return nil, types.ErrInvalidReveal.Withf("vote data type %q for %q ballot",
			data.Type, b.VoteType.Type)
	}
	if data == nil {
		data = types.SingleVote(choice)
		if b.VoteType.Type != types.VoteTypeSingle {
			return nil, types.ErrInvalidReveal.Withf("structured vote data required for %q ballot",
				b.VoteType.Type)
		}
	}
	if err := data.Validate(b); err != nil {
		return nil, types.ErrInvalidReveal.WithErr(err)
	}
	if !commitment.VerifyCommit(vote.Commitment, data.Serialize(), salt) {
		return nil, types.ErrInvalidReveal.With("commitment mismatch")
	}

	reveal := &types.Reveal{
		BallotID:  ballotID,
		Nullifier: nullifier,
		Choice:    choice,
		Salt:      salt,
		VoteData:  voteData,
	}
	added, err := a.store.SetReveal(reveal)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if !added {
		return nil, types.ErrInvalidReveal.With("already revealed")
	}
	log.Debugw("reveal admitted", "ballotID", ballotID, "nullifier", nullifier.String())

	if err := a.privacy.RandomDelay(ctx); err != nil {
		return nil, err
	}
	return reveal, nil
}

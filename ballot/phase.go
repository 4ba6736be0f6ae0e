package ballot

import "github.com/flammafex/prestige/types"

// PhaseAt computes the lifecycle phase of a ballot at a given wall time.
// Petition is sticky until activation: time alone never leaves it.
// Finalized is derived from the clock here; Refresh makes it sticky in the
// store.
func PhaseAt(b *types.Ballot, nowMS int64) types.BallotStatus {
	switch {
	case b.Status == types.BallotStatusPetition:
		return types.BallotStatusPetition
	case b.Status == types.BallotStatusFinalized:
		return types.BallotStatusFinalized
	case nowMS < b.DeadlineMS:
		return types.BallotStatusVoting
	case nowMS < b.RevealDeadlineMS:
		return types.BallotStatusRevealing
	default:
		return types.BallotStatusFinalized
	}
}

// Package tally computes the final result of a ballot across the four
// voting methods and persists it as an attested, idempotent record.
package tally

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/log"
	"golang.org/x/sync/singleflight"
)

// Engine computes and stores ballot results.
type Engine struct {
	store   *storage.Store
	ballots *ballot.Manager
	witness witness.Witness
	clk     clock.Clock
	sf      singleflight.Group
}

// New wires the tally engine.
func New(store *storage.Store, ballots *ballot.Manager, w witness.Witness, clk clock.Clock) *Engine {
	return &Engine{store: store, ballots: ballots, witness: w, clk: clk}
}

// ComputeResult returns the ballot's result, computing and persisting it
// on first call. Concurrent callers share one computation through
// singleflight; the stored result is returned without recomputation
// afterwards.
func (e *Engine) ComputeResult(ctx context.Context, ballotID string) (*types.Result, error) {
	if res, err := e.store.Result(ballotID); err == nil {
		return res, nil
	} else if err != storage.ErrNotFound {
		return nil, types.ErrStore.WithErr(err)
	}

	v, err, _ := e.sf.Do(ballotID, func() (any, error) {
		// A racing caller may have stored the result meanwhile; the
		// upsert makes the race harmless, but rechecking avoids a
		// duplicate witness round-trip.
		if res, err := e.store.Result(ballotID); err == nil {
			return res, nil
		}
		return e.compute(ctx, ballotID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Result), nil
}

func (e *Engine) compute(ctx context.Context, ballotID string) (*types.Result, error) {
	b, err := e.ballots.Refresh(ballotID)
	if err != nil {
		return nil, err
	}
	if b.Status != types.BallotStatusFinalized {
		return nil, types.ErrBallotClosed.Withf("ballot is %s, not finalized", b.Status)
	}

	votes, err := e.store.VotesByBallot(ballotID)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	reveals, err := e.store.RevealsByBallot(ballotID)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	valid := e.validReveals(b, votes, reveals)

	res := &types.Result{
		BallotID:     ballotID,
		TotalVotes:   len(votes),
		TotalReveals: len(reveals),
		ValidReveals: len(valid),
		FinalizedMS:  e.clk.Now().UnixMilli(),
		VoteType:     b.VoteType.Type,
	}
	switch b.VoteType.Type {
	case types.VoteTypeApproval:
		res.Tally = tallyApproval(b, valid)
	case types.VoteTypeRanked:
		res.Tally, res.RankedRounds = tallyRanked(b, valid)
	case types.VoteTypeScore:
		res.Tally, res.AverageScores = tallyScore(b, valid)
	default:
		res.Tally = tallySingle(b, valid)
	}
	res.Winner = winner(res)

	att, err := e.witness.Attest(ctx, resultHash(res))
	if err != nil {
		return nil, types.ErrWitnessUnavailable.WithErr(err)
	}
	res.Attestation = att

	if err := e.store.SetResult(res); err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	log.Infow("ballot finalized", "ballotID", ballotID, "voteType", res.VoteType,
		"totalVotes", res.TotalVotes, "validReveals", res.ValidReveals, "winner", res.Winner)
	return res, nil
}

// validReveals filters reveals to those whose vote data passes the
// ballot's bounds and whose recomputed commitment matches the stored vote.
func (e *Engine) validReveals(b *types.Ballot, votes []*types.Vote, reveals []*types.Reveal) []*types.VoteData {
	byNullifier := make(map[string]*types.Vote, len(votes))
	for _, v := range votes {
		byNullifier[v.Nullifier.String()] = v
	}
	var valid []*types.VoteData
	for _, r := range reveals {
		vote, ok := byNullifier[r.Nullifier.String()]
		if !ok {
			continue
		}
		data := r.Data()
		if err := data.Validate(b); err != nil {
			log.Debugw("discarding invalid reveal", "ballotID", b.ID,
				"nullifier", r.Nullifier.String(), "error", err.Error())
			continue
		}
		if !commitment.VerifyCommit(vote.Commitment, data.Serialize(), r.Salt) {
			log.Debugw("discarding reveal with commitment mismatch",
				"ballotID", b.ID, "nullifier", r.Nullifier.String())
			continue
		}
		valid = append(valid, data)
	}
	return valid
}

func tallySingle(b *types.Ballot, reveals []*types.VoteData) map[string]int {
	tally := emptyTally(b)
	for _, r := range reveals {
		tally[r.Choice]++
	}
	return tally
}

func tallyApproval(b *types.Ballot, reveals []*types.VoteData) map[string]int {
	tally := emptyTally(b)
	for _, r := range reveals {
		for _, c := range r.Choices {
			tally[c]++
		}
	}
	return tally
}

func tallyScore(b *types.Ballot, reveals []*types.VoteData) (map[string]int, map[string]float64) {
	sums := emptyTally(b)
	counts := emptyTally(b)
	for _, r := range reveals {
		for c, s := range r.Scores {
			sums[c] += s
			counts[c]++
		}
	}
	averages := make(map[string]float64, len(b.Choices))
	for _, c := range b.Choices {
		if counts[c] > 0 {
			averages[c] = float64(sums[c]) / float64(counts[c])
		} else {
			averages[c] = 0
		}
	}
	return sums, averages
}

func emptyTally(b *types.Ballot) map[string]int {
	tally := make(map[string]int, len(b.Choices))
	for _, c := range b.Choices {
		tally[c] = 0
	}
	return tally
}

// winner returns the choice with the most tally votes, breaking ties by
// ASCII order. For ranked ballots the final round decides.
func winner(res *types.Result) string {
	votes := res.Tally
	if res.VoteType == types.VoteTypeRanked && len(res.RankedRounds) > 0 {
		votes = res.RankedRounds[len(res.RankedRounds)-1].Votes
	}
	best := ""
	bestVotes := -1
	choices := make([]string, 0, len(votes))
	for c := range votes {
		choices = append(choices, c)
	}
	sort.Strings(choices)
	for _, c := range choices {
		if votes[c] > bestVotes {
			best = c
			bestVotes = votes[c]
		}
	}
	return best
}

// resultHash is the digest the witness attests:
// H(ballot_id, canonical_json(tally), total_votes, valid_reveals).
func resultHash(res *types.Result) []byte {
	// json.Marshal sorts map keys, which makes this canonical.
	tallyJSON, err := json.Marshal(res.Tally)
	if err != nil {
		panic(err)
	}
	return commitment.Hash(
		[]byte(res.BallotID),
		tallyJSON,
		[]byte(strconv.Itoa(res.TotalVotes)),
		[]byte(strconv.Itoa(res.ValidReveals)),
	)
}

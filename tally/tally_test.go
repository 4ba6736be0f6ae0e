package tally

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	qt "github.com/frankban/quicktest"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/gate"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/util"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/db/metadb"
)

type fixture struct {
	engine  *Engine
	ballots *ballot.Manager
	store   *storage.Store
	clock   *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	c := qt.New(t)
	mock := clock.NewMock()
	mock.Set(time.Unix(1700000000, 0))
	cfg := types.DefaultConfig()
	cfg.BallotGate = types.BallotGateOpen
	cfg.VoterGate = types.VoterGateOpen
	st := storage.New(metadb.NewTest(t))
	w, err := witness.NewMock(3, 2, mock)
	c.Assert(err, qt.IsNil)
	gates, err := gate.FromConfig(cfg, nil)
	c.Assert(err, qt.IsNil)
	ballots := ballot.NewManager(st, cfg, mock, w, gates.Ballot)
	return &fixture{
		engine:  New(st, ballots, w, mock),
		ballots: ballots,
		store:   st,
		clock:   mock,
	}
}

func (f *fixture) createBallot(t *testing.T, choices []string, vt types.VoteTypeConfig) *types.Ballot {
	c := qt.New(t)
	b, err := f.ballots.Create(context.Background(), &ballot.CreateRequest{
		Question:         "q",
		Choices:          choices,
		Duration:         time.Hour,
		VoteType:         vt,
		CreatorPublicKey: util.Random32(),
	})
	c.Assert(err, qt.IsNil)
	return b
}

// commitAndReveal stores a matching vote/reveal pair for the given data.
func (f *fixture) commitAndReveal(t *testing.T, ballotID string, data *types.VoteData) {
	c := qt.New(t)
	salt := util.Random32()
	nullifier := commitment.Nullifier(util.Random32(), ballotID)
	_, err := f.store.SetVote(&types.Vote{
		BallotID:   ballotID,
		Nullifier:  nullifier,
		Commitment: commitment.Commit(data.Serialize(), salt),
	})
	c.Assert(err, qt.IsNil)
	reveal := &types.Reveal{BallotID: ballotID, Nullifier: nullifier, Salt: salt}
	if data.Type == types.VoteTypeSingle {
		reveal.Choice = data.Choice
	} else {
		reveal.VoteData = data
	}
	_, err = f.store.SetReveal(reveal)
	c.Assert(err, qt.IsNil)
}

func (f *fixture) finalize() {
	f.clock.Add(time.Hour + types.DefaultConfig().RevealWindow)
}

func TestSingleTally(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"R", "B", "G"}, types.VoteTypeConfig{Type: types.VoteTypeSingle})

	for _, choice := range []string{"R", "R", "B"} {
		f.commitAndReveal(t, b.ID, types.SingleVote(choice))
	}
	f.finalize()

	res, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Tally, qt.DeepEquals, map[string]int{"R": 2, "B": 1, "G": 0})
	c.Assert(res.TotalVotes, qt.Equals, 3)
	c.Assert(res.ValidReveals, qt.Equals, 3)
	c.Assert(res.Winner, qt.Equals, "R")
	c.Assert(res.Attestation, qt.IsNotNil)
}

func TestTallyRequiresFinalizedBallot(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"R", "B"}, types.VoteTypeConfig{Type: types.VoteTypeSingle})

	_, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.ErrorIs, types.ErrBallotClosed)
}

func TestTallyIgnoresMismatchedReveals(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"R", "B"}, types.VoteTypeConfig{Type: types.VoteTypeSingle})

	f.commitAndReveal(t, b.ID, types.SingleVote("R"))

	// A reveal whose salt does not reproduce the commitment counts as a
	// reveal but not as a valid one.
	nullifier := commitment.Nullifier(util.Random32(), b.ID)
	_, err := f.store.SetVote(&types.Vote{
		BallotID:   b.ID,
		Nullifier:  nullifier,
		Commitment: commitment.Commit("B", util.Random32()),
	})
	c.Assert(err, qt.IsNil)
	_, err = f.store.SetReveal(&types.Reveal{
		BallotID:  b.ID,
		Nullifier: nullifier,
		Choice:    "B",
		Salt:      util.Random32(),
	})
	c.Assert(err, qt.IsNil)

	f.finalize()
	res, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(res.TotalReveals, qt.Equals, 2)
	c.Assert(res.ValidReveals, qt.Equals, 1)
	c.Assert(res.Tally["R"], qt.Equals, 1)
	c.Assert(res.Tally["B"], qt.Equals, 0)
}

func TestApprovalTally(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"R", "B", "G"}, types.VoteTypeConfig{Type: types.VoteTypeApproval})

	f.commitAndReveal(t, b.ID, &types.VoteData{Type: types.VoteTypeApproval, Choices: []string{"R", "B"}})
	f.commitAndReveal(t, b.ID, &types.VoteData{Type: types.VoteTypeApproval, Choices: []string{"B"}})
	f.finalize()

	res, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Tally, qt.DeepEquals, map[string]int{"R": 1, "B": 2, "G": 0})
	c.Assert(res.Winner, qt.Equals, "B")
}

func TestScoreTally(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"R", "B"}, types.VoteTypeConfig{Type: types.VoteTypeScore})

	f.commitAndReveal(t, b.ID, &types.VoteData{Type: types.VoteTypeScore, Scores: map[string]int{"R": 10, "B": 4}})
	f.commitAndReveal(t, b.ID, &types.VoteData{Type: types.VoteTypeScore, Scores: map[string]int{"R": 5}})
	f.finalize()

	res, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Tally, qt.DeepEquals, map[string]int{"R": 15, "B": 4})
	c.Assert(res.AverageScores["R"], qt.Equals, 7.5)
	c.Assert(res.AverageScores["B"], qt.Equals, 4.0)
	c.Assert(res.Winner, qt.Equals, "R")
}

// TestRankedTieBreak follows the instant-runoff seed scenario: with
// rankings [A,B] [B,C] [C,A] [A,C] [B,A], C is eliminated first by ASCII
// tie-break and A wins round two.
func TestRankedTieBreak(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"A", "B", "C"},
		types.VoteTypeConfig{Type: types.VoteTypeRanked, MinRankings: 1, MaxRankings: 3})

	for _, rankings := range [][]string{
		{"A", "B"}, {"B", "C"}, {"C", "A"}, {"A", "C"}, {"B", "A"},
	} {
		f.commitAndReveal(t, b.ID, &types.VoteData{Type: types.VoteTypeRanked, Rankings: rankings})
	}
	f.finalize()

	res, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(res.RankedRounds, qt.HasLen, 2)

	c.Assert(res.RankedRounds[0].Votes, qt.DeepEquals, map[string]int{"A": 2, "B": 2, "C": 1})
	c.Assert(res.RankedRounds[0].Eliminated, qt.Equals, "C")

	c.Assert(res.RankedRounds[1].Votes, qt.DeepEquals, map[string]int{"A": 3, "B": 2})
	c.Assert(res.RankedRounds[1].Eliminated, qt.Equals, "")
	c.Assert(res.Winner, qt.Equals, "A")
}

// TestRankedDeterminism recomputes the rounds from the same reveals and
// expects identical output.
func TestRankedDeterminism(t *testing.T) {
	c := qt.New(t)
	b := &types.Ballot{
		ID:      "b",
		Choices: []string{"A", "B", "C", "D"},
		VoteType: types.VoteTypeConfig{
			Type: types.VoteTypeRanked, MinRankings: 1, MaxRankings: 4,
		},
	}
	reveals := []*types.VoteData{
		{Type: types.VoteTypeRanked, Rankings: []string{"A", "D"}},
		{Type: types.VoteTypeRanked, Rankings: []string{"B", "D"}},
		{Type: types.VoteTypeRanked, Rankings: []string{"C", "A"}},
		{Type: types.VoteTypeRanked, Rankings: []string{"D", "B"}},
	}
	tally1, rounds1 := tallyRanked(b, reveals)
	tally2, rounds2 := tallyRanked(b, reveals)
	c.Assert(tally1, qt.DeepEquals, tally2)
	c.Assert(rounds1, qt.DeepEquals, rounds2)
}

func TestComputeResultIdempotent(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, []string{"R", "B"}, types.VoteTypeConfig{Type: types.VoteTypeSingle})
	f.commitAndReveal(t, b.ID, types.SingleVote("R"))
	f.finalize()

	first, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)

	// A later call returns the stored result even after more time
	// passes; the finalization timestamp does not move.
	f.clock.Add(time.Hour)
	second, err := f.engine.ComputeResult(context.Background(), b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(second.Tally, qt.DeepEquals, first.Tally)
	c.Assert(second.TotalVotes, qt.Equals, first.TotalVotes)
	c.Assert(second.ValidReveals, qt.Equals, first.ValidReveals)
	c.Assert(second.FinalizedMS, qt.Equals, first.FinalizedMS)
}

package storage

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/util"
	"go.vocdoni.io/dvote/db/metadb"
)

func testStore(t *testing.T) *Store {
	st := New(metadb.NewTest(t))
	return st
}

func TestBallotRoundTrip(t *testing.T) {
	c := qt.New(t)
	st := testStore(t)

	_, err := st.Ballot("missing")
	c.Assert(err, qt.Equals, ErrNotFound)

	b := &types.Ballot{
		ID:               "ballot-1",
		Question:         "Color?",
		Choices:          []string{"R", "B", "G"},
		CreatedMS:        1000,
		DeadlineMS:       2000,
		RevealDeadlineMS: 3000,
		VoteType:         types.VoteTypeConfig{Type: types.VoteTypeSingle},
		Status:           types.BallotStatusVoting,
	}
	c.Assert(st.SetBallot(b), qt.IsNil)

	got, err := st.Ballot("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Question, qt.Equals, "Color?")
	c.Assert(got.Choices, qt.DeepEquals, []string{"R", "B", "G"})
	c.Assert(got.Status, qt.Equals, types.BallotStatusVoting)

	c.Assert(st.UpdateBallotStatus("ballot-1", types.BallotStatusRevealing), qt.IsNil)
	c.Assert(st.UpdateBallotDeadlines("ballot-1", 5000, 6000), qt.IsNil)
	got, err = st.Ballot("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, types.BallotStatusRevealing)
	c.Assert(got.DeadlineMS, qt.Equals, int64(5000))
	c.Assert(got.RevealDeadlineMS, qt.Equals, int64(6000))
}

func TestListBallotsByStatus(t *testing.T) {
	c := qt.New(t)
	st := testStore(t)

	for i, status := range []types.BallotStatus{
		types.BallotStatusVoting, types.BallotStatusVoting, types.BallotStatusFinalized,
	} {
		c.Assert(st.SetBallot(&types.Ballot{
			ID:      "ballot-" + string(rune('a'+i)),
			Choices: []string{"x", "y"},
			Status:  status,
		}), qt.IsNil)
	}

	all, err := st.ListBallots(nil, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 3)

	voting := types.BallotStatusVoting
	filtered, err := st.ListBallots(&voting, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(filtered, qt.HasLen, 2)

	limited, err := st.ListBallots(&voting, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(limited, qt.HasLen, 1)
}

func TestVoteUniqueness(t *testing.T) {
	c := qt.New(t)
	st := testStore(t)
	nullifier := types.HexBytes(util.Random32())

	v := &types.Vote{
		BallotID:   "ballot-1",
		Nullifier:  nullifier,
		Commitment: util.Random32(),
	}
	added, err := st.SetVote(v)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsTrue)

	// Same key with a different commitment is ignored, not overwritten.
	dup := &types.Vote{
		BallotID:   "ballot-1",
		Nullifier:  nullifier,
		Commitment: util.Random32(),
	}
	added, err = st.SetVote(dup)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsFalse)

	got, err := st.VoteByNullifier("ballot-1", nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Commitment, qt.DeepEquals, v.Commitment)

	has, err := st.HasNullifier("ballot-1", nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsTrue)
	has, err = st.HasNullifier("ballot-2", nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)

	// The same nullifier on a different ballot is a fresh key.
	added, err = st.SetVote(&types.Vote{
		BallotID:   "ballot-2",
		Nullifier:  nullifier,
		Commitment: util.Random32(),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsTrue)

	votes, err := st.VotesByBallot("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 1)
}

func TestRevealUniqueness(t *testing.T) {
	c := qt.New(t)
	st := testStore(t)
	nullifier := types.HexBytes(util.Random32())

	r := &types.Reveal{
		BallotID:  "ballot-1",
		Nullifier: nullifier,
		Choice:    "R",
		Salt:      util.Random32(),
	}
	added, err := st.SetReveal(r)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsTrue)

	added, err = st.SetReveal(r)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsFalse)

	got, err := st.RevealByNullifier("ballot-1", nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Choice, qt.Equals, "R")

	reveals, err := st.RevealsByBallot("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(reveals, qt.HasLen, 1)
}

func TestResultUpsert(t *testing.T) {
	c := qt.New(t)
	st := testStore(t)

	_, err := st.Result("ballot-1")
	c.Assert(err, qt.Equals, ErrNotFound)

	c.Assert(st.SetResult(&types.Result{
		BallotID:   "ballot-1",
		Tally:      map[string]int{"R": 1},
		TotalVotes: 1,
	}), qt.IsNil)
	c.Assert(st.SetResult(&types.Result{
		BallotID:   "ballot-1",
		Tally:      map[string]int{"R": 2},
		TotalVotes: 2,
	}), qt.IsNil)

	got, err := st.Result("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.TotalVotes, qt.Equals, 2)
	c.Assert(got.Tally["R"], qt.Equals, 2)
}

func TestPetitionSignatureUniqueness(t *testing.T) {
	c := qt.New(t)
	st := testStore(t)
	pk := types.HexBytes(util.Random32())

	sig := &types.PetitionSignature{
		BallotID:  "ballot-1",
		PublicKey: pk,
		Signature: util.RandomBytes(64),
	}
	added, err := st.SetPetitionSignature(sig)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsTrue)

	added, err = st.SetPetitionSignature(sig)
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsFalse)

	has, err := st.HasPetitionSignature("ballot-1", pk)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsTrue)

	count, err := st.CountPetitionSignatures("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)

	sigs, err := st.PetitionSignaturesByBallot("ballot-1")
	c.Assert(err, qt.IsNil)
	c.Assert(sigs, qt.HasLen, 1)
}

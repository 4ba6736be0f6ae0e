package admission

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	qt "github.com/frankban/quicktest"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/crypto/voprf"
	"github.com/flammafex/prestige/gate"
	"github.com/flammafex/prestige/issuer"
	"github.com/flammafex/prestige/privacy"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/util"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/db/metadb"
)

type fixture struct {
	adm     *Admission
	ballots *ballot.Manager
	store   *storage.Store
	issuer  *issuer.Mock
	clock   *clock.Mock
	cfg     *types.Config
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
	iss := issuer.NewMock("test-issuer", 24*time.Hour, mock)
	gates, err := gate.FromConfig(cfg, nil)
	c.Assert(err, qt.IsNil)
	ballots := ballot.NewManager(st, cfg, mock, w, gates.Ballot)
	priv := privacy.New(cfg.Privacy, mock)
	adm := New(st, cfg, mock, ballots, iss, iss.Verifier(), w, gates.Voter, priv)

	return &fixture{adm: adm, ballots: ballots, store: st, issuer: iss, clock: mock, cfg: cfg}
}

func (f *fixture) createBallot(t *testing.T, vt types.VoteTypeConfig, duration time.Duration) *types.Ballot {
	c := qt.New(t)
	b, err := f.ballots.Create(context.Background(), &ballot.CreateRequest{
		Question:         "Color?",
		Choices:          []string{"R", "B", "G"},
		Duration:         duration,
		VoteType:         vt,
		CreatorPublicKey: util.Random32(),
	})
	c.Assert(err, qt.IsNil)
	return b
}

// voter bundles the client-side secrets of one cast.
type voter struct {
	nullifier types.HexBytes
	salt      types.HexBytes
	token     *types.EligibilityToken
}

// cast blinds a fresh voter secret, obtains a token, and casts a vote
// committing to the serialized vote data.
func (f *fixture) cast(t *testing.T, ballotID string, data *types.VoteData) *voter {
	c := qt.New(t)
	secret := util.Random32()
	blinded, state, err := voprf.Blind(secret, issuer.TokenContext)
	c.Assert(err, qt.IsNil)

	token, err := f.adm.RequestToken(context.Background(), ballotID, util.Random32(), blinded)
	c.Assert(err, qt.IsNil)
	_, err = voprf.Finalize(state, token.TokenBytes, token.IssuerPublicKey, issuer.TokenContext)
	c.Assert(err, qt.IsNil)

	v := &voter{
		nullifier: commitment.Nullifier(secret, ballotID),
		salt:      util.Random32(),
		token:     token,
	}
	commit := commitment.Commit(data.Serialize(), v.salt)
	_, err = f.adm.CastVote(context.Background(), ballotID, commit, v.nullifier, token)
	c.Assert(err, qt.IsNil)
	return v
}

func TestSingleChoiceHappyPath(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, types.VoteTypeConfig{Type: types.VoteTypeSingle}, time.Hour)

	votersByChoice := map[*voter]string{}
	for _, choice := range []string{"R", "R", "B"} {
		v := f.cast(t, b.ID, types.SingleVote(choice))
		votersByChoice[v] = choice
	}

	votes, err := f.store.VotesByBallot(b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 3)

	f.clock.Add(time.Hour)
	for v, choice := range votersByChoice {
		_, err := f.adm.SubmitReveal(context.Background(), b.ID, v.nullifier, choice, v.salt, nil)
		c.Assert(err, qt.IsNil)
	}
	reveals, err := f.store.RevealsByBallot(b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(reveals, qt.HasLen, 3)
}

func TestDoubleVoteRejected(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, types.VoteTypeConfig{Type: types.VoteTypeSingle}, time.Hour)

	v := f.cast(t, b.ID, types.SingleVote("R"))

	// Same nullifier with a fresh commitment is a double vote.
	commit := commitment.Commit("B", util.Random32())
	_, err := f.adm.CastVote(context.Background(), b.ID, commit, v.nullifier, v.token)
	c.Assert(err, qt.ErrorIs, types.ErrDoubleVote)
}

func TestCastVoteChecks(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBallot(t, types.VoteTypeConfig{Type: types.VoteTypeSingle}, time.Hour)

	token, err := f.issuer.Issue(ctx, mustBlind(t))
	c.Assert(err, qt.IsNil)

	_, err = f.adm.CastVote(ctx, "missing", util.Random32(), util.Random32(), token)
	c.Assert(err, qt.ErrorIs, types.ErrBallotNotFound)

	_, err = f.adm.CastVote(ctx, b.ID, util.RandomBytes(16), util.Random32(), token)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidCommitment)
	_, err = f.adm.CastVote(ctx, b.ID, util.Random32(), util.RandomBytes(31), token)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidCommitment)

	// A token evaluated by an unrelated issuer key fails proof checks.
	foreign := issuer.NewMock("foreign", time.Hour, f.clock)
	badToken, err := foreign.Issue(ctx, mustBlind(t))
	c.Assert(err, qt.IsNil)
	_, err = f.adm.CastVote(ctx, b.ID, util.Random32(), util.Random32(), badToken)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidProof)

	// Past the deadline the ballot is closed.
	f.clock.Add(2 * time.Hour)
	_, err = f.adm.CastVote(ctx, b.ID, util.Random32(), util.Random32(), token)
	c.Assert(err, qt.ErrorIs, types.ErrBallotClosed)
}

// lateWitness shifts attestation timestamps into the future, simulating a
// witness that attests after the deadline passed.
type lateWitness struct {
	witness.Witness
	shift time.Duration
}

func (w *lateWitness) Attest(ctx context.Context, hash []byte) (*types.WitnessAttestation, error) {
	att, err := w.Witness.Attest(ctx, hash)
	if err != nil {
		return nil, err
	}
	att.TimestampSeconds += int64(w.shift / time.Second)
	return att, nil
}

func TestAttestationDeadlineBoundary(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBallot(t, types.VoteTypeConfig{Type: types.VoteTypeSingle}, time.Hour)

	token, err := f.issuer.Issue(ctx, mustBlind(t))
	c.Assert(err, qt.IsNil)

	// An attestation stamped exactly at the deadline is accepted: the
	// mock witness signs at now, so shift it to land on the deadline.
	base, err := witness.NewMock(3, 2, f.clock)
	c.Assert(err, qt.IsNil)
	f.adm.witness = &lateWitness{Witness: base, shift: time.Hour}
	_, err = f.adm.CastVote(ctx, b.ID, util.Random32(), util.Random32(), token)
	c.Assert(err, qt.IsNil)

	// One second past the deadline is too late.
	f.adm.witness = &lateWitness{Witness: base, shift: time.Hour + time.Second}
	_, err = f.adm.CastVote(ctx, b.ID, util.Random32(), util.Random32(), token)
	c.Assert(err, qt.ErrorIs, types.ErrTooLate)
}

func TestRevealWrongSalt(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	b := f.createBallot(t, types.VoteTypeConfig{Type: types.VoteTypeSingle}, time.Hour)

	v := f.cast(t, b.ID, types.SingleVote("R"))
	f.clock.Add(time.Hour)

	_, err := f.adm.SubmitReveal(context.Background(), b.ID, v.nullifier, "R", util.Random32(), nil)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidReveal)

	// The right salt still works afterwards.
	_, err = f.adm.SubmitReveal(context.Background(), b.ID, v.nullifier, "R", v.salt, nil)
	c.Assert(err, qt.IsNil)
}

func TestRevealWindowBoundaries(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBallot(t, types.VoteTypeConfig{Type: types.VoteTypeSingle}, time.Hour)
	v := f.cast(t, b.ID, types.SingleVote("R"))

	// One ms before the deadline the reveal window is closed.
	f.clock.Add(time.Hour - time.Millisecond)
	_, err := f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "R", v.salt, nil)
	c.Assert(err, qt.ErrorIs, types.ErrBallotClosed)

	// Exactly at the deadline it opens.
	f.clock.Add(time.Millisecond)
	_, err = f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "R", v.salt, nil)
	c.Assert(err, qt.IsNil)

	// At the reveal deadline it closes again.
	f.clock.Add(f.cfg.RevealWindow)
	_, err = f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "R", v.salt, nil)
	c.Assert(err, qt.ErrorIs, types.ErrBallotNotRevealing)
}

func TestRevealStructuredVotes(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBallot(t, types.VoteTypeConfig{
		Type:        types.VoteTypeRanked,
		MinRankings: 2,
		MaxRankings: 3,
	}, time.Hour)

	data := &types.VoteData{Type: types.VoteTypeRanked, Rankings: []string{"B", "R"}}
	v := f.cast(t, b.ID, data)
	f.clock.Add(time.Hour)

	// The reveal must carry structured data of the ballot's type.
	_, err := f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "B", v.salt, nil)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidReveal)

	short := &types.VoteData{Type: types.VoteTypeRanked, Rankings: []string{"B"}}
	_, err = f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "", v.salt, short)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidReveal)

	_, err = f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "", v.salt, data)
	c.Assert(err, qt.IsNil)

	// A second reveal for the same nullifier is refused.
	_, err = f.adm.SubmitReveal(ctx, b.ID, v.nullifier, "", v.salt, data)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidReveal)
}

func TestRequestTokenGating(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()

	allowed := types.HexBytes(util.Random32())
	b, err := f.ballots.Create(ctx, &ballot.CreateRequest{
		Question: "q",
		Choices:  []string{"a", "b"},
		Duration: time.Hour,
		Eligibility: types.EligibilityConfig{
			Mode: types.EligibilityAllowlist,
			Keys: []types.HexBytes{allowed},
		},
		CreatorPublicKey: util.Random32(),
	})
	c.Assert(err, qt.IsNil)

	_, err = f.adm.RequestToken(ctx, b.ID, util.Random32(), mustBlind(t))
	c.Assert(err, qt.ErrorIs, types.ErrNotEligible)

	token, err := f.adm.RequestToken(ctx, b.ID, allowed, mustBlind(t))
	c.Assert(err, qt.IsNil)
	c.Assert(token.TokenBytes, qt.HasLen, types.TokenLen)
}

func mustBlind(t *testing.T) []byte {
	blinded, _, err := voprf.Blind(util.Random32(), issuer.TokenContext)
	if err != nil {
		t.Fatal(err)
	}
	return blinded
}

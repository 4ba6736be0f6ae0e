package service

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	qt "github.com/frankban/quicktest"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/crypto/voprf"
	"github.com/flammafex/prestige/issuer"
	"github.com/flammafex/prestige/relay"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/util"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/db/metadb"
)

func newService(t *testing.T) (*Service, *clock.Mock) {
	c := qt.New(t)
	mock := clock.NewMock()
	mock.Set(time.Unix(1700000000, 0))

	cfg := types.DefaultConfig()
	cfg.BallotGate = types.BallotGateOpen
	cfg.VoterGate = types.VoterGateOpen

	iss := issuer.NewMock("svc-issuer", 24*time.Hour, mock)
	w, err := witness.NewMock(3, 2, mock)
	c.Assert(err, qt.IsNil)
	cfg.WitnessIDs = w.IDs()

	hub := relay.NewMemoryHub()
	svc, err := New(cfg, metadb.NewTest(t), mock, &Collaborators{
		Issuer:   iss,
		Verifier: iss.Verifier(),
		Witness:  w,
		Relay:    hub.Join(),
	}, nil)
	c.Assert(err, qt.IsNil)
	t.Cleanup(svc.Stop)
	return svc, mock
}

// TestEndToEndSingleChoice drives the full happy path through the
// assembled service: create, vote, reveal, finalize, tally.
func TestEndToEndSingleChoice(t *testing.T) {
	c := qt.New(t)
	svc, mock := newService(t)
	ctx := context.Background()
	c.Assert(svc.Start(ctx), qt.IsNil)

	b, err := svc.CreateBallot(ctx, &ballot.CreateRequest{
		Question:         "C?",
		Choices:          []string{"R", "B", "G"},
		Duration:         time.Hour,
		CreatorPublicKey: util.Random32(),
	})
	c.Assert(err, qt.IsNil)

	type cast struct {
		nullifier types.HexBytes
		salt      types.HexBytes
		choice    string
	}
	var casts []cast
	for _, choice := range []string{"R", "R", "B"} {
		secret := util.Random32()
		blinded, state, err := voprf.Blind(secret, issuer.TokenContext)
		c.Assert(err, qt.IsNil)
		token, err := svc.Admission.RequestToken(ctx, b.ID, util.Random32(), blinded)
		c.Assert(err, qt.IsNil)
		_, err = voprf.Finalize(state, token.TokenBytes, token.IssuerPublicKey, issuer.TokenContext)
		c.Assert(err, qt.IsNil)

		ct := cast{
			nullifier: commitment.Nullifier(secret, b.ID),
			salt:      util.Random32(),
			choice:    choice,
		}
		_, err = svc.CastVote(ctx, b.ID,
			commitment.Commit(choice, ct.salt), ct.nullifier, token)
		c.Assert(err, qt.IsNil)
		casts = append(casts, ct)
	}

	mock.Add(time.Hour)
	for _, ct := range casts {
		_, err := svc.SubmitReveal(ctx, b.ID, ct.nullifier, ct.choice, ct.salt, nil)
		c.Assert(err, qt.IsNil)
	}

	mock.Add(svc.cfg.RevealWindow)
	res, err := svc.ComputeResult(ctx, b.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Tally, qt.DeepEquals, map[string]int{"R": 2, "B": 1, "G": 0})
	c.Assert(res.TotalVotes, qt.Equals, 3)
	c.Assert(res.ValidReveals, qt.Equals, 3)
	c.Assert(res.Winner, qt.Equals, "R")
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	c := qt.New(t)
	cfg := types.DefaultConfig()
	cfg.BallotGate = "bogus"
	_, err := New(cfg, metadb.NewTest(t), clock.NewMock(), &Collaborators{}, nil)
	c.Assert(err, qt.IsNotNil)
}

func TestServiceStartStop(t *testing.T) {
	c := qt.New(t)
	svc, _ := newService(t)
	ctx := context.Background()
	c.Assert(svc.Start(ctx), qt.IsNil)
	c.Assert(svc.Start(ctx), qt.IsNotNil)
	svc.Stop()
	svc.Stop()
}

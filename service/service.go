// Package service assembles the voting core: storage, gates, ballot
// lifecycle, admission, tally and gossip, wired to the issuer, witness and
// relay collaborators by dependency injection.
package service

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/admission"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/gate"
	"github.com/flammafex/prestige/gossip"
	"github.com/flammafex/prestige/issuer"
	"github.com/flammafex/prestige/privacy"
	"github.com/flammafex/prestige/relay"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/tally"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/log"
)

// Collaborators are the external services the core depends on. Relay may
// be nil to run without gossip.
type Collaborators struct {
	Issuer   issuer.Issuer
	Verifier issuer.Verifier
	Witness  witness.Witness
	Relay    relay.Relay
}

// Service is the assembled voting core.
type Service struct {
	cfg   *types.Config
	clk   clock.Clock
	store *storage.Store

	Gates     *gate.Gates
	Ballots   *ballot.Manager
	Admission *admission.Admission
	Tally     *tally.Engine
	Petition  *gate.Petition
	Gossip    *gossip.Gossiper

	mu     sync.Mutex
	cancel context.CancelFunc
}

// issuerAuthority backs the token gate variants: a key is eligible when
// the issuer recognizes the instance. Sybil resistance is the issuer's
// concern and is enforced at issuance time.
type issuerAuthority struct {
	issuer issuer.Issuer
}

func (a *issuerAuthority) Eligible(ctx context.Context, _ types.HexBytes) (bool, error) {
	if _, err := a.issuer.Metadata(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// New assembles the service. The gossip identity key signs outbound
// envelopes; pass nil to generate an ephemeral one.
func New(cfg *types.Config, database db.Database, clk clock.Clock, collab *Collaborators, gossipKey ed25519.PrivateKey) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if collab == nil || collab.Issuer == nil || collab.Verifier == nil || collab.Witness == nil {
		return nil, fmt.Errorf("missing collaborators")
	}
	if gossipKey == nil {
		var err error
		if _, gossipKey, err = ed25519.GenerateKey(nil); err != nil {
			return nil, err
		}
	}

	store := storage.New(database)
	gates, err := gate.FromConfig(cfg, &issuerAuthority{issuer: collab.Issuer})
	if err != nil {
		return nil, err
	}
	priv := privacy.New(cfg.Privacy, clk)
	ballots := ballot.NewManager(store, cfg, clk, collab.Witness, gates.Ballot)
	adm := admission.New(store, cfg, clk, ballots, collab.Issuer, collab.Verifier,
		collab.Witness, gates.Voter, priv)
	engine := tally.New(store, ballots, collab.Witness, clk)
	petition := gate.NewPetition(store, gates.Voter, cfg.PetitionThreshold, ballots, clk)

	s := &Service{
		cfg:       cfg,
		clk:       clk,
		store:     store,
		Gates:     gates,
		Ballots:   ballots,
		Admission: adm,
		Tally:     engine,
		Petition:  petition,
	}
	if collab.Relay != nil {
		s.Gossip = gossip.New(collab.Relay, store, cfg, clk, collab.Verifier,
			collab.Witness, gossipKey)
	}
	return s, nil
}

// Store exposes the persistence layer for read paths and tests.
func (s *Service) Store() *storage.Store {
	return s.store
}

// Start launches the background tasks: the token batcher and the gossip
// handler loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	if err := s.Admission.Start(ctx); err != nil {
		s.cancel = nil
		return err
	}
	if s.Gossip != nil {
		if err := s.Gossip.Start(ctx); err != nil {
			s.cancel = nil
			return err
		}
	}
	log.Infow("prestige service started", "ballotGate", s.cfg.BallotGate,
		"voterGate", s.cfg.VoterGate, "gossip", s.Gossip != nil)
	return nil
}

// CastVote admits a vote and, when gossip is running, propagates it to the
// peer network.
func (s *Service) CastVote(ctx context.Context, ballotID string, commit, nullifier types.HexBytes, proof *types.EligibilityToken) (*types.Vote, error) {
	vote, err := s.Admission.CastVote(ctx, ballotID, commit, nullifier, proof)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, gossip.MsgVote, vote)
	return vote, nil
}

// SubmitReveal admits a reveal and propagates it.
func (s *Service) SubmitReveal(ctx context.Context, ballotID string, nullifier types.HexBytes, choice string, salt types.HexBytes, voteData *types.VoteData) (*types.Reveal, error) {
	reveal, err := s.Admission.SubmitReveal(ctx, ballotID, nullifier, choice, salt, voteData)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, gossip.MsgReveal, reveal)
	return reveal, nil
}

// CreateBallot creates a ballot and propagates it.
func (s *Service) CreateBallot(ctx context.Context, req *ballot.CreateRequest) (*types.Ballot, error) {
	b, err := s.Ballots.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, gossip.MsgBallot, b)
	return b, nil
}

// ComputeResult finalizes the tally and propagates the result.
func (s *Service) ComputeResult(ctx context.Context, ballotID string) (*types.Result, error) {
	res, err := s.Tally.ComputeResult(ctx, ballotID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, gossip.MsgResult, res)
	return res, nil
}

func (s *Service) broadcast(ctx context.Context, msgType string, record any) {
	if s.Gossip == nil {
		return
	}
	if err := s.Gossip.Broadcast(ctx, msgType, record); err != nil {
		log.Warnw("gossip broadcast failed", "type", msgType, "error", err.Error())
	}
}

// Stop halts background tasks and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if s.Gossip != nil {
		s.Gossip.Stop()
	}
	s.Admission.Stop()
	s.store.Close()
	log.Infow("prestige service stopped")
}

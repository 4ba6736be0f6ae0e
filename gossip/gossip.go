package gossip

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/issuer"
	"github.com/flammafex/prestige/relay"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/util"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/log"
)

// Gossiper propagates votes, reveals, ballots and results between peers
// and detects double votes by commitment mismatch. It owns the nullifier
// cache and the peer score table; both are mutated only by its handler
// tasks.
type Gossiper struct {
	relay    relay.Relay
	store    *storage.Store
	cfg      *types.Config
	clk      clock.Clock
	verifier issuer.Verifier
	witness  witness.Witness
	priv     ed25519.PrivateKey

	scores *scoreTable
	cache  *nullifierCache

	mu      sync.Mutex
	cancel  context.CancelFunc
	queues  map[string]chan *Envelope
	wg      sync.WaitGroup
}

// New wires a gossiper. The private key signs outbound envelopes.
func New(r relay.Relay, store *storage.Store, cfg *types.Config, clk clock.Clock,
	verifier issuer.Verifier, w witness.Witness, priv ed25519.PrivateKey,
) *Gossiper {
	return &Gossiper{
		relay:    r,
		store:    store,
		cfg:      cfg,
		clk:      clk,
		verifier: verifier,
		witness:  w,
		priv:     priv,
		scores:   newScoreTable(cfg.Gossip.ScoreFloor, cfg.Gossip.DefaultPenalty, cfg.Gossip.Penalties),
		cache:    newNullifierCache(cfg.Gossip.MaxNullifiers, cfg.Gossip.MaxAge),
	}
}

// Start launches the relay reader and the cache pruner. Envelopes from one
// peer are processed in order; different peers run in parallel.
func (g *Gossiper) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return fmt.Errorf("gossiper already running")
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.queues = make(map[string]chan *Envelope)

	g.wg.Add(2)
	go g.readLoop(ctx)
	go g.pruneLoop(ctx)
	log.Infow("gossiper started", "maxNullifiers", g.cfg.Gossip.MaxNullifiers,
		"pruneInterval", g.cfg.Gossip.PruneInterval)
	return nil
}

// Stop halts all handler tasks. Safe to call more than once.
func (g *Gossiper) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		g.wg.Wait()
	}
}

// CacheLen reports the nullifier cache size.
func (g *Gossiper) CacheLen() int {
	return g.cache.len()
}

// PeerScore reports the current reputation of a peer key.
func (g *Gossiper) PeerScore(peer string) int {
	return g.scores.score(peer)
}

func (g *Gossiper) readLoop(ctx context.Context) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-g.relay.Messages():
			if !ok {
				return
			}
			env := &Envelope{}
			if err := json.Unmarshal(msg.Payload, env); err != nil {
				log.Debugw("malformed gossip envelope", "from", msg.FromPeerID, "error", err)
				continue
			}
			g.dispatch(ctx, env)
		}
	}
}

// dispatch routes the envelope to its sender's serial queue. The
// authenticated in-envelope sender identifies the peer; a relay-attached
// id that disagrees is ignored.
func (g *Gossiper) dispatch(ctx context.Context, env *Envelope) {
	peer := env.Sender.String()
	g.mu.Lock()
	q, ok := g.queues[peer]
	if !ok {
		q = make(chan *Envelope, 64)
		g.queues[peer] = q
		g.wg.Add(1)
		go g.peerLoop(ctx, peer, q)
	}
	g.mu.Unlock()
	select {
	case q <- env:
	default:
		log.Warnw("gossip queue full, dropping envelope", "peer", peer)
	}
}

func (g *Gossiper) peerLoop(ctx context.Context, peer string, q <-chan *Envelope) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-q:
			g.HandleEnvelope(ctx, env)
		}
	}
}

func (g *Gossiper) pruneLoop(ctx context.Context) {
	defer g.wg.Done()
	ticker := g.clk.Ticker(g.cfg.Gossip.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.cache.prune(g.clk.Now())
		}
	}
}

// HandleEnvelope validates and applies one gossip envelope. Messages from
// banned peers are silently dropped; a failing signature penalizes the
// peer and stops processing.
func (g *Gossiper) HandleEnvelope(ctx context.Context, env *Envelope) {
	peer := env.Sender.String()
	if g.scores.banned(peer) {
		return
	}
	if !env.VerifySignature() {
		g.scores.penalize(peer, PenaltyInvalidSignature)
		return
	}
	switch env.Type {
	case MsgVote:
		g.handleVote(ctx, env, peer)
	case MsgReveal:
		g.handleReveal(ctx, env, peer)
	case MsgBallot:
		g.handleBallot(ctx, env, peer)
	case MsgResult:
		g.handleResult(ctx, env, peer)
	default:
		log.Debugw("unknown gossip message type", "type", env.Type, "peer", peer)
	}
}

// handleVote applies the core double-vote detection: a cached nullifier
// with the same commitment is a harmless duplicate, a different commitment
// is a detected double vote and is neither stored nor rebroadcast.
func (g *Gossiper) handleVote(ctx context.Context, env *Envelope, peer string) {
	vote := &types.Vote{}
	if err := json.Unmarshal(env.Payload, vote); err != nil {
		g.scores.penalize(peer, PenaltyInvalidSignature)
		return
	}
	b, err := g.store.Ballot(vote.BallotID)
	if err != nil {
		g.scores.penalize(peer, PenaltyUnknownBallot)
		return
	}
	if err := g.verifier.VerifyToken(ctx, vote.Proof); err != nil {
		g.scores.penalize(peer, PenaltyInvalidProof)
		return
	}
	ok, err := g.witness.Verify(ctx, vote.Attestation)
	if err != nil || !ok {
		g.scores.penalize(peer, PenaltyInvalidAttestation)
		return
	}
	if vote.Attestation.TimestampSeconds*1000 > b.DeadlineMS {
		g.scores.penalize(peer, PenaltyTooLate)
		return
	}

	if cached, found := g.cache.lookup(vote.BallotID, vote.Nullifier); found {
		if commitment.Equal(cached, vote.Commitment) {
			g.scores.penalize(peer, PenaltyDuplicate)
			g.cache.addPeer(vote.BallotID, vote.Nullifier)
			return
		}
		log.Warnw("double vote detected", "ballotID", vote.BallotID,
			"nullifier", vote.Nullifier.String(), "peer", peer)
		g.scores.penalize(peer, PenaltyDoubleVote)
		return
	}

	g.cache.insert(vote.BallotID, vote.Nullifier, vote.Commitment, g.clk.Now())
	if _, err := g.store.SetVote(vote); err != nil {
		log.Warnw("failed to store gossiped vote", "ballotID", vote.BallotID, "error", err)
		return
	}
	g.scores.reward(peer)
	g.rebroadcast(ctx, env)
}

func (g *Gossiper) handleReveal(ctx context.Context, env *Envelope, peer string) {
	reveal := &types.Reveal{}
	if err := json.Unmarshal(env.Payload, reveal); err != nil {
		g.scores.penalize(peer, PenaltyInvalidSignature)
		return
	}
	b, err := g.store.Ballot(reveal.BallotID)
	if err != nil {
		g.scores.penalize(peer, PenaltyUnknownBallot)
		return
	}
	now := g.clk.Now().UnixMilli()
	if ballot.PhaseAt(b, now) != types.BallotStatusRevealing {
		g.scores.penalize(peer, PenaltyWrongPhase)
		return
	}
	vote, err := g.store.VoteByNullifier(reveal.BallotID, reveal.Nullifier)
	if err != nil {
		g.scores.penalize(peer, PenaltyNoMatchingVote)
		return
	}
	data := reveal.Data()
	if err := data.Validate(b); err != nil {
		g.scores.penalize(peer, PenaltyInvalidReveal)
		return
	}
	if !commitment.VerifyCommit(vote.Commitment, data.Serialize(), reveal.Salt) {
		g.scores.penalize(peer, PenaltyInvalidReveal)
		return
	}
	added, err := g.store.SetReveal(reveal)
	if err != nil {
		log.Warnw("failed to store gossiped reveal", "ballotID", reveal.BallotID, "error", err)
		return
	}
	if !added {
		g.scores.penalize(peer, PenaltyDuplicate)
		return
	}
	g.scores.reward(peer)
	g.rebroadcast(ctx, env)
}

func (g *Gossiper) handleBallot(ctx context.Context, env *Envelope, peer string) {
	b := &types.Ballot{}
	if err := json.Unmarshal(env.Payload, b); err != nil {
		g.scores.penalize(peer, PenaltyInvalidSignature)
		return
	}
	if b.ID == "" || len(b.Choices) < 2 || !b.Status.Valid() {
		g.scores.penalize(peer, PenaltyUnknownBallot)
		return
	}
	ok, err := g.witness.Verify(ctx, b.Attestation)
	if err != nil || !ok {
		g.scores.penalize(peer, PenaltyInvalidAttestation)
		return
	}
	if _, err := g.store.Ballot(b.ID); err == nil {
		g.scores.penalize(peer, PenaltyDuplicate)
		return
	}
	if err := g.store.SetBallot(b); err != nil {
		log.Warnw("failed to store gossiped ballot", "ballotID", b.ID, "error", err)
		return
	}
	g.scores.reward(peer)
	g.rebroadcast(ctx, env)
}

func (g *Gossiper) handleResult(ctx context.Context, env *Envelope, peer string) {
	res := &types.Result{}
	if err := json.Unmarshal(env.Payload, res); err != nil {
		g.scores.penalize(peer, PenaltyInvalidSignature)
		return
	}
	if _, err := g.store.Ballot(res.BallotID); err != nil {
		g.scores.penalize(peer, PenaltyUnknownBallot)
		return
	}
	ok, err := g.witness.Verify(ctx, res.Attestation)
	if err != nil || !ok {
		g.scores.penalize(peer, PenaltyInvalidAttestation)
		return
	}
	if _, err := g.store.Result(res.BallotID); err == nil {
		g.scores.penalize(peer, PenaltyDuplicate)
		return
	}
	if err := g.store.SetResult(res); err != nil {
		log.Warnw("failed to store gossiped result", "ballotID", res.BallotID, "error", err)
		return
	}
	g.scores.reward(peer)
	g.rebroadcast(ctx, env)
}

// rebroadcast forwards an accepted envelope unchanged, preserving the
// original sender's signature.
func (g *Gossiper) rebroadcast(ctx context.Context, env *Envelope) {
	if err := g.relay.Broadcast(ctx, env.Type, env); err != nil {
		log.Warnw("rebroadcast failed", "type", env.Type, "error", err)
	}
}

// Broadcast signs and publishes a local record to all peers.
func (g *Gossiper) Broadcast(ctx context.Context, msgType string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	env := &Envelope{
		Type:        msgType,
		Payload:     payload,
		Nonce:       util.Nonce16(),
		TimestampMS: g.clk.Now().UnixMilli(),
	}
	if err := env.Sign(g.priv); err != nil {
		return err
	}
	// Cache our own vote so an echo is a duplicate, not a double vote.
	if msgType == MsgVote {
		vote := &types.Vote{}
		if err := json.Unmarshal(payload, vote); err == nil {
			if _, found := g.cache.lookup(vote.BallotID, vote.Nullifier); !found {
				g.cache.insert(vote.BallotID, vote.Nullifier, vote.Commitment, g.clk.Now())
			}
		}
	}
	if err := g.relay.Broadcast(ctx, msgType, env); err != nil {
		return types.ErrRelayUnavailable.WithErr(err)
	}
	return nil
}

// Package admission implements the externally visible write operations of
// the voting core: casting votes, submitting reveals and requesting
// eligibility tokens. Every operation validates against the ballot
// lifecycle, the store's uniqueness constraints, and the issuer and
// witness collaborators.
package admission

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/ballot"
	"github.com/flammafex/prestige/gate"
	"github.com/flammafex/prestige/issuer"
	"github.com/flammafex/prestige/privacy"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/witness"
)

// Admission coordinates the vote, reveal and token paths.
type Admission struct {
	store    *storage.Store
	cfg      *types.Config
	clk      clock.Clock
	ballots  *ballot.Manager
	issuer   issuer.Issuer
	verifier issuer.Verifier
	witness  witness.Witness
	voters   gate.VoterGate
	privacy  *privacy.Engine

	batcher *privacy.Batcher[*tokenRequest]

	// nullifier locks close the write-after-read race between the
	// uniqueness check and the store round-trip. The store's unique key
	// remains the ground truth. The map is never pruned: one mutex per
	// observed (ballot, nullifier) pair, bounded by the same cardinality
	// as the vote table itself.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New wires the admission component.
func New(store *storage.Store, cfg *types.Config, clk clock.Clock,
	ballots *ballot.Manager, iss issuer.Issuer, verifier issuer.Verifier,
	w witness.Witness, voters gate.VoterGate, priv *privacy.Engine,
) *Admission {
	a := &Admission{
		store:    store,
		cfg:      cfg,
		clk:      clk,
		ballots:  ballots,
		issuer:   iss,
		verifier: verifier,
		witness:  w,
		voters:   voters,
		privacy:  priv,
		locks:    make(map[string]*sync.Mutex),
	}
	if cfg.Privacy.Enabled && cfg.Privacy.BatchingEnabled {
		a.batcher = privacy.NewBatcher(cfg.Privacy.MaxBatchSize,
			batchInterval(cfg), clk, a.flushTokenBatch)
	}
	return a
}

// Start launches the token batch flusher when batching is enabled.
func (a *Admission) Start(ctx context.Context) error {
	if a.batcher != nil {
		return a.batcher.Start(ctx)
	}
	return nil
}

// Stop drains the token batcher.
func (a *Admission) Stop() {
	if a.batcher != nil {
		a.batcher.Stop()
	}
}

// lockNullifier serializes admission per (ballot, nullifier).
func (a *Admission) lockNullifier(ballotID string, nullifier types.HexBytes) func() {
	key := ballotID + "/" + nullifier.String()
	a.locksMu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	a.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

package gossip

import (
	"sync"

	"go.vocdoni.io/dvote/log"
)

// Penalty reasons. Each maps to a configurable score deduction.
const (
	PenaltyInvalidSignature   = "invalid_signature"
	PenaltyUnknownBallot      = "unknown_ballot"
	PenaltyInvalidProof       = "invalid_proof"
	PenaltyInvalidAttestation = "invalid_attestation"
	PenaltyTooLate            = "too_late"
	PenaltyDoubleVote         = "double_vote"
	PenaltyDuplicate          = "duplicate"
	PenaltyWrongPhase         = "wrong_phase"
	PenaltyNoMatchingVote     = "no_matching_vote"
	PenaltyInvalidReveal      = "invalid_reveal"
)

const (
	initialScore = 100
	maxScore     = 100
)

// scoreTable tracks per-peer reputation. Peers below the floor are
// silently dropped; there is no decay or forgiveness ladder beyond the +1
// reward per accepted novel message. Penalty values come from the gossip
// configuration; reasons without an explicit entry take the default.
type scoreTable struct {
	mu             sync.Mutex
	scores         map[string]int
	penalties      map[string]int
	defaultPenalty int
	floor          int
}

func newScoreTable(floor, defaultPenalty int, penalties map[string]int) *scoreTable {
	t := &scoreTable{
		scores:         make(map[string]int),
		penalties:      make(map[string]int, len(penalties)),
		defaultPenalty: defaultPenalty,
		floor:          floor,
	}
	for reason, p := range penalties {
		t.penalties[reason] = p
	}
	return t
}

func (t *scoreTable) score(peer string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.scores[peer]; ok {
		return s
	}
	t.scores[peer] = initialScore
	return initialScore
}

// penalize deducts the reason's penalty from the peer's score.
func (t *scoreTable) penalize(peer, reason string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scores[peer]
	if !ok {
		s = initialScore
	}
	p, ok := t.penalties[reason]
	if !ok {
		p = t.defaultPenalty
	}
	s -= p
	t.scores[peer] = s
	log.Debugw("peer penalized", "peer", peer, "reason", reason, "score", s)
	return s
}

// reward adds one point for an accepted novel message, capped at the
// initial score.
func (t *scoreTable) reward(peer string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scores[peer]
	if !ok {
		s = initialScore
	}
	if s < maxScore {
		s++
	}
	t.scores[peer] = s
	return s
}

// banned reports whether the peer's score is below the floor.
func (t *scoreTable) banned(peer string) bool {
	return t.score(peer) < t.floor
}

// Package ballot implements the ballot lifecycle: creation under the
// configured ballot gate, the phase state machine, and petition
// activation.
package ballot

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/flammafex/prestige/crypto/commitment"
	"github.com/flammafex/prestige/gate"
	"github.com/flammafex/prestige/storage"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/log"
)

// Manager owns ballot creation and phase transitions. It holds only the
// store handle and immutable configuration; ballots live in the store.
type Manager struct {
	store   *storage.Store
	cfg     *types.Config
	clk     clock.Clock
	witness witness.Witness
	gate    gate.BallotGate
}

// NewManager wires a ballot manager.
func NewManager(store *storage.Store, cfg *types.Config, clk clock.Clock, w witness.Witness, g gate.BallotGate) *Manager {
	return &Manager{store: store, cfg: cfg, clk: clk, witness: w, gate: g}
}

// CreateRequest carries the caller-supplied ballot parameters. A zero
// Duration takes the configured default.
type CreateRequest struct {
	Question         string                  `json:"question"`
	Choices          []string                `json:"choices"`
	Duration         time.Duration           `json:"duration"`
	Eligibility      types.EligibilityConfig `json:"eligibility"`
	VoteType         types.VoteTypeConfig    `json:"vote_type"`
	CreatorPublicKey types.HexBytes          `json:"creator_public_key"`
}

// Create validates the request, checks the ballot gate, obtains the
// creation attestation and stores the new ballot. Petition-gated instances
// start in the petition phase with zero deadlines.
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (*types.Ballot, error) {
	allowed, err := m.gate.CanCreate(ctx, req.CreatorPublicKey)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	if !allowed {
		return nil, types.ErrNotAuthorized.With(m.gate.Requirements())
	}
	if err := m.validate(req); err != nil {
		return nil, err
	}

	now := m.clk.Now().UnixMilli()
	b := &types.Ballot{
		ID:               uuid.NewString(),
		Question:         strings.TrimSpace(req.Question),
		Choices:          trimmedChoices(req.Choices),
		CreatedMS:        now,
		Eligibility:      req.Eligibility,
		VoteType:         req.VoteType,
		CreatorPublicKey: req.CreatorPublicKey,
	}
	b.VoteType.ApplyDefaults(len(b.Choices))

	if m.cfg.BallotGate == types.BallotGatePetition {
		b.Status = types.BallotStatusPetition
	} else {
		duration := req.Duration
		if duration == 0 {
			duration = m.cfg.DefaultBallotDuration
		}
		b.Status = types.BallotStatusVoting
		b.DeadlineMS = now + duration.Milliseconds()
		b.RevealDeadlineMS = b.DeadlineMS + m.cfg.RevealWindow.Milliseconds()
	}

	att, err := m.witness.Attest(ctx, commitment.Hash(b.CanonicalHashInput()))
	if err != nil {
		return nil, types.ErrWitnessUnavailable.WithErr(err)
	}
	b.Attestation = att

	if err := m.store.SetBallot(b); err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	log.Infow("ballot created", "ballotID", b.ID, "status", string(b.Status),
		"voteType", b.VoteType.Type, "choices", len(b.Choices))
	return b, nil
}

// Get loads a ballot without observing phase transitions.
func (m *Manager) Get(id string) (*types.Ballot, error) {
	b, err := m.store.Ballot(id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, types.ErrBallotNotFound
		}
		return nil, types.ErrStore.WithErr(err)
	}
	return b, nil
}

// Refresh loads a ballot and synchronizes its stored status with the
// clock. Once finalized is recorded the state is sticky.
func (m *Manager) Refresh(id string) (*types.Ballot, error) {
	b, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	phase := PhaseAt(b, m.clk.Now().UnixMilli())
	if phase != b.Status {
		if err := m.store.UpdateBallotStatus(id, phase); err != nil {
			return nil, types.ErrStore.WithErr(err)
		}
		log.Debugw("ballot phase transition", "ballotID", id,
			"from", string(b.Status), "to", string(phase))
		b.Status = phase
	}
	return b, nil
}

// List returns ballots with an optional status filter.
func (m *Manager) List(status *types.BallotStatus, limit int) ([]*types.Ballot, error) {
	ballots, err := m.store.ListBallots(status, limit)
	if err != nil {
		return nil, types.ErrStore.WithErr(err)
	}
	return ballots, nil
}

// Activate transitions a petition ballot into the voting phase, setting
// real deadlines from the configured default duration. It implements
// gate.Activator.
func (m *Manager) Activate(_ context.Context, id string) error {
	b, err := m.Get(id)
	if err != nil {
		return err
	}
	if b.Status != types.BallotStatusPetition {
		return types.ErrPetitionNotMet.Withf("ballot is %s", b.Status)
	}
	now := m.clk.Now().UnixMilli()
	deadline := now + m.cfg.DefaultBallotDuration.Milliseconds()
	revealDeadline := deadline + m.cfg.RevealWindow.Milliseconds()
	if err := m.store.UpdateBallotDeadlines(id, deadline, revealDeadline); err != nil {
		return types.ErrStore.WithErr(err)
	}
	if err := m.store.UpdateBallotStatus(id, types.BallotStatusVoting); err != nil {
		return types.ErrStore.WithErr(err)
	}
	log.Infow("petition ballot activated", "ballotID", id, "deadlineMS", deadline)
	return nil
}

func (m *Manager) validate(req *CreateRequest) error {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return types.ErrValidation.With("empty question")
	}
	if len(question) > m.cfg.MaxQuestionLength {
		return types.ErrValidation.Withf("question exceeds %d characters", m.cfg.MaxQuestionLength)
	}
	choices := trimmedChoices(req.Choices)
	if len(choices) < 2 || len(choices) > m.cfg.MaxChoices {
		return types.ErrValidation.Withf("choice count %d outside [2,%d]", len(choices), m.cfg.MaxChoices)
	}
	seen := make(map[string]bool, len(choices))
	for _, c := range choices {
		if c == "" {
			return types.ErrValidation.With("empty choice")
		}
		if seen[c] {
			return types.ErrValidation.Withf("duplicate choice %q", c)
		}
		seen[c] = true
	}
	if req.Duration != 0 &&
		(req.Duration < m.cfg.MinDuration || req.Duration > types.MaxBallotDuration) {
		return types.ErrValidation.Withf("duration %s outside [%s,%s]",
			req.Duration, m.cfg.MinDuration, types.MaxBallotDuration)
	}
	if err := req.Eligibility.Validate(); err != nil {
		return types.ErrValidation.WithErr(err)
	}
	vt := req.VoteType
	vt.ApplyDefaults(len(choices))
	if err := vt.Validate(len(choices)); err != nil {
		return types.ErrValidation.WithErr(err)
	}
	return nil
}

func trimmedChoices(choices []string) []string {
	out := make([]string, 0, len(choices))
	for _, c := range choices {
		out = append(out, strings.TrimSpace(c))
	}
	return out
}

// Package gate implements the three orthogonal authorization policies:
// who may create ballots, who may vote, and who may propose petitions.
// Each gate answers a boolean decision and describes its requirements in
// human-readable form for refusal messages.
package gate

import (
	"context"
	"fmt"

	"github.com/flammafex/prestige/types"
)

// BallotGate decides whether a key may create a ballot.
type BallotGate interface {
	CanCreate(ctx context.Context, pk types.HexBytes) (bool, error)
	Requirements() string
}

// VoterGate decides whether a key may obtain a voting token.
type VoterGate interface {
	CanVote(ctx context.Context, pk types.HexBytes) (bool, error)
	Requirements() string
}

// ProposalGate decides whether a key may propose a petition ballot.
type ProposalGate interface {
	CanPropose(ctx context.Context, pk types.HexBytes) (bool, error)
	Requirements() string
}

// TokenAuthority abstracts the issuer-backed eligibility check used by the
// token gate variants.
type TokenAuthority interface {
	Eligible(ctx context.Context, pk types.HexBytes) (bool, error)
}

type keySet map[string]bool

func newKeySet(keys []types.HexBytes) keySet {
	set := make(keySet, len(keys))
	for _, k := range keys {
		set[k.String()] = true
	}
	return set
}

// openBallotGate admits everyone.
type openBallotGate struct{}

func (openBallotGate) CanCreate(context.Context, types.HexBytes) (bool, error) { return true, nil }
func (openBallotGate) Requirements() string                                    { return "anyone may create ballots" }

// ownerBallotGate admits a single admin key.
type ownerBallotGate struct {
	admin types.HexBytes
}

func (g *ownerBallotGate) CanCreate(_ context.Context, pk types.HexBytes) (bool, error) {
	return pk.String() == g.admin.String(), nil
}

func (g *ownerBallotGate) Requirements() string {
	return "only the instance owner may create ballots"
}

// delegationBallotGate admits a fixed delegate set.
type delegationBallotGate struct {
	delegates keySet
}

func (g *delegationBallotGate) CanCreate(_ context.Context, pk types.HexBytes) (bool, error) {
	return g.delegates[pk.String()], nil
}

func (g *delegationBallotGate) Requirements() string {
	return fmt.Sprintf("one of %d delegated keys may create ballots", len(g.delegates))
}

// tokenBallotGate admits keys the issuer recognizes.
type tokenBallotGate struct {
	authority TokenAuthority
}

func (g *tokenBallotGate) CanCreate(ctx context.Context, pk types.HexBytes) (bool, error) {
	return g.authority.Eligible(ctx, pk)
}

func (g *tokenBallotGate) Requirements() string {
	return "an issuer-backed eligibility token is required to create ballots"
}

// petitionBallotGate is the composite variant: proposal permission is
// delegated to the nested proposal gate; the ballot starts in the petition
// phase and activates once the signature threshold is crossed.
type petitionBallotGate struct {
	threshold int
	proposals ProposalGate
	voters    VoterGate
}

func (g *petitionBallotGate) CanCreate(ctx context.Context, pk types.HexBytes) (bool, error) {
	return g.proposals.CanPropose(ctx, pk)
}

func (g *petitionBallotGate) Requirements() string {
	return fmt.Sprintf("petition ballots need %d eligible signatures to activate; %s",
		g.threshold, g.proposals.Requirements())
}

// openVoterGate admits everyone.
type openVoterGate struct{}

func (openVoterGate) CanVote(context.Context, types.HexBytes) (bool, error) { return true, nil }
func (openVoterGate) Requirements() string                                  { return "anyone may vote" }

// allowlistVoterGate admits a fixed key set.
type allowlistVoterGate struct {
	allowed keySet
}

func (g *allowlistVoterGate) CanVote(_ context.Context, pk types.HexBytes) (bool, error) {
	return g.allowed[pk.String()], nil
}

func (g *allowlistVoterGate) Requirements() string {
	return fmt.Sprintf("one of %d allowlisted keys may vote", len(g.allowed))
}

// tokenVoterGate admits keys the issuer recognizes.
type tokenVoterGate struct {
	authority TokenAuthority
}

func (g *tokenVoterGate) CanVote(ctx context.Context, pk types.HexBytes) (bool, error) {
	return g.authority.Eligible(ctx, pk)
}

func (g *tokenVoterGate) Requirements() string {
	return "an issuer-backed eligibility token is required to vote"
}

// votersProposalGate lets anyone who may vote propose.
type votersProposalGate struct {
	voters VoterGate
}

func (g *votersProposalGate) CanPropose(ctx context.Context, pk types.HexBytes) (bool, error) {
	return g.voters.CanVote(ctx, pk)
}

func (g *votersProposalGate) Requirements() string {
	return "any eligible voter may propose; " + g.voters.Requirements()
}

// delegationProposalGate admits a fixed delegate set.
type delegationProposalGate struct {
	delegates keySet
}

func (g *delegationProposalGate) CanPropose(_ context.Context, pk types.HexBytes) (bool, error) {
	return g.delegates[pk.String()], nil
}

func (g *delegationProposalGate) Requirements() string {
	return fmt.Sprintf("one of %d delegated keys may propose", len(g.delegates))
}

// Gates bundles the three instance-level gates built from configuration.
type Gates struct {
	Ballot   BallotGate
	Voter    VoterGate
	Proposal ProposalGate
}

// FromConfig builds the gate set. The token authority may be nil when no
// token gate variant is configured.
func FromConfig(cfg *types.Config, authority TokenAuthority) (*Gates, error) {
	voter, err := voterGateFromConfig(cfg, authority)
	if err != nil {
		return nil, err
	}
	var proposal ProposalGate
	switch cfg.PetitionProposalGate {
	case types.ProposalGateVoters:
		proposal = &votersProposalGate{voters: voter}
	case types.ProposalGateDelegation:
		proposal = &delegationProposalGate{delegates: newKeySet(cfg.Delegates)}
	default:
		return nil, fmt.Errorf("unknown proposal gate %q", cfg.PetitionProposalGate)
	}
	var ballot BallotGate
	switch cfg.BallotGate {
	case types.BallotGateOpen:
		ballot = openBallotGate{}
	case types.BallotGateOwner:
		ballot = &ownerBallotGate{admin: cfg.AdminKey}
	case types.BallotGateDelegation:
		ballot = &delegationBallotGate{delegates: newKeySet(cfg.Delegates)}
	case types.BallotGateToken:
		if authority == nil {
			return nil, fmt.Errorf("token ballot gate requires a token authority")
		}
		ballot = &tokenBallotGate{authority: authority}
	case types.BallotGatePetition:
		ballot = &petitionBallotGate{
			threshold: cfg.PetitionThreshold,
			proposals: proposal,
			voters:    voter,
		}
	default:
		return nil, fmt.Errorf("unknown ballot gate %q", cfg.BallotGate)
	}
	return &Gates{Ballot: ballot, Voter: voter, Proposal: proposal}, nil
}

func voterGateFromConfig(cfg *types.Config, authority TokenAuthority) (VoterGate, error) {
	switch cfg.VoterGate {
	case types.VoterGateOpen:
		return openVoterGate{}, nil
	case types.VoterGateAllowlist:
		return &allowlistVoterGate{allowed: newKeySet(cfg.Allowlist)}, nil
	case types.VoterGateToken:
		if authority == nil {
			return nil, fmt.Errorf("token voter gate requires a token authority")
		}
		return &tokenVoterGate{authority: authority}, nil
	default:
		return nil, fmt.Errorf("unknown voter gate %q", cfg.VoterGate)
	}
}

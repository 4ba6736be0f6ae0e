package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BallotStatus is the lifecycle phase of a ballot.
type BallotStatus string

const (
	// BallotStatusPetition is the pre-voting phase of petition-gated
	// ballots. Both deadlines are zero until activation.
	BallotStatusPetition BallotStatus = "petition"
	// BallotStatusVoting accepts vote commitments.
	BallotStatusVoting BallotStatus = "voting"
	// BallotStatusRevealing accepts vote reveals.
	BallotStatusRevealing BallotStatus = "revealing"
	// BallotStatusFinalized is sticky: once recorded the ballot never
	// returns to a prior phase.
	BallotStatusFinalized BallotStatus = "finalized"
)

// Valid reports whether s is a known status.
func (s BallotStatus) Valid() bool {
	switch s {
	case BallotStatusPetition, BallotStatusVoting, BallotStatusRevealing, BallotStatusFinalized:
		return true
	}
	return false
}

// Eligibility modes restrict who may obtain a voting token for a ballot.
// A ballot-level eligibility config can only further restrict the
// instance-level voter gate, never expand it.
const (
	EligibilityOpen       = "open"
	EligibilityInviteList = "invite_list"
	EligibilityAllowlist  = "allowlist"
)

// EligibilityConfig is a tagged variant: Open carries no keys, InviteList
// and Allowlist carry the permitted public keys.
type EligibilityConfig struct {
	Mode string     `json:"mode"           cbor:"0,keyasint,omitempty"`
	Keys []HexBytes `json:"keys,omitempty" cbor:"1,keyasint,omitempty"`
}

// Validate checks the tag and, for list modes, that every entry is a valid
// public key and the list is non-empty.
func (e *EligibilityConfig) Validate() error {
	switch e.Mode {
	case "", EligibilityOpen:
		return nil
	case EligibilityInviteList, EligibilityAllowlist:
		if len(e.Keys) == 0 {
			return fmt.Errorf("eligibility mode %q requires a non-empty key list", e.Mode)
		}
		for i, k := range e.Keys {
			if len(k) != PubKeyLen {
				return fmt.Errorf("eligibility key %d: invalid public key length %d", i, len(k))
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown eligibility mode %q", e.Mode)
	}
}

// Allows reports whether pk passes the ballot-level eligibility config.
func (e *EligibilityConfig) Allows(pk HexBytes) bool {
	switch e.Mode {
	case "", EligibilityOpen:
		return true
	default:
		for _, k := range e.Keys {
			if k.String() == pk.String() {
				return true
			}
		}
		return false
	}
}

// Vote type tags. They select both the reveal payload shape and the tally
// method.
const (
	VoteTypeSingle   = "single"
	VoteTypeApproval = "approval"
	VoteTypeRanked   = "ranked"
	VoteTypeScore    = "score"
)

// MaxScoreCeiling caps the configurable score upper bound.
const MaxScoreCeiling = 100

// VoteTypeConfig is a tagged variant with optional bounds for the ranked
// and score methods. Zero bounds take the documented defaults at
// validation time.
type VoteTypeConfig struct {
	Type        string `json:"type"                   cbor:"0,keyasint,omitempty"`
	MinRankings int    `json:"min_rankings,omitempty" cbor:"1,keyasint,omitempty"`
	MaxRankings int    `json:"max_rankings,omitempty" cbor:"2,keyasint,omitempty"`
	MinScore    int    `json:"min_score,omitempty"    cbor:"3,keyasint,omitempty"`
	MaxScore    int    `json:"max_score,omitempty"    cbor:"4,keyasint,omitempty"`
}

// ApplyDefaults fills unset bounds given the ballot's choice count.
func (v *VoteTypeConfig) ApplyDefaults(numChoices int) {
	if v.Type == "" {
		v.Type = VoteTypeSingle
	}
	if v.Type == VoteTypeRanked {
		if v.MinRankings == 0 {
			v.MinRankings = 1
		}
		if v.MaxRankings == 0 {
			v.MaxRankings = numChoices
		}
	}
	if v.Type == VoteTypeScore && v.MaxScore == 0 {
		// MinScore defaults to 0, already the zero value.
		v.MaxScore = 10
	}
}

// Validate checks the tag and bounds against the ballot's choice count.
// ApplyDefaults must run first.
func (v *VoteTypeConfig) Validate(numChoices int) error {
	switch v.Type {
	case VoteTypeSingle, VoteTypeApproval:
		return nil
	case VoteTypeRanked:
		if v.MinRankings < 1 || v.MaxRankings > numChoices || v.MinRankings > v.MaxRankings {
			return fmt.Errorf("invalid ranking bounds [%d,%d] for %d choices",
				v.MinRankings, v.MaxRankings, numChoices)
		}
		return nil
	case VoteTypeScore:
		if v.MinScore < 0 || v.MinScore >= v.MaxScore || v.MaxScore > MaxScoreCeiling {
			return fmt.Errorf("invalid score bounds [%d,%d]", v.MinScore, v.MaxScore)
		}
		return nil
	default:
		return fmt.Errorf("unknown vote type %q", v.Type)
	}
}

// Ballot is the question put to voters. Deadlines are Unix milliseconds;
// in the petition phase both deadlines are the sentinel zero until
// activation.
type Ballot struct {
	ID               string              `json:"id"                    cbor:"0,keyasint,omitempty"`
	Question         string              `json:"question"              cbor:"1,keyasint,omitempty"`
	Choices          []string            `json:"choices"               cbor:"2,keyasint,omitempty"`
	CreatedMS        int64               `json:"created_ms"            cbor:"3,keyasint,omitempty"`
	DeadlineMS       int64               `json:"deadline_ms"           cbor:"4,keyasint,omitempty"`
	RevealDeadlineMS int64               `json:"reveal_deadline_ms"    cbor:"5,keyasint,omitempty"`
	Eligibility      EligibilityConfig   `json:"eligibility"           cbor:"6,keyasint,omitempty"`
	VoteType         VoteTypeConfig      `json:"vote_type"             cbor:"7,keyasint,omitempty"`
	CreatorPublicKey HexBytes            `json:"creator_public_key"    cbor:"8,keyasint,omitempty"`
	Attestation      *WitnessAttestation `json:"attestation,omitempty" cbor:"9,keyasint,omitempty"`
	Status           BallotStatus        `json:"status"                cbor:"10,keyasint,omitempty"`
}

// HasChoice reports whether choice is one of the ballot's choices.
func (b *Ballot) HasChoice(choice string) bool {
	for _, c := range b.Choices {
		if c == choice {
			return true
		}
	}
	return false
}

// String returns the JSON representation of the ballot.
func (b *Ballot) String() string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(data)
}

// CanonicalHashInput returns the byte string over which the creation
// attestation is requested: every ballot field that precedes the
// attestation, joined in declaration order.
func (b *Ballot) CanonicalHashInput() []byte {
	var sb strings.Builder
	sb.WriteString(b.ID)
	sb.WriteByte('|')
	sb.WriteString(b.Question)
	sb.WriteByte('|')
	sb.WriteString(strings.Join(b.Choices, ","))
	fmt.Fprintf(&sb, "|%d|%d|%d|", b.CreatedMS, b.DeadlineMS, b.RevealDeadlineMS)
	sb.WriteString(b.Eligibility.Mode)
	sb.WriteByte('|')
	sb.WriteString(b.VoteType.Type)
	sb.WriteByte('|')
	sb.WriteString(b.CreatorPublicKey.String())
	return []byte(sb.String())
}

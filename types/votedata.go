package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// VoteData is the revealed structured ballot, a tagged variant mirroring
// VoteTypeConfig. Exactly one of the payload fields is set, selected by
// Type.
type VoteData struct {
	Type     string         `json:"type"               cbor:"0,keyasint,omitempty"`
	Choice   string         `json:"choice,omitempty"   cbor:"1,keyasint,omitempty"`
	Choices  []string       `json:"choices,omitempty"  cbor:"2,keyasint,omitempty"`
	Rankings []string       `json:"rankings,omitempty" cbor:"3,keyasint,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"   cbor:"4,keyasint,omitempty"`
}

// SingleVote builds the single-choice variant.
func SingleVote(choice string) *VoteData {
	return &VoteData{Type: VoteTypeSingle, Choice: choice}
}

// Serialize returns the canonical string form of the vote data, the exact
// preimage of the reveal commitment:
//
//	single:   the bare choice
//	approval: "approval:" + choices sorted ascending, comma-joined
//	ranked:   "ranked:" + rankings in cast order, comma-joined
//	score:    "score:" + "choice:value" pairs sorted by choice, comma-joined
//
// Approval and score are order-insensitive by construction; ranked order is
// significant and preserved.
func (v *VoteData) Serialize() string {
	switch v.Type {
	case VoteTypeApproval:
		sorted := make([]string, len(v.Choices))
		copy(sorted, v.Choices)
		sort.Strings(sorted)
		return "approval:" + strings.Join(sorted, ",")
	case VoteTypeRanked:
		return "ranked:" + strings.Join(v.Rankings, ",")
	case VoteTypeScore:
		keys := make([]string, 0, len(v.Scores))
		for k := range v.Scores {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + ":" + strconv.Itoa(v.Scores[k])
		}
		return "score:" + strings.Join(pairs, ",")
	default:
		return v.Choice
	}
}

// Validate checks the vote data against the ballot's vote-type config and
// choice list. It fails closed: any unknown choice, duplicate, or
// out-of-bounds entry is an error.
func (v *VoteData) Validate(b *Ballot) error {
	if v.Type != b.VoteType.Type {
		return fmt.Errorf("vote data type %q does not match ballot type %q", v.Type, b.VoteType.Type)
	}
	switch v.Type {
	case VoteTypeSingle:
		if !b.HasChoice(v.Choice) {
			return fmt.Errorf("unknown choice %q", v.Choice)
		}
	case VoteTypeApproval:
		if len(v.Choices) == 0 {
			return fmt.Errorf("approval vote with no choices")
		}
		seen := make(map[string]bool, len(v.Choices))
		for _, c := range v.Choices {
			if seen[c] {
				return fmt.Errorf("duplicate approval choice %q", c)
			}
			seen[c] = true
			if !b.HasChoice(c) {
				return fmt.Errorf("unknown choice %q", c)
			}
		}
	case VoteTypeRanked:
		if len(v.Rankings) < b.VoteType.MinRankings || len(v.Rankings) > b.VoteType.MaxRankings {
			return fmt.Errorf("ranking count %d outside [%d,%d]",
				len(v.Rankings), b.VoteType.MinRankings, b.VoteType.MaxRankings)
		}
		seen := make(map[string]bool, len(v.Rankings))
		for _, c := range v.Rankings {
			if seen[c] {
				return fmt.Errorf("duplicate ranking %q", c)
			}
			seen[c] = true
			if !b.HasChoice(c) {
				return fmt.Errorf("unknown choice %q", c)
			}
		}
	case VoteTypeScore:
		if len(v.Scores) == 0 {
			return fmt.Errorf("score vote with no scores")
		}
		for c, s := range v.Scores {
			if !b.HasChoice(c) {
				return fmt.Errorf("unknown choice %q", c)
			}
			if s < b.VoteType.MinScore || s > b.VoteType.MaxScore {
				return fmt.Errorf("score %d for %q outside [%d,%d]",
					s, c, b.VoteType.MinScore, b.VoteType.MaxScore)
			}
		}
	default:
		return fmt.Errorf("unknown vote data type %q", v.Type)
	}
	return nil
}

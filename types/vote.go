package types

import "encoding/json"

// Vote is the hidden ballot recorded during the voting phase. The vote
// content is bound by the commitment; the voter is bound by the nullifier.
// Uniqueness key is (BallotID, Nullifier).
type Vote struct {
	BallotID    string              `json:"ballot_id"             cbor:"0,keyasint,omitempty"`
	Nullifier   HexBytes            `json:"nullifier"             cbor:"1,keyasint,omitempty"`
	Commitment  HexBytes            `json:"commitment"            cbor:"2,keyasint,omitempty"`
	Proof       *EligibilityToken   `json:"proof,omitempty"       cbor:"3,keyasint,omitempty"`
	Attestation *WitnessAttestation `json:"attestation,omitempty" cbor:"4,keyasint,omitempty"`
}

// Reveal opens a previously committed vote. Choice is retained for
// single-choice backward compatibility; when VoteData is present it
// supersedes Choice for the integrity check. Uniqueness key is
// (BallotID, Nullifier).
type Reveal struct {
	BallotID  string    `json:"ballot_id"           cbor:"0,keyasint,omitempty"`
	Nullifier HexBytes  `json:"nullifier"           cbor:"1,keyasint,omitempty"`
	Choice    string    `json:"choice"              cbor:"2,keyasint,omitempty"`
	Salt      HexBytes  `json:"salt"                cbor:"3,keyasint,omitempty"`
	VoteData  *VoteData `json:"vote_data,omitempty" cbor:"4,keyasint,omitempty"`
}

// Data returns the structured vote data of the reveal, constructing the
// single-choice variant from the legacy Choice field when VoteData is
// absent.
func (r *Reveal) Data() *VoteData {
	if r.VoteData != nil {
		return r.VoteData
	}
	return SingleVote(r.Choice)
}

// PetitionSignature records one voter's support for activating a
// petition-gated ballot. The signature is over the raw ballot id bytes.
// Uniqueness key is (BallotID, PublicKey).
type PetitionSignature struct {
	BallotID    string   `json:"ballot_id"    cbor:"0,keyasint,omitempty"`
	PublicKey   HexBytes `json:"public_key"   cbor:"1,keyasint,omitempty"`
	Signature   HexBytes `json:"signature"    cbor:"2,keyasint,omitempty"`
	TimestampMS int64    `json:"timestamp_ms" cbor:"3,keyasint,omitempty"`
}

// RankedRound is one instant-runoff round: the per-choice votes and the
// choice eliminated at its end. The winning round carries no elimination.
type RankedRound struct {
	Round      int            `json:"round"                cbor:"0,keyasint,omitempty"`
	Votes      map[string]int `json:"votes"                cbor:"1,keyasint,omitempty"`
	Eliminated string         `json:"eliminated,omitempty" cbor:"2,keyasint,omitempty"`
}

// Result is the finalized, attested tally of a ballot.
type Result struct {
	BallotID      string              `json:"ballot_id"                      cbor:"0,keyasint,omitempty"`
	Tally         map[string]int      `json:"tally"                          cbor:"1,keyasint,omitempty"`
	TotalVotes    int                 `json:"total_votes"                    cbor:"2,keyasint,omitempty"`
	TotalReveals  int                 `json:"total_reveals"                  cbor:"3,keyasint,omitempty"`
	ValidReveals  int                 `json:"valid_reveals"                  cbor:"4,keyasint,omitempty"`
	Attestation   *WitnessAttestation `json:"attestation,omitempty"          cbor:"5,keyasint,omitempty"`
	FinalizedMS   int64               `json:"finalized_ms"                   cbor:"6,keyasint,omitempty"`
	VoteType      string              `json:"vote_type"                      cbor:"7,keyasint,omitempty"`
	RankedRounds  []RankedRound       `json:"ranked_choice_rounds,omitempty" cbor:"8,keyasint,omitempty"`
	AverageScores map[string]float64  `json:"average_scores,omitempty"       cbor:"9,keyasint,omitempty"`
	Winner        string              `json:"winner,omitempty"               cbor:"10,keyasint,omitempty"`
}

// String returns the JSON representation of the result.
func (r *Result) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

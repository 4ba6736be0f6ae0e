package storage

import (
	"fmt"

	"github.com/flammafex/prestige/types"
)

// SetVote stores a vote under its (ballot id, nullifier) key. It reports
// whether the vote was inserted: a duplicate key is ignored and returns
// false with no error.
func (s *Store) SetVote(v *types.Vote) (bool, error) {
	if v == nil || v.BallotID == "" || !v.Nullifier.IsHash() {
		return false, fmt.Errorf("malformed vote")
	}
	key := compositeKey(v.BallotID, v.Nullifier)
	exists, err := s.hasArtifact(votePrefix, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return true, s.setArtifact(votePrefix, key, v)
}

// VotesByBallot returns all votes stored for a ballot.
func (s *Store) VotesByBallot(ballotID string) ([]*types.Vote, error) {
	var votes []*types.Vote
	var decodeErr error
	prefix := append(append([]byte{}, votePrefix...), compositeKey(ballotID, nil)...)
	err := s.db.Iterate(prefix, func(_, v []byte) bool {
		vote := &types.Vote{}
		if err := decodeArtifact(v, vote); err != nil {
			decodeErr = err
			return false
		}
		votes = append(votes, vote)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return votes, nil
}

// VoteByNullifier returns the vote stored under (ballot id, nullifier),
// or ErrNotFound.
func (s *Store) VoteByNullifier(ballotID string, nullifier types.HexBytes) (*types.Vote, error) {
	v := &types.Vote{}
	if err := s.getArtifact(votePrefix, compositeKey(ballotID, nullifier), v); err != nil {
		return nil, err
	}
	return v, nil
}

// HasNullifier reports whether a vote exists under (ballot id, nullifier).
func (s *Store) HasNullifier(ballotID string, nullifier types.HexBytes) (bool, error) {
	return s.hasArtifact(votePrefix, compositeKey(ballotID, nullifier))
}

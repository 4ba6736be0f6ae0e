package storage

import (
	"fmt"

	"github.com/flammafex/prestige/types"
)

// SetResult upserts the tally result of a ballot.
func (s *Store) SetResult(r *types.Result) error {
	if r == nil || r.BallotID == "" {
		return fmt.Errorf("nil or unidentified result")
	}
	return s.setArtifact(resultPrefix, []byte(r.BallotID), r)
}

// Result retrieves the stored result of a ballot, or ErrNotFound.
func (s *Store) Result(ballotID string) (*types.Result, error) {
	r := &types.Result{}
	if err := s.getArtifact(resultPrefix, []byte(ballotID), r); err != nil {
		return nil, err
	}
	return r, nil
}

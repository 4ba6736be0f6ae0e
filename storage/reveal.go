package storage

import (
	"fmt"

	"github.com/flammafex/prestige/types"
)

// SetReveal stores a reveal under its (ballot id, nullifier) key,
// independently of the vote table. It reports whether the reveal was
// inserted; duplicates are ignored.
func (s *Store) SetReveal(r *types.Reveal) (bool, error) {
	if r == nil || r.BallotID == "" || !r.Nullifier.IsHash() {
		return false, fmt.Errorf("malformed reveal")
	}
	key := compositeKey(r.BallotID, r.Nullifier)
	exists, err := s.hasArtifact(revealPrefix, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return true, s.setArtifact(revealPrefix, key, r)
}

// RevealsByBallot returns all reveals stored for a ballot.
func (s *Store) RevealsByBallot(ballotID string) ([]*types.Reveal, error) {
	var reveals []*types.Reveal
	var decodeErr error
	prefix := append(append([]byte{}, revealPrefix...), compositeKey(ballotID, nil)...)
	err := s.db.Iterate(prefix, func(_, v []byte) bool {
		r := &types.Reveal{}
		if err := decodeArtifact(v, r); err != nil {
			decodeErr = err
			return false
		}
		reveals = append(reveals, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return reveals, nil
}

// RevealByNullifier returns the reveal stored under (ballot id, nullifier),
// or ErrNotFound.
func (s *Store) RevealByNullifier(ballotID string, nullifier types.HexBytes) (*types.Reveal, error) {
	r := &types.Reveal{}
	if err := s.getArtifact(revealPrefix, compositeKey(ballotID, nullifier), r); err != nil {
		return nil, err
	}
	return r, nil
}

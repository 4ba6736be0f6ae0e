package storage

import (
	"fmt"

	"github.com/flammafex/prestige/types"
)

// SetBallot stores a ballot, overwriting any previous version.
func (s *Store) SetBallot(b *types.Ballot) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("nil or unidentified ballot")
	}
	return s.setArtifact(ballotPrefix, []byte(b.ID), b)
}

// Ballot retrieves a ballot by id. It returns ErrNotFound if the ballot
// does not exist.
func (s *Store) Ballot(id string) (*types.Ballot, error) {
	b := &types.Ballot{}
	if err := s.getArtifact(ballotPrefix, []byte(id), b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBallots returns stored ballots, optionally filtered by status. A
// non-positive limit means no limit.
func (s *Store) ListBallots(status *types.BallotStatus, limit int) ([]*types.Ballot, error) {
	var ballots []*types.Ballot
	var decodeErr error
	err := s.db.Iterate(ballotPrefix, func(_, v []byte) bool {
		b := &types.Ballot{}
		if err := decodeArtifact(v, b); err != nil {
			decodeErr = err
			return false
		}
		if status != nil && b.Status != *status {
			return true
		}
		ballots = append(ballots, b)
		return limit <= 0 || len(ballots) < limit
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return ballots, nil
}

// UpdateBallotStatus sets the status of a stored ballot.
func (s *Store) UpdateBallotStatus(id string, status types.BallotStatus) error {
	s.ballotLock.Lock()
	defer s.ballotLock.Unlock()
	b, err := s.Ballot(id)
	if err != nil {
		return err
	}
	b.Status = status
	return s.setArtifact(ballotPrefix, []byte(id), b)
}

// UpdateBallotDeadlines sets real deadlines on a stored ballot. Used by
// petition activation, together with the status transition to voting.
func (s *Store) UpdateBallotDeadlines(id string, deadlineMS, revealDeadlineMS int64) error {
	s.ballotLock.Lock()
	defer s.ballotLock.Unlock()
	b, err := s.Ballot(id)
	if err != nil {
		return err
	}
	b.DeadlineMS = deadlineMS
	b.RevealDeadlineMS = revealDeadlineMS
	return s.setArtifact(ballotPrefix, []byte(id), b)
}

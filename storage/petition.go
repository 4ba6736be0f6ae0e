package storage

import (
	"fmt"

	"github.com/flammafex/prestige/types"
)

// SetPetitionSignature stores a petition signature under its
// (ballot id, public key) key. It reports whether the signature was
// inserted; duplicates are ignored.
func (s *Store) SetPetitionSignature(sig *types.PetitionSignature) (bool, error) {
	if sig == nil || sig.BallotID == "" || len(sig.PublicKey) != types.PubKeyLen {
		return false, fmt.Errorf("malformed petition signature")
	}
	key := compositeKey(sig.BallotID, sig.PublicKey)
	exists, err := s.hasArtifact(petitionPrefix, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return true, s.setArtifact(petitionPrefix, key, sig)
}

// PetitionSignaturesByBallot returns all recorded signatures for a ballot.
func (s *Store) PetitionSignaturesByBallot(ballotID string) ([]*types.PetitionSignature, error) {
	var sigs []*types.PetitionSignature
	var decodeErr error
	prefix := append(append([]byte{}, petitionPrefix...), compositeKey(ballotID, nil)...)
	err := s.db.Iterate(prefix, func(_, v []byte) bool {
		sig := &types.PetitionSignature{}
		if err := decodeArtifact(v, sig); err != nil {
			decodeErr = err
			return false
		}
		sigs = append(sigs, sig)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return sigs, nil
}

// HasPetitionSignature reports whether (ballot id, public key) is recorded.
func (s *Store) HasPetitionSignature(ballotID string, pk types.HexBytes) (bool, error) {
	return s.hasArtifact(petitionPrefix, compositeKey(ballotID, pk))
}

// CountPetitionSignatures returns the number of signatures recorded for a
// ballot.
func (s *Store) CountPetitionSignatures(ballotID string) (int, error) {
	count := 0
	prefix := append(append([]byte{}, petitionPrefix...), compositeKey(ballotID, nil)...)
	if err := s.db.Iterate(prefix, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0, err
	}
	return count, nil
}

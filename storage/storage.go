// Package storage persists every durable entity of the ballot service in a
// prefixed key-value store. The following prefixes are used:
//   - 'b/'   for ballots
//   - 'v/'   for votes
//   - 'r/'   for reveals
//   - 'res/' for results
//   - 'ps/'  for petition signatures
//
// Votes and reveals are keyed by (ballot id, nullifier) and petition
// signatures by (ballot id, public key); duplicate saves on those keys are
// ignored. The store's uniqueness semantics are the ground truth for
// double-write suppression.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	ballotPrefix   = []byte("b/")
	votePrefix     = []byte("v/")
	revealPrefix   = []byte("r/")
	resultPrefix   = []byte("res/")
	petitionPrefix = []byte("ps/")
)

// ErrNotFound is returned when the requested artifact does not exist.
var ErrNotFound = errors.New("not found")

// keySep separates the ballot id from the second component of composite
// keys. Ballot ids are UUIDs and never contain it.
const keySep = '/'

// Store wraps the key-value database with typed operations for every
// persistent entity.
type Store struct {
	db db.Database

	// ballotLock serializes read-modify-write updates of ballot records
	// (status and deadline transitions).
	ballotLock sync.Mutex
}

// New creates a new Store instance over the given database.
func New(database db.Database) *Store {
	return &Store{db: database}
}

// Close closes the underlying database.
func (s *Store) Close() {
	_ = s.db.Close()
}

func compositeKey(ballotID string, suffix []byte) []byte {
	key := make([]byte, 0, len(ballotID)+1+len(suffix))
	key = append(key, []byte(ballotID)...)
	key = append(key, keySep)
	return append(key, suffix...)
}

// encodeArtifact serializes an artifact with deterministic CBOR encoding.
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

// setArtifact stores an artifact under prefix/key, overwriting any
// previous value.
func (s *Store) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// getArtifact loads the artifact stored under prefix/key into out. It
// returns ErrNotFound if the key does not exist.
func (s *Store) getArtifact(prefix, key []byte, out any) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rTx.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// hasArtifact reports whether prefix/key exists.
func (s *Store) hasArtifact(prefix, key []byte) (bool, error) {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := rTx.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

package gossip

import (
	"sort"
	"sync"
	"time"

	"github.com/flammafex/prestige/types"
	"go.vocdoni.io/dvote/log"
)

// cacheEntry tracks one observed (ballot, nullifier) pair: the commitment
// it was first seen with, when, and from how many peers.
type cacheEntry struct {
	commitment types.HexBytes
	seen       time.Time
	peerCount  int
}

// nullifierCache is the bounded map backing gossip-level double-vote
// detection. The pruner removes expired entries first and then the oldest
// until the cache fits the cap.
type nullifierCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	max     int
	maxAge  time.Duration
}

func newNullifierCache(max int, maxAge time.Duration) *nullifierCache {
	return &nullifierCache{
		entries: make(map[string]*cacheEntry),
		max:     max,
		maxAge:  maxAge,
	}
}

func cacheKey(ballotID string, nullifier types.HexBytes) string {
	return ballotID + "/" + nullifier.String()
}

// lookup returns the cached commitment for the pair, if any.
func (c *nullifierCache) lookup(ballotID string, nullifier types.HexBytes) (types.HexBytes, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(ballotID, nullifier)]
	if !ok {
		return nil, false
	}
	return e.commitment, true
}

// insert records a newly observed pair.
func (c *nullifierCache) insert(ballotID string, nullifier, commitment types.HexBytes, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(ballotID, nullifier)] = &cacheEntry{
		commitment: commitment,
		seen:       now,
		peerCount:  1,
	}
}

// addPeer bumps the peer count of an already-cached pair.
func (c *nullifierCache) addPeer(ballotID string, nullifier types.HexBytes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[cacheKey(ballotID, nullifier)]; ok {
		e.peerCount++
	}
}

func (c *nullifierCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// prune drops expired entries, then the oldest entries over the cap.
func (c *nullifierCache) prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expired := 0
	for k, e := range c.entries {
		if now.Sub(e.seen) > c.maxAge {
			delete(c.entries, k)
			expired++
		}
	}
	evicted := 0
	if over := len(c.entries) - c.max; over > 0 {
		type aged struct {
			key  string
			seen time.Time
		}
		all := make([]aged, 0, len(c.entries))
		for k, e := range c.entries {
			all = append(all, aged{key: k, seen: e.seen})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].seen.Before(all[j].seen) })
		for i := 0; i < over; i++ {
			delete(c.entries, all[i].key)
		}
		evicted = over
	}
	if expired > 0 || evicted > 0 {
		log.Debugw("nullifier cache pruned", "expired", expired, "evicted", evicted,
			"remaining", len(c.entries))
	}
}

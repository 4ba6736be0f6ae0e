package tally

import (
	"sort"

	"github.com/flammafex/prestige/types"
)

// tallyRanked runs instant-runoff rounds. Each round, every ballot's first
// ranking still in the running receives one vote; without a majority the
// lowest-voted choice is eliminated, ties broken by ASCII order of the
// choice name so independent runs agree. The final tally is the last
// round's votes, zero-filled for eliminated choices.
func tallyRanked(b *types.Ballot, reveals []*types.VoteData) (map[string]int, []types.RankedRound) {
	remaining := make(map[string]bool, len(b.Choices))
	for _, c := range b.Choices {
		remaining[c] = true
	}

	var rounds []types.RankedRound
	// Safety cap: one elimination per round plus the winning round.
	for round := 1; round <= len(b.Choices)+1; round++ {
		votes := make(map[string]int, len(remaining))
		for c := range remaining {
			votes[c] = 0
		}
		total := 0
		for _, r := range reveals {
			for _, c := range r.Rankings {
				if remaining[c] {
					votes[c]++
					total++
					break
				}
			}
			// A ballot with no remaining choice contributes no vote
			// this round.
		}

		majority := total/2 + 1
		maxVotes, minVotes := -1, -1
		for _, n := range votes {
			if maxVotes < 0 || n > maxVotes {
				maxVotes = n
			}
			if minVotes < 0 || n < minVotes {
				minVotes = n
			}
		}
		if total > 0 && maxVotes >= majority {
			rounds = append(rounds, types.RankedRound{Round: round, Votes: votes})
			break
		}
		if len(remaining) <= 1 || total == 0 {
			rounds = append(rounds, types.RankedRound{Round: round, Votes: votes})
			break
		}

		eliminated := ""
		lowest := make([]string, 0, 1)
		for c, n := range votes {
			if n == minVotes {
				lowest = append(lowest, c)
			}
		}
		sort.Strings(lowest)
		eliminated = lowest[0]
		delete(remaining, eliminated)
		rounds = append(rounds, types.RankedRound{Round: round, Votes: votes, Eliminated: eliminated})
	}

	tally := emptyTally(b)
	if len(rounds) > 0 {
		for c, n := range rounds[len(rounds)-1].Votes {
			tally[c] = n
		}
	}
	return tally, rounds
}

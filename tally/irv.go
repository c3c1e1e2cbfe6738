package tally

import "github.com/calehh/hac-vote/types"

// InstantRunoff runs instant-runoff over rankings for n options.
// Each round counts first surviving preferences; an option holding a strict
// majority of active ballots wins, otherwise the option with the fewest votes
// is eliminated, lowest index first on ties. majority is false when the winner
// was left standing without a strict majority.
func InstantRunoff(n int, rankings [][]uint32) (winner int, rounds []types.Round, majority bool) {
	if n == 0 || len(rankings) == 0 {
		return 0, nil, false
	}
	eliminated := make([]bool, n)
	remaining := n
	for {
		counts := make([]uint64, n)
		var active uint64
		for _, r := range rankings {
			for _, o := range r {
				if int(o) < n && !eliminated[o] {
					counts[o]++
					active++
					break
				}
			}
		}
		round := types.Round{Counts: counts, Eliminated: -1}

		for o, c := range counts {
			if !eliminated[o] && 2*c > active {
				rounds = append(rounds, round)
				return o, rounds, true
			}
		}
		if remaining == 1 {
			rounds = append(rounds, round)
			for o := range eliminated {
				if !eliminated[o] {
					return o, rounds, false
				}
			}
		}

		loser := -1
		for o, c := range counts {
			if eliminated[o] {
				continue
			}
			if loser < 0 || c < counts[loser] {
				loser = o
			}
		}
		round.Eliminated = loser
		rounds = append(rounds, round)
		eliminated[loser] = true
		remaining--
	}
}

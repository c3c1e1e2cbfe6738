// Package tally accumulates ballots under a proposal's counting rule and
// derives the winner once the tally is frozen.
package tally

import (
	"errors"
	"fmt"

	"github.com/calehh/hac-vote/types"
)

var (
	ErrFrozen       = errors.New("tally frozen")
	ErrOverBudget   = errors.New("quadratic cost over budget")
	ErrUnknownRule  = errors.New("unknown voting rule")
	ErrZeroWeight   = errors.New("zero ballot weight")
	ErrOutOfRange   = errors.New("option out of range")
	ErrDuplicate    = errors.New("duplicate option")
	ErrEmptyBallot  = errors.New("empty ballot")
	ErrShapeInvalid = errors.New("ballot shape does not match rule")
	ErrOverflow     = errors.New("tally overflow")
)

// maxAmount keeps amount² inside uint64.
const maxAmount = 1<<32 - 1

type State struct {
	Rule     types.VotingRule `json:"rule"`
	Counts   []uint64         `json:"counts"`
	Ballots  uint64           `json:"ballots"`
	Weight   uint64           `json:"weight"`
	Rankings [][]uint32       `json:"rankings,omitempty"`
	Frozen   bool             `json:"frozen"`
}

func New(rule types.VotingRule, options int) *State {
	return &State{
		Rule:   rule,
		Counts: make([]uint64, options),
	}
}

func (s *State) Clone() *State {
	n := *s
	n.Counts = append([]uint64(nil), s.Counts...)
	if s.Rankings != nil {
		n.Rankings = make([][]uint32, len(s.Rankings))
		for i, r := range s.Rankings {
			n.Rankings[i] = append([]uint32(nil), r...)
		}
	}
	return &n
}

// Check validates a ballot against the rule without touching the counters.
// The returned cost is the quadratic credit spend, or weight for the other rules.
func (s *State) Check(choice types.Choice, weight uint64) (cost uint64, err error) {
	if s.Frozen {
		return 0, ErrFrozen
	}
	if weight == 0 {
		return 0, fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrZeroWeight)
	}
	if overflows(s.Weight, weight) {
		return 0, fmt.Errorf("%w: %w: cast weight", types.ErrInvalidBallot, ErrOverflow)
	}
	n := uint32(len(s.Counts))
	switch s.Rule {
	case types.RuleSimpleMajority, types.RuleWeighted:
		if len(choice.Options) != 0 || len(choice.Amounts) != 0 || len(choice.Ranking) != 0 {
			return 0, fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrShapeInvalid)
		}
		if choice.Option >= n {
			return 0, fmt.Errorf("%w: %w: %d", types.ErrInvalidBallot, ErrOutOfRange, choice.Option)
		}
		if s.Rule == types.RuleWeighted && overflows(s.Counts[choice.Option], weight) {
			return 0, fmt.Errorf("%w: %w: option %d", types.ErrInvalidBallot, ErrOverflow, choice.Option)
		}
		return weight, nil
	case types.RuleQuadratic:
		if len(choice.Ranking) != 0 || len(choice.Options) != len(choice.Amounts) {
			return 0, fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrShapeInvalid)
		}
		if len(choice.Options) == 0 {
			return 0, fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrEmptyBallot)
		}
		if err = distinct(choice.Options, n); err != nil {
			return 0, err
		}
		for i, a := range choice.Amounts {
			if a == 0 || a > maxAmount {
				return 0, fmt.Errorf("%w: amount %d for option %d", types.ErrInvalidBallot, a, choice.Options[i])
			}
			if overflows(s.Counts[choice.Options[i]], a) {
				return 0, fmt.Errorf("%w: %w: option %d", types.ErrInvalidBallot, ErrOverflow, choice.Options[i])
			}
			sq := a * a
			if cost+sq < cost || cost+sq > weight {
				return 0, fmt.Errorf("%w: %w: budget %d", types.ErrInvalidBallot, ErrOverBudget, weight)
			}
			cost += sq
		}
		return cost, nil
	case types.RuleRankedChoice:
		if len(choice.Options) != 0 || len(choice.Amounts) != 0 {
			return 0, fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrShapeInvalid)
		}
		if len(choice.Ranking) == 0 {
			return 0, fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrEmptyBallot)
		}
		if err = distinct(choice.Ranking, n); err != nil {
			return 0, err
		}
		return weight, nil
	}
	return 0, ErrUnknownRule
}

func overflows(a, b uint64) bool {
	return a+b < a
}

func distinct(opts []uint32, n uint32) error {
	if len(opts) > int(n) {
		return fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrDuplicate)
	}
	seen := make([]bool, n)
	for _, o := range opts {
		if o >= n {
			return fmt.Errorf("%w: %w: %d", types.ErrInvalidBallot, ErrOutOfRange, o)
		}
		if seen[o] {
			return fmt.Errorf("%w: %w: %d", types.ErrInvalidBallot, ErrDuplicate, o)
		}
		seen[o] = true
	}
	return nil
}

// Apply records one accepted ballot. It leaves the state untouched on error.
func (s *State) Apply(choice types.Choice, weight uint64) error {
	if _, err := s.Check(choice, weight); err != nil {
		return err
	}
	switch s.Rule {
	case types.RuleSimpleMajority:
		s.Counts[choice.Option]++
	case types.RuleWeighted:
		s.Counts[choice.Option] += weight
	case types.RuleQuadratic:
		for i, o := range choice.Options {
			s.Counts[o] += choice.Amounts[i]
		}
	case types.RuleRankedChoice:
		s.Counts[choice.Ranking[0]]++
		s.Rankings = append(s.Rankings, append([]uint32(nil), choice.Ranking...))
	}
	s.Ballots++
	s.Weight += weight
	return nil
}

func (s *State) Freeze() {
	s.Frozen = true
}

// QuorumMet reports whether ballots reach quorum percent of registered voters.
func QuorumMet(quorum, ballots, totalVoters uint64) bool {
	if quorum == 0 {
		return true
	}
	if totalVoters == 0 {
		return false
	}
	return ballots*100 >= quorum*totalVoters
}

// Result computes the outcome. Passed is always false when quorum is not met.
func (s *State) Result(quorum, totalVoters uint64) (res types.Result) {
	res.TotalVotes = s.Ballots
	res.TotalVoters = totalVoters
	res.QuorumMet = QuorumMet(quorum, s.Ballots, totalVoters)

	if s.Rule == types.RuleRankedChoice {
		winner, rounds, majority := InstantRunoff(len(s.Counts), s.Rankings)
		res.Rounds = rounds
		res.WinningOption = uint32(winner)
		if len(rounds) == 0 {
			res.Counts = make([]uint64, len(s.Counts))
			return
		}
		final := rounds[len(rounds)-1]
		res.Counts = append([]uint64(nil), final.Counts...)
		res.Margin = margin(final.Counts, winner)
		res.Passed = res.QuorumMet && majority
		return
	}

	res.Counts = append([]uint64(nil), s.Counts...)
	winner, unique := plurality(s.Counts)
	res.WinningOption = uint32(winner)
	res.Margin = margin(s.Counts, winner)
	if !res.QuorumMet || s.Ballots == 0 {
		return
	}
	if len(s.Counts) == 2 {
		res.Passed = s.Counts[0] > s.Counts[1]
	} else {
		res.Passed = unique
	}
	return
}

// plurality returns the lowest-indexed option with the highest count and
// whether no other option shares that count.
func plurality(counts []uint64) (winner int, unique bool) {
	unique = true
	for i := 1; i < len(counts); i++ {
		switch {
		case counts[i] > counts[winner]:
			winner = i
			unique = true
		case counts[i] == counts[winner]:
			unique = false
		}
	}
	return
}

func margin(counts []uint64, winner int) uint64 {
	var second uint64
	for i, c := range counts {
		if i != winner && c > second {
			second = c
		}
	}
	if counts[winner] < second {
		return 0
	}
	return counts[winner] - second
}

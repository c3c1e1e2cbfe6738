package vote

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/types"
)

// Queries read committed state under the proposal's read lock, so the
// proposal and its tally always come from the same commit. Fields gated by
// the visibility bitmap take the viewer's address; the zero address is a
// viewer with no role.

type RegistrationStatus struct {
	Registered  bool   `json:"registered"`
	Pending     bool   `json:"pending"`
	Voted       bool   `json:"voted"`
	VoteHidden  bool   `json:"vote_hidden,omitempty"`
	WeightGroup uint32 `json:"weight_group"`
	Weight      uint64 `json:"weight"`
}

func (e *Engine) ProposalCount() (uint64, error) {
	return e.db.ProposalCount()
}

func (e *Engine) Proposal(id uint64) (p *types.Proposal, err error) {
	err = e.view(id, func(pp *types.Proposal) error {
		p = pp
		return nil
	})
	return
}

// Tallies returns the running per-option counts. Ranked proposals report
// first preferences.
func (e *Engine) Tallies(id uint64, viewer common.Address) (counts []uint64, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldVoteCounts); err != nil {
			return err
		}
		st, err := e.db.Tally(id)
		if err != nil {
			return err
		}
		if st == nil {
			counts = make([]uint64, len(p.Config.Options))
			return nil
		}
		counts = st.Counts
		return nil
	})
	return
}

// RegistrationStatus reports voter's standing to viewer. A voter always sees
// its own status. Anyone else needs the voter list, and sees Voted only with
// vote details or progress; otherwise VoteHidden is set.
func (e *Engine) RegistrationStatus(id uint64, voter, viewer common.Address) (s RegistrationStatus, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		self := viewer == voter
		if !self {
			if err := e.gate(p, viewer, types.FieldVoterList); err != nil {
				return err
			}
		}
		reg, err := e.db.Registration(id, voter)
		if err != nil {
			return err
		}
		if reg != nil {
			s.Registered = reg.Approved
			s.Pending = !reg.Approved
			s.WeightGroup = reg.WeightGroup
			s.Weight = reg.Weight
		}
		if !self {
			ok, err := e.sees(p, viewer, types.FieldVoteDetails, types.FieldProgress)
			if err != nil {
				return err
			}
			if !ok {
				s.VoteHidden = true
				return nil
			}
		}
		bl, err := e.db.Ballot(id, voter)
		if err != nil {
			return err
		}
		s.Voted = bl != nil
		return nil
	})
	return
}

// HasVoted reports whether voter cast an identified ballot. Anonymous
// ballots cannot be attributed and always report false. Viewers other than
// the voter need vote details or progress.
func (e *Engine) HasVoted(id uint64, voter, viewer common.Address) (voted bool, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if viewer != voter {
			ok, err := e.sees(p, viewer, types.FieldVoteDetails, types.FieldProgress)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %v of proposal %d", types.ErrUnauthorized, types.FieldVoteDetails, p.ID)
			}
		}
		bl, err := e.db.Ballot(id, voter)
		voted = bl != nil
		return err
	})
	return
}

func (e *Engine) registrations(id uint64, viewer common.Address, approved bool) (regs []*types.Registration, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldVoterList); err != nil {
			return err
		}
		all, err := e.db.Registrations(id)
		if err != nil {
			return err
		}
		for _, r := range all {
			if r.Approved == approved {
				regs = append(regs, r)
			}
		}
		return nil
	})
	return
}

func (e *Engine) Registrations(id uint64, viewer common.Address) ([]*types.Registration, error) {
	return e.registrations(id, viewer, true)
}

func (e *Engine) PendingRegistrations(id uint64, viewer common.Address) ([]*types.Registration, error) {
	return e.registrations(id, viewer, false)
}

func (e *Engine) Whitelist(id uint64, viewer common.Address) (entries []*types.WhitelistEntry, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldVoterList); err != nil {
			return err
		}
		entries, err = e.db.Whitelist(id)
		return err
	})
	return
}

func (e *Engine) Ballots(id uint64, viewer common.Address) (ballots []*types.Ballot, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldVoteDetails); err != nil {
			return err
		}
		ballots, err = e.db.Ballots(id)
		return err
	})
	return
}

func (e *Engine) AnonymousBallots(id uint64, viewer common.Address) (ballots []*types.AnonymousBallot, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldVoteDetails); err != nil {
			return err
		}
		ballots, err = e.db.AnonymousBallots(id)
		return err
	})
	return
}

// Result returns the winner and margin once the result is revealed.
func (e *Engine) Result(id uint64, viewer common.Address) (res *types.Result, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldFinalResult); err != nil {
			return err
		}
		if !p.ResultRevealed {
			return fmt.Errorf("%w: %w", types.ErrInvalidStateTransition, ErrNotRevealed)
		}
		res, err = e.db.Result(id)
		return err
	})
	return
}

func (e *Engine) Participation(id uint64, viewer common.Address) (pt types.Participation, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if err := e.gate(p, viewer, types.FieldProgress); err != nil {
			return err
		}
		pt = types.Participation{ProposalID: id, TotalVoters: p.TotalVoters, TotalVotes: p.TotalVotes}
		if p.TotalVoters > 0 {
			pt.Rate = float64(p.TotalVotes) / float64(p.TotalVoters)
		}
		return nil
	})
	return
}

// Group returns an anonymous proposal's member tree. Provers need it to
// build their paths, so it is not gated.
func (e *Engine) Group(id uint64) (g *membership.Group, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if !p.Anonymous() {
			return fmt.Errorf("%w: proposal %d is %v", types.ErrInvalidConfig, id, p.Config.Privacy)
		}
		g, err = e.db.Group(id)
		if err != nil || g == nil {
			return err
		}
		g.Leaves, err = e.db.Leaves(id)
		return err
	})
	return
}

func (e *Engine) NullifierUsed(id uint64, nullifier []byte) (used bool, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		used, err = e.db.NullifierUsed(id, nullifier)
		return err
	})
	return
}

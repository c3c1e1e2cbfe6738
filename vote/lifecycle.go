package vote

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/tally"
	"github.com/calehh/hac-vote/types"
)

// CreateProposal validates cfg and stores a new proposal in Created. Ids are
// allocated from 1 upwards.
func (e *Engine) CreateProposal(ctx context.Context, creator common.Address, cfg types.Config, now types.Now) (p *types.Proposal, err error) {
	var events []types.Event
	defer func() {
		e.metrics.observe("create", err)
		if err == nil {
			e.metrics.record(events)
			collect(ctx, events)
			e.publish(events)
		}
	}()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	e.idMtx.Lock()
	defer e.idMtx.Unlock()

	b := e.db.NewBatch()
	count, err := b.ProposalCount()
	if err != nil {
		return
	}
	id := count + 1
	p = (&types.Proposal{
		ID:               id,
		Creator:          creator,
		Config:           cfg,
		State:            types.StateCreated,
		WeightTable:      cfg.WeightGroups,
		WhitelistEnabled: len(cfg.Whitelist) > 0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}).Clone()

	for i := range p.Config.Whitelist {
		if err = b.PutWhitelist(id, &p.Config.Whitelist[i]); err != nil {
			return nil, err
		}
	}
	if p.Anonymous() {
		params, err := b.Params()
		if err != nil {
			return nil, err
		}
		depth := params.MerkleDepth
		if depth == 0 {
			depth = membership.DefaultDepth
		}
		if err = e.members.Create(b, id, depth); err != nil {
			return nil, err
		}
	}
	if err = b.PutTally(id, tally.New(cfg.Rule, len(cfg.Options))); err != nil {
		return
	}
	b.SetProposalCount(id)
	b.PutProposal(p)
	b.Emit(&types.EventProposalCreated{
		ProposalID:   id,
		Creator:      creator.Hex(),
		Title:        cfg.Title,
		Rule:         uint64(cfg.Rule),
		Privacy:      uint64(cfg.Privacy),
		Registration: uint64(cfg.Registration),
		Options:      uint64(len(cfg.Options)),
	})
	if err = e.db.Commit(b); err != nil {
		e.logger.Error("create proposal commit fail", "err", err)
		return nil, err
	}
	events = b.Events()
	e.logger.Info("proposal created", "proposal", id, "creator", creator, "rule", cfg.Rule, "privacy", cfg.Privacy)
	return p.Clone(), nil
}

// opens returns the counter value at which a transition into st is allowed:
// the phase start for Registration and Voting, the voting end for Tallying.
func opens(p *types.Proposal, st types.ProposalState) uint64 {
	switch st {
	case types.StateRegistration:
		return p.Config.RegistrationStart
	case types.StateVoting:
		return p.Config.VotingStart
	case types.StateTallying:
		return p.Config.VotingEnd
	}
	return 0
}

// advance moves p from its current state to the next one and applies the
// side effects of entering it. Guards have already been checked.
func (e *Engine) advance(b *state.Batch, p *types.Proposal, to types.ProposalState) error {
	switch to {
	case types.StateVoting:
		if p.Anonymous() {
			if err := e.members.Freeze(b, p.ID); err != nil {
				return err
			}
			p.GroupFrozen = true
		}
	case types.StateTallying:
		st, err := b.Tally(p.ID)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("proposal %d has no tally", p.ID)
		}
		st.Freeze()
		res := st.Result(p.Config.Quorum, p.TotalVoters)
		res.ProposalID = p.ID
		if err = b.PutTally(p.ID, st); err != nil {
			return err
		}
		if err = b.PutResult(&res); err != nil {
			return err
		}
		if !res.QuorumMet {
			e.logger.Info("quorum not met", "proposal", p.ID, "votes", res.TotalVotes, "voters", res.TotalVoters, "quorum", p.Config.Quorum)
		}
	}
	b.Emit(&types.EventStateChanged{ProposalID: p.ID, Old: uint64(p.State), New: uint64(to)})
	p.State = to
	return nil
}

// transition checks, in order: creator, prior state, window opened.
func (e *Engine) transition(ctx context.Context, op string, id uint64, caller common.Address, from, to types.ProposalState, now types.Now) error {
	return e.update(ctx, op, id, now, func(b *state.Batch, p *types.Proposal) error {
		if err := e.requireCreator(p, caller); err != nil {
			return err
		}
		if p.State != from {
			return fmt.Errorf("%w: proposal %d is %v, cannot move to %v", types.ErrInvalidStateTransition, id, p.State, to)
		}
		t := now.In(p.Config.Unit)
		if at := opens(p, to); t < at {
			return fmt.Errorf("%w: %v opens at %d, now %d", types.ErrWindowNotOpen, to, at, t)
		}
		if _, end := p.Config.Window(from); end != 0 && t < end {
			return fmt.Errorf("%w: %v runs until %d, now %d", types.ErrWindowNotOpen, from, end, t)
		}
		return e.advance(b, p, to)
	})
}

func (e *Engine) StartRegistration(ctx context.Context, id uint64, caller common.Address, now types.Now) error {
	return e.transition(ctx, "start_registration", id, caller, types.StateCreated, types.StateRegistration, now)
}

// StartVoting also freezes an anonymous proposal's group.
func (e *Engine) StartVoting(ctx context.Context, id uint64, caller common.Address, now types.Now) error {
	return e.transition(ctx, "start_voting", id, caller, types.StateRegistration, types.StateVoting, now)
}

// StartTallying freezes the tally and stores the result. A missed quorum is
// reported through Result.QuorumMet and never fails the call.
func (e *Engine) StartTallying(ctx context.Context, id uint64, caller common.Address, now types.Now) error {
	return e.transition(ctx, "start_tallying", id, caller, types.StateVoting, types.StateTallying, now)
}

// RevealResult finalizes a tallied proposal. Anyone may call it; on a
// finalized proposal it returns the stored result unchanged.
func (e *Engine) RevealResult(ctx context.Context, id uint64, now types.Now) (res *types.Result, err error) {
	err = e.view(id, func(p *types.Proposal) error {
		if p.State != types.StateFinalized {
			return nil
		}
		res, err = e.db.Result(id)
		return err
	})
	if err != nil || res != nil {
		return
	}
	err = e.update(ctx, "reveal_result", id, now, func(b *state.Batch, p *types.Proposal) error {
		switch p.State {
		case types.StateTallying:
		case types.StateFinalized:
			// finalized between the read above and this lock
			r, err := b.Result(id)
			res = r
			return err
		default:
			return fmt.Errorf("%w: proposal %d is %v, not tallied", types.ErrInvalidStateTransition, id, p.State)
		}
		r, err := b.Result(id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("proposal %d has no stored result", id)
		}
		if err = e.advance(b, p, types.StateFinalized); err != nil {
			return err
		}
		p.ResultRevealed = true
		b.Emit(&types.EventResultRevealed{
			ProposalID:    id,
			WinningOption: uint64(r.WinningOption),
			Margin:        r.Margin,
			TotalVotes:    r.TotalVotes,
			Passed:        r.Passed,
			Counts:        r.Counts,
		})
		res = r
		return nil
	})
	return
}

// Cancel ends a proposal from any non-terminal state.
func (e *Engine) Cancel(ctx context.Context, id uint64, caller common.Address, now types.Now) error {
	return e.update(ctx, "cancel", id, now, func(b *state.Batch, p *types.Proposal) error {
		if err := e.requireCreator(p, caller); err != nil {
			return err
		}
		if p.State.Terminal() {
			return fmt.Errorf("%w: proposal %d is %v", types.ErrInvalidStateTransition, id, p.State)
		}
		return e.advance(b, p, types.StateCancelled)
	})
}

// AutoAdvance performs every transition whose window has been reached on a
// proposal configured with AutoAdvance. It is a no-op otherwise, and never
// fails on a proposal that has nothing to do.
func (e *Engine) AutoAdvance(ctx context.Context, id uint64, now types.Now) (moved []types.ProposalState, err error) {
	err = e.update(ctx, "auto_advance", id, now, func(b *state.Batch, p *types.Proposal) error {
		if !p.Config.AutoAdvance {
			return nil
		}
		t := now.In(p.Config.Unit)
		for !p.State.Terminal() && p.State != types.StateTallying {
			next := p.State + 1
			if t < opens(p, next) {
				break
			}
			if err := e.advance(b, p, next); err != nil {
				return err
			}
			moved = append(moved, next)
		}
		return nil
	})
	if err != nil {
		moved = nil
	}
	return
}

func (e *Engine) requireEditable(p *types.Proposal, caller common.Address) error {
	if err := e.requireCreator(p, caller); err != nil {
		return err
	}
	if p.State != types.StateCreated && p.State != types.StateRegistration {
		return fmt.Errorf("%w: proposal %d is %v", types.ErrInvalidStateTransition, p.ID, p.State)
	}
	return nil
}

// AddWhitelist adds or replaces entries and turns the whitelist on. Voters
// already registered are not affected.
func (e *Engine) AddWhitelist(ctx context.Context, id uint64, caller common.Address, entries []types.WhitelistEntry, now types.Now) error {
	return e.update(ctx, "add_whitelist", id, now, func(b *state.Batch, p *types.Proposal) error {
		if err := e.requireEditable(p, caller); err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: empty whitelist", types.ErrInvalidConfig)
		}
		seen := make(map[common.Address]bool, len(entries))
		addrs := make([]string, 0, len(entries))
		for i := range entries {
			en := entries[i]
			if seen[en.Address] {
				return fmt.Errorf("%w: %v listed twice", types.ErrInvalidConfig, en.Address)
			}
			seen[en.Address] = true
			if err := types.CheckWeightGroup(p.WeightTable, en.WeightGroup); err != nil {
				return err
			}
			if err := b.PutWhitelist(id, &en); err != nil {
				return err
			}
			addrs = append(addrs, en.Address.Hex())
		}
		p.WhitelistEnabled = true
		b.Emit(&types.EventConfigUpdated{ProposalID: id, Field: "whitelist", Detail: strings.Join(addrs, ",")})
		return nil
	})
}

// SetWeightGroup edits the live weight table before voting. Registrations
// keep the weight they were recorded with.
func (e *Engine) SetWeightGroup(ctx context.Context, id uint64, caller common.Address, index uint32, weight uint64, now types.Now) error {
	return e.update(ctx, "set_weight_group", id, now, func(b *state.Batch, p *types.Proposal) error {
		if err := e.requireEditable(p, caller); err != nil {
			return err
		}
		if int(index) >= len(p.WeightTable) {
			return fmt.Errorf("%w: weight group %d out of range", types.ErrInvalidConfig, index)
		}
		if err := types.CheckWeight(weight); err != nil {
			return err
		}
		p.WeightTable[index].Weight = weight
		b.Emit(&types.EventConfigUpdated{
			ProposalID: id,
			Field:      "weight_group",
			Detail:     fmt.Sprintf("%d:%s=%d", index, p.WeightTable[index].Name, weight),
		})
		return nil
	})
}

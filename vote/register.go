package vote

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calehh/hac-vote/registration"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/types"
)

func registered(reg *types.Registration, member int64) *types.EventVoterRegistered {
	ev := &types.EventVoterRegistered{
		ProposalID:  reg.ProposalID,
		Voter:       reg.Voter.Hex(),
		WeightGroup: uint64(reg.WeightGroup),
		Weight:      reg.Weight,
		Member:      member,
	}
	if len(reg.Commitment) > 0 {
		ev.Commitment = hex.EncodeToString(reg.Commitment)
	}
	return ev
}

func registrationEvent(typ string, reg *types.Registration) *types.EventRegistration {
	return &types.EventRegistration{
		Type:        typ,
		ProposalID:  reg.ProposalID,
		Voter:       reg.Voter.Hex(),
		WeightGroup: uint64(reg.WeightGroup),
	}
}

// admit counts an approved registration and, on anonymous proposals, adds
// its commitment to the group.
func (e *Engine) admit(b *state.Batch, p *types.Proposal, reg *types.Registration) error {
	member := int64(-1)
	if p.Anonymous() {
		index, err := e.members.Join(b, p.ID, reg.Commitment)
		if err != nil {
			return err
		}
		member = int64(index)
	}
	p.TotalVoters++
	b.Emit(registered(reg, member))
	return nil
}

func (e *Engine) register(ctx context.Context, op string, id uint64, voter common.Address, req registration.Request, now types.Now) (reg *types.Registration, err error) {
	err = e.update(ctx, op, id, now, func(b *state.Batch, p *types.Proposal) error {
		r, err := e.reg.Register(ctx, b, p, voter, req, now)
		if err != nil {
			return err
		}
		if !r.Approved {
			if p.Anonymous() {
				if err = e.members.CheckCommitment(b, id, r.Commitment); err != nil {
					return err
				}
			}
			b.Emit(registrationEvent(types.EventRegistrationRequestedType, r))
		} else if err = e.admit(b, p, r); err != nil {
			return err
		}
		reg = r
		return nil
	})
	if err != nil {
		reg = nil
	}
	return
}

// Register adds voter to a public proposal. Approval gated proposals leave the
// registration pending.
func (e *Engine) Register(ctx context.Context, id uint64, voter common.Address, group *uint32, now types.Now) (*types.Registration, error) {
	return e.register(ctx, "register", id, voter, registration.Request{WeightGroup: group}, now)
}

// RegisterAnonymous registers voter on an anonymous proposal with the identity
// commitment that will represent it in the group.
func (e *Engine) RegisterAnonymous(ctx context.Context, id uint64, voter common.Address, commitment []byte, now types.Now) (*types.Registration, error) {
	return e.register(ctx, "register_anonymous", id, voter, registration.Request{Commitment: commitment}, now)
}

func (e *Engine) Approve(ctx context.Context, id uint64, caller, voter common.Address, now types.Now) (reg *types.Registration, err error) {
	err = e.update(ctx, "approve", id, now, func(b *state.Batch, p *types.Proposal) error {
		r, err := e.reg.Approve(b, p, caller, voter)
		if err != nil {
			return err
		}
		b.Emit(registrationEvent(types.EventRegistrationApprovedType, r))
		if err = e.admit(b, p, r); err != nil {
			return err
		}
		reg = r
		return nil
	})
	if err != nil {
		reg = nil
	}
	return
}

// BatchApprove approves every voter or none of them.
func (e *Engine) BatchApprove(ctx context.Context, id uint64, caller common.Address, voters []common.Address, now types.Now) (regs []*types.Registration, err error) {
	err = e.update(ctx, "batch_approve", id, now, func(b *state.Batch, p *types.Proposal) error {
		rs, err := e.reg.BatchApprove(b, p, caller, voters)
		if err != nil {
			return err
		}
		for _, r := range rs {
			b.Emit(registrationEvent(types.EventRegistrationApprovedType, r))
			if err = e.admit(b, p, r); err != nil {
				return fmt.Errorf("approve %v: %w", r.Voter, err)
			}
		}
		regs = rs
		return nil
	})
	if err != nil {
		regs = nil
	}
	return
}

func (e *Engine) Reject(ctx context.Context, id uint64, caller, voter common.Address, now types.Now) error {
	return e.update(ctx, "reject", id, now, func(b *state.Batch, p *types.Proposal) error {
		r, err := e.reg.Reject(b, p, caller, voter)
		if err != nil {
			return err
		}
		b.Emit(registrationEvent(types.EventRegistrationRejectedType, r))
		return nil
	})
}

// Package registration decides who may join a proposal's voter roll.
package registration

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/calehh/hac-vote/types"
)

var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrNoBalanceChecker    = errors.New("no balance checker configured")
	ErrNotWhitelisted      = errors.New("not whitelisted")
	ErrNotCreator          = errors.New("caller is not the creator")
	ErrPending             = errors.New("registration pending")
	ErrMissingCommitment   = errors.New("anonymous registration needs a commitment")
)

// BalanceChecker answers token balance queries for asset gated proposals.
type BalanceChecker interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Book is the registration state of one proposal set.
type Book interface {
	Registration(id uint64, voter common.Address) (*types.Registration, error)
	PutRegistration(r *types.Registration) error
	DeleteRegistration(id uint64, voter common.Address) error
	Whitelisted(id uint64, voter common.Address) (*types.WhitelistEntry, error)
}

type Request struct {
	WeightGroup *uint32
	Commitment  []byte
}

type Engine struct {
	logger   cmtlog.Logger
	balances BalanceChecker
}

func NewEngine(balances BalanceChecker, logger cmtlog.Logger) *Engine {
	return &Engine{
		logger:   logger.With("module", "registration"),
		balances: balances,
	}
}

// Register records voter against p. The returned registration is approved
// unless p uses approval gated registration. book is only written on success.
func (e *Engine) Register(ctx context.Context, book Book, p *types.Proposal, voter common.Address, req Request, now types.Now) (reg *types.Registration, err error) {
	if p.Anonymous() && p.GroupFrozen {
		return nil, types.ErrGroupFrozen
	}
	if err = p.InPhase(types.StateRegistration, now); err != nil {
		return nil, err
	}
	if p.Anonymous() && len(req.Commitment) == 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, ErrMissingCommitment)
	}
	if !p.Anonymous() && len(req.Commitment) != 0 {
		return nil, fmt.Errorf("%w: commitment on a %v proposal", types.ErrInvalidConfig, p.Config.Privacy)
	}
	prev, err := book.Registration(p.ID, voter)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if prev.Approved {
			return nil, fmt.Errorf("%w: %v", types.ErrAlreadyRegistered, voter)
		}
		return nil, fmt.Errorf("%w: %w: %v", types.ErrAlreadyRegistered, ErrPending, voter)
	}

	group := uint32(0)
	if req.WeightGroup != nil {
		group = *req.WeightGroup
	}
	if p.WhitelistEnabled {
		entry, err := book.Whitelisted(p.ID, voter)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("%w: %w: %v", types.ErrUnauthorized, ErrNotWhitelisted, voter)
		}
		if entry.WeightGroup != nil {
			group = *entry.WeightGroup
		}
	}
	weight, err := p.GroupWeight(group)
	if err != nil {
		return nil, err
	}

	if p.Config.Registration == types.RegistrationAssetGated {
		if err = e.checkBalance(ctx, p, voter); err != nil {
			return nil, err
		}
	}

	reg = &types.Registration{
		ProposalID:  p.ID,
		Voter:       voter,
		WeightGroup: group,
		Weight:      weight,
		Approved:    p.Config.Registration != types.RegistrationApproval,
		Commitment:  req.Commitment,
		Requested:   now,
	}
	if err = book.PutRegistration(reg); err != nil {
		return nil, err
	}
	return
}

func (e *Engine) checkBalance(ctx context.Context, p *types.Proposal, voter common.Address) error {
	gate := p.Config.AssetGate
	if gate == nil || gate.MinBalance == nil {
		return fmt.Errorf("%w: asset gate missing", types.ErrInvalidConfig)
	}
	if e.balances == nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, ErrNoBalanceChecker)
	}
	bal, err := e.balances.BalanceOf(ctx, gate.Token, voter)
	if err != nil {
		e.logger.Error("balance query fail", "token", gate.Token, "holder", voter, "err", err)
		return fmt.Errorf("balance of %v: %w", voter, err)
	}
	if bal == nil || bal.Cmp(gate.MinBalance) < 0 {
		return fmt.Errorf("%w: %w: have %v, need %v", types.ErrUnauthorized, ErrInsufficientBalance, bal, gate.MinBalance)
	}
	return nil
}

func (e *Engine) checkCreator(p *types.Proposal, caller common.Address) error {
	if caller != p.Creator {
		return fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrNotCreator)
	}
	if p.Anonymous() && p.GroupFrozen {
		return types.ErrGroupFrozen
	}
	if p.State != types.StateRegistration {
		return fmt.Errorf("%w: proposal %d is %v", types.ErrInvalidStateTransition, p.ID, p.State)
	}
	if p.Config.Registration != types.RegistrationApproval {
		return fmt.Errorf("%w: proposal %d does not take approvals", types.ErrInvalidConfig, p.ID)
	}
	return nil
}

func pending(book Book, id uint64, voter common.Address) (*types.Registration, error) {
	reg, err := book.Registration(id, voter)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNotRegistered, voter)
	}
	if reg.Approved {
		return nil, fmt.Errorf("%w: %v", types.ErrAlreadyRegistered, voter)
	}
	return reg, nil
}

// Approve promotes a pending registration.
func (e *Engine) Approve(book Book, p *types.Proposal, caller, voter common.Address) (reg *types.Registration, err error) {
	if err = e.checkCreator(p, caller); err != nil {
		return nil, err
	}
	reg, err = pending(book, p.ID, voter)
	if err != nil {
		return nil, err
	}
	reg.Approved = true
	if err = book.PutRegistration(reg); err != nil {
		return nil, err
	}
	return
}

// BatchApprove approves every voter or returns the first failure. Callers
// discard book on error.
func (e *Engine) BatchApprove(book Book, p *types.Proposal, caller common.Address, voters []common.Address) (regs []*types.Registration, err error) {
	if len(voters) == 0 {
		return nil, fmt.Errorf("%w: empty approval list", types.ErrInvalidConfig)
	}
	for _, v := range voters {
		reg, err := e.Approve(book, p, caller, v)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return
}

// Reject drops a pending registration.
func (e *Engine) Reject(book Book, p *types.Proposal, caller, voter common.Address) (reg *types.Registration, err error) {
	if err = e.checkCreator(p, caller); err != nil {
		return nil, err
	}
	reg, err = pending(book, p.ID, voter)
	if err != nil {
		return nil, err
	}
	if err = book.DeleteRegistration(p.ID, voter); err != nil {
		return nil, err
	}
	return
}

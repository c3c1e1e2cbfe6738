package vote

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/tally"
	"github.com/calehh/hac-vote/types"
)

// AnonymousVote is a ballot that carries a membership proof in place of the
// voter's identity.
type AnonymousVote struct {
	Root      []byte       `json:"root"`
	Nullifier []byte       `json:"nullifier"`
	Choice    types.Choice `json:"choice"`
	Proof     []byte       `json:"proof"`
}

func loadTally(b *state.Batch, id uint64) (*tally.State, error) {
	st, err := b.Tally(id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("proposal %d has no tally", id)
	}
	return st, nil
}

// CastVote records an identified ballot. The choice shape must match the
// proposal's rule; the registered weight is the ballot weight, or the credit
// budget under the quadratic rule.
func (e *Engine) CastVote(ctx context.Context, id uint64, voter common.Address, choice types.Choice, now types.Now) (ballot *types.Ballot, err error) {
	err = e.update(ctx, "cast_vote", id, now, func(b *state.Batch, p *types.Proposal) error {
		if p.Anonymous() {
			return fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrIdentifiedVote)
		}
		if err := p.InPhase(types.StateVoting, now); err != nil {
			return err
		}
		reg, err := b.Registration(id, voter)
		if err != nil {
			return err
		}
		if reg == nil || !reg.Approved {
			return fmt.Errorf("%w: %v", types.ErrNotRegistered, voter)
		}
		prev, err := b.Ballot(id, voter)
		if err != nil {
			return err
		}
		if prev != nil {
			return fmt.Errorf("%w: %v", types.ErrAlreadyVoted, voter)
		}
		st, err := loadTally(b, id)
		if err != nil {
			return err
		}
		if err = st.Apply(choice, reg.Weight); err != nil {
			return err
		}
		bl := &types.Ballot{ProposalID: id, Voter: voter, Choice: choice, Weight: reg.Weight, Cast: now}
		if err = b.PutTally(id, st); err != nil {
			return err
		}
		if err = b.PutBallot(bl); err != nil {
			return err
		}
		p.TotalVotes++
		b.Emit(&types.EventVoteCast{ProposalID: id, Voter: voter.Hex(), Choice: choice, Weight: reg.Weight})
		ballot = bl
		return nil
	})
	if err != nil {
		ballot = nil
	}
	return
}

func (e *Engine) CastQuadraticVote(ctx context.Context, id uint64, voter common.Address, options []uint32, amounts []uint64, now types.Now) (*types.Ballot, error) {
	return e.CastVote(ctx, id, voter, types.QuadraticChoice(options, amounts), now)
}

func (e *Engine) CastRankedVote(ctx context.Context, id uint64, voter common.Address, ranking []uint32, now types.Now) (*types.Ballot, error) {
	return e.CastVote(ctx, id, voter, types.RankedChoice(ranking), now)
}

// CastAnonymousVote verifies the membership proof, consumes its nullifier and
// counts the choice with weight 1.
func (e *Engine) CastAnonymousVote(ctx context.Context, id uint64, vote AnonymousVote, now types.Now) (ballot *types.AnonymousBallot, err error) {
	err = e.update(ctx, "cast_anonymous_vote", id, now, func(b *state.Batch, p *types.Proposal) error {
		if !p.Anonymous() {
			return fmt.Errorf("%w: %w", types.ErrInvalidBallot, ErrAnonymousVote)
		}
		if err := p.InPhase(types.StateVoting, now); err != nil {
			return err
		}
		st, err := loadTally(b, id)
		if err != nil {
			return err
		}
		if _, err = st.Check(vote.Choice, 1); err != nil {
			return err
		}
		stmt := membership.Statement{
			Root:      vote.Root,
			Nullifier: vote.Nullifier,
			Message:   membership.Message(vote.Choice),
			Scope:     membership.Scope(id),
		}
		if err = e.members.Verify(b, id, stmt, vote.Proof); err != nil {
			return err
		}
		if err = st.Apply(vote.Choice, 1); err != nil {
			return err
		}
		bl := &types.AnonymousBallot{
			ProposalID: id,
			Nullifier:  append([]byte(nil), vote.Nullifier...),
			Root:       append([]byte(nil), vote.Root...),
			Choice:     vote.Choice,
			Cast:       now,
		}
		if err = b.PutTally(id, st); err != nil {
			return err
		}
		if err = b.PutAnonymousBallot(bl); err != nil {
			return err
		}
		p.TotalVotes++
		b.Emit(&types.EventVoteCast{ProposalID: id, Nullifier: hex.EncodeToString(vote.Nullifier), Choice: vote.Choice, Weight: 1})
		ballot = bl
		return nil
	})
	if err != nil {
		ballot = nil
	}
	return
}

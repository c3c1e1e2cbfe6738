package handler

import (
	"context"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/calehh/hac-vote/tx"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

// ProposalTxHandler covers creation, the creator-driven transitions, reveal
// and the creator's whitelist and weight edits.
type ProposalTxHandler struct {
	logger cmtlog.Logger
	engine *vote.Engine
}

func NewProposalTxHandler(engine *vote.Engine, logger cmtlog.Logger) (h *ProposalTxHandler) {
	h = &ProposalTxHandler{
		logger: logger.With("module", "proposalTx"),
		engine: engine,
	}
	return
}

func (h *ProposalTxHandler) Check(ctx context.Context, vtx *tx.VoteTx) error {
	switch ptx := vtx.Tx.(type) {
	case *tx.CreateProposalTx:
		return ptx.Config.Validate()
	case *tx.ProposalTx:
		return requireProposal(ptx.Proposal)
	case *tx.AddWhitelistTx:
		if len(ptx.Entries) == 0 {
			return fmt.Errorf("%w: empty whitelist", tx.ErrInvalidTx)
		}
		return requireProposal(ptx.Proposal)
	case *tx.SetWeightGroupTx:
		if ptx.Weight == 0 {
			return fmt.Errorf("%w: weight must be positive", tx.ErrInvalidTx)
		}
		return requireProposal(ptx.Proposal)
	}
	return fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
}

func (h *ProposalTxHandler) Process(ctx context.Context, vtx *tx.VoteTx, now types.Now) (data []byte, err error) {
	switch ptx := vtx.Tx.(type) {
	case *tx.CreateProposalTx:
		p, err := h.engine.CreateProposal(ctx, vtx.Sender, ptx.Config, now)
		if err != nil {
			return nil, err
		}
		h.logger.Info("proposal created", "proposal", p.ID, "creator", vtx.Sender)
		return marshalResult(p, nil)
	case *tx.ProposalTx:
		return h.transition(ctx, vtx.Type, vtx, ptx.Proposal, now)
	case *tx.AddWhitelistTx:
		return nil, h.engine.AddWhitelist(ctx, ptx.Proposal, vtx.Sender, ptx.Entries, now)
	case *tx.SetWeightGroupTx:
		return nil, h.engine.SetWeightGroup(ctx, ptx.Proposal, vtx.Sender, ptx.Index, ptx.Weight, now)
	}
	return nil, fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
}

func (h *ProposalTxHandler) transition(ctx context.Context, tp tx.VoteTxType, vtx *tx.VoteTx, id uint64, now types.Now) ([]byte, error) {
	switch tp {
	case tx.VoteTxTypeStartRegistration:
		return nil, h.engine.StartRegistration(ctx, id, vtx.Sender, now)
	case tx.VoteTxTypeStartVoting:
		return nil, h.engine.StartVoting(ctx, id, vtx.Sender, now)
	case tx.VoteTxTypeStartTallying:
		return nil, h.engine.StartTallying(ctx, id, vtx.Sender, now)
	case tx.VoteTxTypeCancel:
		return nil, h.engine.Cancel(ctx, id, vtx.Sender, now)
	case tx.VoteTxTypeRevealResult:
		if err := autoAdvance(ctx, h.engine, h.logger, id, now); err != nil {
			return nil, err
		}
		return marshalResult(h.engine.RevealResult(ctx, id, now))
	}
	return nil, fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, tp)
}

package handler

import (
	"context"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/tx"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

type RegistrationTxHandler struct {
	logger cmtlog.Logger
	engine *vote.Engine
}

func NewRegistrationTxHandler(engine *vote.Engine, logger cmtlog.Logger) (h *RegistrationTxHandler) {
	h = &RegistrationTxHandler{
		logger: logger.With("module", "registrationTx"),
		engine: engine,
	}
	return
}

func (h *RegistrationTxHandler) Check(ctx context.Context, vtx *tx.VoteTx) error {
	switch rtx := vtx.Tx.(type) {
	case *tx.RegisterTx:
		return requireProposal(rtx.Proposal)
	case *tx.RegisterAnonymousTx:
		if len(rtx.Commitment) != membership.ElementSize {
			return fmt.Errorf("%w: commitment must be %d bytes", tx.ErrInvalidTx, membership.ElementSize)
		}
		return requireProposal(rtx.Proposal)
	case *tx.VoterTx:
		return requireProposal(rtx.Proposal)
	case *tx.BatchApproveTx:
		if len(rtx.Voters) == 0 {
			return fmt.Errorf("%w: no voters", tx.ErrInvalidTx)
		}
		return requireProposal(rtx.Proposal)
	}
	return fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
}

func (h *RegistrationTxHandler) Process(ctx context.Context, vtx *tx.VoteTx, now types.Now) (data []byte, err error) {
	switch rtx := vtx.Tx.(type) {
	case *tx.RegisterTx:
		if err = autoAdvance(ctx, h.engine, h.logger, rtx.Proposal, now); err != nil {
			return
		}
		return marshalResult(h.engine.Register(ctx, rtx.Proposal, vtx.Sender, rtx.WeightGroup, now))
	case *tx.RegisterAnonymousTx:
		if err = autoAdvance(ctx, h.engine, h.logger, rtx.Proposal, now); err != nil {
			return
		}
		return marshalResult(h.engine.RegisterAnonymous(ctx, rtx.Proposal, vtx.Sender, rtx.Commitment, now))
	case *tx.VoterTx:
		if vtx.Type == tx.VoteTxTypeReject {
			return nil, h.engine.Reject(ctx, rtx.Proposal, vtx.Sender, rtx.Voter, now)
		}
		return marshalResult(h.engine.Approve(ctx, rtx.Proposal, vtx.Sender, rtx.Voter, now))
	case *tx.BatchApproveTx:
		return marshalResult(h.engine.BatchApprove(ctx, rtx.Proposal, vtx.Sender, rtx.Voters, now))
	}
	return nil, fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
}

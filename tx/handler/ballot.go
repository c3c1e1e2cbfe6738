package handler

import (
	"context"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/calehh/hac-vote/tx"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

type BallotTxHandler struct {
	logger cmtlog.Logger
	engine *vote.Engine
}

func NewBallotTxHandler(engine *vote.Engine, logger cmtlog.Logger) (h *BallotTxHandler) {
	h = &BallotTxHandler{
		logger: logger.With("module", "ballotTx"),
		engine: engine,
	}
	return
}

func (h *BallotTxHandler) Check(ctx context.Context, vtx *tx.VoteTx) error {
	switch btx := vtx.Tx.(type) {
	case *tx.CastVoteTx:
		return requireProposal(btx.Proposal)
	case *tx.AnonymousVoteTx:
		if len(btx.Root) == 0 || len(btx.Nullifier) == 0 || len(btx.Proof) == 0 {
			return fmt.Errorf("%w: anonymous vote needs root, nullifier and proof", tx.ErrInvalidTx)
		}
		return requireProposal(btx.Proposal)
	}
	return fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
}

func (h *BallotTxHandler) Process(ctx context.Context, vtx *tx.VoteTx, now types.Now) (data []byte, err error) {
	switch btx := vtx.Tx.(type) {
	case *tx.CastVoteTx:
		if err = autoAdvance(ctx, h.engine, h.logger, btx.Proposal, now); err != nil {
			return
		}
		return marshalResult(h.engine.CastVote(ctx, btx.Proposal, vtx.Sender, btx.Choice, now))
	case *tx.AnonymousVoteTx:
		if err = autoAdvance(ctx, h.engine, h.logger, btx.Proposal, now); err != nil {
			return
		}
		return marshalResult(h.engine.CastAnonymousVote(ctx, btx.Proposal, vote.AnonymousVote{
			Root:      btx.Root,
			Nullifier: btx.Nullifier,
			Choice:    btx.Choice,
			Proof:     btx.Proof,
		}, now))
	}
	return nil, fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
}

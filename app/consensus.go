package app

import (
	"context"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/calehh/hac-vote/types"
)

func (app *VoteApp) CheckTx(ctx context.Context, check *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	return app.router.Check(ctx, check.Tx, app.chainID()), nil
}

// PrepareProposal drops txs that do not decode or verify and keeps the rest
// within the block byte limit. Execution happens only in FinalizeBlock.
func (app *VoteApp) PrepareProposal(ctx context.Context, proposal *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	chainID := app.chainID()
	txs := make([][]byte, 0, len(proposal.Txs))
	var size int64
	for _, stx := range proposal.Txs {
		if _, _, err := app.router.Parse(stx, chainID); err != nil {
			app.logger.Info("prepare drop tx", "err", err)
			continue
		}
		size += int64(len(stx))
		if proposal.MaxTxBytes > 0 && size > proposal.MaxTxBytes {
			break
		}
		txs = append(txs, stx)
	}
	return &abcitypes.ResponsePrepareProposal{Txs: txs}, nil
}

func (app *VoteApp) ProcessProposal(ctx context.Context, proposal *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	chainID := app.chainID()
	for _, stx := range proposal.Txs {
		if _, _, err := app.router.Parse(stx, chainID); err != nil {
			app.logger.Error("process proposal reject", "height", proposal.Height, "err", err)
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// FinalizeBlock runs every tx in order at the block's height and time. Engine
// rejections become non-zero tx codes; only storage failures abort the block.
func (app *VoteApp) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	now := types.Now{Height: uint64(req.Height)}
	if t := req.Time.Unix(); t > 0 {
		now.Time = uint64(t)
	}
	chainID := app.chainID()
	res := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, stx := range req.Txs {
		res[i] = app.router.Deliver(ctx, stx, chainID, now)
	}
	h, err := app.db.Update(uint64(req.Height))
	if err != nil {
		app.logger.Error("state update hash fail", "err", err)
		return nil, err
	}
	app.logger.Info("FinalizeBlock", "height", req.Height, "txs", len(req.Txs), "appHash", h)
	return &abcitypes.ResponseFinalizeBlock{
		TxResults: res,
		AppHash:   h.Bytes(),
	}, nil
}

func (app *VoteApp) Commit(ctx context.Context, commit *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	h, err := app.db.Save()
	if err != nil {
		return nil, err
	}
	app.logger.Info("Commit", "height", app.db.Header().Height, "hash", h)
	return &abcitypes.ResponseCommit{}, nil
}

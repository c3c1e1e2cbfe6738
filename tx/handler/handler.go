package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/tx"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

type TxHandler interface {
	// Check validates the payload without reading state.
	Check(ctx context.Context, vtx *tx.VoteTx) error
	// Process runs the tx against the engine and returns the JSON result.
	Process(ctx context.Context, vtx *tx.VoteTx, now types.Now) (data []byte, err error)
}

// Router verifies envelopes, keeps sender nonces and dispatches by tx type.
type Router struct {
	logger cmtlog.Logger
	db     *state.StateDB
	hdlrs  map[tx.VoteTxType]TxHandler
}

func NewRouter(engine *vote.Engine, db *state.StateDB, logger cmtlog.Logger) (r *Router) {
	logger = logger.With("module", "txRouter")
	ph := NewProposalTxHandler(engine, logger)
	rh := NewRegistrationTxHandler(engine, logger)
	bh := NewBallotTxHandler(engine, logger)
	r = &Router{
		logger: logger,
		db:     db,
		hdlrs: map[tx.VoteTxType]TxHandler{
			tx.VoteTxTypeCreateProposal:    ph,
			tx.VoteTxTypeStartRegistration: ph,
			tx.VoteTxTypeStartVoting:       ph,
			tx.VoteTxTypeStartTallying:     ph,
			tx.VoteTxTypeRevealResult:      ph,
			tx.VoteTxTypeCancel:            ph,
			tx.VoteTxTypeAddWhitelist:      ph,
			tx.VoteTxTypeSetWeightGroup:    ph,
			tx.VoteTxTypeRegister:          rh,
			tx.VoteTxTypeRegisterAnonymous: rh,
			tx.VoteTxTypeApprove:           rh,
			tx.VoteTxTypeBatchApprove:      rh,
			tx.VoteTxTypeReject:            rh,
			tx.VoteTxTypeCastVote:          bh,
			tx.VoteTxTypeAnonymousVote:     bh,
		},
	}
	return
}

// Parse decodes a raw tx, verifies its signature and finds its handler.
func (r *Router) Parse(dat []byte, chainID string) (vtx *tx.VoteTx, h TxHandler, err error) {
	vtx, err = tx.UnmarshalVoteTx(dat)
	if err != nil {
		return
	}
	if err = vtx.Verify(chainID); err != nil {
		return
	}
	h, ok := r.hdlrs[vtx.Type]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, vtx.Type)
	}
	return
}

func (r *Router) checkNonce(vtx *tx.VoteTx, allowGap bool) error {
	if !vtx.Type.Signed() {
		return nil
	}
	nonce, err := r.db.Nonce(vtx.Sender)
	if err != nil {
		return err
	}
	if vtx.Nonce < nonce || (!allowGap && vtx.Nonce != nonce) {
		return fmt.Errorf("%w: have %d, want %d", tx.ErrInvalidNonce, vtx.Nonce, nonce)
	}
	return nil
}

// Check is the mempool admission test. Nonce gaps are allowed so a sender
// can queue several txs.
func (r *Router) Check(ctx context.Context, dat []byte, chainID string) (res *abcitypes.ResponseCheckTx) {
	res = &abcitypes.ResponseCheckTx{Code: types.CodeOK}
	vtx, h, err := r.Parse(dat, chainID)
	if err == nil {
		err = r.checkNonce(vtx, true)
	}
	if err == nil {
		err = h.Check(ctx, vtx)
	}
	if err != nil {
		r.logger.Info("CheckTx fail", "err", err)
		res.Code = types.CodeInternal
		res.Log = err.Error()
	}
	return
}

// Deliver executes one tx of a finalized block. The nonce is consumed even
// when the engine rejects the call; the block commits either way.
func (r *Router) Deliver(ctx context.Context, dat []byte, chainID string, now types.Now) (res *abcitypes.ExecTxResult) {
	res = &abcitypes.ExecTxResult{}
	vtx, h, err := r.Parse(dat, chainID)
	if err == nil {
		err = r.checkNonce(vtx, false)
	}
	if err != nil {
		r.logger.Info("DeliverTx rejected", "err", err)
		res.Code = types.CodeInternal
		res.Log = err.Error()
		return
	}
	if vtx.Type.Signed() {
		b := r.db.NewBatch()
		if err = b.SetNonce(vtx.Sender, vtx.Nonce+1); err == nil {
			err = r.db.Commit(b)
		}
		if err != nil {
			r.logger.Error("bump nonce fail", "sender", vtx.Sender, "err", err)
			res.Code = types.CodeInternal
			res.Log = err.Error()
			return
		}
	}

	var events []types.Event
	data, err := h.Process(vote.CollectEvents(ctx, &events), vtx, now)
	for _, ev := range events {
		res.Events = append(res.Events, types.EncodeEvent(ev))
	}
	if err != nil {
		r.logger.Info("DeliverTx fail", "type", vtx.Type, "sender", vtx.Sender, "err", err)
		res.Code = types.ErrorCode(err)
		res.Log = err.Error()
		return
	}
	res.Data = data
	return
}

var errNoProposal = errors.New("proposal id is zero")

func requireProposal(id uint64) error {
	if id == 0 {
		return fmt.Errorf("%w: %w", tx.ErrInvalidTx, errNoProposal)
	}
	return nil
}

// autoAdvance applies window-driven transitions before a voter-facing write.
// A missing proposal is left for the write itself to report.
func autoAdvance(ctx context.Context, engine *vote.Engine, logger cmtlog.Logger, id uint64, now types.Now) error {
	moved, err := engine.AutoAdvance(ctx, id, now)
	if errors.Is(err, types.ErrProposalNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(moved) > 0 {
		logger.Debug("auto advanced", "proposal", id, "states", moved)
	}
	return nil
}

func marshalResult(v any, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

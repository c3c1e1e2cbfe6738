package app

import (
	"context"
	"fmt"
	"path/filepath"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calehh/hac-vote/event"
	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/registration"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/tx/handler"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

var _ abcitypes.Application = &VoteApp{}

// Options carries the external capabilities the engine is built with. A nil
// Verifier rejects every anonymous ballot; a nil Balances rejects every
// asset-gated registration.
type Options struct {
	Home       string
	CacheSize  int
	InMemory   bool
	Verifier   membership.Verifier
	Balances   registration.BalanceChecker
	Bus        *event.Bus
	Registerer prometheus.Registerer
}

type VoteApp struct {
	logger cmtlog.Logger

	db       *state.StateDB
	engine   *vote.Engine
	bus      *event.Bus
	router   *handler.Router
	queriers map[string]Querier
}

func NewVoteApp(opts Options, logger cmtlog.Logger) (app *VoteApp, err error) {
	logger = logger.With("module", "app")

	var db *state.StateDB
	if opts.InMemory {
		db, err = state.NewMemStateDB(logger)
	} else {
		db, err = state.NewStateDB(filepath.Join(opts.Home, "data"), opts.CacheSize, logger)
	}
	if err != nil {
		return nil, err
	}
	engine, err := vote.NewEngine(vote.Config{
		Logger:     logger,
		DB:         db,
		Balances:   opts.Balances,
		Verifier:   opts.Verifier,
		Bus:        opts.Bus,
		Registerer: opts.Registerer,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	app = &VoteApp{
		logger:   logger,
		db:       db,
		engine:   engine,
		bus:      opts.Bus,
		router:   handler.NewRouter(engine, db, logger),
		queriers: make(map[string]Querier),
	}
	app.registerQuerier()
	return
}

func (app *VoteApp) Engine() *vote.Engine {
	return app.engine
}

func (app *VoteApp) Stop() {
	if app.bus != nil {
		app.bus.Stop()
	}
	err := app.db.Close()
	if err != nil {
		app.logger.Error("close db fail", "err", err)
	}
	app.logger.Info("vote app stopped")
}

func (app *VoteApp) chainID() string {
	return app.db.Header().ChainID
}

func (app *VoteApp) InitChain(_ context.Context, chain *abcitypes.RequestInitChain) (res *abcitypes.ResponseInitChain, err error) {
	gs, err := types.ParseGenesisState(chain.AppStateBytes)
	if err != nil {
		app.logger.Error("InitChain decode app state fail", "err", err)
		return nil, err
	}
	if gs.MerkleDepth > membership.MaxDepth {
		return nil, fmt.Errorf("%w: merkle depth %d", types.ErrInvalidConfig, gs.MerkleDepth)
	}
	app.db.SetChainID(chain.ChainId)
	if err = app.db.SetParams(gs); err != nil {
		app.logger.Error("InitChain set params fail", "err", err)
		return nil, err
	}
	h, err := app.db.Update(0)
	if err != nil {
		app.logger.Error("InitChain update state fail", "err", err)
		return nil, err
	}
	app.logger.Info("chain initialized", "chainID", chain.ChainId, "merkleDepth", gs.MerkleDepth)
	return &abcitypes.ResponseInitChain{
		AppHash: h.Bytes(),
	}, nil
}

func (app *VoteApp) Info(ctx context.Context, info *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	header := app.db.Header()
	return &abcitypes.ResponseInfo{
		LastBlockHeight:  int64(header.Height),
		LastBlockAppHash: header.Hash,
	}, nil
}

func (app *VoteApp) ExtendVote(_ context.Context, extend *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *VoteApp) VerifyVoteExtension(_ context.Context, verify *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (app *VoteApp) ApplySnapshotChunk(context.Context, *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{}, nil
}

func (app *VoteApp) ListSnapshots(context.Context, *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (app *VoteApp) LoadSnapshotChunk(context.Context, *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (app *VoteApp) OfferSnapshot(context.Context, *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{}, nil
}

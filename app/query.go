package app

import (
	"context"
	"encoding/json"
	"strings"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

const codeNotFound = 404

// QueryRequest is the JSON body of every ABCI query. Viewer is the address
// visibility rules are evaluated for.
type QueryRequest struct {
	Proposal  uint64         `json:"proposal"`
	Viewer    common.Address `json:"viewer"`
	Voter     common.Address `json:"voter"`
	Address   common.Address `json:"address"`
	Nullifier hexutil.Bytes  `json:"nullifier,omitempty"`
}

func (app *VoteApp) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	path := req.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	q, ok := app.queriers[path]
	if !ok {
		res = &abcitypes.ResponseQuery{}
		res.Code = codeNotFound
		return
	}
	res, err = q.Query(ctx, req)
	return
}

type Querier interface {
	Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error)
}

type queryFunc func(ctx context.Context, req QueryRequest) (any, error)

// EngineQuerier answers one path from committed engine state.
type EngineQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
	fn     queryFunc
}

func NewEngineQuerier(db *state.StateDB, logger cmtlog.Logger, fn queryFunc) (q *EngineQuerier) {
	q = &EngineQuerier{
		db:     db,
		logger: logger,
		fn:     fn,
	}
	return
}

func (q *EngineQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{Height: int64(q.db.Header().Height)}
	var qr QueryRequest
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &qr); err != nil {
			res.Code = types.CodeInternal
			res.Log = err.Error()
			return res, nil
		}
	}
	v, err1 := q.fn(ctx, qr)
	if err1 != nil {
		q.logger.Debug("query fail", "path", req.Path, "err", err1)
		res.Code = types.ErrorCode(err1)
		res.Log = err1.Error()
		return
	}
	res.Value, err1 = json.Marshal(v)
	if err1 != nil {
		res.Code = types.CodeInternal
		res.Log = err1.Error()
	}
	return
}

func (app *VoteApp) registerQuerier() {
	e := app.engine
	paths := map[string]queryFunc{
		"/count/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.ProposalCount()
		},
		"/proposal/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Proposal(r.Proposal)
		},
		"/tally/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Tallies(r.Proposal, r.Viewer)
		},
		"/result/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Result(r.Proposal, r.Viewer)
		},
		"/registration/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.RegistrationStatus(r.Proposal, r.Voter, r.Viewer)
		},
		"/registrations/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Registrations(r.Proposal, r.Viewer)
		},
		"/pending/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.PendingRegistrations(r.Proposal, r.Viewer)
		},
		"/whitelist/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Whitelist(r.Proposal, r.Viewer)
		},
		"/ballots/": func(_ context.Context, r QueryRequest) (any, error) {
			return ballots(e, r)
		},
		"/participation/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Participation(r.Proposal, r.Viewer)
		},
		"/group/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.Group(r.Proposal)
		},
		"/nullifier/": func(_ context.Context, r QueryRequest) (any, error) {
			return e.NullifierUsed(r.Proposal, r.Nullifier)
		},
		"/nonce/": func(_ context.Context, r QueryRequest) (any, error) {
			return app.db.Nonce(r.Address)
		},
	}
	for path, fn := range paths {
		app.queriers[path] = NewEngineQuerier(app.db, app.logger, fn)
	}
}

// ballots lists identified ballots, or nullifier-keyed ones for anonymous
// proposals.
func ballots(e *vote.Engine, r QueryRequest) (any, error) {
	p, err := e.Proposal(r.Proposal)
	if err != nil {
		return nil, err
	}
	if p.Anonymous() {
		return e.AnonymousBallots(r.Proposal, r.Viewer)
	}
	return e.Ballots(r.Proposal, r.Viewer)
}

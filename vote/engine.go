// Package vote drives proposals through their lifecycle. It owns the
// proposal record and composes registration, membership and tally behind
// per-proposal serialization.
package vote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calehh/hac-vote/event"
	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/registration"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/types"
)

var (
	ErrNotCreator     = errors.New("caller is not the creator")
	ErrNotRevealed    = errors.New("result not revealed")
	ErrIdentifiedVote = errors.New("identified ballot on an anonymous proposal")
	ErrAnonymousVote  = errors.New("anonymous ballot on a public proposal")
	ErrNoDB           = errors.New("no state db")
)

type Config struct {
	Logger     cmtlog.Logger
	DB         *state.StateDB
	Balances   registration.BalanceChecker
	Verifier   membership.Verifier
	Bus        *event.Bus
	Registerer prometheus.Registerer
}

type Engine struct {
	logger  cmtlog.Logger
	db      *state.StateDB
	reg     *registration.Engine
	members *membership.Protocol
	bus     *event.Bus
	metrics *engineMetrics

	idMtx    sync.Mutex
	locksMtx sync.Mutex
	locks    map[uint64]*sync.RWMutex
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.DB == nil {
		return nil, ErrNoDB
	}
	logger := cfg.Logger
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	e := &Engine{
		logger:  logger.With("module", "vote"),
		db:      cfg.DB,
		reg:     registration.NewEngine(cfg.Balances, logger),
		members: membership.NewProtocol(cfg.Verifier, logger),
		bus:     cfg.Bus,
		locks:   make(map[uint64]*sync.RWMutex),
	}
	if cfg.Registerer != nil {
		e.metrics = newEngineMetrics(cfg.Registerer)
	}
	return e, nil
}

func (e *Engine) lock(id uint64) *sync.RWMutex {
	e.locksMtx.Lock()
	defer e.locksMtx.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = new(sync.RWMutex)
		e.locks[id] = l
	}
	return l
}

func notFound(id uint64) error {
	return fmt.Errorf("%w: %d", types.ErrProposalNotFound, id)
}

// update runs fn against a fresh batch while holding the proposal's write
// lock. The batch reaches the store only when fn succeeds; events are
// published after the lock is released.
func (e *Engine) update(ctx context.Context, op string, id uint64, now types.Now, fn func(b *state.Batch, p *types.Proposal) error) (err error) {
	var events []types.Event
	defer func() {
		e.metrics.observe(op, err)
		if err == nil {
			e.metrics.record(events)
			collect(ctx, events)
			e.publish(events)
		}
	}()

	l := e.lock(id)
	l.Lock()
	defer l.Unlock()

	b := e.db.NewBatch()
	p, err := b.Proposal(id)
	if err != nil {
		return
	}
	if p == nil {
		return notFound(id)
	}
	if err = fn(b, p); err != nil {
		e.logger.Debug(op+" rejected", "proposal", id, "err", err)
		return
	}
	if b.Empty() {
		return
	}
	p.UpdatedAt = now
	b.PutProposal(p)
	if err = e.db.Commit(b); err != nil {
		e.logger.Error(op+" commit fail", "proposal", id, "err", err)
		return
	}
	events = b.Events()
	return
}

type eventsKey struct{}

// CollectEvents returns a context under which every event committed by an
// engine call is also appended to *events.
func CollectEvents(ctx context.Context, events *[]types.Event) context.Context {
	return context.WithValue(ctx, eventsKey{}, events)
}

func collect(ctx context.Context, events []types.Event) {
	if sink, ok := ctx.Value(eventsKey{}).(*[]types.Event); ok && sink != nil {
		*sink = append(*sink, events...)
	}
}

func (e *Engine) publish(events []types.Event) {
	if e.bus == nil || len(events) == 0 {
		return
	}
	e.bus.PublishAsync(events...)
}

func (e *Engine) requireCreator(p *types.Proposal, caller common.Address) error {
	if caller != p.Creator {
		return fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrNotCreator)
	}
	return nil
}

// view reads a committed proposal under its read lock.
func (e *Engine) view(id uint64, fn func(p *types.Proposal) error) error {
	l := e.lock(id)
	l.RLock()
	defer l.RUnlock()
	p, err := e.db.Proposal(id)
	if err != nil {
		return err
	}
	if p == nil {
		return notFound(id)
	}
	return fn(p)
}

func (e *Engine) viewer(p *types.Proposal, who common.Address) (v types.Viewer, err error) {
	v.IsCreator = who == p.Creator
	if v.IsCreator {
		return
	}
	reg, err := e.db.Registration(p.ID, who)
	if err != nil {
		return
	}
	v.IsParticipant = reg != nil && reg.Approved
	return
}

// sees reports whether who may view any of fields.
func (e *Engine) sees(p *types.Proposal, who common.Address, fields ...types.VisibilityField) (bool, error) {
	v, err := e.viewer(p, who)
	if err != nil {
		return false, err
	}
	for _, f := range fields {
		if types.CanView(p.Config.Visibility, f, v) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) gate(p *types.Proposal, who common.Address, field types.VisibilityField) error {
	v, err := e.viewer(p, who)
	if err != nil {
		return err
	}
	if !types.CanView(p.Config.Visibility, field, v) {
		return fmt.Errorf("%w: %v of proposal %d", types.ErrUnauthorized, field, p.ID)
	}
	return nil
}

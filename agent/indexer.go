package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	comethttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"github.com/calehh/hac-vote/types"
)

var ErrIndexerOffline = errors.New("indexer has no chain client")

// ChainIndexer copies committed lifecycle events from block results into
// sqlite so proposal history can be served without touching the chain.
type ChainIndexer struct {
	logger        cmtlog.Logger
	Url           string
	Height        int64
	db            *gorm.DB
	cli           *comethttp.HTTP
	eventHandlers map[string]eventHandler
}

type eventHandler func(tx *gorm.DB, ev types.Event, height uint64) error

// NewChainIndexer opens the index at dbPath. An empty chainUrl gives an
// indexer that only accepts events through Index.
func NewChainIndexer(logger cmtlog.Logger, dbPath string, chainUrl string) (*ChainIndexer, error) {
	logger.Info("NewChainIndexer", "dbPath", dbPath, "url", chainUrl)
	db, err := gorm.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Proposal{}, &Registration{}, &Vote{}, &StateChange{}, &ConfigChange{}, &Height{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	h := Height{Id: 1}
	if err = db.First(&h).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		db.Close()
		return nil, err
	}

	c := &ChainIndexer{
		logger: logger.With("module", "indexer"),
		Url:    chainUrl,
		Height: int64(h.Height + 1),
		db:     db,
	}
	if chainUrl != "" {
		if c.cli, err = comethttp.New(chainUrl, "/websocket"); err != nil {
			db.Close()
			return nil, err
		}
	}
	c.eventHandlers = map[string]eventHandler{
		types.EventProposalCreatedType:       c.handleEventProposalCreated,
		types.EventStateChangedType:          c.handleEventStateChanged,
		types.EventRegistrationRequestedType: c.handleEventRegistration,
		types.EventRegistrationApprovedType:  c.handleEventRegistration,
		types.EventRegistrationRejectedType:  c.handleEventRegistration,
		types.EventVoterRegisteredType:       c.handleEventVoterRegistered,
		types.EventVoteCastType:              c.handleEventVoteCast,
		types.EventResultRevealedType:        c.handleEventResultRevealed,
		types.EventConfigUpdatedType:         c.handleEventConfigUpdated,
	}
	return c, nil
}

func (c *ChainIndexer) Close() error {
	return c.db.Close()
}

// Index records the events of one block and moves the cursor past it in a
// single sqlite transaction.
func (c *ChainIndexer) Index(height int64, events []abci.Event) (err error) {
	tx := c.db.Begin()
	if err = tx.Error; err != nil {
		return
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, event := range events {
		h, ok := c.eventHandlers[event.Type]
		if !ok {
			continue
		}
		ev := types.DecodeEvent(event)
		if ev == nil {
			c.logger.Error("decode event fail", "event", event)
			continue
		}
		if err = h(tx, ev, uint64(height)); err != nil {
			c.logger.Error("handle event fail", "type", event.Type, "height", height, "err", err)
			return
		}
	}
	if err = tx.Save(&Height{Id: 1, Height: uint64(height)}).Error; err != nil {
		return
	}
	if err = tx.Commit().Error; err != nil {
		return
	}
	c.Height = height + 1
	return
}

func (c *ChainIndexer) handleEventProposalCreated(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventProposalCreated)
	proposal := Proposal{
		Id:           e.ProposalID,
		Creator:      e.Creator,
		Title:        e.Title,
		Rule:         e.Rule,
		Privacy:      e.Privacy,
		Registration: e.Registration,
		Options:      e.Options,
		State:        uint64(types.StateCreated),
		CreateHeight: height,
		UpdateHeight: height,
	}
	return tx.Save(&proposal).Error
}

func (c *ChainIndexer) handleEventStateChanged(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventStateChanged)
	err := tx.Model(&Proposal{}).Where("id = ?", e.ProposalID).
		Updates(map[string]interface{}{"state": e.New, "update_height": height}).Error
	if err != nil {
		return err
	}
	return tx.Create(&StateChange{
		Proposal: e.ProposalID,
		Old:      e.Old,
		New:      e.New,
		Height:   height,
	}).Error
}

func (c *ChainIndexer) saveRegistration(tx *gorm.DB, reg Registration) error {
	var cur Registration
	err := tx.Where("proposal = ? AND voter = ?", reg.Proposal, reg.Voter).First(&cur).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	reg.Id = cur.Id
	if reg.Commitment == "" {
		reg.Commitment = cur.Commitment
	}
	return tx.Save(&reg).Error
}

func (c *ChainIndexer) handleEventRegistration(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventRegistration)
	status := RegistrationPending
	switch e.Type {
	case types.EventRegistrationApprovedType:
		status = RegistrationApproved
	case types.EventRegistrationRejectedType:
		status = RegistrationRejected
	}
	return c.saveRegistration(tx, Registration{
		Proposal:    e.ProposalID,
		Voter:       e.Voter,
		Status:      status,
		WeightGroup: e.WeightGroup,
		Member:      -1,
		Height:      height,
	})
}

func (c *ChainIndexer) handleEventVoterRegistered(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventVoterRegistered)
	return c.saveRegistration(tx, Registration{
		Proposal:    e.ProposalID,
		Voter:       e.Voter,
		Status:      RegistrationRegistered,
		WeightGroup: e.WeightGroup,
		Weight:      e.Weight,
		Commitment:  e.Commitment,
		Member:      e.Member,
		Height:      height,
	})
}

func (c *ChainIndexer) handleEventVoteCast(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventVoteCast)
	choice, err := json.Marshal(e.Choice)
	if err != nil {
		return err
	}
	return tx.Create(&Vote{
		Proposal:  e.ProposalID,
		Voter:     e.Voter,
		Nullifier: e.Nullifier,
		Choice:    string(choice),
		Weight:    e.Weight,
		Height:    height,
	}).Error
}

func (c *ChainIndexer) handleEventResultRevealed(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventResultRevealed)
	counts, err := json.Marshal(e.Counts)
	if err != nil {
		return err
	}
	return tx.Model(&Proposal{}).Where("id = ?", e.ProposalID).Updates(map[string]interface{}{
		"revealed":       true,
		"passed":         e.Passed,
		"winning_option": e.WinningOption,
		"margin":         e.Margin,
		"total_votes":    e.TotalVotes,
		"counts":         string(counts),
		"update_height":  height,
	}).Error
}

func (c *ChainIndexer) handleEventConfigUpdated(tx *gorm.DB, ev types.Event, height uint64) error {
	e := ev.(*types.EventConfigUpdated)
	return tx.Create(&ConfigChange{
		Proposal: e.ProposalID,
		Field:    e.Field,
		Detail:   e.Detail,
		Height:   height,
	}).Error
}

func (c *ChainIndexer) reconnect() {
	if c.cli != nil && c.cli.IsRunning() {
		return
	}
	if c.cli != nil {
		c.cli.Stop()
	}
	cli, err := comethttp.New(c.Url, "/websocket")
	if err != nil {
		c.logger.Error("reconnect fail", "err", err)
		return
	}
	c.cli = cli
}

// sync indexes every block below the chain's latest height.
func (c *ChainIndexer) sync(ctx context.Context) error {
	status, err := c.cli.Status(ctx)
	if err != nil {
		c.reconnect()
		return fmt.Errorf("get status: %w", err)
	}
	for status.SyncInfo.LatestBlockHeight >= c.Height {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		height := c.Height
		results, err := c.cli.BlockResults(ctx, &height)
		if err != nil {
			c.reconnect()
			return fmt.Errorf("get block results %d: %w", height, err)
		}
		var events []abci.Event
		for _, res := range results.TxsResults {
			events = append(events, res.Events...)
		}
		if err := c.Index(height, events); err != nil {
			return err
		}
		if len(events) > 0 {
			c.logger.Info("indexed block", "height", height, "events", len(events))
		}
	}
	return nil
}

// Start polls the node until ctx is done.
func (c *ChainIndexer) Start(ctx context.Context) error {
	if c.cli == nil {
		return ErrIndexerOffline
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.sync(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("indexer sync fail", "height", c.Height, "err", err)
			}
		}
	}
}

func page(db *gorm.DB, p int, pageSize int) *gorm.DB {
	if pageSize <= 0 {
		pageSize = 20
	}
	if p < 0 {
		p = 0
	}
	return db.Offset(p * pageSize).Limit(pageSize)
}

func (c *ChainIndexer) getProposals(creator string, p int, pageSize int) ([]Proposal, uint64, error) {
	q := c.db.Model(&Proposal{})
	if creator != "" {
		q = q.Where("creator = ?", creator)
	}
	var total uint64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	proposals := make([]Proposal, 0)
	if err := page(q.Order("id desc"), p, pageSize).Find(&proposals).Error; err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

func (c *ChainIndexer) getProposalById(proposalId uint64) (Proposal, error) {
	var proposal Proposal
	err := c.db.Where("id = ?", proposalId).First(&proposal).Error
	return proposal, err
}

func (c *ChainIndexer) getStateChanges(proposal uint64) ([]StateChange, error) {
	changes := make([]StateChange, 0)
	err := c.db.Where("proposal = ?", proposal).Order("id").Find(&changes).Error
	return changes, err
}

func (c *ChainIndexer) getConfigChanges(proposal uint64) ([]ConfigChange, error) {
	changes := make([]ConfigChange, 0)
	err := c.db.Where("proposal = ?", proposal).Order("id").Find(&changes).Error
	return changes, err
}

func (c *ChainIndexer) getVotes(proposal uint64, voter string, p int, pageSize int) ([]Vote, uint64, error) {
	q := c.db.Model(&Vote{})
	if proposal != 0 {
		q = q.Where("proposal = ?", proposal)
	}
	if voter != "" {
		q = q.Where("voter = ?", voter)
	}
	var total uint64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	votes := make([]Vote, 0)
	if err := page(q.Order("id desc"), p, pageSize).Find(&votes).Error; err != nil {
		return nil, 0, err
	}
	return votes, total, nil
}

func (c *ChainIndexer) getRegistrations(proposal uint64, status string, p int, pageSize int) ([]Registration, uint64, error) {
	q := c.db.Model(&Registration{}).Where("proposal = ?", proposal)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total uint64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	regs := make([]Registration, 0)
	if err := page(q.Order("id"), p, pageSize).Find(&regs).Error; err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}

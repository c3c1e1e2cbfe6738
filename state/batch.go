package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/tally"
	"github.com/calehh/hac-vote/types"
)

var (
	ErrBatchCommitted = errors.New("batch already committed")
)

// Batch stages writes on top of the committed tree. Nothing reaches the
// tree until StateDB.Commit; dropping a batch discards it.
type Batch struct {
	records

	db        *StateDB
	writes    map[string][]byte
	proposals map[uint64]*types.Proposal
	events    []types.Event
	done      bool
}

func (db *StateDB) NewBatch() *Batch {
	b := &Batch{
		db:        db,
		writes:    make(map[string][]byte),
		proposals: make(map[uint64]*types.Proposal),
	}
	b.records = records{g: b}
	return b
}

// get reads through the batch. A staged nil marks a delete.
func (b *Batch) get(key string) ([]byte, error) {
	if v, ok := b.writes[key]; ok {
		return v, nil
	}
	return b.db.get(key)
}

func (b *Batch) setJSON(key string, v any) error {
	dat, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.writes[key] = dat
	return nil
}

// Proposal returns the staged record when there is one, so callers see
// their own edits.
func (b *Batch) Proposal(id uint64) (*types.Proposal, error) {
	if p, ok := b.proposals[id]; ok {
		return p, nil
	}
	return b.db.Proposal(id)
}

// PutProposal stages p. Its audit fields are filled in at commit.
func (b *Batch) PutProposal(p *types.Proposal) {
	b.proposals[p.ID] = p
}

func (b *Batch) SetProposalCount(n uint64) {
	b.writes[KeyProposalIndex] = new(big.Int).SetUint64(n).Bytes()
}

func (b *Batch) PutTally(id uint64, st *tally.State) error {
	return b.setJSON(fmt.Sprintf(KeyTally, id), st)
}

func (b *Batch) PutResult(res *types.Result) error {
	return b.setJSON(fmt.Sprintf(KeyResult, res.ProposalID), res)
}

func (b *Batch) PutGroup(id uint64, g *membership.Group) error {
	return b.setJSON(fmt.Sprintf(KeyGroup, id), g.Frontier())
}

func (b *Batch) PutLeaf(id uint64, index uint64, leaf []byte) error {
	b.writes[leafKey(id, index)] = append([]byte(nil), leaf...)
	return nil
}

func (b *Batch) PutRoot(id uint64, root []byte) error {
	b.writes[rootKey(id, root)] = []byte{1}
	return nil
}

func (b *Batch) PutMember(id uint64, commitment []byte, index uint64) error {
	val, err := rlp.EncodeToBytes(index)
	if err != nil {
		return err
	}
	b.writes[memberKey(id, commitment)] = val
	return nil
}

func (b *Batch) PutRegistration(r *types.Registration) error {
	return b.setJSON(registrationKey(r.ProposalID, r.Voter), r)
}

func (b *Batch) DeleteRegistration(id uint64, voter common.Address) error {
	b.writes[registrationKey(id, voter)] = nil
	return nil
}

func (b *Batch) PutWhitelist(id uint64, e *types.WhitelistEntry) error {
	return b.setJSON(whitelistKey(id, e.Address), e)
}

func (b *Batch) PutBallot(bl *types.Ballot) error {
	return b.setJSON(ballotKey(bl.ProposalID, bl.Voter), bl)
}

// PutAnonymousBallot also consumes the ballot's nullifier.
func (b *Batch) PutAnonymousBallot(bl *types.AnonymousBallot) error {
	return b.setJSON(nullifierKey(bl.ProposalID, bl.Nullifier), bl)
}

func (b *Batch) SetNonce(addr common.Address, nonce uint64) error {
	val, err := rlp.EncodeToBytes(nonce)
	if err != nil {
		return err
	}
	b.writes[nonceKey(addr)] = val
	return nil
}

// Emit queues events for the audit log and for publication after commit.
func (b *Batch) Emit(events ...types.Event) {
	b.events = append(b.events, events...)
}

func (b *Batch) Events() []types.Event {
	return b.events
}

func (b *Batch) Empty() bool {
	return len(b.writes) == 0 && len(b.proposals) == 0 && len(b.events) == 0
}

// seal appends queued events to each proposal's audit log and serializes the
// staged proposals.
func (b *Batch) seal() error {
	var order []uint64
	byProposal := make(map[uint64][]types.Event)
	for _, ev := range b.events {
		id := ev.Proposal()
		if _, ok := byProposal[id]; !ok {
			order = append(order, id)
		}
		byProposal[id] = append(byProposal[id], ev)
	}
	for _, id := range order {
		p, err := b.Proposal(id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: event for proposal %d", types.ErrProposalNotFound, id)
		}
		l, err := b.Audit(id)
		if err != nil {
			return err
		}
		root, err := l.Append(byProposal[id]...)
		if err != nil {
			return err
		}
		if err = b.setJSON(fmt.Sprintf(KeyAudit, id), l); err != nil {
			return err
		}
		p.AuditSize = l.Size
		p.AuditRoot = root
		b.PutProposal(p)
	}
	for id, p := range b.proposals {
		if err := b.setJSON(proposalKey(id), p); err != nil {
			return err
		}
	}
	return nil
}

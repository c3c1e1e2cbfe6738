package state

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/tally"
	"github.com/calehh/hac-vote/types"
)

type getter interface {
	get(key string) ([]byte, error)
}

// records decodes typed values from whatever view g reads: the committed
// tree or a batch on top of it. Absent records come back as nil.
type records struct {
	g getter
}

func getJSON[T any](g getter, key string) (*T, error) {
	val, err := g.get(key)
	if err != nil || val == nil {
		return nil, err
	}
	v := new(T)
	if err = json.Unmarshal(val, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

func (r records) ProposalCount() (uint64, error) {
	val, err := r.g.get(KeyProposalIndex)
	if err != nil {
		return 0, err
	}
	return new(big.Int).SetBytes(val).Uint64(), nil
}

func (r records) Proposal(id uint64) (*types.Proposal, error) {
	return getJSON[types.Proposal](r.g, proposalKey(id))
}

func (r records) Tally(id uint64) (*tally.State, error) {
	return getJSON[tally.State](r.g, fmt.Sprintf(KeyTally, id))
}

func (r records) Result(id uint64) (*types.Result, error) {
	return getJSON[types.Result](r.g, fmt.Sprintf(KeyResult, id))
}

func (r records) Group(id uint64) (*membership.Group, error) {
	return getJSON[membership.Group](r.g, fmt.Sprintf(KeyGroup, id))
}

func (r records) Audit(id uint64) (*AuditLog, error) {
	l, err := getJSON[AuditLog](r.g, fmt.Sprintf(KeyAudit, id))
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = &AuditLog{}
	}
	return l, nil
}

func (r records) Registration(id uint64, voter common.Address) (*types.Registration, error) {
	return getJSON[types.Registration](r.g, registrationKey(id, voter))
}

func (r records) Whitelisted(id uint64, voter common.Address) (*types.WhitelistEntry, error) {
	return getJSON[types.WhitelistEntry](r.g, whitelistKey(id, voter))
}

func (r records) Ballot(id uint64, voter common.Address) (*types.Ballot, error) {
	return getJSON[types.Ballot](r.g, ballotKey(id, voter))
}

func (r records) AnonymousBallot(id uint64, nullifier []byte) (*types.AnonymousBallot, error) {
	return getJSON[types.AnonymousBallot](r.g, nullifierKey(id, nullifier))
}

func (r records) NullifierUsed(id uint64, nullifier []byte) (bool, error) {
	val, err := r.g.get(nullifierKey(id, nullifier))
	return val != nil, err
}

func (r records) HasRoot(id uint64, root []byte) (bool, error) {
	val, err := r.g.get(rootKey(id, root))
	return val != nil, err
}

func (r records) Member(id uint64, commitment []byte) (index uint64, ok bool, err error) {
	val, err := r.g.get(memberKey(id, commitment))
	if err != nil || val == nil {
		return 0, false, err
	}
	if err = rlp.DecodeBytes(val, &index); err != nil {
		return 0, false, err
	}
	return index, true, nil
}

func (r records) Nonce(addr common.Address) (nonce uint64, err error) {
	val, err := r.g.get(nonceKey(addr))
	if err != nil || val == nil {
		return 0, err
	}
	err = rlp.DecodeBytes(val, &nonce)
	return
}

func (r records) Params() (params types.GenesisState, err error) {
	p, err := getJSON[types.GenesisState](r.g, KeyParams)
	if err != nil || p == nil {
		return params, err
	}
	return *p, nil
}

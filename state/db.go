// Package state persists proposals and everything hanging off them in a
// versioned iavl tree.
package state

import (
	"encoding/json"
	"sort"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	dbm "github.com/cosmos/iavl/db"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/calehh/hac-vote/types"
)

const DefaultCacheSize = 1024

type StateDB struct {
	records

	mtx sync.RWMutex

	logger cmtlog.Logger
	tree   *iavl.MutableTree
	cache  *lru.Cache[uint64, *types.Proposal]
	header *Header
}

func NewStateDB(dir string, cacheSize int, logger cmtlog.Logger) (db *StateDB, err error) {
	ldb, err := dbm.NewDB("hacvote", "goleveldb", dir)
	if err != nil {
		return nil, err
	}
	return open(ldb, cacheSize, logger)
}

// NewMemStateDB keeps the tree in memory.
func NewMemStateDB(logger cmtlog.Logger) (*StateDB, error) {
	return open(dbm.NewMemDB(), DefaultCacheSize, logger)
}

func open(ldb dbm.DB, cacheSize int, logger cmtlog.Logger) (db *StateDB, err error) {
	logger = logger.With("module", "votedb")
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[uint64, *types.Proposal](cacheSize)
	if err != nil {
		return nil, err
	}
	tree := iavl.NewMutableTree(ldb, 128, true, newTreeLogger(logger))
	version, err := tree.Load()
	if err != nil {
		return nil, err
	}
	db = &StateDB{
		logger: logger,
		tree:   tree,
		cache:  cache,
		header: new(Header),
	}
	db.records = records{g: db}
	if err = db.loadHeader(); err != nil {
		logger.Error("load header fail", "err", err)
		return nil, err
	}
	logger.Info("load db success", "version", version, "height", db.header.Height)
	return
}

func (db *StateDB) Close() (err error) {
	err = db.tree.Close()
	return
}

func (db *StateDB) get(key string) ([]byte, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.getLocked(key)
}

func (db *StateDB) getLocked(key string) ([]byte, error) {
	val, err := db.tree.Get([]byte(key))
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return val, nil
}

// Proposal returns a private copy of the committed record, or nil.
func (db *StateDB) Proposal(id uint64) (*types.Proposal, error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	if p, ok := db.cache.Get(id); ok {
		return p.Clone(), nil
	}
	val, err := db.getLocked(proposalKey(id))
	if err != nil || val == nil {
		return nil, err
	}
	p := new(types.Proposal)
	if err = json.Unmarshal(val, p); err != nil {
		return nil, err
	}
	db.cache.Add(id, p.Clone())
	return p, nil
}

func (db *StateDB) SetParams(params types.GenesisState) error {
	val, err := json.Marshal(params)
	if err != nil {
		return err
	}
	db.mtx.Lock()
	defer db.mtx.Unlock()
	_, err = db.tree.Set([]byte(KeyParams), val)
	return err
}

// Commit writes a batch into the working tree in key order, so every node
// applying the same batches builds the same tree.
func (db *StateDB) Commit(b *Batch) (err error) {
	if b.done {
		return ErrBatchCommitted
	}
	if err = b.seal(); err != nil {
		return
	}
	keys := make([]string, 0, len(b.writes))
	for k := range b.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	db.mtx.Lock()
	defer db.mtx.Unlock()
	for _, k := range keys {
		if v := b.writes[k]; v == nil {
			_, _, err = db.tree.Remove([]byte(k))
		} else {
			_, err = db.tree.Set([]byte(k), v)
		}
		if err != nil {
			db.logger.Error("commit batch fail", "key", k, "err", err)
			return
		}
	}
	for id, p := range b.proposals {
		db.cache.Add(id, p.Clone())
	}
	b.done = true
	return
}

func listJSON[T any](db *StateDB, format string, id uint64) (out []*T, err error) {
	start := prefix(format, id)
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	it, err := db.tree.Iterator(start, PrefixEndBytes(start), true)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		v := new(T)
		if err = json.Unmarshal(it.Value(), v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, it.Error()
}

// Leaves returns a group's leaves in index order.
func (db *StateDB) Leaves(id uint64) (leaves [][]byte, err error) {
	start := prefix(KeyLeafPrefix, id)
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	it, err := db.tree.Iterator(start, PrefixEndBytes(start), true)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		leaves = append(leaves, append([]byte(nil), it.Value()...))
	}
	return leaves, it.Error()
}

func (db *StateDB) Registrations(id uint64) ([]*types.Registration, error) {
	return listJSON[types.Registration](db, KeyRegistrationPrefix, id)
}

func (db *StateDB) Whitelist(id uint64) ([]*types.WhitelistEntry, error) {
	return listJSON[types.WhitelistEntry](db, KeyWhitelistPrefix, id)
}

func (db *StateDB) Ballots(id uint64) ([]*types.Ballot, error) {
	return listJSON[types.Ballot](db, KeyBallotPrefix, id)
}

func (db *StateDB) AnonymousBallots(id uint64) ([]*types.AnonymousBallot, error) {
	return listJSON[types.AnonymousBallot](db, KeyNullifierPrefix, id)
}

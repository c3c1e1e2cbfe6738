package state

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/syndtr/goleveldb/leveldb"
)

// Header is the chain position of the store. RootHash and Hash are derived
// from the tree and not stored in it.
type Header struct {
	ChainID  string `json:"chain_id"`
	Height   uint64 `json:"height"`
	RootHash []byte `json:"-"`
	Hash     []byte `json:"-"`
}

func (h *Header) calcHash(rootHash []byte, update bool) (hash common.Hash) {
	hash = crypto.Keccak256Hash(rootHash)
	if update {
		h.RootHash = append(h.RootHash[:0], rootHash...)
		h.Hash = append(h.Hash[:0], hash[:]...)
	}
	return
}

func (db *StateDB) loadHeader() (err error) {
	val, err := db.tree.Get([]byte(KeyState))
	if err != nil {
		if err != leveldb.ErrNotFound {
			return err
		}
		err = nil
	}
	if val == nil {
		return
	}
	if err = json.Unmarshal(val, db.header); err != nil {
		return
	}
	if h := db.tree.Hash(); h != nil {
		db.header.calcHash(h, true)
	}
	return
}

func (db *StateDB) Header() Header {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	h := *db.header
	h.RootHash = append([]byte(nil), db.header.RootHash...)
	h.Hash = append([]byte(nil), db.header.Hash...)
	return h
}

func (db *StateDB) Hash() (h common.Hash) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	copy(h[:], db.header.Hash)
	return
}

// WorkingHash is the hash of the tree including uncommitted versions.
func (db *StateDB) WorkingHash() (h common.Hash) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	copy(h[:], db.tree.WorkingHash())
	return
}

func (db *StateDB) SetChainID(chainID string) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.header.ChainID = chainID
}

// Update records the block height and returns the hash the tree will have
// once saved. Nothing is persisted until Save.
func (db *StateDB) Update(height uint64) (h common.Hash, err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.header.Height = height
	val, err := json.Marshal(db.header)
	if err != nil {
		return
	}
	if _, err = db.tree.Set([]byte(KeyState), val); err != nil {
		return
	}
	h = db.header.calcHash(db.tree.WorkingHash(), false)
	return
}

// Save persists the working tree as a new version.
func (db *StateDB) Save() (h common.Hash, err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	hash, ver, err := db.tree.SaveVersion()
	if err != nil {
		db.logger.Error("save version fail", "err", err)
		return h, err
	}
	h = db.header.calcHash(hash, true)
	db.logger.Debug("saved version", "version", ver, "height", db.header.Height, "hash", h)
	return
}

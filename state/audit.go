package state

import (
	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"

	"github.com/calehh/hac-vote/types"
)

var rf = &compact.RangeFactory{Hash: rfc6962.DefaultHasher.HashChildren}

// AuditLog is the compact range of a proposal's committed event log: the
// perfect subtree roots covering leaves [0, Size).
type AuditLog struct {
	Size   uint64   `json:"size"`
	Hashes [][]byte `json:"hashes"`
}

// Root is the RFC 6962 root hash of the log.
func (l *AuditLog) Root() ([]byte, error) {
	if l.Size == 0 {
		return rfc6962.DefaultHasher.EmptyRoot(), nil
	}
	r, err := rf.NewRange(0, l.Size, l.Hashes)
	if err != nil {
		return nil, err
	}
	return r.GetRootHash(nil)
}

// Append adds the canonical encoding of each event as a leaf.
func (l *AuditLog) Append(events ...types.Event) (root []byte, err error) {
	r, err := rf.NewRange(0, l.Size, l.Hashes)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		leaf, err := types.MarshalEvent(ev)
		if err != nil {
			return nil, err
		}
		if err = r.Append(rfc6962.DefaultHasher.HashLeaf(leaf), nil); err != nil {
			return nil, err
		}
	}
	l.Size = r.End()
	l.Hashes = r.Hashes()
	if l.Size == 0 {
		return rfc6962.DefaultHasher.EmptyRoot(), nil
	}
	return r.GetRootHash(nil)
}

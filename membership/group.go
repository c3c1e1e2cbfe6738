// Package membership keeps the per-proposal anonymous group and checks
// membership proofs against it.
package membership

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/calehh/hac-vote/types"
)

var (
	ErrGroupFull       = errors.New("group full")
	ErrInvalidDepth    = errors.New("invalid tree depth")
	ErrInvalidElement  = errors.New("not a canonical field element")
	ErrZeroCommitment  = errors.New("zero commitment")
	ErrUnknownRoot     = errors.New("unknown root")
	ErrProofRejected   = errors.New("proof rejected")
	ErrMemberNotFound  = errors.New("member not found")
	ErrNoVerifier      = errors.New("no proof verifier configured")
	ErrDuplicateMember = errors.New("commitment already in group")
	ErrLeavesMissing   = errors.New("group leaves not loaded")
)

// Group is a fixed-depth incremental Merkle tree of identity commitments.
// Filled holds the left sibling last seen at each level, so appends cost
// depth hashes and never read old leaves. Stores persist this frontier;
// leaves and past roots are kept under their own keys, and Leaves is only
// populated on groups built in memory or loaded for proving.
type Group struct {
	Depth   int      `json:"depth"`
	Count   uint64   `json:"size"`
	Filled  [][]byte `json:"filled"`
	Current []byte   `json:"root,omitempty"`
	Frozen  bool     `json:"frozen"`
	Leaves  [][]byte `json:"leaves,omitempty"`
}

func NewGroup(depth int) (*Group, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return &Group{
		Depth:  depth,
		Filled: make([][]byte, depth),
		Leaves: [][]byte{},
	}, nil
}

func (g *Group) Size() uint64 {
	return g.Count
}

// Root is the current root, or the empty-tree root before the first member.
func (g *Group) Root() []byte {
	if g.Count > 0 {
		return g.Current
	}
	return elementBytes(zeroHash(g.Depth))
}

// Frontier returns a copy without leaves, the form stores persist.
func (g *Group) Frontier() *Group {
	f := *g
	f.Filled = append([][]byte(nil), g.Filled...)
	f.Leaves = nil
	return &f
}

func (g *Group) Freeze() {
	g.Frozen = true
}

// Append adds a commitment and records the new root.
func (g *Group) Append(commitment []byte) (index uint64, root []byte, err error) {
	if g.Frozen {
		return 0, nil, types.ErrGroupFrozen
	}
	leaf, err := checkCommitment(commitment)
	if err != nil {
		return 0, nil, err
	}
	index = g.Count
	if index >= uint64(1)<<g.Depth {
		return 0, nil, fmt.Errorf("%w: %d members", ErrGroupFull, index)
	}
	node := leaf
	pos := index
	for level := 0; level < g.Depth; level++ {
		if pos&1 == 0 {
			g.Filled[level] = elementBytes(node)
			node = hashElements(node, zeroHash(level))
		} else {
			var left fr.Element
			left.SetBytes(g.Filled[level])
			node = hashElements(left, node)
		}
		pos >>= 1
	}
	root = elementBytes(node)
	if uint64(len(g.Leaves)) == index {
		g.Leaves = append(g.Leaves, elementBytes(leaf))
	}
	g.Count++
	g.Current = root
	return
}

// Path returns the sibling hashes and left/right bits from leaf index up to
// the current root. Provers use it to build a witness.
func (g *Group) Path(index uint64) (siblings [][]byte, bits []uint8, err error) {
	if index >= g.Count {
		return nil, nil, fmt.Errorf("%w: index %d", ErrMemberNotFound, index)
	}
	if uint64(len(g.Leaves)) != g.Count {
		return nil, nil, fmt.Errorf("%w: have %d of %d", ErrLeavesMissing, len(g.Leaves), g.Count)
	}
	level := make([]fr.Element, len(g.Leaves))
	for i, l := range g.Leaves {
		level[i].SetBytes(l)
	}
	pos := index
	for h := 0; h < g.Depth; h++ {
		sib := zeroHash(h)
		if s := pos ^ 1; s < uint64(len(level)) {
			sib = level[s]
		}
		siblings = append(siblings, elementBytes(sib))
		bits = append(bits, uint8(pos&1))

		next := make([]fr.Element, (len(level)+1)/2)
		for i := range next {
			right := zeroHash(h)
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = hashElements(level[2*i], right)
		}
		level = next
		pos >>= 1
	}
	return
}

// VerifyPath recomputes the root from a leaf and its path.
func VerifyPath(leaf, root []byte, siblings [][]byte, bits []uint8) bool {
	if len(siblings) != len(bits) {
		return false
	}
	node, err := Element(leaf)
	if err != nil {
		return false
	}
	for i, s := range siblings {
		sib, err := Element(s)
		if err != nil {
			return false
		}
		if bits[i] == 0 {
			node = hashElements(node, sib)
		} else {
			node = hashElements(sib, node)
		}
	}
	return bytes.Equal(elementBytes(node), root)
}

func checkCommitment(commitment []byte) (e fr.Element, err error) {
	e, err = Element(commitment)
	if err != nil {
		return e, fmt.Errorf("%w: %w", types.ErrInvalidProof, err)
	}
	if e.IsZero() {
		return e, fmt.Errorf("%w: %w", types.ErrInvalidProof, ErrZeroCommitment)
	}
	return
}

package membership

import (
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/calehh/hac-vote/types"
)

// Statement is the public input of a membership proof.
type Statement struct {
	Root      []byte
	Nullifier []byte
	Message   []byte
	Scope     []byte
}

// Verifier checks a proof against its statement. Implementations must be pure.
type Verifier interface {
	Verify(st Statement, proof []byte) (bool, error)
}

// Store is the slice of persisted state the protocol reads and writes.
// PutGroup keeps the frontier only; each leaf and each root the group has
// had is written under its own key.
type Store interface {
	Group(id uint64) (*Group, error)
	PutGroup(id uint64, g *Group) error
	Member(id uint64, commitment []byte) (index uint64, ok bool, err error)
	PutMember(id uint64, commitment []byte, index uint64) error
	PutLeaf(id uint64, index uint64, leaf []byte) error
	PutRoot(id uint64, root []byte) error
	HasRoot(id uint64, root []byte) (bool, error)
	NullifierUsed(id uint64, nullifier []byte) (bool, error)
}

type Protocol struct {
	logger   cmtlog.Logger
	verifier Verifier
}

func NewProtocol(verifier Verifier, logger cmtlog.Logger) *Protocol {
	return &Protocol{
		logger:   logger.With("module", "membership"),
		verifier: verifier,
	}
}

func (p *Protocol) Create(store Store, id uint64, depth int) (err error) {
	g, err := NewGroup(depth)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	return store.PutGroup(id, g)
}

func (p *Protocol) group(store Store, id uint64) (*Group, error) {
	g, err := store.Group(id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: proposal %d has no group", types.ErrProposalNotFound, id)
	}
	return g, nil
}

// CheckCommitment validates a commitment before it is accepted into the
// pending set or the group.
func (p *Protocol) CheckCommitment(store Store, id uint64, commitment []byte) error {
	if _, err := checkCommitment(commitment); err != nil {
		return err
	}
	g, err := p.group(store, id)
	if err != nil {
		return err
	}
	if g.Frozen {
		return types.ErrGroupFrozen
	}
	_, ok, err := store.Member(id, commitment)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %w", types.ErrAlreadyRegistered, ErrDuplicateMember)
	}
	return nil
}

func (p *Protocol) Join(store Store, id uint64, commitment []byte) (index uint64, err error) {
	if err = p.CheckCommitment(store, id, commitment); err != nil {
		return
	}
	g, err := p.group(store, id)
	if err != nil {
		return
	}
	index, root, err := g.Append(commitment)
	if err != nil {
		return
	}
	if err = store.PutGroup(id, g); err != nil {
		return
	}
	if err = store.PutLeaf(id, index, commitment); err != nil {
		return
	}
	if err = store.PutRoot(id, root); err != nil {
		return
	}
	err = store.PutMember(id, commitment, index)
	return
}

func (p *Protocol) Freeze(store Store, id uint64) error {
	g, err := p.group(store, id)
	if err != nil {
		return err
	}
	g.Freeze()
	return store.PutGroup(id, g)
}

// Verify accepts a ballot's proof when the root is one the group has had,
// the nullifier is fresh and the verifier accepts the statement.
func (p *Protocol) Verify(store Store, id uint64, st Statement, proof []byte) error {
	if _, err := p.group(store, id); err != nil {
		return err
	}
	known, err := store.HasRoot(id, st.Root)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %w %x", types.ErrInvalidProof, ErrUnknownRoot, st.Root)
	}
	if _, err = Element(st.Nullifier); err != nil {
		return fmt.Errorf("%w: nullifier: %w", types.ErrInvalidProof, err)
	}
	used, err := store.NullifierUsed(id, st.Nullifier)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: %x", types.ErrNullifierReused, st.Nullifier)
	}
	if p.verifier == nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, ErrNoVerifier)
	}
	ok, err := p.verifier.Verify(st, proof)
	if err != nil {
		p.logger.Debug("verify proof fail", "proposal", id, "err", err)
		return fmt.Errorf("%w: %w", types.ErrInvalidProof, err)
	}
	if !ok {
		return fmt.Errorf("%w: %w", types.ErrInvalidProof, ErrProofRejected)
	}
	return nil
}

package membership

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/calehh/hac-vote/types"
)

const (
	ElementSize  = fr.Bytes
	MaxDepth     = 32
	DefaultDepth = 20
)

var scopeDomain = []byte("hac-vote/scope")

// hashElements is MiMC-BN254 over canonical elements, the same sponge the
// membership circuit uses.
func hashElements(in ...fr.Element) (out fr.Element) {
	h := mimc.NewMiMC()
	for i := range in {
		b := in[i].Bytes()
		// canonical input never fails
		_, _ = h.Write(b[:])
	}
	out.SetBytes(h.Sum(nil))
	return
}

// Element parses a canonical big-endian field element.
func Element(b []byte) (e fr.Element, err error) {
	if len(b) != ElementSize {
		return e, fmt.Errorf("%w: %d bytes", ErrInvalidElement, len(b))
	}
	if err = e.SetBytesCanonical(b); err != nil {
		return e, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	return
}

func elementBytes(e fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

func reduce(digest []byte) []byte {
	var e fr.Element
	e.SetBigInt(new(big.Int).SetBytes(digest))
	return elementBytes(e)
}

// Scope binds nullifiers to one proposal.
func Scope(proposal uint64) []byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], proposal)
	return reduce(crypto.Keccak256(scopeDomain, id[:]))
}

// Message is the field element a proof commits to for a choice.
func Message(choice types.Choice) []byte {
	dat, _ := json.Marshal(choice)
	return reduce(crypto.Keccak256(dat))
}

var (
	zeroOnce sync.Once
	zeros    [MaxDepth + 1]fr.Element
)

// zeroHash returns the root of an empty subtree of the given height.
func zeroHash(level int) fr.Element {
	zeroOnce.Do(func() {
		for i := 1; i <= MaxDepth; i++ {
			zeros[i] = hashElements(zeros[i-1], zeros[i-1])
		}
	})
	return zeros[level]
}

// Identity is a voter's anonymous credential. Only the commitment ever
// reaches the engine.
type Identity struct {
	secret fr.Element
}

func NewIdentity(seed []byte) Identity {
	var id Identity
	id.secret.SetBytes(crypto.Keccak256([]byte("hac-vote/identity"), seed))
	return id
}

func IdentityFromSecret(secret []byte) (id Identity, err error) {
	id.secret, err = Element(secret)
	return
}

func (id Identity) Secret() []byte {
	return elementBytes(id.secret)
}

func (id Identity) Commitment() []byte {
	return elementBytes(hashElements(id.secret))
}

func (id Identity) Nullifier(scope []byte) ([]byte, error) {
	s, err := Element(scope)
	if err != nil {
		return nil, err
	}
	return elementBytes(hashElements(id.secret, s)), nil
}

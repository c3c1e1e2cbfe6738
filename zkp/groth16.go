package zkp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/types"
)

const (
	CircuitFile      = "membership.ccs"
	ProvingKeyFile   = "membership.pk"
	VerifyingKeyFile = "membership.vk"
)

var (
	ErrDepthMismatch = errors.New("witness depth does not match circuit")
)

var curve = ecc.BN254

type Keys struct {
	Depth int
	CS    constraint.ConstraintSystem
	PK    groth16.ProvingKey
	VK    groth16.VerifyingKey
}

func Compile(depth int) (constraint.ConstraintSystem, error) {
	if depth < 1 || depth > membership.MaxDepth {
		return nil, fmt.Errorf("%w: %d", membership.ErrInvalidDepth, depth)
	}
	return frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, NewMembershipCircuit(depth))
}

// Setup compiles the circuit and runs a local trusted setup. Production
// deployments should replace the keys with ones from a ceremony.
func Setup(depth int) (keys *Keys, err error) {
	ccs, err := Compile(depth)
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	return &Keys{Depth: depth, CS: ccs, PK: pk, VK: vk}, nil
}

// Witness is everything a prover needs for one ballot.
type Witness struct {
	Secret    []byte
	Siblings  [][]byte
	Bits      []uint8
	Root      []byte
	Nullifier []byte
	Message   []byte
	Scope     []byte
}

// BuildWitness assembles the witness for the member at index casting choice
// on proposal.
func BuildWitness(id membership.Identity, g *membership.Group, index uint64, proposal uint64, choice types.Choice) (w Witness, err error) {
	w.Siblings, w.Bits, err = g.Path(index)
	if err != nil {
		return
	}
	w.Scope = membership.Scope(proposal)
	w.Nullifier, err = id.Nullifier(w.Scope)
	if err != nil {
		return
	}
	w.Secret = id.Secret()
	w.Root = g.Root()
	w.Message = membership.Message(choice)
	return
}

func bigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func publicAssignment(depth int, st membership.Statement) *MembershipCircuit {
	c := NewMembershipCircuit(depth)
	c.Root = bigInt(st.Root)
	c.Nullifier = bigInt(st.Nullifier)
	c.Message = bigInt(st.Message)
	c.Scope = bigInt(st.Scope)
	c.Secret = 0
	for i := range c.Siblings {
		c.Siblings[i] = 0
		c.Bits[i] = 0
	}
	return c
}

// Assignment turns a witness into a full circuit assignment.
func (w Witness) Assignment() *MembershipCircuit {
	c := NewMembershipCircuit(len(w.Siblings))
	c.Root = bigInt(w.Root)
	c.Nullifier = bigInt(w.Nullifier)
	c.Message = bigInt(w.Message)
	c.Scope = bigInt(w.Scope)
	c.Secret = bigInt(w.Secret)
	for i := range w.Siblings {
		c.Siblings[i] = bigInt(w.Siblings[i])
		c.Bits[i] = int(w.Bits[i])
	}
	return c
}

func (w Witness) Statement() membership.Statement {
	return membership.Statement{Root: w.Root, Nullifier: w.Nullifier, Message: w.Message, Scope: w.Scope}
}

type Prover struct {
	depth int
	ccs   constraint.ConstraintSystem
	pk    groth16.ProvingKey
}

func NewProver(depth int, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) *Prover {
	return &Prover{depth: depth, ccs: ccs, pk: pk}
}

func (p *Prover) Prove(w Witness) ([]byte, error) {
	if len(w.Siblings) != p.depth || len(w.Bits) != p.depth {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDepthMismatch, len(w.Siblings), p.depth)
	}
	full, err := frontend.NewWitness(w.Assignment(), curve.ScalarField())
	if err != nil {
		return nil, err
	}
	proof, err := groth16.Prove(p.ccs, p.pk, full)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err = proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Verifier implements membership.Verifier with a Groth16 verifying key.
type Verifier struct {
	depth int
	vk    groth16.VerifyingKey
}

var _ membership.Verifier = (*Verifier)(nil)

func NewVerifier(depth int, vk groth16.VerifyingKey) *Verifier {
	return &Verifier{depth: depth, vk: vk}
}

func (v *Verifier) Verify(st membership.Statement, proof []byte) (bool, error) {
	p := groth16.NewProof(curve)
	if _, err := p.ReadFrom(bytes.NewReader(proof)); err != nil {
		return false, fmt.Errorf("decode proof: %w", err)
	}
	pub, err := frontend.NewWitness(publicAssignment(v.depth, st), curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, err
	}
	if err = groth16.Verify(p, v.vk, pub); err != nil {
		return false, nil
	}
	return true, nil
}

func writeTo(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = w.WriteTo(f)
	return err
}

func readFrom(path string, r io.ReaderFrom) error {
	dat, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = r.ReadFrom(bytes.NewReader(dat))
	return err
}

func WriteKeys(dir string, keys *Keys) (err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	if err = writeTo(filepath.Join(dir, CircuitFile), keys.CS); err != nil {
		return
	}
	if err = writeTo(filepath.Join(dir, ProvingKeyFile), keys.PK); err != nil {
		return
	}
	return writeTo(filepath.Join(dir, VerifyingKeyFile), keys.VK)
}

func ReadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(curve)
	if err := readFrom(path, vk); err != nil {
		return nil, err
	}
	return vk, nil
}

// ReadProver loads the circuit and proving key written by WriteKeys.
func ReadProver(dir string, depth int) (*Prover, error) {
	ccs := groth16.NewCS(curve)
	if err := readFrom(filepath.Join(dir, CircuitFile), ccs); err != nil {
		return nil, err
	}
	pk := groth16.NewProvingKey(curve)
	if err := readFrom(filepath.Join(dir, ProvingKeyFile), pk); err != nil {
		return nil, err
	}
	return NewProver(depth, ccs, pk), nil
}

// Package zkp holds the Groth16 membership circuit behind anonymous ballots.
package zkp

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// MembershipCircuit proves that the prover knows a secret whose commitment
// MiMC(secret) sits under Root, that Nullifier = MiMC(secret, Scope), and
// ties the proof to Message.
type MembershipCircuit struct {
	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`
	Message   frontend.Variable `gnark:",public"`
	Scope     frontend.Variable `gnark:",public"`

	Secret   frontend.Variable
	Siblings []frontend.Variable
	Bits     []frontend.Variable
}

// NewMembershipCircuit allocates a circuit for a tree of the given depth.
func NewMembershipCircuit(depth int) *MembershipCircuit {
	return &MembershipCircuit{
		Siblings: make([]frontend.Variable, depth),
		Bits:     make([]frontend.Variable, depth),
	}
}

func (c *MembershipCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(c.Secret)
	node := h.Sum()
	h.Reset()

	for i := range c.Siblings {
		api.AssertIsBoolean(c.Bits[i])
		left := api.Select(c.Bits[i], c.Siblings[i], node)
		right := api.Select(c.Bits[i], node, c.Siblings[i])
		h.Write(left, right)
		node = h.Sum()
		h.Reset()
	}
	api.AssertIsEqual(node, c.Root)

	h.Write(c.Secret, c.Scope)
	api.AssertIsEqual(h.Sum(), c.Nullifier)

	// a public input that appears in no constraint is not bound by the proof
	sq := api.Mul(c.Message, c.Message)
	api.AssertIsEqual(sq, api.Mul(c.Message, c.Message))
	return nil
}

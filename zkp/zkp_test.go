package zkp_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/zkp"
)

const depth = 3

func groupOf(t *testing.T, seeds ...string) (*membership.Group, []membership.Identity) {
	t.Helper()
	g, err := membership.NewGroup(depth)
	require.NoError(t, err)
	ids := make([]membership.Identity, len(seeds))
	for i, s := range seeds {
		ids[i] = membership.NewIdentity([]byte(s))
		_, _, err = g.Append(ids[i].Commitment())
		require.NoError(t, err)
	}
	return g, ids
}

func TestMembershipCircuitSolved(t *testing.T) {
	g, ids := groupOf(t, "alice", "bob", "carol")

	for i, id := range ids {
		w, err := zkp.BuildWitness(id, g, uint64(i), 7, types.SingleChoice(1))
		require.NoError(t, err)
		err = test.IsSolved(zkp.NewMembershipCircuit(depth), w.Assignment(), ecc.BN254.ScalarField())
		assert.NoError(t, err, "member %d", i)
	}
}

func TestMembershipCircuitRejects(t *testing.T) {
	g, ids := groupOf(t, "alice", "bob")
	field := ecc.BN254.ScalarField()

	w, err := zkp.BuildWitness(ids[0], g, 0, 7, types.SingleChoice(0))
	require.NoError(t, err)

	wrongNullifier := w
	wrongNullifier.Nullifier, err = ids[1].Nullifier(w.Scope)
	require.NoError(t, err)
	assert.Error(t, test.IsSolved(zkp.NewMembershipCircuit(depth), wrongNullifier.Assignment(), field))

	wrongScope := w
	wrongScope.Scope = membership.Scope(8)
	assert.Error(t, test.IsSolved(zkp.NewMembershipCircuit(depth), wrongScope.Assignment(), field))

	outsider := membership.NewIdentity([]byte("mallory"))
	forged := w
	forged.Secret = outsider.Secret()
	forged.Nullifier, err = outsider.Nullifier(w.Scope)
	require.NoError(t, err)
	assert.Error(t, test.IsSolved(zkp.NewMembershipCircuit(depth), forged.Assignment(), field))
}

func TestGroth16RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup in short mode")
	}
	keys, err := zkp.Setup(depth)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, zkp.WriteKeys(dir, keys))
	prover, err := zkp.ReadProver(dir, depth)
	require.NoError(t, err)
	vk, err := zkp.ReadVerifyingKey(dir + "/" + zkp.VerifyingKeyFile)
	require.NoError(t, err)
	verifier := zkp.NewVerifier(depth, vk)

	g, ids := groupOf(t, "alice", "bob")
	w, err := zkp.BuildWitness(ids[1], g, 1, 3, types.SingleChoice(0))
	require.NoError(t, err)

	proof, err := prover.Prove(w)
	require.NoError(t, err)

	ok, err := verifier.Verify(w.Statement(), proof)
	require.NoError(t, err)
	assert.True(t, ok)

	// same proof against another choice
	st := w.Statement()
	st.Message = membership.Message(types.SingleChoice(1))
	ok, err = verifier.Verify(st, proof)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = verifier.Verify(w.Statement(), []byte{1, 2, 3})
	assert.Error(t, err)
}

package state_test

import (
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/tally"
	"github.com/calehh/hac-vote/types"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func newDB(t *testing.T) *state.StateDB {
	t.Helper()
	db, err := state.NewMemStateDB(cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func proposal(id uint64) *types.Proposal {
	return &types.Proposal{
		ID:      id,
		Creator: alice,
		Config:  types.Config{Title: "p", Options: []string{"a", "b"}},
	}
}

func TestBatchIsolation(t *testing.T) {
	db := newDB(t)
	b := db.NewBatch()
	b.PutProposal(proposal(1))
	require.NoError(t, b.PutRegistration(&types.Registration{ProposalID: 1, Voter: alice, Approved: true}))

	// the batch sees its own writes, the store does not
	p, err := b.Proposal(1)
	require.NoError(t, err)
	assert.NotNil(t, p)
	reg, err := b.Registration(1, alice)
	require.NoError(t, err)
	assert.NotNil(t, reg)

	p, err = db.Proposal(1)
	require.NoError(t, err)
	assert.Nil(t, p)
	reg, err = db.Registration(1, alice)
	require.NoError(t, err)
	assert.Nil(t, reg)

	require.NoError(t, db.Commit(b))
	assert.ErrorIs(t, db.Commit(b), state.ErrBatchCommitted)

	p, err = db.Proposal(1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "p", p.Config.Title)
	reg, err = db.Registration(1, alice)
	require.NoError(t, err)
	assert.True(t, reg.Approved)
}

func TestDroppedBatchLeavesNoTrace(t *testing.T) {
	db := newDB(t)
	before := db.WorkingHash()
	b := db.NewBatch()
	b.PutProposal(proposal(1))
	b.Emit(&types.EventStateChanged{ProposalID: 1})
	assert.False(t, b.Empty())
	assert.Equal(t, before, db.WorkingHash())
}

func TestDeleteRegistration(t *testing.T) {
	db := newDB(t)
	b := db.NewBatch()
	b.PutProposal(proposal(1))
	require.NoError(t, b.PutRegistration(&types.Registration{ProposalID: 1, Voter: alice}))
	require.NoError(t, b.PutRegistration(&types.Registration{ProposalID: 1, Voter: bob}))
	require.NoError(t, db.Commit(b))

	b = db.NewBatch()
	require.NoError(t, b.DeleteRegistration(1, alice))
	reg, err := b.Registration(1, alice)
	require.NoError(t, err)
	assert.Nil(t, reg)
	require.NoError(t, db.Commit(b))

	regs, err := db.Registrations(1)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, bob, regs[0].Voter)
}

func TestListsStayWithinProposal(t *testing.T) {
	db := newDB(t)
	b := db.NewBatch()
	for _, id := range []uint64{1, 0x10, 0x100} {
		b.PutProposal(proposal(id))
		require.NoError(t, b.PutBallot(&types.Ballot{ProposalID: id, Voter: alice}))
	}
	require.NoError(t, b.PutBallot(&types.Ballot{ProposalID: 1, Voter: bob}))
	require.NoError(t, db.Commit(b))

	ballots, err := db.Ballots(1)
	require.NoError(t, err)
	assert.Len(t, ballots, 2)
	ballots, err = db.Ballots(0x10)
	require.NoError(t, err)
	assert.Len(t, ballots, 1)
	ballots, err = db.Ballots(2)
	require.NoError(t, err)
	assert.Empty(t, ballots)
}

func TestAuditLogGrowsPerCommit(t *testing.T) {
	db := newDB(t)
	b := db.NewBatch()
	b.PutProposal(proposal(1))
	b.Emit(&types.EventProposalCreated{ProposalID: 1, Title: "p"})
	require.NoError(t, db.Commit(b))

	p, err := db.Proposal(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.AuditSize)
	first := p.AuditRoot

	b = db.NewBatch()
	b.Emit(
		&types.EventStateChanged{ProposalID: 1, Old: 0, New: 1},
		&types.EventStateChanged{ProposalID: 1, Old: 1, New: 2},
	)
	require.NoError(t, db.Commit(b))
	p, err = db.Proposal(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.AuditSize)
	assert.NotEqual(t, first, p.AuditRoot)

	l, err := db.Audit(1)
	require.NoError(t, err)
	root, err := l.Root()
	require.NoError(t, err)
	assert.Equal(t, p.AuditRoot, root)

	b = db.NewBatch()
	b.Emit(&types.EventStateChanged{ProposalID: 9})
	assert.ErrorIs(t, db.Commit(b), types.ErrProposalNotFound)
}

func TestAuditLogMatchesIncrementalAppends(t *testing.T) {
	events := []types.Event{
		&types.EventProposalCreated{ProposalID: 1},
		&types.EventStateChanged{ProposalID: 1, New: 1},
		&types.EventVoteCast{ProposalID: 1, Voter: "0x01", Choice: types.SingleChoice(1), Weight: 1},
	}
	var once, stepwise state.AuditLog
	all, err := once.Append(events...)
	require.NoError(t, err)
	var last []byte
	for _, ev := range events {
		last, err = stepwise.Append(ev)
		require.NoError(t, err)
	}
	assert.Equal(t, all, last)

	var empty state.AuditLog
	r, err := empty.Root()
	require.NoError(t, err)
	assert.NotEmpty(t, r)
}

func TestReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := state.NewStateDB(dir, 0, cmtlog.NewNopLogger())
	require.NoError(t, err)
	db.SetChainID("hac-test")

	b := db.NewBatch()
	b.PutProposal(proposal(1))
	b.SetProposalCount(1)
	require.NoError(t, b.PutTally(1, tally.New(types.RuleSimpleMajority, 2)))
	require.NoError(t, b.SetNonce(alice, 7))
	require.NoError(t, b.PutMember(1, []byte{1, 2}, 3))
	require.NoError(t, db.Commit(b))
	require.NoError(t, db.SetParams(types.GenesisState{MerkleDepth: 8}))

	pending, err := db.Update(5)
	require.NoError(t, err)
	saved, err := db.Save()
	require.NoError(t, err)
	assert.Equal(t, pending, saved)
	assert.Equal(t, saved, db.Hash())
	require.NoError(t, db.Close())

	db, err = state.NewStateDB(dir, 0, cmtlog.NewNopLogger())
	require.NoError(t, err)
	defer db.Close()

	h := db.Header()
	assert.Equal(t, "hac-test", h.ChainID)
	assert.Equal(t, uint64(5), h.Height)
	assert.Equal(t, saved, db.Hash())

	n, err := db.ProposalCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	nonce, err := db.Nonce(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)
	idx, ok, err := db.Member(1, []byte{1, 2})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), idx)
	params, err := db.Params()
	require.NoError(t, err)
	assert.Equal(t, 8, params.MerkleDepth)
	st, err := db.Tally(1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 0}, st.Counts)
}

func TestGroupStoredAsFrontier(t *testing.T) {
	db := newDB(t)
	p := membership.NewProtocol(nil, cmtlog.NewNopLogger())
	b := db.NewBatch()
	require.NoError(t, p.Create(b, 1, 8))
	require.NoError(t, db.Commit(b))

	var commitments [][]byte
	var roots [][]byte
	for i := 0; i < 20; i++ {
		c := membership.NewIdentity([]byte{byte(i)}).Commitment()
		b := db.NewBatch()
		_, err := p.Join(b, 1, c)
		require.NoError(t, err)
		g, err := b.Group(1)
		require.NoError(t, err)
		require.NoError(t, db.Commit(b))
		commitments = append(commitments, c)
		roots = append(roots, g.Root())
	}

	g, err := db.Group(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), g.Size())
	assert.Empty(t, g.Leaves)
	assert.Equal(t, roots[19], g.Root())

	leaves, err := db.Leaves(1)
	require.NoError(t, err)
	assert.Equal(t, commitments, leaves)
	for _, r := range roots {
		known, err := db.HasRoot(1, r)
		require.NoError(t, err)
		assert.True(t, known)
	}
	known, err := db.HasRoot(2, roots[0])
	require.NoError(t, err)
	assert.False(t, known)

	other, err := db.Leaves(2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

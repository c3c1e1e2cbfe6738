package vote_test

import (
	"context"
	"math/big"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/state"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/vote"
)

var (
	creator = common.HexToAddress("0xc0ffee")
	alice   = common.HexToAddress("0xa11ce")
	bob     = common.HexToAddress("0xb0b")
	carol   = common.HexToAddress("0xca201")
	dave    = common.HexToAddress("0xda7e")
	ctx     = context.Background()
)

const (
	regStart    = 10
	regEnd      = 20
	votingStart = 20
	votingEnd   = 30
)

var (
	atCreate   = types.AtHeight(1)
	atReg      = types.AtHeight(regStart)
	atVoting   = types.AtHeight(votingStart)
	atTallying = types.AtHeight(votingEnd)
)

// acceptVerifier accepts any proof equal to "ok".
type acceptVerifier struct{}

func (acceptVerifier) Verify(st membership.Statement, proof []byte) (bool, error) {
	return string(proof) == "ok", nil
}

type balances map[common.Address]int64

func (b balances) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return big.NewInt(b[holder]), nil
}

type fixture struct {
	db     *state.StateDB
	engine *vote.Engine
}

func newFixture(t *testing.T, cfg vote.Config) *fixture {
	t.Helper()
	db, err := state.NewMemStateDB(cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg.DB = db
	cfg.Logger = cmtlog.NewNopLogger()
	e, err := vote.NewEngine(cfg)
	require.NoError(t, err)
	return &fixture{db: db, engine: e}
}

func baseConfig() types.Config {
	return types.Config{
		Title:             "treasury",
		Options:           []string{"for", "against"},
		Rule:              types.RuleSimpleMajority,
		Privacy:           types.PrivacyPublic,
		Registration:      types.RegistrationOpen,
		RegistrationStart: regStart,
		RegistrationEnd:   regEnd,
		VotingStart:       votingStart,
		VotingEnd:         votingEnd,
		Visibility:        types.AllPublic,
	}
}

func (f *fixture) create(t *testing.T, cfg types.Config) uint64 {
	t.Helper()
	p, err := f.engine.CreateProposal(ctx, creator, cfg, atCreate)
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) toVoting(t *testing.T, id uint64, voters ...common.Address) {
	t.Helper()
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))
	for _, v := range voters {
		_, err := f.engine.Register(ctx, id, v, nil, atReg)
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.StartVoting(ctx, id, creator, atVoting))
}

func TestSimpleMajorityScenario(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())
	assert.Equal(t, uint64(1), id)
	f.toVoting(t, id, alice, bob, carol)

	for v, opt := range map[common.Address]uint32{alice: 0, bob: 0, carol: 1} {
		_, err := f.engine.CastVote(ctx, id, v, types.SingleChoice(opt), atVoting)
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.StartTallying(ctx, id, creator, atTallying))

	res, err := f.engine.RevealResult(ctx, id, atTallying)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.WinningOption)
	assert.Equal(t, []uint64{2, 1}, res.Counts)
	assert.Equal(t, uint64(3), res.TotalVotes)
	assert.Equal(t, uint64(1), res.Margin)
	assert.True(t, res.Passed)

	again, err := f.engine.RevealResult(ctx, id, types.AtHeight(99))
	require.NoError(t, err)
	assert.Equal(t, res, again)

	p, err := f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, p.State)
	assert.True(t, p.ResultRevealed)
	assert.Equal(t, uint64(3), p.TotalVoters)
	assert.Equal(t, uint64(3), p.TotalVotes)
}

func TestCreateProposalValidates(t *testing.T) {
	f := newFixture(t, vote.Config{})

	cfg := baseConfig()
	cfg.Options = []string{"only"}
	_, err := f.engine.CreateProposal(ctx, creator, cfg, atCreate)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg = baseConfig()
	cfg.VotingStart = regEnd - 1
	_, err = f.engine.CreateProposal(ctx, creator, cfg, atCreate)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg = baseConfig()
	cfg.Rule = types.RuleWeighted
	_, err = f.engine.CreateProposal(ctx, creator, cfg, atCreate)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	n, err := f.engine.ProposalCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, uint64(1), f.create(t, baseConfig()))
	assert.Equal(t, uint64(2), f.create(t, baseConfig()))
}

func TestTransitionGuardOrder(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())

	// creator is checked before state and window
	err := f.engine.StartVoting(ctx, id, alice, atCreate)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	// state before window
	err = f.engine.StartVoting(ctx, id, creator, atCreate)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
	err = f.engine.StartRegistration(ctx, id, creator, types.AtHeight(regStart-1))
	assert.ErrorIs(t, err, types.ErrWindowNotOpen)

	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))
	err = f.engine.StartRegistration(ctx, id, creator, atReg)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
	err = f.engine.StartVoting(ctx, id, creator, types.AtHeight(votingStart-1))
	assert.ErrorIs(t, err, types.ErrWindowNotOpen)

	require.NoError(t, f.engine.StartVoting(ctx, id, creator, atVoting))
	err = f.engine.StartTallying(ctx, id, creator, types.AtHeight(votingEnd-1))
	assert.ErrorIs(t, err, types.ErrWindowNotOpen)

	_, err = f.engine.RevealResult(ctx, id, atVoting)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)

	_, err = f.engine.Proposal(42)
	assert.ErrorIs(t, err, types.ErrProposalNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())
	f.toVoting(t, id, alice)

	assert.ErrorIs(t, f.engine.Cancel(ctx, id, alice, atVoting), types.ErrUnauthorized)
	require.NoError(t, f.engine.Cancel(ctx, id, creator, atVoting))
	assert.ErrorIs(t, f.engine.Cancel(ctx, id, creator, atVoting), types.ErrInvalidStateTransition)

	_, err := f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atVoting)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
	assert.ErrorIs(t, f.engine.StartTallying(ctx, id, creator, atTallying), types.ErrInvalidStateTransition)
}

func TestBallotsOnlyDuringVoting(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))
	_, err := f.engine.Register(ctx, id, alice, nil, atReg)
	require.NoError(t, err)

	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atReg)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)

	require.NoError(t, f.engine.StartVoting(ctx, id, creator, types.AtHeight(votingStart+5)))
	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), types.AtHeight(votingEnd))
	assert.ErrorIs(t, err, types.ErrWindowClosed)

	_, err = f.engine.CastVote(ctx, id, bob, types.SingleChoice(0), atVoting)
	assert.ErrorIs(t, err, types.ErrNotRegistered)

	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(2), atVoting)
	assert.ErrorIs(t, err, types.ErrInvalidBallot)

	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(1), atVoting)
	require.NoError(t, err)
	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atVoting)
	assert.ErrorIs(t, err, types.ErrAlreadyVoted)

	voted, err := f.engine.HasVoted(id, alice, alice)
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestRegistrationWindowAndDuplicates(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())

	_, err := f.engine.Register(ctx, id, alice, nil, atCreate)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)

	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))
	_, err = f.engine.Register(ctx, id, alice, nil, types.AtHeight(regEnd))
	assert.ErrorIs(t, err, types.ErrWindowClosed)

	_, err = f.engine.Register(ctx, id, alice, nil, atReg)
	require.NoError(t, err)
	_, err = f.engine.Register(ctx, id, alice, nil, atReg)
	assert.ErrorIs(t, err, types.ErrAlreadyRegistered)

	s, err := f.engine.RegistrationStatus(id, alice, alice)
	require.NoError(t, err)
	assert.True(t, s.Registered)
	assert.False(t, s.Pending)
	assert.Equal(t, uint64(1), s.Weight)
}

func TestWeightedTallyMatchesCastWeights(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Rule = types.RuleWeighted
	cfg.WeightGroups = []types.WeightGroup{{Name: "member", Weight: 1}, {Name: "council", Weight: 5}}
	id := f.create(t, cfg)
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))

	council := uint32(1)
	_, err := f.engine.Register(ctx, id, alice, &council, atReg)
	require.NoError(t, err)
	_, err = f.engine.Register(ctx, id, bob, nil, atReg)
	require.NoError(t, err)
	bad := uint32(7)
	_, err = f.engine.Register(ctx, id, carol, &bad, atReg)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	// later edits do not touch recorded weights
	require.NoError(t, f.engine.SetWeightGroup(ctx, id, creator, 1, 9, atReg))
	_, err = f.engine.Register(ctx, id, carol, &council, atReg)
	require.NoError(t, err)
	require.NoError(t, f.engine.StartVoting(ctx, id, creator, atVoting))
	assert.ErrorIs(t, f.engine.SetWeightGroup(ctx, id, creator, 1, 2, atVoting), types.ErrInvalidStateTransition)

	for v, opt := range map[common.Address]uint32{alice: 0, bob: 1, carol: 1} {
		_, err = f.engine.CastVote(ctx, id, v, types.SingleChoice(opt), atVoting)
		require.NoError(t, err)
	}
	counts, err := f.engine.Tallies(id, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 10}, counts)

	var sum uint64
	ballots, err := f.engine.Ballots(id, common.Address{})
	require.NoError(t, err)
	for _, b := range ballots {
		sum += b.Weight
	}
	assert.Equal(t, counts[0]+counts[1], sum)
}

func TestWeightBounds(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Rule = types.RuleWeighted
	cfg.WeightGroups = []types.WeightGroup{{Name: "whale", Weight: 1 << 63}, {Name: "minnow", Weight: 1}}
	_, err := f.engine.CreateProposal(ctx, creator, cfg, atCreate)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg.WeightGroups[0].Weight = types.MaxWeight
	id := f.create(t, cfg)
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))
	assert.ErrorIs(t, f.engine.SetWeightGroup(ctx, id, creator, 0, 1<<63, atReg), types.ErrInvalidConfig)
	assert.ErrorIs(t, f.engine.SetWeightGroup(ctx, id, creator, 0, 0, atReg), types.ErrInvalidConfig)

	whale, minnow := uint32(0), uint32(1)
	for v, g := range map[common.Address]*uint32{alice: &whale, bob: &whale, carol: &minnow} {
		_, err = f.engine.Register(ctx, id, v, g, atReg)
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.StartVoting(ctx, id, creator, atVoting))
	for v, opt := range map[common.Address]uint32{alice: 0, bob: 0, carol: 1} {
		_, err = f.engine.CastVote(ctx, id, v, types.SingleChoice(opt), atVoting)
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.StartTallying(ctx, id, creator, atTallying))
	res, err := f.engine.RevealResult(ctx, id, atTallying)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2 * types.MaxWeight, 1}, res.Counts)
	assert.Equal(t, uint32(0), res.WinningOption)
	assert.True(t, res.Passed)
}

func TestQuadraticBudget(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Rule = types.RuleQuadratic
	cfg.Options = []string{"a", "b", "c"}
	cfg.WeightGroups = []types.WeightGroup{{Name: "credits", Weight: 10}}
	id := f.create(t, cfg)
	f.toVoting(t, id, alice, bob)

	_, err := f.engine.CastQuadraticVote(ctx, id, alice, []uint32{0, 1}, []uint64{3, 2}, atVoting)
	assert.ErrorIs(t, err, types.ErrInvalidBallot)
	_, err = f.engine.CastQuadraticVote(ctx, id, alice, []uint32{0, 1}, []uint64{3, 1}, atVoting)
	require.NoError(t, err)
	_, err = f.engine.CastQuadraticVote(ctx, id, bob, []uint32{2}, []uint64{3}, atVoting)
	require.NoError(t, err)

	counts, err := f.engine.Tallies(id, creator)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 1, 3}, counts)
}

func TestRankedChoiceThroughEngine(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Rule = types.RuleRankedChoice
	cfg.Options = []string{"a", "b", "c"}
	id := f.create(t, cfg)
	f.toVoting(t, id, alice, bob, carol, dave)

	rankings := map[common.Address][]uint32{
		alice: {0, 1},
		bob:   {1, 0},
		carol: {1},
		dave:  {2, 0},
	}
	for v, r := range rankings {
		_, err := f.engine.CastRankedVote(ctx, id, v, r, atVoting)
		require.NoError(t, err)
	}
	_, err := f.engine.CastRankedVote(ctx, id, alice, []uint32{0, 0}, atVoting)
	assert.Error(t, err)

	require.NoError(t, f.engine.StartTallying(ctx, id, creator, atTallying))
	res, err := f.engine.RevealResult(ctx, id, atTallying)
	require.NoError(t, err)
	// round 1: a=1 b=2 c=1, no majority; a and c tie, a goes (lowest index)
	// round 2: b=3 c=1
	assert.Equal(t, uint32(1), res.WinningOption)
	assert.Len(t, res.Rounds, 2)
	assert.True(t, res.Passed)
}

func TestQuorumNotMetForcesFail(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Quorum = 75
	id := f.create(t, cfg)
	f.toVoting(t, id, alice, bob, carol, dave)

	_, err := f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atVoting)
	require.NoError(t, err)
	require.NoError(t, f.engine.StartTallying(ctx, id, creator, atTallying))
	res, err := f.engine.RevealResult(ctx, id, atTallying)
	require.NoError(t, err)
	assert.False(t, res.QuorumMet)
	assert.False(t, res.Passed)
	assert.Equal(t, uint32(0), res.WinningOption)
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Registration = types.RegistrationApproval
	id := f.create(t, cfg)
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))

	for _, v := range []common.Address{alice, bob, carol} {
		reg, err := f.engine.Register(ctx, id, v, nil, atReg)
		require.NoError(t, err)
		assert.False(t, reg.Approved)
	}
	pending, err := f.engine.PendingRegistrations(id, creator)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	_, err = f.engine.Approve(ctx, id, alice, alice, atReg)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	// dave never registered, so nothing in the batch sticks
	before := f.db.WorkingHash()
	_, err = f.engine.BatchApprove(ctx, id, creator, []common.Address{alice, dave}, atReg)
	assert.ErrorIs(t, err, types.ErrNotRegistered)
	assert.Equal(t, before, f.db.WorkingHash())

	regs, err := f.engine.BatchApprove(ctx, id, creator, []common.Address{alice, bob}, atReg)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
	require.NoError(t, f.engine.Reject(ctx, id, creator, carol, atReg))

	s, err := f.engine.RegistrationStatus(id, carol, carol)
	require.NoError(t, err)
	assert.False(t, s.Registered || s.Pending)

	p, err := f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.TotalVoters)

	registered, err := f.engine.Registrations(id, creator)
	require.NoError(t, err)
	assert.Len(t, registered, 2)
}

func TestAssetGatedBelowMinimum(t *testing.T) {
	f := newFixture(t, vote.Config{Balances: balances{alice: 100, bob: 5}})
	cfg := baseConfig()
	cfg.Registration = types.RegistrationAssetGated
	cfg.AssetGate = &types.AssetGate{Token: common.HexToAddress("0x70ce"), MinBalance: big.NewInt(10)}
	id := f.create(t, cfg)
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))

	_, err := f.engine.Register(ctx, id, bob, nil, atReg)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	s, err := f.engine.RegistrationStatus(id, bob, bob)
	require.NoError(t, err)
	assert.False(t, s.Registered || s.Pending)

	_, err = f.engine.Register(ctx, id, alice, nil, atReg)
	require.NoError(t, err)

	noChecker := newFixture(t, vote.Config{})
	id = noChecker.create(t, cfg)
	require.NoError(t, noChecker.engine.StartRegistration(ctx, id, creator, atReg))
	_, err = noChecker.engine.Register(ctx, id, alice, nil, atReg)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestWhitelist(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Rule = types.RuleWeighted
	cfg.WeightGroups = []types.WeightGroup{{Name: "member", Weight: 1}, {Name: "council", Weight: 3}}
	council := uint32(1)
	cfg.Whitelist = []types.WhitelistEntry{{Address: alice, WeightGroup: &council}}
	id := f.create(t, cfg)

	require.NoError(t, f.engine.AddWhitelist(ctx, id, creator, []types.WhitelistEntry{{Address: bob}}, atCreate))
	assert.ErrorIs(t, f.engine.AddWhitelist(ctx, id, bob, []types.WhitelistEntry{{Address: bob}}, atCreate), types.ErrUnauthorized)
	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))

	reg, err := f.engine.Register(ctx, id, alice, nil, atReg)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reg.Weight)
	_, err = f.engine.Register(ctx, id, bob, nil, atReg)
	require.NoError(t, err)
	_, err = f.engine.Register(ctx, id, carol, nil, atReg)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	list, err := f.engine.Whitelist(id, creator)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestVisibilityGatesQueries(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Visibility = types.EncodeVisibility(types.VisibilityConfig{
		types.FieldVoteCounts:  types.CreatorOnly,
		types.FieldVoteDetails: types.Hidden,
		types.FieldVoterList:   types.ParticipantsOnly,
		types.FieldProgress:    types.Public,
		types.FieldFinalResult: types.Public,
	})
	id := f.create(t, cfg)
	f.toVoting(t, id, alice)

	_, err := f.engine.Tallies(id, alice)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.engine.Tallies(id, creator)
	assert.NoError(t, err)

	_, err = f.engine.Ballots(id, creator)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = f.engine.Registrations(id, bob)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.engine.Registrations(id, alice)
	assert.NoError(t, err)

	pt, err := f.engine.Participation(id, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pt.TotalVoters)

	// visibility never gates voting
	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atVoting)
	assert.NoError(t, err)

	_, err = f.engine.Result(id, alice)
	assert.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestVoterStatusVisibility(t *testing.T) {
	f := newFixture(t, vote.Config{})
	cfg := baseConfig()
	cfg.Visibility = types.EncodeVisibility(types.VisibilityConfig{
		types.FieldVoteCounts:  types.Public,
		types.FieldVoteDetails: types.Hidden,
		types.FieldVoterList:   types.CreatorOnly,
		types.FieldProgress:    types.CreatorOnly,
		types.FieldFinalResult: types.Public,
	})
	id := f.create(t, cfg)
	f.toVoting(t, id, alice, bob)
	_, err := f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atVoting)
	require.NoError(t, err)

	_, err = f.engine.Registrations(id, dave)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.engine.RegistrationStatus(id, alice, dave)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.engine.RegistrationStatus(id, alice, common.Address{})
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.engine.RegistrationStatus(id, alice, bob)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.engine.HasVoted(id, alice, dave)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	s, err := f.engine.RegistrationStatus(id, alice, alice)
	require.NoError(t, err)
	assert.True(t, s.Registered)
	assert.True(t, s.Voted)
	assert.False(t, s.VoteHidden)

	s, err = f.engine.RegistrationStatus(id, alice, creator)
	require.NoError(t, err)
	assert.True(t, s.Voted)
	voted, err := f.engine.HasVoted(id, bob, creator)
	require.NoError(t, err)
	assert.False(t, voted)

	// voter list without vote details or progress hides the voted flag
	cfg.Visibility = types.EncodeVisibility(types.VisibilityConfig{
		types.FieldVoteCounts:  types.Public,
		types.FieldVoteDetails: types.Hidden,
		types.FieldVoterList:   types.Public,
		types.FieldProgress:    types.Hidden,
		types.FieldFinalResult: types.Public,
	})
	id = f.create(t, cfg)
	f.toVoting(t, id, alice)
	_, err = f.engine.CastVote(ctx, id, alice, types.SingleChoice(0), atVoting)
	require.NoError(t, err)
	s, err = f.engine.RegistrationStatus(id, alice, dave)
	require.NoError(t, err)
	assert.True(t, s.Registered)
	assert.False(t, s.Voted)
	assert.True(t, s.VoteHidden)
}

func TestAutoAdvance(t *testing.T) {
	f := newFixture(t, vote.Config{})
	manual := f.create(t, baseConfig())
	moved, err := f.engine.AutoAdvance(ctx, manual, atTallying)
	require.NoError(t, err)
	assert.Empty(t, moved)

	cfg := baseConfig()
	cfg.AutoAdvance = true
	id := f.create(t, cfg)

	moved, err = f.engine.AutoAdvance(ctx, id, types.AtHeight(regStart-1))
	require.NoError(t, err)
	assert.Empty(t, moved)

	moved, err = f.engine.AutoAdvance(ctx, id, atReg)
	require.NoError(t, err)
	assert.Equal(t, []types.ProposalState{types.StateRegistration}, moved)
	_, err = f.engine.Register(ctx, id, alice, nil, atReg)
	require.NoError(t, err)

	moved, err = f.engine.AutoAdvance(ctx, id, atTallying)
	require.NoError(t, err)
	assert.Equal(t, []types.ProposalState{types.StateVoting, types.StateTallying}, moved)

	p, err := f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateTallying, p.State)

	// tallying never finalizes implicitly
	moved, err = f.engine.AutoAdvance(ctx, id, types.AtHeight(1000))
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestAuditRootTracksCommits(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())
	p, err := f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.AuditSize)
	root := p.AuditRoot

	require.NoError(t, f.engine.StartRegistration(ctx, id, creator, atReg))
	p, err = f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.AuditSize)
	assert.NotEqual(t, root, p.AuditRoot)
	root = p.AuditRoot

	before := f.db.WorkingHash()
	_, err = f.engine.Register(ctx, id, alice, nil, types.AtHeight(regEnd+1))
	require.Error(t, err)
	p, err = f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, root, p.AuditRoot)
	assert.Equal(t, before, f.db.WorkingHash())
}

func TestCollectEvents(t *testing.T) {
	f := newFixture(t, vote.Config{})
	id := f.create(t, baseConfig())

	var events []types.Event
	cctx := vote.CollectEvents(ctx, &events)
	require.NoError(t, f.engine.StartRegistration(cctx, id, creator, atReg))
	_, err := f.engine.Register(cctx, id, alice, nil, atReg)
	require.NoError(t, err)
	_, err = f.engine.Register(cctx, id, alice, nil, atReg)
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, types.EventStateChangedType, events[0].EventType())
	assert.Equal(t, types.EventVoterRegisteredType, events[1].EventType())
}
